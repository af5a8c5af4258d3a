package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/engine"
)

type stubEngine struct {
	mu       sync.Mutex
	running  bool
	inputs   []engine.InputEvent
	frame    []byte
	startErr error
	inputErr error
}

func (e *stubEngine) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.running = true
	return nil
}

func (e *stubEngine) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return nil
}

func (e *stubEngine) Status() engine.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engine.StatusSnapshot{
		State:   engine.StateReady,
		Running: e.running,
		Cycles:  7,
	}
}

func (e *stubEngine) Input(ev engine.InputEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inputErr != nil {
		return e.inputErr
	}
	e.inputs = append(e.inputs, ev)
	return nil
}

func (e *stubEngine) LatestFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func newTestServer(eng *stubEngine) *httptest.Server {
	srv := NewServer(eng, prometheus.NewRegistry(), nil)
	return httptest.NewServer(srv.Handler())
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&stubEngine{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStartStopStatus(t *testing.T) {
	eng := &stubEngine{}
	ts := newTestServer(eng)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engine/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/engine/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/v1/engine/stop", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.False(t, eng.running)
}

func TestStartConflict(t *testing.T) {
	eng := &stubEngine{startErr: errors.New("engine already running")}
	ts := newTestServer(eng)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engine/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInputValidation(t *testing.T) {
	eng := &stubEngine{}
	ts := newTestServer(eng)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engine/input", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/v1/engine/input", "application/json",
		strings.NewReader(`{"type":"click","x":120,"y":340}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, eng.inputs, 1)
	require.Equal(t, 120.0, eng.inputs[0].X)
}

func TestInputRejectedInWrongState(t *testing.T) {
	eng := &stubEngine{inputErr: errors.New("input rejected in state READY")}
	ts := newTestServer(eng)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engine/input", "application/json",
		strings.NewReader(`{"type":"click","x":1,"y":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFrame(t *testing.T) {
	eng := &stubEngine{}
	ts := newTestServer(eng)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/engine/frame")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	eng.mu.Lock()
	eng.frame = []byte{0xff, 0xd8, 0xff}
	eng.mu.Unlock()

	resp, err = http.Get(ts.URL + "/v1/engine/frame")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(&stubEngine{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
