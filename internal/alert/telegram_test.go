package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/engine"
)

func TestTelegramNotify(t *testing.T) {
	var gotPath, gotChatID, gotText, gotMode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChatID = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		gotMode = r.FormValue("parse_mode")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	sink, err := NewTelegramSink("bot-token", "chat-42", WithTelegramBaseURL(server.URL))
	require.NoError(t, err)

	err = sink.Notify(context.Background(), engine.CategorySourceFailure, "Source check failed: src-a", "timeout after 3 tries <ok>")
	require.NoError(t, err)

	require.Equal(t, "/botbot-token/sendMessage", gotPath)
	require.Equal(t, "chat-42", gotChatID)
	require.Equal(t, "HTML", gotMode)
	require.Equal(t, "<b>Source check failed: src-a</b>\ntimeout after 3 tries &lt;ok&gt;", gotText)
}

func TestTelegramNotifyAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"description":"Too Many Requests"}`))
	}))
	defer server.Close()

	sink, err := NewTelegramSink("t", "c", WithTelegramBaseURL(server.URL))
	require.NoError(t, err)

	err = sink.Notify(context.Background(), engine.CategorySessionLost, "session lost", "relogin required")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestTelegramRequiresCredentials(t *testing.T) {
	_, err := NewTelegramSink("", "chat")
	require.Error(t, err)
	_, err = NewTelegramSink("token", "")
	require.Error(t, err)
}
