package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/engine"
	"github.com/dropwatch/dropwatch/internal/pacing"
)

func TestLocatorsForPriority(t *testing.T) {
	src := engine.Source{ID: "alpha-drops", Target: "https://example.com/app/alpha-drops"}
	chain := LocatorsFor(src)

	require.Len(t, chain, 3)
	require.Equal(t, LocatorByAttr, chain[0].Kind)
	require.Contains(t, chain[0].Value, "alpha-drops")
	require.Equal(t, LocatorByText, chain[2].Kind)
}

func TestProbeExpressionByAttribute(t *testing.T) {
	expr, err := probeExpression(ElementLocator{Kind: LocatorByAttr, Value: `a[href*="alpha"]`})
	require.NoError(t, err)
	require.Contains(t, expr, `document.querySelector("a[href*=\"alpha\"]")`)
	require.Contains(t, expr, "getBoundingClientRect")
	require.Contains(t, expr, "scrollIntoView")
}

func TestProbeExpressionByText(t *testing.T) {
	expr, err := probeExpression(ElementLocator{Kind: LocatorByText, Value: "alpha drops"})
	require.NoError(t, err)
	require.Contains(t, expr, "document.evaluate")
	require.Contains(t, expr, "contains(text()")
	require.Contains(t, expr, "alpha drops")
}

func TestProbeExpressionUnknownKind(t *testing.T) {
	_, err := probeExpression(ElementLocator{Kind: "css4", Value: "x"})
	require.Error(t, err)
}

func TestClassifyPageError(t *testing.T) {
	err := classifyPageError(fmt.Errorf("run: target closed"))
	require.ErrorIs(t, err, engine.ErrSessionLost)

	err = classifyPageError(errors.New("waiting for selector timed out"))
	require.NotErrorIs(t, err, engine.ErrSessionLost)

	require.NoError(t, classifyPageError(nil))
}

func TestPickUserAgentCoversTable(t *testing.T) {
	seen := make(map[string]bool)
	for roll := 0; roll < 100; roll++ {
		ua := pickUserAgent(roll)
		require.True(t, strings.HasPrefix(ua, "Mozilla/5.0"))
		seen[ua] = true
	}
	require.Len(t, seen, len(userAgents), "every weighted entry is reachable")
}

func TestInputRejectedOutsideCredentialWait(t *testing.T) {
	s := NewSession(Config{LoginURL: "https://example.com/login"}, nil, nil, nil, nil)
	s.Transition(engine.StateReady)

	err := s.Input(engine.InputEvent{Type: "click", X: 10, Y: 20})
	require.Error(t, err)
	require.Contains(t, err.Error(), "READY")
}

func TestInputHelpersRouteThroughTab(t *testing.T) {
	pace := pacing.New(pacing.Config{}, rand.New(rand.NewSource(1)))
	s := NewSession(Config{LoginURL: "https://example.com/login"}, pace, nil, nil, nil)
	ctx := context.Background()

	// Without a live tab every interaction must surface the session loss
	// rather than dispatching against the caller's context.
	require.ErrorIs(t, s.scrollToTop(ctx), engine.ErrSessionLost)
	require.ErrorIs(t, s.scrollToBottom(ctx), engine.ErrSessionLost)
	require.ErrorIs(t, s.scrollPage(ctx, []pacing.ScrollStep{{DeltaY: 120}}), engine.ErrSessionLost)
	require.ErrorIs(t, s.typeText(ctx, "x"), engine.ErrSessionLost)
	require.ErrorIs(t, s.moveMouseAlong(ctx, []pacing.PathPoint{{X: 5, Y: 5}}), engine.ErrSessionLost)
	require.ErrorIs(t, s.clickAt(ctx, 40, 40), engine.ErrSessionLost)
	require.ErrorIs(t, s.NudgeScroll(ctx), engine.ErrSessionLost)

	_, err := s.contentHeight(ctx)
	require.ErrorIs(t, err, engine.ErrSessionLost)
}

func TestScrollByExpressionFractionalDelta(t *testing.T) {
	require.Equal(t, "window.scrollBy(0, 37.5)", scrollByExpression(37.5))
	require.Equal(t, "window.scrollBy(0, 120.0)", scrollByExpression(120))
}

func TestInputQueuedDuringCredentialWait(t *testing.T) {
	s := NewSession(Config{LoginURL: "https://example.com/login"}, nil, nil, nil, nil)
	s.Transition(engine.StateAwaitingCredential)

	require.NoError(t, s.Input(engine.InputEvent{Type: "type", Text: "hunter2"}))
}
