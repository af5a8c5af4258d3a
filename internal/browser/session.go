// Package browser owns the persistent browser session: lifecycle, stealth
// environment, humanized input, and resilient navigation.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
	"github.com/dropwatch/dropwatch/internal/pacing"
)

// CredentialKey is the blob key under which the cookie snapshot persists.
const CredentialKey = "session_state.json"

// Config controls the browser session.
type Config struct {
	Headless bool
	// LoginURL is where an unauthenticated session lands.
	LoginURL string
	// AuthenticatedPath marks a location as logged in when present in the URL.
	AuthenticatedPath string
	// NavTimeout bounds every page operation.
	NavTimeout time.Duration
	// LoginWait bounds the interactive credential flow.
	LoginWait time.Duration
	// UserAgent overrides the weighted pick when set.
	UserAgent string
}

// Session drives one persistent browser through the login, navigation, and
// extraction lifecycle. All methods are called from the single engine flow;
// only Input, LatestFrame, and State are safe from other goroutines.
type Session struct {
	cfg    Config
	pace   *pacing.Model
	blobs  engine.BlobStore
	frames engine.FrameSink
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	viewportW int
	viewportH int
	userAgent string

	stateMu sync.Mutex
	state   engine.SessionState

	inputCh chan engine.InputEvent

	frameMu   sync.Mutex
	lastFrame []byte
}

// NewSession builds a Session. blobs persists the cookie snapshot; frames may
// be nil when no remote credential channel is attached.
func NewSession(cfg Config, pace *pacing.Model, blobs engine.BlobStore, frames engine.FrameSink, logger *zap.Logger) *Session {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.LoginWait <= 0 {
		cfg.LoginWait = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:     cfg,
		pace:    pace,
		blobs:   blobs,
		frames:  frames,
		logger:  logger,
		state:   engine.StateLoggedOut,
		inputCh: make(chan engine.InputEvent, 16),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() engine.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Transition moves the session to the given state. The engine loop uses it
// for the Navigating/Extracting/Idle/Sleeping phases.
func (s *Session) Transition(state engine.SessionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = state
	s.stateMu.Unlock()
	if prev != state {
		s.logger.Debug("session state",
			zap.String("from", string(prev)),
			zap.String("to", string(state)),
		)
	}
}

// Start launches the browser and prepares a stealth tab. The session starts
// in LoggedOut; EnsureReady performs authentication.
func (s *Session) Start(ctx context.Context) error {
	vp := viewports[s.pace.Intn(len(viewports))]
	s.viewportW, s.viewportH = vp.Width, vp.Height
	s.userAgent = s.cfg.UserAgent
	if s.userAgent == "" {
		s.userAgent = pickUserAgent(s.pace.Intn(100))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.WindowSize(s.viewportW, s.viewportH),
		chromedp.UserAgent(s.userAgent),
	)
	if s.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	if err := s.openTab(); err != nil {
		s.allocCancel()
		return err
	}
	s.Transition(engine.StateLoggedOut)
	return nil
}

func (s *Session) openTab() error {
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	colorScheme := "light"
	if s.pace.Intn(2) == 0 {
		colorScheme = "dark"
	}

	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(s.userAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		features := []*emulation.MediaFeature{{Name: "prefers-color-scheme", Value: colorScheme}}
		if err := emulation.SetEmulatedMedia().WithFeatures(features).Do(ctx); err != nil {
			return fmt.Errorf("set color scheme: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthInitScript).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		return nil
	})

	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(s.viewportW), int64(s.viewportH)),
		setup,
	); err != nil {
		s.tabCancel()
		return fmt.Errorf("prepare browser tab: %w", err)
	}
	return nil
}

// EnsureReady brings the session to Ready, restoring persisted credentials
// when possible and falling back to the interactive credential flow.
func (s *Session) EnsureReady(ctx context.Context) error {
	if s.State() == engine.StateReady {
		ok, err := s.isAuthenticated(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.Transition(engine.StateLoggedOut)
	}

	if restored := s.restoreCookies(ctx); restored {
		s.logger.Info("restored persisted session credentials")
	}

	if err := s.run(ctx,
		chromedp.Navigate(s.cfg.LoginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to login surface: %w", err)
	}
	if err := s.pace.Sleep(ctx, s.pace.ActionDelay()); err != nil {
		return err
	}

	ok, err := s.isAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.awaitCredential(ctx); err != nil {
			return err
		}
	}

	if err := s.persistCookies(ctx); err != nil {
		s.logger.Warn("persisting session credentials failed", zap.Error(err))
	}
	s.Transition(engine.StateReady)
	return nil
}

// awaitCredential holds the session in AwaitingCredential, publishing frames
// at roughly 1 Hz and applying injected operator input, until the
// authenticated surface appears or the wait window runs out.
func (s *Session) awaitCredential(ctx context.Context) error {
	s.Transition(engine.StateAwaitingCredential)
	s.logger.Info("waiting for interactive login",
		zap.Duration("window", s.cfg.LoginWait),
	)

	deadline := time.Now().Add(s.cfg.LoginWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.captureFrame(ctx)
		s.applyPendingInput(ctx)

		ok, err := s.isAuthenticated(ctx)
		if err != nil {
			s.logger.Debug("authentication probe failed", zap.Error(err))
		} else if ok {
			s.logger.Info("interactive login detected")
			return nil
		}

		if err := s.pace.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %s", engine.ErrLoginTimeout, s.cfg.LoginWait)
}

// Input queues a remote-control event. Only accepted during the credential
// wait; any other state rejects it so remote input can never interleave with
// extraction.
func (s *Session) Input(ev engine.InputEvent) error {
	if s.State() != engine.StateAwaitingCredential {
		return fmt.Errorf("input rejected in state %s", s.State())
	}
	select {
	case s.inputCh <- ev:
		return nil
	default:
		return fmt.Errorf("input queue full")
	}
}

// LatestFrame returns the most recent login-wait JPEG, or nil.
func (s *Session) LatestFrame() []byte {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return append([]byte(nil), s.lastFrame...)
}

func (s *Session) applyPendingInput(ctx context.Context) {
	for {
		select {
		case ev := <-s.inputCh:
			var err error
			switch ev.Type {
			case "click":
				err = s.clickAt(ctx, ev.X, ev.Y)
			case "type":
				err = s.typeText(ctx, ev.Text)
			default:
				err = fmt.Errorf("unknown input type %q", ev.Type)
			}
			if err != nil {
				s.logger.Warn("applying remote input failed",
					zap.String("type", ev.Type),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

func (s *Session) captureFrame(ctx context.Context) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(60).
			Do(ctx)
		return err
	}))
	if err != nil {
		s.logger.Debug("frame capture failed", zap.Error(err))
		return
	}

	s.frameMu.Lock()
	s.lastFrame = buf
	s.frameMu.Unlock()
	if s.frames != nil {
		s.frames.Frame(buf)
	}
}

func (s *Session) isAuthenticated(ctx context.Context) (bool, error) {
	var location string
	if err := s.run(ctx, chromedp.Location(&location)); err != nil {
		return false, classifyPageError(fmt.Errorf("read location: %w", err))
	}
	return strings.Contains(location, s.cfg.AuthenticatedPath), nil
}

// SimulateReading performs the on-page behavior between landing and
// extraction: an optional pointer wander, an optional momentum scroll, then
// a reading pause scaled by content height. The returned flags report which
// simulations ran.
func (s *Session) SimulateReading(ctx context.Context) (moved, scrolled bool, err error) {
	if s.pace.ShouldMoveMouse() {
		if path := s.pace.MousePath(s.viewportW, s.viewportH); path != nil {
			if err := s.moveMouseAlong(ctx, path); err != nil {
				return moved, scrolled, classifyPageError(err)
			}
			moved = true
		}
	}
	if s.pace.ShouldScroll() {
		if err := s.scrollPage(ctx, s.pace.ScrollPlan()); err != nil {
			return moved, scrolled, classifyPageError(err)
		}
		scrolled = true
	}

	height, err := s.contentHeight(ctx)
	if err != nil {
		s.logger.Debug("content height probe failed", zap.Error(err))
		height = 0
	}
	return moved, scrolled, s.pace.Sleep(ctx, s.pace.ReadingTime(float64(height), float64(s.viewportH)))
}

// NudgeScroll jumps to the top and then the bottom of the page to coax a
// lazily rendered list into materializing before the next snapshot.
func (s *Session) NudgeScroll(ctx context.Context) error {
	if err := s.scrollToTop(ctx); err != nil {
		return classifyPageError(err)
	}
	if err := s.pace.Sleep(ctx, s.pace.ActionDelay()); err != nil {
		return err
	}
	if err := s.scrollToBottom(ctx); err != nil {
		return classifyPageError(err)
	}
	return nil
}

// Snapshot returns the rendered DOM for the extraction engine.
func (s *Session) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classifyPageError(fmt.Errorf("snapshot page: %w", err))
	}
	return html, nil
}

// Reload hard-reloads the current surface, bypassing the cache.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return classifyPageError(fmt.Errorf("reload page: %w", err))
	}
	return nil
}

// Restart tears the tab down and opens a fresh one, keeping the browser
// process and all persisted state. The session re-enters LoggedOut.
func (s *Session) Restart(ctx context.Context) error {
	s.Transition(engine.StateRestarting)
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.openTab(); err != nil {
		return fmt.Errorf("reopen browser tab: %w", err)
	}
	s.Transition(engine.StateLoggedOut)
	return nil
}

// Close releases the tab and the browser process.
func (s *Session) Close() {
	s.Transition(engine.StateClosed)
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// run executes actions against the tab with the navigation timeout applied,
// aborting early if the caller's context ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.tabCtx == nil {
		return engine.ErrSessionLost
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) persistCookies(ctx context.Context) error {
	if s.blobs == nil {
		return nil
	}
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}

	blob, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	if err := s.blobs.Put(ctx, CredentialKey, blob); err != nil {
		return fmt.Errorf("store cookies: %w", err)
	}
	s.logger.Info("session credentials persisted", zap.Int("cookies", len(params)))
	return nil
}

// restoreCookies loads the persisted snapshot if one exists. Failures are
// non-fatal: the interactive flow covers the gap.
func (s *Session) restoreCookies(ctx context.Context) bool {
	if s.blobs == nil {
		return false
	}
	blob, err := s.blobs.Get(ctx, CredentialKey)
	if err != nil {
		return false
	}
	var params []*network.CookieParam
	if err := json.Unmarshal(blob, &params); err != nil {
		s.logger.Warn("persisted credential blob is corrupt", zap.Error(err))
		return false
	}
	if len(params) == 0 {
		return false
	}
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		s.logger.Warn("restoring cookies failed", zap.Error(err))
		return false
	}
	return true
}

// classifyPageError maps tab-level failures onto the session-fatal sentinel
// so the engine can trigger a restart.
func classifyPageError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, marker := range []string{
		"context canceled",
		"target closed",
		"browser closed",
		"websocket",
		"session closed",
	} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", engine.ErrSessionLost, msg)
		}
	}
	return err
}
