package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/pacing"
	"github.com/dropwatch/dropwatch/internal/progress"
)

// SessionDriver is the browser session as the engine sees it.
type SessionDriver interface {
	Start(ctx context.Context) error
	EnsureReady(ctx context.Context) error
	State() SessionState
	Transition(state SessionState)
	SimulateReading(ctx context.Context) (moved, scrolled bool, err error)
	Snapshot(ctx context.Context) (string, error)
	NudgeScroll(ctx context.Context) error
	Reload(ctx context.Context) error
	Restart(ctx context.Context) error
	Input(ev InputEvent) error
	LatestFrame() []byte
	Close()
}

// PageNavigator lands the session on a source's surface.
type PageNavigator interface {
	GoTo(ctx context.Context, src Source) error
}

// RecordExtractor parses a DOM snapshot into records, skipping seen ids.
// matched counts the list items present in the snapshot before windowing and
// suppression, so the caller can tell an unpopulated surface from a quiet one.
type RecordExtractor interface {
	Extract(sourceID, snapshot string, seen func(id string) bool) (records []ExtractedRecord, matched int, err error)
}

// BatchScheduler selects the sources to visit this cycle.
type BatchScheduler interface {
	SelectBatch(sources []Source, metrics map[string]ActivityMetric) []Source
}

// ActivityStore is the persisted per-source harvest history.
type ActivityStore interface {
	EnsureKnown(sources []Source)
	Snapshot() map[string]ActivityMetric
	Record(sourceID string, found int, at time.Time)
	Flush() error
}

// DedupStore is the persisted per-source window of emitted record ids.
type DedupStore interface {
	Seen(sourceID string) func(id string) bool
	Append(sourceID string, ids []string)
	Flush() error
}

// FailurePolicy tracks error streaks and drives escalation.
type FailurePolicy interface {
	Success(sourceID string)
	Failure(ctx context.Context, sourceID string, category AlertCategory, detail string) int
	NeedsForcedRefresh(sourceID string) bool
	Critical(ctx context.Context, category AlertCategory, subject, detail string)
	ErrorCounts() map[string]int
}

// Deps collects every collaborator the Engine is constructed with.
type Deps struct {
	Sources   SourceProvider
	Scheduler BatchScheduler
	Activity  ActivityStore
	Dedup     DedupStore
	Failures  FailurePolicy
	Session   SessionDriver
	Navigator PageNavigator
	Extractor RecordExtractor
	Sink      RecordSink
	Pace      *pacing.Model
	Progress  progress.Emitter
	Clock     Clock
	Logger    *zap.Logger

	// CrashBackoff is slept after an unclassified cycle failure.
	CrashBackoff time.Duration
}

// Engine runs the single cooperative crawl flow: refresh sources, schedule a
// batch, visit each source with human pacing, extract, dedup, emit, escalate
// failures, then pause until the next cycle. Stop is honored within one
// second at every suspension point.
type Engine struct {
	deps Deps
	log  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	cycles           atomic.Int64
	totalChecks      atomic.Int64
	idleBreaks       atomic.Int64
	mouseMoves       atomic.Int64
	scrolls          atomic.Int64
	checksSinceBreak int

	statusMu    sync.Mutex
	startedAt   *time.Time
	lastSuccess map[string]time.Time
}

// New constructs an Engine. Deps must be fully populated except Progress and
// Logger, which default to no-ops.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Sources == nil, deps.Scheduler == nil, deps.Activity == nil,
		deps.Dedup == nil, deps.Failures == nil, deps.Session == nil,
		deps.Navigator == nil, deps.Extractor == nil, deps.Sink == nil,
		deps.Pace == nil, deps.Clock == nil:
		return nil, fmt.Errorf("engine dependencies are incomplete")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.CrashBackoff <= 0 {
		deps.CrashBackoff = 15 * time.Second
	}
	return &Engine{
		deps:        deps,
		log:         deps.Logger,
		lastSuccess: make(map[string]time.Time),
	}, nil
}

// Start launches the crawl flow. Idempotent: a second Start while running is
// an error.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})

	now := e.deps.Clock.Now()
	e.statusMu.Lock()
	e.startedAt = &now
	e.statusMu.Unlock()

	go e.run(runCtx)
	return nil
}

// Stop sets the cooperative stop signal and waits for the flow to exit.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for engine shutdown: %w", ctx.Err())
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return nil
}

// Input forwards a remote-control event to the session.
func (e *Engine) Input(ev InputEvent) error {
	return e.deps.Session.Input(ev)
}

// LatestFrame returns the most recent login-wait frame.
func (e *Engine) LatestFrame() []byte {
	return e.deps.Session.LatestFrame()
}

// Status returns the engine's read side for the control surface.
func (e *Engine) Status() StatusSnapshot {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	e.statusMu.Lock()
	startedAt := e.startedAt
	last := make(map[string]time.Time, len(e.lastSuccess))
	for id, t := range e.lastSuccess {
		last[id] = t
	}
	e.statusMu.Unlock()

	return StatusSnapshot{
		State:             e.deps.Session.State(),
		Running:           running,
		Cycles:            e.cycles.Load(),
		TotalChecks:       e.totalChecks.Load(),
		IdleBreaks:        e.idleBreaks.Load(),
		MouseMoves:        e.mouseMoves.Load(),
		Scrolls:           e.scrolls.Load(),
		SessionStartedAt:  startedAt,
		ErrorCounts:       e.deps.Failures.ErrorCounts(),
		LastSuccessPerSrc: last,
	}
}

// run is the top-level loop. No error escapes it: every failure degrades to
// a bounded backoff and the loop resumes until the context ends.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	defer e.deps.Session.Close()

	if err := e.deps.Session.Start(ctx); err != nil {
		e.log.Error("browser start failed", zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		err := e.cycle(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, ErrStopped):
			return
		case errors.Is(err, ErrSessionLost):
			e.log.Warn("session lost, restarting browser", zap.Error(err))
			e.deps.Failures.Critical(ctx, CategorySessionLost, "Browser session lost", err.Error())
			e.emitProgress(progress.Event{Stage: progress.StageSessionRestart, Note: err.Error()})
			if restartErr := e.deps.Session.Restart(ctx); restartErr != nil {
				e.log.Error("session restart failed", zap.Error(restartErr))
				if e.sleep(ctx, e.deps.CrashBackoff) != nil {
					return
				}
			}
		default:
			e.log.Error("cycle failed, backing off", zap.Error(err))
			if e.sleep(ctx, e.deps.CrashBackoff) != nil {
				return
			}
		}

		interval := e.deps.Pace.CycleInterval()
		e.log.Debug("cycle complete, pausing", zap.Duration("interval", interval))
		if e.sleep(ctx, interval) != nil {
			return
		}
	}
}

// cycle performs one full pass: refresh, schedule, visit each source, then
// the post-batch bookkeeping and probabilistic long sleep.
func (e *Engine) cycle(ctx context.Context) error {
	cycleID := progress.UUIDToBytes(uuid.New())
	start := e.deps.Clock.Now()
	e.cycles.Add(1)
	e.emitProgressWithID(cycleID, progress.Event{Stage: progress.StageCycleStart})

	sources, err := e.deps.Sources.Refresh(ctx)
	if err != nil {
		e.log.Warn("source refresh failed", zap.Error(err))
	}
	if len(sources) == 0 {
		e.log.Info("no sources available, waiting for next cycle")
		return nil
	}

	e.deps.Activity.EnsureKnown(sources)
	batch := e.deps.Scheduler.SelectBatch(sources, e.deps.Activity.Snapshot())
	e.log.Info("batch selected", zap.Int("size", len(batch)))

	if err := e.deps.Session.EnsureReady(ctx); err != nil {
		if errors.Is(err, ErrLoginTimeout) {
			e.emitProgressWithID(cycleID, progress.Event{Stage: progress.StageLoginWait, Note: err.Error()})
			e.deps.Failures.Critical(ctx, CategoryLoginTimeout, "Interactive login timed out", err.Error())
		}
		return fmt.Errorf("session not ready: %w", err)
	}

	for _, src := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.visit(ctx, cycleID, src); err != nil {
			if Classify(err) == OutcomeFatal || errors.Is(err, context.Canceled) {
				return err
			}
		}
		if err := e.sleep(ctx, e.deps.Pace.SourceDelay()); err != nil {
			return err
		}
	}

	if err := e.deps.Activity.Flush(); err != nil {
		e.log.Warn("activity metrics flush failed", zap.Error(err))
	}

	if err := e.maybeBreak(ctx, cycleID); err != nil {
		return err
	}

	e.emitProgressWithID(cycleID, progress.Event{
		Stage: progress.StageCycleDone,
		Dur:   e.deps.Clock.Now().Sub(start),
	})
	return nil
}

// visit runs the full per-source work unit. Retryable failures are absorbed
// into the failure tracker; only session-fatal errors propagate.
func (e *Engine) visit(ctx context.Context, cycleID [16]byte, src Source) error {
	start := e.deps.Clock.Now()
	e.totalChecks.Add(1)
	e.checksSinceBreak++
	e.emitProgressWithID(cycleID, progress.Event{Stage: progress.StageVisitStart, SourceID: src.ID})

	err := e.visitInner(ctx, cycleID, src)
	outcome := Classify(err)
	e.emitProgressWithID(cycleID, progress.Event{
		Stage:    progress.StageVisitDone,
		SourceID: src.ID,
		Outcome:  outcome.String(),
		Dur:      e.deps.Clock.Now().Sub(start),
	})

	switch outcome {
	case OutcomeOK:
		e.deps.Failures.Success(src.ID)
		e.statusMu.Lock()
		e.lastSuccess[src.ID] = e.deps.Clock.Now()
		e.statusMu.Unlock()
		return nil
	case OutcomeRetryable:
		if errors.Is(err, context.Canceled) {
			return err
		}
		streak := e.deps.Failures.Failure(ctx, src.ID, CategorySourceFailure, err.Error())
		e.log.Warn("source visit failed",
			zap.String("source_id", src.ID),
			zap.Int("streak", streak),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}

// snapshotAttempts bounds how many times a visit re-snapshots an unpopulated
// surface before treating the source as quiet.
const snapshotAttempts = 3

func (e *Engine) visitInner(ctx context.Context, cycleID [16]byte, src Source) error {
	e.deps.Session.Transition(StateNavigating)
	defer e.deps.Session.Transition(StateReady)

	if e.deps.Failures.NeedsForcedRefresh(src.ID) {
		e.log.Info("forcing hard reload after error streak", zap.String("source_id", src.ID))
		if err := e.deps.Session.Reload(ctx); err != nil {
			return err
		}
	}

	if err := e.deps.Navigator.GoTo(ctx, src); err != nil {
		return err
	}

	moved, scrolled, err := e.deps.Session.SimulateReading(ctx)
	if moved {
		e.mouseMoves.Add(1)
	}
	if scrolled {
		e.scrolls.Add(1)
	}
	if err != nil {
		return err
	}

	e.deps.Session.Transition(StateExtracting)

	// Lazily rendered lists can snapshot empty before they populate. A few
	// scroll nudges separate that from a genuinely quiet source.
	var records []ExtractedRecord
	for attempt := 1; ; attempt++ {
		snapshot, err := e.deps.Session.Snapshot(ctx)
		if err != nil {
			return err
		}
		var matched int
		records, matched, err = e.deps.Extractor.Extract(src.ID, snapshot, e.deps.Dedup.Seen(src.ID))
		if err != nil {
			return err
		}
		if matched > 0 || attempt >= snapshotAttempts {
			break
		}
		e.log.Debug("surface not populated, nudging",
			zap.String("source_id", src.ID),
			zap.Int("attempt", attempt),
		)
		if err := e.deps.Session.NudgeScroll(ctx); err != nil {
			return err
		}
		if err := e.sleep(ctx, e.deps.Pace.ActionDelay()); err != nil {
			return err
		}
	}

	now := e.deps.Clock.Now()
	if len(records) == 0 {
		e.deps.Activity.Record(src.ID, 0, now)
		return nil
	}

	// A short per-record pause keeps the emission rhythm human-scaled.
	for range records[1:] {
		if err := e.deps.Pace.Sleep(ctx, e.deps.Pace.MicroDelay()); err != nil {
			return err
		}
	}
	if err := e.deps.Sink.Emit(ctx, records); err != nil {
		return fmt.Errorf("emit %d records for source %s: %w", len(records), src.ID, err)
	}

	// Dedup advances only after the sink accepted the batch. Each record is
	// suppressed under both its page id and its fingerprint alias.
	ids := make([]string, 0, 2*len(records))
	for _, rec := range records {
		ids = append(ids, rec.DedupIDs()...)
	}
	e.deps.Dedup.Append(src.ID, ids)
	if err := e.deps.Dedup.Flush(); err != nil {
		e.log.Warn("dedup window flush failed", zap.Error(err))
	}
	e.deps.Activity.Record(src.ID, len(records), now)

	e.emitProgressWithID(cycleID, progress.Event{
		Stage:    progress.StageRecordsEmitted,
		SourceID: src.ID,
		Records:  int64(len(records)),
	})
	e.log.Info("records emitted",
		zap.String("source_id", src.ID),
		zap.Int("count", len(records)),
	)
	return nil
}

// maybeBreak applies the post-batch idle break and long sleep decisions.
func (e *Engine) maybeBreak(ctx context.Context, cycleID [16]byte) error {
	if e.deps.Pace.ShouldIdleBreak(e.checksSinceBreak) {
		e.checksSinceBreak = 0
		e.idleBreaks.Add(1)
		d := e.deps.Pace.IdleBreak()
		e.log.Info("taking idle break", zap.Duration("duration", d))
		e.emitProgressWithID(cycleID, progress.Event{Stage: progress.StageIdleBreak, Dur: d})
		e.deps.Session.Transition(StateIdle)
		defer e.deps.Session.Transition(StateReady)
		return e.sleep(ctx, d)
	}

	if e.deps.Pace.ShouldLongSleep() {
		d := e.deps.Pace.LongSleep()
		e.log.Info("taking long sleep", zap.Duration("duration", d))
		e.emitProgressWithID(cycleID, progress.Event{Stage: progress.StageLongSleep, Dur: d})
		e.deps.Session.Transition(StateSleeping)
		defer e.deps.Session.Transition(StateReady)
		return e.sleep(ctx, d)
	}
	return nil
}

// sleep is the cancellable suspension point shared by every pause.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	return e.deps.Pace.Sleep(ctx, d)
}

func (e *Engine) emitProgress(evt progress.Event) {
	e.emitProgressWithID(progress.UUIDToBytes(uuid.New()), evt)
}

func (e *Engine) emitProgressWithID(cycleID [16]byte, evt progress.Event) {
	if e.deps.Progress == nil {
		return
	}
	evt.CycleID = cycleID
	evt.TS = e.deps.Clock.Now()
	e.deps.Progress.Emit(evt)
}
