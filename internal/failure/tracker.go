// Package failure tracks per-source error streaks and gates alert
// escalation behind a per-category cooldown.
package failure

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Tracker counts consecutive failures per source and decides corrective
// action. Alerts are best-effort: sink errors are logged and swallowed.
type Tracker struct {
	threshold int
	cooldown  time.Duration
	alerts    engine.AlertSink
	clock     engine.Clock
	logger    *zap.Logger

	mu        sync.Mutex
	records   map[string]*engine.FailureRecord
	lastAlert map[engine.AlertCategory]time.Time
}

// New builds a Tracker. threshold is the consecutive-error count past which
// the next visit forces a hard reload.
func New(threshold int, cooldown time.Duration, alerts engine.AlertSink, clock engine.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		threshold: threshold,
		cooldown:  cooldown,
		alerts:    alerts,
		clock:     clock,
		logger:    logger,
		records:   make(map[string]*engine.FailureRecord),
		lastAlert: make(map[engine.AlertCategory]time.Time),
	}
}

// Success resets the source's streak.
func (t *Tracker) Success(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[sourceID]; ok {
		r.ConsecutiveErrors = 0
	}
}

// Failure increments the source's streak and reports it to the alert sink,
// cooldown-gated per category. It returns the new streak length.
func (t *Tracker) Failure(ctx context.Context, sourceID string, category engine.AlertCategory, detail string) int {
	t.mu.Lock()
	r, ok := t.records[sourceID]
	if !ok {
		r = &engine.FailureRecord{}
		t.records[sourceID] = r
	}
	r.ConsecutiveErrors++
	streak := r.ConsecutiveErrors
	t.mu.Unlock()

	if t.notify(ctx, category, "Source check failed: "+sourceID, detail) {
		t.mu.Lock()
		r.LastAlertAt = t.clock.Now()
		t.mu.Unlock()
	}
	return streak
}

// NeedsForcedRefresh reports whether the source's streak has crossed the
// threshold, meaning the next visit should hard-reload the page first.
func (t *Tracker) NeedsForcedRefresh(sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[sourceID]
	return ok && r.ConsecutiveErrors > t.threshold
}

// Critical reports an engine-level condition such as a lost session or an
// expired login wait. It is never suppressed by the cooldown.
func (t *Tracker) Critical(ctx context.Context, category engine.AlertCategory, subject, detail string) {
	if t.alerts == nil {
		return
	}
	if err := t.alerts.Notify(ctx, category, subject, detail); err != nil {
		t.logger.Warn("alert sink notify failed", zap.Error(err))
	}
	t.mu.Lock()
	t.lastAlert[category] = t.clock.Now()
	t.mu.Unlock()
}

// ErrorCounts returns a copy of the current per-source streaks.
func (t *Tracker) ErrorCounts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.records))
	for id, r := range t.records {
		out[id] = r.ConsecutiveErrors
	}
	return out
}

// notify delivers a cooldown-gated alert and reports whether one was sent.
func (t *Tracker) notify(ctx context.Context, category engine.AlertCategory, subject, body string) bool {
	if t.alerts == nil {
		return false
	}
	now := t.clock.Now()

	t.mu.Lock()
	last, seen := t.lastAlert[category]
	if seen && now.Sub(last) < t.cooldown {
		t.mu.Unlock()
		return false
	}
	t.lastAlert[category] = now
	t.mu.Unlock()

	if err := t.alerts.Notify(ctx, category, subject, body); err != nil {
		t.logger.Warn("alert sink notify failed",
			zap.String("category", string(category)),
			zap.Error(err),
		)
	}
	return true
}
