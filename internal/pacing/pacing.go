// Package pacing produces the randomized, distribution-shaped delays and
// simulated human actions that every page interaction is paced with. All
// sampling goes through an injected rand source so tests can seed it.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config shapes every distribution the model samples from.
type Config struct {
	BasePollInterval time.Duration
	PollJitterMin    time.Duration
	PollJitterMax    time.Duration

	ActionDelayMin time.Duration
	ActionDelayMax time.Duration

	ReadingTimeMin time.Duration
	ReadingTimeMax time.Duration

	SourceDelayMin time.Duration
	SourceDelayMax time.Duration

	MouseMoveChance float64
	ScrollChance    float64

	IdleBreakChance   float64
	IdleBreakMin      time.Duration
	IdleBreakMax      time.Duration
	ForcedBreakChecks int

	LongSleepChance float64
	LongSleepMin    time.Duration
	LongSleepMax    time.Duration

	// GaussianVariance scales sigma relative to the sampled range.
	GaussianVariance float64
}

// pollInterval is how often cancellable sleeps check the context. A stop
// request is honored within one interval, not immediately.
const pollInterval = time.Second

// Model samples delays and behavior decisions. It is safe for use from the
// single engine flow; a mutex guards the rand source against the control
// surface reading concurrently.
type Model struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Model around the given rand source. A nil source gets a
// time-seeded one.
func New(cfg Config, rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.GaussianVariance <= 0 {
		cfg.GaussianVariance = 0.3
	}
	if cfg.ForcedBreakChecks <= 0 {
		cfg.ForcedBreakChecks = 15
	}
	return &Model{cfg: cfg, rng: rng}
}

// Delay samples a Gaussian-shaped delay with mean (min+max)/2 and sigma
// (max-min)*variance, clamped to [min, max].
func (m *Model) Delay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mean := float64(min+max) / 2
	sigma := float64(max-min) * m.cfg.GaussianVariance
	d := time.Duration(m.rng.NormFloat64()*sigma + mean)
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}

// ActionDelay is the pause between consecutive page interactions.
func (m *Model) ActionDelay() time.Duration {
	return m.Delay(m.cfg.ActionDelayMin, m.cfg.ActionDelayMax)
}

// SourceDelay is the pause between two sources within a batch.
func (m *Model) SourceDelay() time.Duration {
	return m.Delay(m.cfg.SourceDelayMin, m.cfg.SourceDelayMax)
}

// MicroDelay is the small pause between handling individual items.
func (m *Model) MicroDelay() time.Duration {
	return m.Delay(50*time.Millisecond, 600*time.Millisecond)
}

// CycleInterval samples the Gaussian-distributed wait between two scheduling
// cycles.
func (m *Model) CycleInterval() time.Duration {
	min := m.cfg.BasePollInterval + m.cfg.PollJitterMin
	max := m.cfg.BasePollInterval + m.cfg.PollJitterMax
	return m.Delay(min, max)
}

// ReadingTime scales a base reading pause by how much content there is:
// taller pages read longer, clamped to the configured range.
func (m *Model) ReadingTime(contentHeight, viewportHeight float64) time.Duration {
	base := m.cfg.ReadingTimeMin
	if viewportHeight > 0 && contentHeight > viewportHeight {
		extra := time.Duration(contentHeight / viewportHeight * 2 * float64(time.Second))
		base += extra
	}
	if base > m.cfg.ReadingTimeMax {
		base = m.cfg.ReadingTimeMax
	}
	return m.Delay(m.cfg.ReadingTimeMin, base+time.Second)
}

// ShouldMoveMouse rolls the per-visit mouse simulation decision.
func (m *Model) ShouldMoveMouse() bool {
	return m.roll(m.cfg.MouseMoveChance)
}

// ShouldScroll rolls the per-visit scroll simulation decision.
func (m *Model) ShouldScroll() bool {
	return m.roll(m.cfg.ScrollChance)
}

// ShouldIdleBreak decides whether to take an idle break now. The break is
// forced once checksSinceBreak reaches the configured ceiling, whichever
// triggers first.
func (m *Model) ShouldIdleBreak(checksSinceBreak int) bool {
	if checksSinceBreak >= m.cfg.ForcedBreakChecks {
		return true
	}
	return m.roll(m.cfg.IdleBreakChance)
}

// IdleBreak samples the duration of an idle (AFK) break, uniform over the
// configured range.
func (m *Model) IdleBreak() time.Duration {
	return m.uniform(m.cfg.IdleBreakMin, m.cfg.IdleBreakMax)
}

// ShouldLongSleep rolls the rarer long-sleep decision.
func (m *Model) ShouldLongSleep() bool {
	return m.roll(m.cfg.LongSleepChance)
}

// LongSleep samples the duration of a long sleep, uniform over the
// configured range.
func (m *Model) LongSleep() time.Duration {
	return m.uniform(m.cfg.LongSleepMin, m.cfg.LongSleepMax)
}

// Sleep blocks for d, waking every second to poll the context so even
// multi-minute breaks remain cancellable. Returns the context error when
// interrupted.
func (m *Model) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		chunk := remaining
		if chunk > pollInterval {
			chunk = pollInterval
		}
		timer := time.NewTimer(chunk)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Intn returns a uniform draw from [0, n), for callers picking from weighted
// tables with the model's random source.
func (m *Model) Intn(n int) int {
	return m.intn(n)
}

func (m *Model) roll(chance float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < chance
}

func (m *Model) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return min + time.Duration(m.rng.Int63n(int64(max-min+1)))
}

func (m *Model) intn(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Intn(n)
}

func (m *Model) float() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}
