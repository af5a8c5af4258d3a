// Package schedule selects the bounded batch of sources visited each cycle,
// balancing under-explored sources against historically active ones.
package schedule

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Metrics is the read side of the activity store consumed by the scheduler.
type Metrics interface {
	Snapshot() map[string]engine.ActivityMetric
}

// Scheduler picks 3-5 sources per cycle: one exploration slot for the
// least-recently-checked quiet source, the rest via weighted reservoir
// sampling over historical activity.
type Scheduler struct {
	batchMin int
	batchMax int

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Scheduler. A nil rand source gets a time-seeded one.
func New(batchMin, batchMax int, rng *rand.Rand) *Scheduler {
	if batchMin < 1 {
		batchMin = 3
	}
	if batchMax < batchMin {
		batchMax = batchMin
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{batchMin: batchMin, batchMax: batchMax, rng: rng}
}

type candidate struct {
	source engine.Source
	metric engine.ActivityMetric
}

// SelectBatch returns a shuffled batch of distinct enabled sources. With no
// sources it returns nil and the caller backs off. Disabled sources are never
// selected.
func (s *Scheduler) SelectBatch(sources []engine.Source, metrics map[string]engine.ActivityMetric) []engine.Source {
	var pool []candidate
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		pool = append(pool, candidate{source: src, metric: metrics[src.ID]})
	}
	if len(pool) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchSize := s.batchMin + s.rng.Intn(s.batchMax-s.batchMin+1)
	if batchSize > len(pool) {
		batchSize = len(pool)
	}

	exploration := explorationPool(pool)
	pick := exploration[0]

	batch := []engine.Source{pick.source}
	chosen := map[string]struct{}{pick.source.ID: {}}

	// Weighted reservoir over the remainder: score = U^(1/w) with
	// w = ln(count+1)+1, so busy sources win more often but never surely.
	type scored struct {
		candidate
		score float64
	}
	var rest []scored
	for _, c := range pool {
		if _, ok := chosen[c.source.ID]; ok {
			continue
		}
		w := math.Log(float64(c.metric.RecordCount)+1) + 1
		rest = append(rest, scored{candidate: c, score: math.Pow(s.rng.Float64(), 1/w)})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].score > rest[j].score })

	for i := 0; i < len(rest) && len(batch) < batchSize; i++ {
		batch = append(batch, rest[i].source)
	}

	// Shuffle so positional bias from the two-phase construction never
	// reaches the visit order.
	s.rng.Shuffle(len(batch), func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})
	return batch
}

// explorationPool returns the union of every zero-count source and the
// bottom third (at least one) of the remaining sources by record count,
// ordered oldest-checked first. The head is the exploration pick,
// guaranteeing starvation-free coverage of quiet sources.
func explorationPool(pool []candidate) []candidate {
	var exploration, active []candidate
	for _, c := range pool {
		if c.metric.RecordCount == 0 {
			exploration = append(exploration, c)
		} else {
			active = append(active, c)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].metric.RecordCount < active[j].metric.RecordCount
	})
	third := len(active) / 3
	if third < 1 && len(active) > 0 {
		third = 1
	}
	exploration = append(exploration, active[:third]...)

	sort.SliceStable(exploration, func(i, j int) bool {
		return exploration[i].metric.LastCheckedAt.Before(exploration[j].metric.LastCheckedAt)
	})
	return exploration
}
