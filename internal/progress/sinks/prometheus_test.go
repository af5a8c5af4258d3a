package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dropwatch/dropwatch/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures collectors update from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	cycleID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{CycleID: cycleID, TS: time.Now(), Stage: progress.StageCycleStart},
		{
			CycleID:  cycleID,
			TS:       time.Now().Add(20 * time.Second),
			Stage:    progress.StageVisitDone,
			SourceID: "src-a",
			Outcome:  "ok",
			Dur:      18 * time.Second,
		},
		{
			CycleID:  cycleID,
			TS:       time.Now().Add(21 * time.Second),
			Stage:    progress.StageRecordsEmitted,
			SourceID: "src-a",
			Records:  3,
		},
		{CycleID: cycleID, TS: time.Now().Add(30 * time.Second), Stage: progress.StageIdleBreak, Dur: 4 * time.Minute},
		{CycleID: cycleID, TS: time.Now().Add(5 * time.Minute), Stage: progress.StageCycleDone, Dur: 5 * time.Minute},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.visits.WithLabelValues("src-a", "ok")))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.recordsEmitted.WithLabelValues("src-a")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.idleBreaks))
	require.InDelta(t, 240.0, testutil.ToFloat64(sink.pauseSeconds.WithLabelValues("idle_break")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.cycleDuration, "dropwatch_cycle_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.visitDuration, "dropwatch_source_visit_duration_seconds"))
}

// TestPrometheusSinkRegistersOnce ensures duplicate registration fails cleanly.
func TestPrometheusSinkRegistersOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
