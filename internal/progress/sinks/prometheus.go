package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropwatch/dropwatch/internal/progress"
)

// PrometheusSink exports engine progress metrics. It owns all collectors for
// cycles, per-source visits, emitted records, and pacing pauses.
type PrometheusSink struct {
	cyclesStarted prometheus.Counter
	cycleDuration prometheus.Histogram

	visits        *prometheus.CounterVec
	visitDuration *prometheus.HistogramVec

	recordsEmitted *prometheus.CounterVec

	idleBreaks      prometheus.Counter
	longSleeps      prometheus.Counter
	sessionRestarts prometheus.Counter
	pauseSeconds    *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		cyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropwatch_cycles_started_total",
			Help: "Total crawl cycles started.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dropwatch_cycle_duration_seconds",
			Help:    "Wall time per completed cycle.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropwatch_source_visits_total",
			Help: "Source visits partitioned by source and outcome.",
		}, []string{"source", "outcome"}),
		visitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dropwatch_source_visit_duration_seconds",
			Help:    "Visit duration partitioned by source.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"source"}),
		recordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropwatch_records_emitted_total",
			Help: "Extracted records emitted downstream, per source.",
		}, []string{"source"}),
		idleBreaks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropwatch_idle_breaks_total",
			Help: "Idle breaks taken by the pacing model.",
		}),
		longSleeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropwatch_long_sleeps_total",
			Help: "Long sleeps taken by the pacing model.",
		}),
		sessionRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dropwatch_session_restarts_total",
			Help: "Browser session restarts.",
		}),
		pauseSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dropwatch_pause_seconds_total",
			Help: "Seconds spent paused, partitioned by pause kind.",
		}, []string{"kind"}),
	}
	for _, collector := range []prometheus.Collector{
		s.cyclesStarted,
		s.cycleDuration,
		s.visits,
		s.visitDuration,
		s.recordsEmitted,
		s.idleBreaks,
		s.longSleeps,
		s.sessionRestarts,
		s.pauseSeconds,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageCycleStart:
		s.cyclesStarted.Inc()
	case progress.StageCycleDone:
		if evt.Dur > 0 {
			s.cycleDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageVisitDone:
		s.visits.WithLabelValues(evt.SourceID, evt.Outcome).Inc()
		if evt.Dur > 0 {
			s.visitDuration.WithLabelValues(evt.SourceID).Observe(evt.Dur.Seconds())
		}
	case progress.StageRecordsEmitted:
		if evt.Records > 0 {
			s.recordsEmitted.WithLabelValues(evt.SourceID).Add(float64(evt.Records))
		}
	case progress.StageIdleBreak:
		s.idleBreaks.Inc()
		s.addPause("idle_break", evt)
	case progress.StageLongSleep:
		s.longSleeps.Inc()
		s.addPause("long_sleep", evt)
	case progress.StageSessionRestart:
		s.sessionRestarts.Inc()
	}
}

func (s *PrometheusSink) addPause(kind string, evt progress.Event) {
	if evt.Dur > 0 {
		s.pauseSeconds.WithLabelValues(kind).Add(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
