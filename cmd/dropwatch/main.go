// Package main wires together the dropwatch harvest engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	gcsclient "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/activity"
	"github.com/dropwatch/dropwatch/internal/alert"
	"github.com/dropwatch/dropwatch/internal/api"
	"github.com/dropwatch/dropwatch/internal/browser"
	"github.com/dropwatch/dropwatch/internal/clock/system"
	"github.com/dropwatch/dropwatch/internal/config"
	"github.com/dropwatch/dropwatch/internal/dedup"
	"github.com/dropwatch/dropwatch/internal/engine"
	"github.com/dropwatch/dropwatch/internal/extract"
	"github.com/dropwatch/dropwatch/internal/failure"
	sha256hash "github.com/dropwatch/dropwatch/internal/hash/sha256"
	"github.com/dropwatch/dropwatch/internal/logging"
	"github.com/dropwatch/dropwatch/internal/pacing"
	"github.com/dropwatch/dropwatch/internal/progress"
	"github.com/dropwatch/dropwatch/internal/progress/sinks"
	"github.com/dropwatch/dropwatch/internal/registry"
	"github.com/dropwatch/dropwatch/internal/schedule"
	memorysink "github.com/dropwatch/dropwatch/internal/sink/memory"
	pubsubsink "github.com/dropwatch/dropwatch/internal/sink/pubsub"
	"github.com/dropwatch/dropwatch/internal/statestore"
	gcsstore "github.com/dropwatch/dropwatch/internal/statestore/gcs"
	localstore "github.com/dropwatch/dropwatch/internal/statestore/local"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	autostart := flag.Bool("autostart", true, "Start the engine immediately")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	hasher := sha256hash.New()
	pace := pacing.New(pacingConfig(cfg.Pacing), nil)

	activityStore, err := activity.Open(filepath.Join(cfg.Storage.DataDir, "activity_metrics.json"))
	if err != nil {
		logger.Fatal("open activity metrics store", zap.Error(err))
	}
	dedupStore, err := dedup.Open(filepath.Join(cfg.Storage.DataDir, "dedup_windows.json"), cfg.Engine.DedupWindowSize)
	if err != nil {
		logger.Fatal("open dedup store", zap.Error(err))
	}

	var blobs engine.BlobStore
	local, err := localstore.New(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("open local state store", zap.Error(err))
	}
	blobs = local
	if cfg.Storage.GCSBucket != "" {
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			logger.Warn("gcs client init failed, using local state only", zap.Error(err))
		} else {
			mirror, err := gcsstore.New(client, gcsstore.Config{
				Bucket: cfg.Storage.GCSBucket,
				Prefix: cfg.Storage.GCSPrefix,
			})
			if err != nil {
				logger.Warn("gcs state store init failed", zap.Error(err))
			} else {
				blobs = statestore.NewMirrored(local, mirror, logger.Named("statestore"))
			}
		}
	}

	var alerts engine.AlertSink = alert.NewLogSink(logger.Named("alert"))
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		telegram, err := alert.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram sink init failed, falling back to log alerts", zap.Error(err))
		} else {
			alerts = telegram
		}
	}

	var sink engine.RecordSink = memorysink.New()
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub client init failed, records stay in memory", zap.Error(err))
		} else {
			sink = pubsubsink.New(client.Publisher(cfg.PubSub.TopicName))
		}
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promSink, err := sinks.NewPrometheusSink(promRegistry)
	if err != nil {
		logger.Fatal("register progress metrics", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		promSink,
		sinks.NewLogSink(logger.Named("progress")),
	)

	session := browser.NewSession(browser.Config{
		Headless:          cfg.Browser.Headless,
		LoginURL:          cfg.Browser.LoginURL,
		AuthenticatedPath: cfg.Browser.AuthenticatedPath,
		NavTimeout:        cfg.NavTimeout(),
		LoginWait:         time.Duration(cfg.Browser.LoginWaitSec) * time.Second,
		UserAgent:         cfg.Browser.UserAgent,
	}, pace, blobs, nil, logger.Named("browser"))

	var provider engine.SourceProvider
	if cfg.Sources.File != "" {
		provider = registry.NewFile(cfg.Sources.File, logger.Named("registry"))
	} else {
		provider = registry.NewStatic(staticSources(cfg.Sources.Static))
	}

	eng, err := engine.New(engine.Deps{
		Sources:   provider,
		Scheduler: schedule.New(cfg.Engine.BatchMin, cfg.Engine.BatchMax, nil),
		Activity:  activityStore,
		Dedup:     dedupStore,
		Failures: failure.New(
			cfg.Engine.ErrorThreshold,
			cfg.AlertCooldown(),
			alerts,
			clock,
			logger.Named("failure"),
		),
		Session:      session,
		Navigator:    browser.NewNavigator(session, logger.Named("navigator")),
		Extractor:    extract.New(extract.DefaultSelectorSet(), cfg.Engine.ExtractWindowSize, hasher, clock, logger.Named("extract")),
		Sink:         sink,
		Pace:         pace,
		Progress:     hub,
		Clock:        clock,
		Logger:       logger.Named("engine"),
		CrashBackoff: time.Duration(cfg.Engine.CrashBackoffSeconds) * time.Second,
	})
	if err != nil {
		logger.Fatal("construct engine", zap.Error(err))
	}

	apiServer := api.NewServer(eng, promRegistry, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if *autostart {
		if err := eng.Start(ctx); err != nil {
			logger.Fatal("engine start", zap.Error(err))
		}
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func pacingConfig(p config.PacingConfig) pacing.Config {
	secs := func(v int) time.Duration { return time.Duration(v) * time.Second }
	millis := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return pacing.Config{
		BasePollInterval:  secs(p.BasePollInterval),
		PollJitterMin:     secs(p.PollJitterMin),
		PollJitterMax:     secs(p.PollJitterMax),
		ActionDelayMin:    millis(p.ActionDelayMinMs),
		ActionDelayMax:    millis(p.ActionDelayMaxMs),
		ReadingTimeMin:    secs(p.ReadingTimeMin),
		ReadingTimeMax:    secs(p.ReadingTimeMax),
		SourceDelayMin:    secs(p.SourceDelayMin),
		SourceDelayMax:    secs(p.SourceDelayMax),
		MouseMoveChance:   p.MouseMoveChance,
		ScrollChance:      p.ScrollChance,
		IdleBreakChance:   p.IdleBreakChance,
		IdleBreakMin:      secs(p.IdleBreakMin),
		IdleBreakMax:      secs(p.IdleBreakMax),
		ForcedBreakChecks: p.ForcedBreakChecks,
		LongSleepChance:   p.LongSleepChance,
		LongSleepMin:      secs(p.LongSleepMin),
		LongSleepMax:      secs(p.LongSleepMax),
		GaussianVariance:  p.GaussianVariance,
	}
}

func staticSources(targets []string) []engine.Source {
	sources := make([]engine.Source, 0, len(targets))
	for _, target := range targets {
		sources = append(sources, engine.Source{
			ID:      filepath.Base(target),
			Target:  target,
			Enabled: true,
		})
	}
	return sources
}
