// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP control-surface behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// EngineConfig governs the cycle loop and failure escalation.
type EngineConfig struct {
	BatchMin             int `mapstructure:"batch_min"`
	BatchMax             int `mapstructure:"batch_max"`
	DedupWindowSize      int `mapstructure:"dedup_window_size"`
	ExtractWindowSize    int `mapstructure:"extract_window_size"`
	ErrorThreshold       int `mapstructure:"error_threshold"`
	AlertCooldownSeconds int `mapstructure:"alert_cooldown_seconds"`
	CrashBackoffSeconds  int `mapstructure:"crash_backoff_seconds"`
}

// BrowserConfig configures the persistent browser session.
type BrowserConfig struct {
	Headless          bool   `mapstructure:"headless"`
	LoginURL          string `mapstructure:"login_url"`
	AuthenticatedPath string `mapstructure:"authenticated_path"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	LoginWaitSec      int    `mapstructure:"login_wait_seconds"`
	UserAgent         string `mapstructure:"user_agent"`
}

// PacingConfig shapes the human-behavior simulation. All durations are in
// seconds unless the name says otherwise.
type PacingConfig struct {
	BasePollInterval   int     `mapstructure:"base_poll_interval"`
	PollJitterMin      int     `mapstructure:"poll_jitter_min"`
	PollJitterMax      int     `mapstructure:"poll_jitter_max"`
	ActionDelayMinMs   int     `mapstructure:"action_delay_min_ms"`
	ActionDelayMaxMs   int     `mapstructure:"action_delay_max_ms"`
	ReadingTimeMin     int     `mapstructure:"reading_time_min"`
	ReadingTimeMax     int     `mapstructure:"reading_time_max"`
	SourceDelayMin     int     `mapstructure:"source_delay_min"`
	SourceDelayMax     int     `mapstructure:"source_delay_max"`
	MouseMoveChance    float64 `mapstructure:"mouse_move_chance"`
	ScrollChance       float64 `mapstructure:"scroll_chance"`
	IdleBreakChance    float64 `mapstructure:"idle_break_chance"`
	IdleBreakMin       int     `mapstructure:"idle_break_min"`
	IdleBreakMax       int     `mapstructure:"idle_break_max"`
	ForcedBreakChecks  int     `mapstructure:"forced_break_checks"`
	LongSleepChance    float64 `mapstructure:"long_sleep_chance"`
	LongSleepMin       int     `mapstructure:"long_sleep_min"`
	LongSleepMax       int     `mapstructure:"long_sleep_max"`
	GaussianVariance   float64 `mapstructure:"gaussian_variance"`
}

// SourcesConfig points the registry at its collaborator.
type SourcesConfig struct {
	// File is a JSON file holding the source list; re-read every cycle.
	File string `mapstructure:"file"`
	// Static is a fallback inline list of navigation targets.
	Static []string `mapstructure:"static"`
}

// StorageConfig sets where durable engine state lives.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
	// GCSBucket, when set, mirrors the session credential blob to GCS so a
	// redeploy on an empty disk can restore the login.
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for the record sink topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TelegramConfig configures the alert sink.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DROPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("engine.batch_min", 3)
	v.SetDefault("engine.batch_max", 5)
	v.SetDefault("engine.dedup_window_size", 200)
	v.SetDefault("engine.extract_window_size", 10)
	v.SetDefault("engine.error_threshold", 2)
	v.SetDefault("engine.alert_cooldown_seconds", 1800)
	v.SetDefault("engine.crash_backoff_seconds", 15)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.login_wait_seconds", 600)
	v.SetDefault("pacing.base_poll_interval", 60)
	v.SetDefault("pacing.poll_jitter_min", 30)
	v.SetDefault("pacing.poll_jitter_max", 120)
	v.SetDefault("pacing.action_delay_min_ms", 1200)
	v.SetDefault("pacing.action_delay_max_ms", 5500)
	v.SetDefault("pacing.reading_time_min", 4)
	v.SetDefault("pacing.reading_time_max", 12)
	v.SetDefault("pacing.source_delay_min", 3)
	v.SetDefault("pacing.source_delay_max", 10)
	v.SetDefault("pacing.mouse_move_chance", 0.45)
	v.SetDefault("pacing.scroll_chance", 0.55)
	v.SetDefault("pacing.idle_break_chance", 0.10)
	v.SetDefault("pacing.idle_break_min", 180)
	v.SetDefault("pacing.idle_break_max", 600)
	v.SetDefault("pacing.forced_break_checks", 15)
	v.SetDefault("pacing.long_sleep_chance", 0.05)
	v.SetDefault("pacing.long_sleep_min", 1200)
	v.SetDefault("pacing.long_sleep_max", 7200)
	v.SetDefault("pacing.gaussian_variance", 0.3)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.gcs_prefix", "dropwatch")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Engine.BatchMin < 1 || c.Engine.BatchMax < c.Engine.BatchMin {
		return fmt.Errorf("engine.batch_min/batch_max must satisfy 1 <= min <= max")
	}
	if c.Engine.DedupWindowSize <= 0 {
		return fmt.Errorf("engine.dedup_window_size must be > 0")
	}
	if c.Pacing.PollJitterMax < c.Pacing.PollJitterMin {
		return fmt.Errorf("pacing.poll_jitter_max must be >= pacing.poll_jitter_min")
	}
	if c.Pacing.IdleBreakMax < c.Pacing.IdleBreakMin {
		return fmt.Errorf("pacing.idle_break_max must be >= pacing.idle_break_min")
	}
	for _, chance := range []float64{
		c.Pacing.MouseMoveChance,
		c.Pacing.ScrollChance,
		c.Pacing.IdleBreakChance,
		c.Pacing.LongSleepChance,
	} {
		if chance < 0 || chance > 1 {
			return fmt.Errorf("pacing chances must be within [0, 1]")
		}
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if len(c.Sources.Static) == 0 && c.Sources.File == "" {
		return fmt.Errorf("sources.file or sources.static is required")
	}
	return nil
}

// NavTimeout converts the browser navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

// AlertCooldown converts the alert cooldown into a duration.
func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.Engine.AlertCooldownSeconds) * time.Second
}
