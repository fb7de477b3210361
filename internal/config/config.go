// Package config loads and validates sweeper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Fetch modes.
const (
	FetchModeHTTP     = "http"
	FetchModeHeadless = "headless"
)

// Report sinks.
const (
	ReportSinkNone  = "none"
	ReportSinkLocal = "local"
	ReportSinkGCS   = "gcs"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Report   ReportConfig   `mapstructure:"report"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// SweepConfig controls the sweep loop.
type SweepConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	Offset         int    `mapstructure:"offset" validate:"gte=0"`
	RecycleEvery   int    `mapstructure:"recycle_every" validate:"gte=1"`
	SoftBlockCodes []int  `mapstructure:"soft_block_codes" validate:"dive,gte=100,lte=599"`
	Resume         bool   `mapstructure:"resume"`
}

// FetchConfig configures the fetch session.
type FetchConfig struct {
	Mode                      string  `mapstructure:"mode" validate:"oneof=http headless"`
	UserAgent                 string  `mapstructure:"user_agent" validate:"required"`
	TimeoutSeconds            int     `mapstructure:"timeout_seconds" validate:"gte=1"`
	RequestsPerSecond         float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst                     int     `mapstructure:"burst" validate:"gte=0"`
	SessionMaxRequests        int     `mapstructure:"session_max_requests" validate:"gte=0"`
	CookieFile                string  `mapstructure:"cookie_file"`
	HeadlessNavTimeoutSeconds int     `mapstructure:"headless_nav_timeout_seconds" validate:"gte=1"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                   string `mapstructure:"dsn" validate:"required"`
	Table                 string `mapstructure:"table" validate:"required"`
	StatusTable           string `mapstructure:"status_table" validate:"required"`
	MaxConns              int32  `mapstructure:"max_conns" validate:"gte=1"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds" validate:"gte=1"`
}

// RedisConfig points at the checkpoint store. An empty Addr disables resume.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ReportConfig selects where sweep reports are archived.
type ReportConfig struct {
	Sink          string `mapstructure:"sink" validate:"oneof=none local gcs"`
	LocalDir      string `mapstructure:"local_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	Prefix        string `mapstructure:"prefix"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"gte=1,lte=65535"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size" validate:"gte=0"`
	FlushIntervalMs int `mapstructure:"flush_interval_ms" validate:"gte=0"`
}

// Load builds a Config from disk/environment. Without a path, an optional
// existence.{yaml,json,toml} is searched in the working directory and
// /etc/existence/.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXISTENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("existence")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/existence/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("sweep.base_url", "")
	v.SetDefault("sweep.offset", 0)
	v.SetDefault("sweep.recycle_every", 10)
	v.SetDefault("sweep.soft_block_codes", []int{503})
	v.SetDefault("sweep.resume", false)
	v.SetDefault("fetch.mode", FetchModeHTTP)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.session_max_requests", 0)
	v.SetDefault("fetch.cookie_file", "")
	v.SetDefault("fetch.headless_nav_timeout_seconds", 45)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "resources")
	v.SetDefault("db.status_table", "status")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.connect_timeout_seconds", 10)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.key_prefix", "existence:")
	v.SetDefault("report.sink", ReportSinkNone)
	v.SetDefault("report.local_dir", "")
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.prefix", "existence")
	v.SetDefault("report.pubsub_project", "")
	v.SetDefault("report.pubsub_topic", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("progress.buffer_size", 0)
	v.SetDefault("progress.flush_interval_ms", 0)
}

// Validate enforces struct tags and the cross-field rules they cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Report.Sink {
	case ReportSinkLocal:
		if c.Report.LocalDir == "" {
			return fmt.Errorf("report.local_dir must be set when report.sink is local")
		}
	case ReportSinkGCS:
		if c.Report.GCSBucket == "" {
			return fmt.Errorf("report.gcs_bucket must be set when report.sink is gcs")
		}
	}
	if (c.Report.PubSubProject == "") != (c.Report.PubSubTopic == "") {
		return fmt.Errorf("report.pubsub_project and report.pubsub_topic must be set together")
	}
	if c.Sweep.Resume && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when sweep.resume is enabled")
	}
	return nil
}

// FetchTimeout returns the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// HeadlessNavTimeout returns the headless navigation timeout.
func (c Config) HeadlessNavTimeout() time.Duration {
	return time.Duration(c.Fetch.HeadlessNavTimeoutSeconds) * time.Second
}

// DBConnectTimeout returns the Postgres connect timeout.
func (c Config) DBConnectTimeout() time.Duration {
	return time.Duration(c.DB.ConnectTimeoutSeconds) * time.Second
}

// ProgressFlushInterval returns the progress hub flush interval.
func (c Config) ProgressFlushInterval() time.Duration {
	return time.Duration(c.Progress.FlushIntervalMs) * time.Millisecond
}
