package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration. Supplied at startup,
// immutable for the process lifetime.
type Config struct {
	Env     string
	Log     LogConfig
	Redis   RedisConfig
	Feed    FeedConfig
	Sources SourcesConfig
}

// LogConfig holds structured-logging settings. File enables a rolling log
// file in addition to stdout when non-empty.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// RedisConfig holds connection settings for the consolidated-book mirror.
// An empty Addr disables the mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FeedConfig holds the policy knobs shared by all sources.
type FeedConfig struct {
	StalenessWindow  time.Duration
	ReceiveTimeout   time.Duration
	RetryPause       time.Duration
	RequestTimeout   time.Duration
	FailureThreshold int

	BackoffBase   time.Duration
	BackoffCap    time.Duration
	ShutdownGrace time.Duration

	LatencyRingSize   int
	LatencyMinSamples int
	SpikeMultiplier   float64

	MinProfit decimal.Decimal
}

// SourceConfig holds per-source settings. An empty URL means the source
// package's default endpoint. PollInterval only applies to polling sources.
type SourceConfig struct {
	Enabled      bool
	URL          string
	PollInterval time.Duration
}

// SourcesConfig enumerates the four configured sources.
type SourcesConfig struct {
	Binance  SourceConfig
	Coinbase SourceConfig
	MEXC     SourceConfig
	KuCoin   SourceConfig
}

// Load reads configuration from environment variables prefixed with
// CROSSFEED_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CROSSFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)

	// Redis defaults (mirror disabled unless an address is set)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Feed defaults
	v.SetDefault("feed.staleness_window", "2s")
	v.SetDefault("feed.receive_timeout", "1s")
	v.SetDefault("feed.retry_pause", "500ms")
	v.SetDefault("feed.request_timeout", "2s")
	v.SetDefault("feed.failure_threshold", 5)
	v.SetDefault("feed.backoff_base", "1s")
	v.SetDefault("feed.backoff_cap", "60s")
	v.SetDefault("feed.shutdown_grace", "5s")
	v.SetDefault("feed.latency_ring_size", 100)
	v.SetDefault("feed.latency_min_samples", 10)
	v.SetDefault("feed.spike_multiplier", 3.0)
	v.SetDefault("feed.min_profit", "0")

	// Source defaults; empty URLs fall through to each package's endpoint.
	v.SetDefault("sources.binance.enabled", true)
	v.SetDefault("sources.binance.url", "")
	v.SetDefault("sources.coinbase.enabled", true)
	v.SetDefault("sources.coinbase.url", "")
	v.SetDefault("sources.mexc.enabled", true)
	v.SetDefault("sources.mexc.url", "")
	v.SetDefault("sources.mexc.poll_interval", "500ms")
	v.SetDefault("sources.kucoin.enabled", true)
	v.SetDefault("sources.kucoin.url", "")
	v.SetDefault("sources.kucoin.poll_interval", "1s")

	minProfit, err := decimal.NewFromString(v.GetString("feed.min_profit"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid min_profit %q: %w", v.GetString("feed.min_profit"), err)
	}

	cfg := &Config{}
	cfg.Env = v.GetString("env")

	cfg.Log = LogConfig{
		Level:      v.GetString("log.level"),
		File:       v.GetString("log.file"),
		MaxSizeMB:  v.GetInt("log.max_size_mb"),
		MaxBackups: v.GetInt("log.max_backups"),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	cfg.Feed = FeedConfig{
		StalenessWindow:   v.GetDuration("feed.staleness_window"),
		ReceiveTimeout:    v.GetDuration("feed.receive_timeout"),
		RetryPause:        v.GetDuration("feed.retry_pause"),
		RequestTimeout:    v.GetDuration("feed.request_timeout"),
		FailureThreshold:  v.GetInt("feed.failure_threshold"),
		BackoffBase:       v.GetDuration("feed.backoff_base"),
		BackoffCap:        v.GetDuration("feed.backoff_cap"),
		ShutdownGrace:     v.GetDuration("feed.shutdown_grace"),
		LatencyRingSize:   v.GetInt("feed.latency_ring_size"),
		LatencyMinSamples: v.GetInt("feed.latency_min_samples"),
		SpikeMultiplier:   v.GetFloat64("feed.spike_multiplier"),
		MinProfit:         minProfit,
	}

	cfg.Sources = SourcesConfig{
		Binance: SourceConfig{
			Enabled: v.GetBool("sources.binance.enabled"),
			URL:     v.GetString("sources.binance.url"),
		},
		Coinbase: SourceConfig{
			Enabled: v.GetBool("sources.coinbase.enabled"),
			URL:     v.GetString("sources.coinbase.url"),
		},
		MEXC: SourceConfig{
			Enabled:      v.GetBool("sources.mexc.enabled"),
			URL:          v.GetString("sources.mexc.url"),
			PollInterval: v.GetDuration("sources.mexc.poll_interval"),
		},
		KuCoin: SourceConfig{
			Enabled:      v.GetBool("sources.kucoin.enabled"),
			URL:          v.GetString("sources.kucoin.url"),
			PollInterval: v.GetDuration("sources.kucoin.poll_interval"),
		},
	}

	return cfg, nil
}
