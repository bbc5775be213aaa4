// Package config defines the top-level configuration for the arbitrage
// detection service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STELLARB_* environment variables.
type Config struct {
	Horizon  HorizonConfig  `toml:"horizon"`
	Fetcher  FetcherConfig  `toml:"fetcher"`
	Engine   EngineConfig   `toml:"engine"`
	Analysis AnalysisConfig `toml:"analysis"`
	Cache    CacheConfig    `toml:"cache"`
	WS       WSConfig       `toml:"ws"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Pairs    []PairConfig   `toml:"pairs"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// HorizonConfig holds the order-book source endpoint parameters.
type HorizonConfig struct {
	BaseURL        string   `toml:"base_url"`
	DepthLimit     int      `toml:"depth_limit"`
	RequestTimeout duration `toml:"request_timeout"`
}

// FetcherConfig holds the batched snapshot-acquisition parameters.
type FetcherConfig struct {
	BatchSize      int      `toml:"batch_size"`
	BatchDelay     duration `toml:"batch_delay"`
	LiquidityFloor float64  `toml:"liquidity_floor"`
}

// EngineConfig holds the cycle search and profitability parameters.
type EngineConfig struct {
	// StartAmount is the notional input used when simulating a loop.
	StartAmount float64 `toml:"start_amount"`
	// UtilizationCeiling is the maximum fraction of an edge's quoted
	// liquidity a simulated hop may consume.
	UtilizationCeiling float64 `toml:"utilization_ceiling"`
	// NetworkFee is the flat per-hop network fee in starting-asset units.
	NetworkFee float64 `toml:"network_fee"`
	// ExchangeFeeRate is the proportional per-hop exchange fee.
	ExchangeFeeRate float64 `toml:"exchange_fee_rate"`
}

// AnalysisConfig holds parameters of the periodic analysis loop and the
// opportunity re-validation check.
type AnalysisConfig struct {
	Interval          duration `toml:"interval"`
	MaxDeviationRatio float64  `toml:"max_deviation_ratio"`
	PersistProfitable bool     `toml:"persist_profitable"`
	BroadcastChannel  string   `toml:"broadcast_channel"`
	TradesChannel     string   `toml:"trades_channel"`
	// TradesIntakeChannel is the Redis channel on which execution
	// collaborators hand finished trades back. Empty disables intake.
	TradesIntakeChannel string `toml:"trades_intake_channel"`
}

// CacheRegionConfig holds one cache region's expiration policy.
type CacheRegionConfig struct {
	TTL   duration `toml:"ttl"`
	Sweep duration `toml:"sweep"`
}

// CacheConfig holds the tiered cache parameters.
type CacheConfig struct {
	MarketData    CacheRegionConfig `toml:"market_data"`
	OrderBooks    CacheRegionConfig `toml:"order_books"`
	Opportunities CacheRegionConfig `toml:"opportunities"`
	Trades        CacheRegionConfig `toml:"trades"`

	// CompressionThreshold is the serialized payload size in bytes above
	// which entries are stored compressed.
	CompressionThreshold int `toml:"compression_threshold"`
	// MemoryCeilingMB triggers oldest-25% eviction in every region when the
	// process heap exceeds it.
	MemoryCeilingMB       int      `toml:"memory_ceiling_mb"`
	PressureCheckInterval duration `toml:"pressure_check_interval"`
}

// WSConfig holds the websocket broadcaster parameters.
type WSConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	MaxSubscribers    int      `toml:"max_subscribers"`
	HeartbeatInterval duration `toml:"heartbeat_interval"`
}

// RedisConfig holds Redis connection parameters for the event mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the history store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	ArchiveAfter   duration `toml:"archive_after"`
	ArchiveEvery   duration `toml:"archive_every"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// PairConfig describes one trading pair of the catalog in TOML form. Empty
// issuer fields denote the native asset.
type PairConfig struct {
	BaseCode      string `toml:"base_code"`
	BaseIssuer    string `toml:"base_issuer"`
	CounterCode   string `toml:"counter_code"`
	CounterIssuer string `toml:"counter_issuer"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Horizon: HorizonConfig{
			BaseURL:        "https://horizon.stellar.org",
			DepthLimit:     20,
			RequestTimeout: duration{10 * time.Second},
		},
		Fetcher: FetcherConfig{
			BatchSize:      3,
			BatchDelay:     duration{500 * time.Millisecond},
			LiquidityFloor: 100.0,
		},
		Engine: EngineConfig{
			StartAmount:        100.0,
			UtilizationCeiling: 0.10,
			NetworkFee:         0.00001,
			ExchangeFeeRate:    0.001,
		},
		Analysis: AnalysisConfig{
			Interval:            duration{30 * time.Second},
			MaxDeviationRatio:   0.10,
			PersistProfitable:   true,
			BroadcastChannel:    "arbitrage",
			TradesChannel:       "trades",
			TradesIntakeChannel: "trades.inbound",
		},
		Cache: CacheConfig{
			MarketData:            CacheRegionConfig{TTL: duration{30 * time.Second}, Sweep: duration{10 * time.Second}},
			OrderBooks:            CacheRegionConfig{TTL: duration{15 * time.Second}, Sweep: duration{5 * time.Second}},
			Opportunities:         CacheRegionConfig{TTL: duration{60 * time.Second}, Sweep: duration{20 * time.Second}},
			Trades:                CacheRegionConfig{TTL: duration{300 * time.Second}, Sweep: duration{60 * time.Second}},
			CompressionThreshold:  1024,
			MemoryCeilingMB:       512,
			PressureCheckInterval: duration{30 * time.Second},
		},
		WS: WSConfig{
			Enabled:           true,
			Port:              8000,
			MaxSubscribers:    100,
			HeartbeatInterval: duration{30 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "stellarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stellarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
			ArchiveAfter:   duration{30 * 24 * time.Hour},
			ArchiveEvery:   duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "trade_recorded"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"analyze": true,
	"serve":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: analyze, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Horizon
	if c.Horizon.BaseURL == "" {
		errs = append(errs, "horizon: base_url must not be empty")
	}
	if c.Horizon.DepthLimit <= 0 {
		errs = append(errs, "horizon: depth_limit must be > 0")
	}
	if c.Horizon.RequestTimeout.Duration <= 0 {
		errs = append(errs, "horizon: request_timeout must be > 0")
	}

	// Fetcher
	if c.Fetcher.BatchSize < 1 {
		errs = append(errs, "fetcher: batch_size must be >= 1")
	}
	if c.Fetcher.BatchDelay.Duration < 0 {
		errs = append(errs, "fetcher: batch_delay must not be negative")
	}
	if c.Fetcher.LiquidityFloor < 0 {
		errs = append(errs, "fetcher: liquidity_floor must not be negative")
	}

	// Engine
	if c.Engine.StartAmount <= 0 {
		errs = append(errs, "engine: start_amount must be > 0")
	}
	if c.Engine.UtilizationCeiling <= 0 || c.Engine.UtilizationCeiling > 1 {
		errs = append(errs, fmt.Sprintf("engine: utilization_ceiling must be in (0, 1], got %v", c.Engine.UtilizationCeiling))
	}
	if c.Engine.NetworkFee < 0 {
		errs = append(errs, "engine: network_fee must not be negative")
	}
	if c.Engine.ExchangeFeeRate < 0 || c.Engine.ExchangeFeeRate >= 1 {
		errs = append(errs, "engine: exchange_fee_rate must be in [0, 1)")
	}

	// Analysis
	if c.Analysis.Interval.Duration <= 0 {
		errs = append(errs, "analysis: interval must be > 0")
	}
	if c.Analysis.MaxDeviationRatio <= 0 {
		errs = append(errs, "analysis: max_deviation_ratio must be > 0")
	}

	// Cache
	for _, r := range []struct {
		name string
		cfg  CacheRegionConfig
	}{
		{"market_data", c.Cache.MarketData},
		{"order_books", c.Cache.OrderBooks},
		{"opportunities", c.Cache.Opportunities},
		{"trades", c.Cache.Trades},
	} {
		if r.cfg.TTL.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("cache.%s: ttl must be > 0", r.name))
		}
		if r.cfg.Sweep.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("cache.%s: sweep must be > 0", r.name))
		}
	}
	if c.Cache.CompressionThreshold < 0 {
		errs = append(errs, "cache: compression_threshold must not be negative")
	}
	if c.Cache.MemoryCeilingMB <= 0 {
		errs = append(errs, "cache: memory_ceiling_mb must be > 0")
	}

	// WS
	if c.WS.Enabled {
		if c.WS.Port <= 0 || c.WS.Port > 65535 {
			errs = append(errs, fmt.Sprintf("ws: port must be 1-65535, got %d", c.WS.Port))
		}
		if c.WS.MaxSubscribers < 1 {
			errs = append(errs, "ws: max_subscribers must be >= 1")
		}
		if c.WS.HeartbeatInterval.Duration <= 0 {
			errs = append(errs, "ws: heartbeat_interval must be > 0")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Pairs
	for i, p := range c.Pairs {
		if p.BaseCode == "" || p.CounterCode == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: base_code and counter_code must not be empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
