package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STELLARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STELLARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Horizon ──
	setStr(&cfg.Horizon.BaseURL, "STELLARB_HORIZON_BASE_URL")
	setInt(&cfg.Horizon.DepthLimit, "STELLARB_HORIZON_DEPTH_LIMIT")
	setDuration(&cfg.Horizon.RequestTimeout, "STELLARB_HORIZON_REQUEST_TIMEOUT")

	// ── Fetcher ──
	setInt(&cfg.Fetcher.BatchSize, "STELLARB_FETCHER_BATCH_SIZE")
	setDuration(&cfg.Fetcher.BatchDelay, "STELLARB_FETCHER_BATCH_DELAY")
	setFloat64(&cfg.Fetcher.LiquidityFloor, "STELLARB_FETCHER_LIQUIDITY_FLOOR")

	// ── Engine ──
	setFloat64(&cfg.Engine.StartAmount, "STELLARB_ENGINE_START_AMOUNT")
	setFloat64(&cfg.Engine.UtilizationCeiling, "STELLARB_ENGINE_UTILIZATION_CEILING")
	setFloat64(&cfg.Engine.NetworkFee, "STELLARB_ENGINE_NETWORK_FEE")
	setFloat64(&cfg.Engine.ExchangeFeeRate, "STELLARB_ENGINE_EXCHANGE_FEE_RATE")

	// ── Analysis ──
	setDuration(&cfg.Analysis.Interval, "STELLARB_ANALYSIS_INTERVAL")
	setFloat64(&cfg.Analysis.MaxDeviationRatio, "STELLARB_ANALYSIS_MAX_DEVIATION_RATIO")
	setBool(&cfg.Analysis.PersistProfitable, "STELLARB_ANALYSIS_PERSIST_PROFITABLE")
	setStr(&cfg.Analysis.TradesIntakeChannel, "STELLARB_ANALYSIS_TRADES_INTAKE_CHANNEL")

	// ── Cache ──
	setInt(&cfg.Cache.CompressionThreshold, "STELLARB_CACHE_COMPRESSION_THRESHOLD")
	setInt(&cfg.Cache.MemoryCeilingMB, "STELLARB_CACHE_MEMORY_CEILING_MB")
	setDuration(&cfg.Cache.PressureCheckInterval, "STELLARB_CACHE_PRESSURE_CHECK_INTERVAL")

	// ── WS ──
	setBool(&cfg.WS.Enabled, "STELLARB_WS_ENABLED")
	setInt(&cfg.WS.Port, "STELLARB_WS_PORT")
	setInt(&cfg.WS.MaxSubscribers, "STELLARB_WS_MAX_SUBSCRIBERS")
	setDuration(&cfg.WS.HeartbeatInterval, "STELLARB_WS_HEARTBEAT_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STELLARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STELLARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STELLARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STELLARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STELLARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STELLARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STELLARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "STELLARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "STELLARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STELLARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STELLARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STELLARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STELLARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STELLARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STELLARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STELLARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STELLARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STELLARB_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STELLARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STELLARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STELLARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "STELLARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STELLARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STELLARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STELLARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STELLARB_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STELLARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STELLARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STELLARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STELLARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STELLARB_MODE")
	setStr(&cfg.LogLevel, "STELLARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
