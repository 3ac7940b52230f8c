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
// built-in defaults, applies TRADEBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRADEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Master key ──
	setStr(&cfg.MasterKey.PublicKeyB64, "TRADEBOT_MASTER_KEY_PUBLIC_B64")
	setStr(&cfg.MasterKey.PrivateKeyB64, "TRADEBOT_MASTER_KEY_PRIVATE_B64")
	setStr(&cfg.MasterKey.LocalFilePath, "TRADEBOT_MASTER_KEY_LOCAL_FILE_PATH")
	setStr(&cfg.MasterKey.LocalFilePassword, "TRADEBOT_MASTER_KEY_LOCAL_FILE_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEBOT_REDIS_TLS_ENABLED")

	// ── Scheduler / Risk ──
	setDuration(&cfg.Scheduler.TickInterval, "TRADEBOT_SCHEDULER_TICK_INTERVAL")
	setDuration(&cfg.Risk.GuardianInterval, "TRADEBOT_RISK_GUARDIAN_INTERVAL")

	// ── Exchange ──
	setStr(&cfg.Exchange.Blowfin.RESTBaseURL, "TRADEBOT_EXCHANGE_BLOWFIN_REST_BASE_URL")
	setStr(&cfg.Exchange.Blowfin.WSURL, "TRADEBOT_EXCHANGE_BLOWFIN_WS_URL")
	setBool(&cfg.Exchange.Blowfin.Demo, "TRADEBOT_EXCHANGE_BLOWFIN_DEMO")
	setInt64(&cfg.Exchange.Blowfin.PlatformUserID, "TRADEBOT_EXCHANGE_BLOWFIN_PLATFORM_USER_ID")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEBOT_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADEBOT_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
