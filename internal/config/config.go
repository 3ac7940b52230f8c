// Package config defines the top-level configuration for the tradebot
// strategy execution plane and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEBOT_* environment
// variables.
type Config struct {
	MasterKey MasterKeyConfig `toml:"master_key"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Risk      RiskConfig      `toml:"risk"`
	Feeds     FeedsConfig     `toml:"feeds"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogLevel  string          `toml:"log_level"`
}

// MasterKeyConfig resolves the envelope-crypto master keypair. Raw base64
// env vars are canonical (spec.md §6); the local encrypted-file fallback is
// for development, mirroring internal/crypto.MasterKeyConfig's resolution
// order.
type MasterKeyConfig struct {
	PublicKeyB64      string `toml:"public_key_b64"`
	PrivateKeyB64     string `toml:"private_key_b64"`
	LocalFilePath     string `toml:"local_file_path"`
	LocalFilePassword string `toml:"local_file_password"`
}

// PostgresConfig holds connection parameters for the strategy/credential/
// follower store.
type PostgresConfig struct {
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

// RedisConfig holds connection parameters for the rolling-PnL, follower,
// position-flag, and candle caches.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// SchedulerConfig configures the reconciler tick period.
type SchedulerConfig struct {
	TickInterval duration `toml:"tick_interval"`
}

// RiskConfig holds a guardian sweep cadence. MaxSlippageBps/MaxDrawdownPct/
// LookbackWindow are compile-time constants in internal/risk per spec.md
// §4.5. GuardianInterval is validated and can be overridden from the
// environment, but it is not passed to risk.Guardian, which sweeps on the
// fixed risk.GuardianInterval (60s).
type RiskConfig struct {
	GuardianInterval duration `toml:"guardian_interval"`
}

// FeedHMACPolicy is a per-feed frame-signature verification policy: either
// "none" or "hmac" (in which case HeaderOrField and SecretEnv must be set).
type FeedHMACPolicy struct {
	Mode          string `toml:"mode"` // "none" | "hmac"
	HeaderOrField string `toml:"header_or_field"`
	SecretEnv     string `toml:"secret_env"`
}

// FeedConfig configures one public market-data feed task.
type FeedConfig struct {
	Name     string         `toml:"name"`
	WSURL    string         `toml:"ws_url"`
	Symbol   string         `toml:"symbol"`
	Interval string         `toml:"interval"` // "1h" or "4h" — selects the bus topic
	HMAC     FeedHMACPolicy `toml:"hmac"`
}

// FeedsConfig is the list of public market-data feeds the process runs
// alongside the scheduler.
type FeedsConfig struct {
	Public []FeedConfig `toml:"public"`
}

// BlowfinConfig holds the Blowfin REST/WS endpoint URLs. RESTBaseURL and
// WSURL alone select production or demo endpoints; Demo is loaded but not
// read by any component. It deliberately carries no plaintext API key or
// passphrase: spec.md §6 requires exchange credentials live only sealed in
// Postgres. PlatformUserID names the sealed_credentials row the shared
// private WebSocket client (order-book depth, not order placement) logs in
// with — the same credential.Store lookup every per-user trade uses, just
// against a designated system account rather than an end user's.
type BlowfinConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	WSURL          string `toml:"ws_url"`
	Demo           bool   `toml:"demo"`
	PlatformUserID int64  `toml:"platform_user_id"`
}

// ExchangeConfig groups per-exchange adapter configuration.
type ExchangeConfig struct {
	Blowfin BlowfinConfig `toml:"blowfin"`
}

// ServerConfig holds HTTP listener settings. The API itself is an external
// collaborator (spec.md §1). Validate checks Port when Enabled is set; this
// process starts no listener from these values.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig configures optional operator alerting (e.g. on a drawdown
// guardian trip).
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML can parse strings like "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "30s" or "1m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config pre-populated with the process's built-in
// defaults, to be overlaid by the TOML file and then env overrides.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradebot",
			User:          "tradebot",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Scheduler: SchedulerConfig{
			TickInterval: duration{30 * time.Second},
		},
		Risk: RiskConfig{
			GuardianInterval: duration{60 * time.Second},
		},
		Exchange: ExchangeConfig{
			Blowfin: BlowfinConfig{
				RESTBaseURL: "https://openapi.blowfin.com",
				WSURL:       "wss://openapi.blowfin.com/ws/private",
				Demo:        false,
			},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the Config for internal consistency and returns a single
// combined error naming every violation found, or nil.
func (c *Config) Validate() error {
	var errs []string

	if c.MasterKey.PublicKeyB64 == "" || c.MasterKey.PrivateKeyB64 == "" {
		if c.MasterKey.LocalFilePath == "" {
			errs = append(errs, "master_key: set public_key_b64/private_key_b64 or local_file_path")
		}
	}

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
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Scheduler.TickInterval.Duration <= 0 {
		errs = append(errs, "scheduler: tick_interval must be > 0")
	}
	if c.Risk.GuardianInterval.Duration <= 0 {
		errs = append(errs, "risk: guardian_interval must be > 0")
	}

	for i, f := range c.Feeds.Public {
		if f.WSURL == "" {
			errs = append(errs, fmt.Sprintf("feeds.public[%d]: ws_url must not be empty", i))
		}
		if f.Interval != "1h" && f.Interval != "4h" {
			errs = append(errs, fmt.Sprintf("feeds.public[%d]: interval must be \"1h\" or \"4h\", got %q", i, f.Interval))
		}
		if f.HMAC.Mode == "hmac" && (f.HMAC.HeaderOrField == "" || f.HMAC.SecretEnv == "") {
			errs = append(errs, fmt.Sprintf("feeds.public[%d]: hmac policy requires header_or_field and secret_env", i))
		}
	}

	if c.Exchange.Blowfin.RESTBaseURL == "" {
		errs = append(errs, "exchange.blowfin: rest_base_url must not be empty")
	}
	if c.Exchange.Blowfin.PlatformUserID <= 0 {
		errs = append(errs, "exchange.blowfin: platform_user_id must be set to the sealed_credentials row backing the shared order-book feed")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
