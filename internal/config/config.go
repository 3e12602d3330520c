// Package config defines the top-level configuration for the escrow engine
// and provides loading and validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ESCROWD_* environment
// variables.
type Config struct {
	Operator Operator `toml:"operator"`
	Chain    Chain    `toml:"chain"`
	Postgres Postgres `toml:"postgres"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	Server   Server   `toml:"server"`
	Notify   Notify   `toml:"notify"`
	Archive  Archive  `toml:"archive"`
	LogLevel string   `toml:"log_level"`
}

// Operator holds the engine's on-chain signing identity.
type Operator struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Chain holds RPC parameters for the asset registry and payment backend.
type Chain struct {
	RPCURL string `toml:"rpc_url"`
	// PaymentToken is the ERC-20 used for payouts. Empty selects the chain's
	// native currency.
	PaymentToken string `toml:"payment_token"`
}

// Postgres holds database connection parameters. With no DSN and no host the
// engine falls back to in-memory stores.
type Postgres struct {
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

// Enabled reports whether a database connection is configured.
func (p Postgres) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || strings.TrimSpace(p.Host) != ""
}

// Redis holds Redis connection parameters. With no address the engine falls
// back to in-process locking and no cache, and the websocket hub is fed
// directly.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// Enabled reports whether Redis is configured.
func (r Redis) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// S3 holds object storage parameters for audit archival.
type S3 struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Enabled reports whether audit archival is configured.
func (s S3) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// Server holds the HTTP API configuration.
type Server struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit int `toml:"rate_limit"`
}

// Notify holds operator alerting webhooks.
type Notify struct {
	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   string `toml:"telegram_chat_id"`
	DiscordWebhook   string `toml:"discord_webhook"`
}

// Archive holds audit archival scheduling parameters.
type Archive struct {
	// IntervalHours is how often the archiver runs; zero disables it.
	IntervalHours int `toml:"interval_hours"`
	// RetainDays is how much recent history stays out of the archive cutoff.
	RetainDays int `toml:"retain_days"`
	// BatchSize caps events per archive object.
	BatchSize int `toml:"batch_size"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: Chain{
			RPCURL: "http://localhost:8545",
		},
		Postgres: Postgres{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: Redis{
			PoolSize:   16,
			MaxRetries: 3,
		},
		Server: Server{
			Port:      8080,
			RateLimit: 20,
		},
		Archive: Archive{
			IntervalHours: 24,
			RetainDays:    30,
			BatchSize:     10_000,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for internally inconsistent or missing
// values. It is called after Load.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("config: chain.rpc_url is required")
	}
	if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
		return fmt.Errorf("config: operator key is required (operator.private_key or operator.encrypted_key_path)")
	}
	if c.Chain.PaymentToken != "" && !common.IsHexAddress(c.Chain.PaymentToken) {
		return fmt.Errorf("config: chain.payment_token %q is not a valid address", c.Chain.PaymentToken)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.S3.Enabled() && c.Archive.RetainDays < 0 {
		return fmt.Errorf("config: archive.retain_days must not be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by "***", for safe logging of the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Operator.PrivateKey)
	redact(&out.Operator.KeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramBotToken)
	redact(&out.Notify.DiscordWebhook)

	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
