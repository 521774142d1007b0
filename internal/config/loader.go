package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KIOSK_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KIOSK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kiosk ──
	setStr(&cfg.Kiosk.ID, "KIOSK_ID")
	setStr(&cfg.Kiosk.DefaultAuctionID, "KIOSK_DEFAULT_AUCTION_ID")
	setDuration(&cfg.Kiosk.RunTimeout, "KIOSK_RUN_TIMEOUT")
	setDuration(&cfg.Kiosk.SessionTTL, "KIOSK_SESSION_TTL")
	setInt(&cfg.Kiosk.PINAttempts, "KIOSK_PIN_ATTEMPTS")

	// ── Auction API ──
	setStr(&cfg.API.BaseURL, "KIOSK_API_BASE_URL")
	setStr(&cfg.API.ClientID, "KIOSK_API_CLIENT_ID")
	setStr(&cfg.API.ClientSecret, "KIOSK_API_CLIENT_SECRET")
	setDuration(&cfg.API.Timeout, "KIOSK_API_TIMEOUT")

	// ── Fulfillment ──
	setDuration(&cfg.Fulfillment.PollInterval, "KIOSK_FULFILLMENT_POLL_INTERVAL")
	setInt(&cfg.Fulfillment.MaxPollAttempts, "KIOSK_FULFILLMENT_MAX_POLL_ATTEMPTS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "KIOSK_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "KIOSK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform-provided alias
	setStr(&cfg.Postgres.Host, "KIOSK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KIOSK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KIOSK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KIOSK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KIOSK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KIOSK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KIOSK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KIOSK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KIOSK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KIOSK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KIOSK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KIOSK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KIOSK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KIOSK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KIOSK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KIOSK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KIOSK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KIOSK_S3_REGION")
	setStr(&cfg.S3.Bucket, "KIOSK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KIOSK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KIOSK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KIOSK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KIOSK_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "KIOSK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "KIOSK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "KIOSK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "KIOSK_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KIOSK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KIOSK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KIOSK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KIOSK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KIOSK_MODE")
	setStr(&cfg.LogLevel, "KIOSK_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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
