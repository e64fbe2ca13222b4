package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process level configuration. All values arrive via
// environment variables so main stays lean.
type Config struct {
	Addr            string
	PostgresDSN     string
	RedisURL        string
	BotToken        string
	TelegramAPIBase string
	AdminChatID     int64
	DownloadLink    string
	IssuerKey       string
	IssuerKeyHash   string
	DefaultProduct  string
	SessionTTL      time.Duration
	PollTimeout     time.Duration
	BroadcastDelay  time.Duration
	RateLimit       int
	RateWindow      time.Duration
	ListPageSize    int
}

// FromEnv builds a Config from TRIVIGIL_* environment variables with
// development defaults where a value is safe to default.
func FromEnv() Config {
	return Config{
		Addr:            envOr("TRIVIGIL_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("TRIVIGIL_POSTGRES_DSN"),
		RedisURL:        os.Getenv("TRIVIGIL_REDIS_URL"),
		BotToken:        os.Getenv("TRIVIGIL_BOT_TOKEN"),
		TelegramAPIBase: envOr("TRIVIGIL_TELEGRAM_API", "https://api.telegram.org"),
		AdminChatID:     envInt64("TRIVIGIL_ADMIN_CHAT_ID", 0),
		DownloadLink:    envOr("TRIVIGIL_DOWNLOAD_LINK", "https://trivigil.com/download/secure-file"),
		IssuerKey:       envOr("TRIVIGIL_ISSUER_KEY", "dev-secret-key-change-in-production"),
		IssuerKeyHash:   os.Getenv("TRIVIGIL_ISSUER_KEY_HASH"),
		DefaultProduct:  envOr("TRIVIGIL_DEFAULT_PRODUCT", "NAT"),
		SessionTTL:      envDuration("TRIVIGIL_SESSION_TTL", 15*time.Minute),
		PollTimeout:     envDuration("TRIVIGIL_POLL_TIMEOUT", 30*time.Second),
		BroadcastDelay:  envDuration("TRIVIGIL_BROADCAST_DELAY", 50*time.Millisecond),
		RateLimit:       envInt("TRIVIGIL_RATE_LIMIT", 20),
		RateWindow:      envDuration("TRIVIGIL_RATE_WINDOW", time.Hour),
		ListPageSize:    envInt("TRIVIGIL_LIST_PAGE_SIZE", 50),
	}
}

// RedisConfig holds connection tuning for the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis derives Redis client settings from the top level config.
func (c Config) Redis() RedisConfig {
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
