package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
//
// DATABASE_URL, the Gmail credentials, GEMINI_API_KEY and REDIS_ADDR are all
// optional: the affected collaborator degrades to a disabled mode when its
// configuration is absent, and the service stays live.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServerAddr  string `env:"SERVER_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`

	// Shared secret for /run and the read endpoints. No default: an empty
	// token is an operator-facing misconfiguration, not an open door.
	AdminToken string `env:"ADMIN_TOKEN"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr    string        `env:"REDIS_ADDR"`
	SeenCacheTTL time.Duration `env:"SEEN_CACHE_TTL" envDefault:"168h"`

	GmailClientID     string `env:"GMAIL_CLIENT_ID"`
	GmailClientSecret string `env:"GMAIL_CLIENT_SECRET"`
	GmailRefreshToken string `env:"GMAIL_REFRESH_TOKEN"`
	GmailQuery        string `env:"GMAIL_QUERY" envDefault:"in:inbox is:unread newer_than:7d"`
	GmailMaxResults   int    `env:"GMAIL_MAX_RESULTS" envDefault:"10"`

	GeminiAPIKey     string  `env:"GEMINI_API_KEY"`
	GeminiModel      string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	ExtractRateLimit float64 `env:"EXTRACT_RATE_LIMIT" envDefault:"1"`

	NotesMaxLen        int           `env:"NOTES_MAX_LEN" envDefault:"4000"`
	ExtractMaxAttempts int           `env:"EXTRACT_MAX_ATTEMPTS" envDefault:"3"`
	ExtractBackoffBase time.Duration `env:"EXTRACT_BACKOFF_BASE" envDefault:"500ms"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
