package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	Host        string

	DataDir     string
	DBDriver    string // json, sqlite or postgres
	DatabaseURL string
	StoresFile  string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	TelegramBotToken string
	TelegramAPIURL   string
	BarkServer       string

	ScraperInterval  time.Duration
	ScraperUserAgent string
	ScraperTimeout   time.Duration
	SuperstoreAPIKey string
	BrowserBin       string

	RateLimitPermits int
	RateLimitPeriod  time.Duration
	RateLimitTimeout time.Duration

	CORSOrigins string
}

func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		Port:             getEnv("PORT", "8080"),
		Host:             getEnv("HOST", "0.0.0.0"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		StoresFile:       getEnv("STORES_FILE", "stores.yaml"),
		SMTPHost:         getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPUser:         getEnv("SMTP_USER", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:         getEnv("SMTP_FROM", "GroceryPrice <noreply@example.com>"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		BarkServer:       getEnv("BARK_SERVER", "https://api.day.app"),
		ScraperUserAgent: getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		SuperstoreAPIKey: getEnv("SUPERSTORE_API_KEY", ""),
		BrowserBin:       getEnv("BROWSER_BIN", ""),
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000"),
	}

	switch cfg.DBDriver {
	case "json", "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %q", cfg.DBDriver)
	}

	// Parse integer values
	var err error
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.RateLimitPermits, err = getInt("RATE_LIMIT_PERMITS", 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitPermits < 1 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PERMITS: must be positive")
	}

	// Parse durations
	if cfg.ScraperInterval, err = getDuration("SCRAPER_INTERVAL", "6h"); err != nil {
		return nil, err
	}
	if cfg.ScraperTimeout, err = getDuration("SCRAPER_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.RateLimitPeriod, err = getDuration("RATE_LIMIT_PERIOD", "1s"); err != nil {
		return nil, err
	}
	if cfg.RateLimitTimeout, err = getDuration("RATE_LIMIT_TIMEOUT", "5s"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
