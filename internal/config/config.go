package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Keepa    KeepaConfig
	Apify    ApifyConfig
	PAAPI    PAAPIConfig
	Scraper  ScraperConfig
	Tracker  TrackerConfig
	Jobs     JobsConfig
	Alerts   AlertsConfig
	LogLevel string
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	// URL selects the Postgres backend when set; otherwise the store runs on
	// the SQLite file at Path.
	URL      string
	Path     string
	MaxConns int32
}

type RedisConfig struct {
	// URL enables the outbox relay when set. Empty keeps the tracker fully
	// local, which is the default deployment.
	URL string
}

type KeepaConfig struct {
	APIKey string
}

type ApifyConfig struct {
	APIToken string
	ActorID  string
}

type PAAPIConfig struct {
	CredentialID     string
	CredentialSecret string
	PartnerTag       string
	Marketplace      string
}

type ScraperConfig struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
	UseBrowser bool
}

type TrackerConfig struct {
	Marketplace   string
	Currency      string
	WindowDays    int
	SyntheticDays int
	// MinLocalPoints is the local history size above which the fallback chain
	// is skipped entirely.
	MinLocalPoints int
}

type JobsConfig struct {
	RefreshSleep  time.Duration
	RetentionDays int
	// Cron expressions for the optional in-process schedule. Empty disables a
	// job; the expected deployment drives cmd/pricewatch and cmd/discover
	// from an OS timer instead.
	RefreshSchedule   string
	DiscoverySchedule string
	DiscoveryMaxPer   int
	DiscoveryMaxTotal int
	// SeedFile is where discovery exports candidates and the seed importer
	// reads them from. Empty disables the export.
	SeedFile string
}

type AlertsConfig struct {
	// WebhookURL receives a POST for every qualifying drop event. Empty keeps
	// the drop watcher log-only.
	WebhookURL string
	// MinDropPercent is the smallest drop worth alerting on. Drops below it
	// are acknowledged and skipped.
	MinDropPercent float64
}

func Load() (*Config, error) {
	// A .env next to the binary is a convenience for local runs; absence is
	// not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8090),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Path:     getEnv("SQLITE_PATH", "ghostprice.db"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Keepa: KeepaConfig{
			APIKey: getEnv("KEEPA_API_KEY", ""),
		},
		Apify: ApifyConfig{
			APIToken: getEnv("APIFY_API_TOKEN", ""),
			ActorID:  getEnv("APIFY_ACTOR_ID", "gvFpWjQm90ZfTDdEf"),
		},
		PAAPI: PAAPIConfig{
			CredentialID:     getEnv("AMAZON_CREDENTIAL_ID", ""),
			CredentialSecret: getEnv("AMAZON_CREDENTIAL_SECRET", ""),
			PartnerTag:       getEnv("AMAZON_PARTNER_TAG", ""),
			Marketplace:      getEnv("AMAZON_MARKETPLACE", "www.amazon.in"),
		},
		Scraper: ScraperConfig{
			MinDelay:   getEnvDuration("SCRAPER_MIN_DELAY", 1*time.Second),
			MaxDelay:   getEnvDuration("SCRAPER_MAX_DELAY", 3*time.Second),
			Timeout:    getEnvDuration("SCRAPER_TIMEOUT", 10*time.Second),
			UseBrowser: getEnvBool("SCRAPER_USE_BROWSER", false),
		},
		Tracker: TrackerConfig{
			Marketplace:    getEnv("DEFAULT_MARKETPLACE", "IN"),
			Currency:       getEnv("DEFAULT_CURRENCY", "INR"),
			WindowDays:     getEnvInt("HISTORY_WINDOW_DAYS", 30),
			SyntheticDays:  getEnvInt("SYNTHETIC_DAYS", 30),
			MinLocalPoints: getEnvInt("MIN_LOCAL_POINTS", 5),
		},
		Jobs: JobsConfig{
			RefreshSleep:      getEnvDuration("REFRESH_SLEEP", 3*time.Second),
			RetentionDays:     getEnvInt("RETENTION_DAYS", 90),
			RefreshSchedule:   getEnv("REFRESH_SCHEDULE", ""),
			DiscoverySchedule: getEnv("DISCOVERY_SCHEDULE", ""),
			DiscoveryMaxPer:   getEnvInt("DISCOVERY_MAX_PER_SOURCE", 20),
			DiscoveryMaxTotal: getEnvInt("DISCOVERY_MAX_TOTAL", 500),
			SeedFile:          getEnv("SEED_FILE", ""),
		},
		Alerts: AlertsConfig{
			WebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
			MinDropPercent: getEnvFloat("ALERT_MIN_DROP_PERCENT", 5),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.URL == "" && c.Database.Path == "" {
		return fmt.Errorf("either DATABASE_URL or SQLITE_PATH is required")
	}

	if c.Scraper.MinDelay < 0 || c.Scraper.MaxDelay < c.Scraper.MinDelay {
		return fmt.Errorf("invalid scraper delay range: %s..%s", c.Scraper.MinDelay, c.Scraper.MaxDelay)
	}

	if c.Tracker.WindowDays < 1 {
		return fmt.Errorf("history window must be at least 1 day, got %d", c.Tracker.WindowDays)
	}

	if c.Tracker.Marketplace == "" {
		return fmt.Errorf("default marketplace is required")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain integers are read as seconds, matching how the deploy
		// environment sets these values.
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
