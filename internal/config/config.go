package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pauljones0/production-scout/internal/models"
)

// StorageBackend selects where the catalog and source statuses are persisted.
type StorageBackend string

const (
	StorageFile      StorageBackend = "file"
	StorageFirestore StorageBackend = "firestore"
	StorageRedis     StorageBackend = "redis"
)

type Config struct {
	Port string

	StorageBackend           StorageBackend
	DataDir                  string
	ProjectID                string
	FirestoreCredentialsFile string
	RedisURL                 string

	SourcesConfigPath string
	ScrapeTimeout     time.Duration
	ScrapeSchedule    string
	ScrapeOnStart     bool

	DiscordWebhookURL string
	NotifyMinTier     models.BudgetTier
	NotifyMinVfx      models.VfxNeedsLevel

	GeminiAPIKey string
	GeminiModel  string

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	backend := StorageBackend(strings.ToLower(getEnv("STORAGE_BACKEND", string(StorageFile))))
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	redisURL := os.Getenv("REDIS_URL")
	switch backend {
	case StorageFile:
	case StorageFirestore:
		if projectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	case StorageRedis:
		if redisURL == "" {
			return nil, fmt.Errorf("REDIS_URL environment variable is required for the redis backend")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want file, firestore or redis", backend)
	}

	scrapeTimeoutStr := getEnv("SCRAPE_TIMEOUT", "2m")
	scrapeTimeout, err := time.ParseDuration(scrapeTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SCRAPE_TIMEOUT %q: %w", scrapeTimeoutStr, err)
	}
	if scrapeTimeout <= 0 {
		return nil, fmt.Errorf("invalid SCRAPE_TIMEOUT %q: must be positive", scrapeTimeoutStr)
	}

	// An explicitly empty SCRAPE_SCHEDULE disables the scheduler.
	schedule, ok := os.LookupEnv("SCRAPE_SCHEDULE")
	if !ok {
		schedule = "@every 6h"
	}

	scrapeOnStart := false
	if v := os.Getenv("SCRAPE_ON_START"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SCRAPE_ON_START %q: %w", v, err)
		}
		scrapeOnStart = parsed
	}

	discordWebhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if discordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, Discord notifications will be skipped")
	}

	minTier := models.BudgetTier(getEnv("NOTIFY_MIN_TIER", string(models.Tier1)))
	if v, set := os.LookupEnv("NOTIFY_MIN_TIER"); set && v == "" {
		minTier = ""
	} else if minTier.Rank() == 0 {
		return nil, fmt.Errorf("invalid NOTIFY_MIN_TIER %q", minTier)
	}

	minVfx := models.VfxNeedsLevel(getEnv("NOTIFY_MIN_VFX", string(models.VfxHigh)))
	if v, set := os.LookupEnv("NOTIFY_MIN_VFX"); set && v == "" {
		minVfx = ""
	} else if minVfx.Rank() == 0 {
		return nil, fmt.Errorf("invalid NOTIFY_MIN_VFX %q", minVfx)
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		slog.Info("GEMINI_API_KEY not set, AI summaries disabled")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	logFormat := strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if logFormat != "json" && logFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: want json or text", logFormat)
	}

	return &Config{
		Port:                     port,
		StorageBackend:           backend,
		DataDir:                  getEnv("DATA_DIR", "./data"),
		ProjectID:                projectID,
		FirestoreCredentialsFile: os.Getenv("FIRESTORE_CREDENTIALS_FILE"),
		RedisURL:                 redisURL,
		SourcesConfigPath:        os.Getenv("SOURCES_CONFIG_PATH"),
		ScrapeTimeout:            scrapeTimeout,
		ScrapeSchedule:           strings.TrimSpace(schedule),
		ScrapeOnStart:            scrapeOnStart,
		DiscordWebhookURL:        discordWebhookURL,
		NotifyMinTier:            minTier,
		NotifyMinVfx:             minVfx,
		GeminiAPIKey:             geminiAPIKey,
		GeminiModel:              getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LogLevel:                 level,
		LogFormat:                logFormat,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
