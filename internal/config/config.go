package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Content provider settings
	NewsAPIKey       string
	NewsLanguage     string
	NewsCategory     string
	BatchSize        int // country codes per fetch call, max 5
	PageSize         int // items requested per fetch call, max 10
	DailyCreditLimit int
	SafetyBuffer     int

	// Chat platform settings
	BaseURL     string
	PlatformKey string
	BotID       string
	BotUsername string

	// Geocoder settings
	GeocodeAPIKey string

	// Posting policy
	PostFrequency     time.Duration // base cadence between cycles
	MaxItemsPerCycle  int
	LocationRequired  bool          // drop items that did not resolve to coordinates
	PublishSpacing    time.Duration // minimum gap between two publishes
	MessageBudget     int           // character budget for the message body

	// Optional extras
	FeedsConfigPath  string // YAML list of RSS feeds, empty disables the side channel
	LocationMapsPath string // YAML overrides for country/source location maps
	GeminiAPIKey     string // enables the AI headline condenser when set

	// App settings
	Debug          bool
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// Cache settings
	CacheTTL      time.Duration
	CacheSweep    time.Duration
	CacheMaxItems int
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		NewsLanguage:     "en",
		NewsCategory:     "top",
		BatchSize:        5,
		PageSize:         10,
		DailyCreditLimit: 200,
		SafetyBuffer:     10,
		PostFrequency:    60 * time.Minute,
		MaxItemsPerCycle: 3,
		PublishSpacing:   3 * time.Second,
		MessageBudget:    120,
		RequestTimeout:   30 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		CacheTTL:         45 * time.Minute,
		CacheSweep:       10 * time.Minute,
		CacheMaxItems:    64,
	}

	// Load from environment
	cfg.NewsAPIKey = os.Getenv("NEWSDATA_API_KEY")
	cfg.BaseURL = getEnvOrDefault("GRINGO_BASE_URL", "https://gringo.ezyy.cloud")
	cfg.PlatformKey = os.Getenv("GRINGO_API_KEY")
	cfg.BotID = os.Getenv("BOT_ID")
	cfg.BotUsername = getEnvOrDefault("BOT_USERNAME", "newsbot")
	cfg.GeocodeAPIKey = os.Getenv("GEOCODE_API_KEY")
	cfg.FeedsConfigPath = os.Getenv("FEEDS_CONFIG_PATH")
	cfg.LocationMapsPath = os.Getenv("LOCATION_MAPS_PATH")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if v := os.Getenv("NEWS_LANGUAGE"); v != "" {
		cfg.NewsLanguage = v
	}
	if v := os.Getenv("NEWS_CATEGORY"); v != "" {
		cfg.NewsCategory = v
	}
	if mins := getEnvIntOrDefault("POST_FREQUENCY_MINUTES", 0); mins > 0 {
		cfg.PostFrequency = time.Duration(mins) * time.Minute
	}
	if v := getEnvIntOrDefault("MAX_ITEMS_PER_CYCLE", 0); v > 0 {
		cfg.MaxItemsPerCycle = v
	}
	if v := getEnvIntOrDefault("DAILY_CREDIT_LIMIT", 0); v > 0 {
		cfg.DailyCreditLimit = v
	}
	if v := getEnvIntOrDefault("MESSAGE_BUDGET", 0); v > 0 {
		cfg.MessageBudget = v
	}
	if os.Getenv("LOCATION_REQUIRED") == "true" {
		cfg.LocationRequired = true
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.NewsAPIKey == "" {
		return fmt.Errorf("NEWSDATA_API_KEY is required")
	}
	if c.PlatformKey == "" {
		return fmt.Errorf("GRINGO_API_KEY is required")
	}
	if c.BotID == "" {
		return fmt.Errorf("BOT_ID is required")
	}
	if c.BatchSize < 1 || c.BatchSize > 5 {
		return fmt.Errorf("batch size must be 1..5, got %d", c.BatchSize)
	}
	if c.PageSize < 1 || c.PageSize > 10 {
		return fmt.Errorf("page size must be 1..10, got %d", c.PageSize)
	}
	if c.DailyCreditLimit <= c.SafetyBuffer {
		return fmt.Errorf("daily credit limit %d must exceed safety buffer %d", c.DailyCreditLimit, c.SafetyBuffer)
	}
	return nil
}
