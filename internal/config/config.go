package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSubreddits are the communities watched when SUBREDDITS is unset
var DefaultSubreddits = []string{
	"Rezz", "aves", "ElectricForest", "sewing", "avesfashion", "cyber_fashion", "aveoutfits",
	"RitaFourEssenceSystem", "SoftDramatics", "Shein", "avesNYC", "veld", "BADINKA", "PlusSize",
	"LostLandsMusicFest", "festivals", "avefashion", "avesafe", "EDCOrlando", "findfashion", "BassCanyon",
	"Aerials", "electricdaisycarnival", "bonnaroo", "Tomorrowland", "femalefashion", "Soundhaven",
	"warpedtour", "Shambhala", "Lollapalooza", "EDM", "BeyondWonderland", "kandi",
}

// DefaultBrands maps brand id to its match pattern
var DefaultBrands = map[string]string{
	"badinka":     `[@#]?badinka(?:\.com)?`,
	"iheartraves": `[@#]?iheartraves(?:\.com)?`,
}

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port      string
	Debug     bool
	LogLevel  string
	LogFile   string
	AutoStart bool

	// Reddit
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	Subreddits         []string
	EnabledSources     []string

	// Brand patterns, brand id -> regex
	Brands map[string]string

	// Enrichment
	SentimentProvider string // "huggingface", "openai" or "none"
	HFAPIToken        string
	HFModelURL        string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string

	// Rate budgets, requests per minute
	StreamRPM      int
	ListingRPM     int
	SyndicationRPM int
	EnrichRPM      int

	// Persistence
	StoreBackend     string // "memory", "postgres" or "redis"
	DatabaseURL      string
	DatabaseMaxConns int
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Buffer
	BufferSize      int
	FlushInterval   time.Duration
	MetricsInterval time.Duration

	// Azure Storage archive
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL    string
	NotificationEmail  string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	AlertAfterFailures int
	DigestSchedule     string // cron spec with seconds, empty disables
}

type brandsFile struct {
	Brands map[string]string `yaml:"brands"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		Debug:     getBoolEnv("DEBUG", false),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		AutoStart: getBoolEnv("AUTO_START", true),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "RedditBrandMonitor/1.0"),
		Subreddits:         getSliceEnv("SUBREDDITS", DefaultSubreddits),
		EnabledSources:     getSliceEnv("SOURCES", []string{"streaming", "listing", "syndication"}),

		SentimentProvider: strings.ToLower(getEnv("SENTIMENT_PROVIDER", "huggingface")),
		HFAPIToken:        getEnv("HF_API_TOKEN", ""),
		HFModelURL:        getEnv("HF_MODEL_URL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		StreamRPM:      getIntEnv("STREAM_RPM", 45),
		ListingRPM:     getIntEnv("LISTING_RPM", 100),
		SyndicationRPM: getIntEnv("SYNDICATION_RPM", 30),
		EnrichRPM:      getIntEnv("ENRICH_RPM", 100),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", "memory")),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 4),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),

		BufferSize:      getIntEnv("BUFFER_SIZE", 50),
		FlushInterval:   getDurationEnv("FLUSH_INTERVAL", 30*time.Second),
		MetricsInterval: getDurationEnv("METRICS_INTERVAL", 5*time.Minute),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mentions"),

		TeamsWebhookURL:    getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail:  getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getIntEnv("SMTP_PORT", 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		AlertAfterFailures: getIntEnv("ALERT_AFTER_FAILURES", 5),
		DigestSchedule:     getEnv("DIGEST_SCHEDULE", ""),
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	brands, err := loadBrands()
	if err != nil {
		return nil, err
	}
	cfg.Brands = brands

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadBrands reads BRANDS_FILE (yaml) or BRANDS ("id=pattern;id=pattern"),
// falling back to the defaults
func loadBrands() (map[string]string, error) {
	if path := os.Getenv("BRANDS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read BRANDS_FILE: %w", err)
		}
		return parseBrandsYAML(data)
	}

	if value := os.Getenv("BRANDS"); value != "" {
		return parseBrandsEnv(value)
	}

	brands := make(map[string]string, len(DefaultBrands))
	for k, v := range DefaultBrands {
		brands[k] = v
	}
	return brands, nil
}

func parseBrandsYAML(data []byte) (map[string]string, error) {
	var f brandsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse brands file: %w", err)
	}
	if len(f.Brands) == 0 {
		return nil, fmt.Errorf("brands file defines no brands")
	}
	return f.Brands, nil
}

func parseBrandsEnv(value string) (map[string]string, error) {
	brands := make(map[string]string)
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, pattern, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("BRANDS entry %q must look like id=pattern", entry)
		}
		brands[strings.TrimSpace(id)] = strings.TrimSpace(pattern)
	}
	if len(brands) == 0 {
		return nil, fmt.Errorf("BRANDS defines no brands")
	}
	return brands, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be 'memory', 'postgres' or 'redis'")
	}

	switch c.SentimentProvider {
	case "huggingface", "none":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when SENTIMENT_PROVIDER is openai")
		}
	default:
		return fmt.Errorf("SENTIMENT_PROVIDER must be 'huggingface', 'openai' or 'none'")
	}

	if c.BufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE must be positive")
	}

	if c.FlushInterval < time.Second {
		return fmt.Errorf("FLUSH_INTERVAL must be at least 1s")
	}

	for _, s := range c.EnabledSources {
		switch s {
		case "streaming", "listing", "syndication":
		default:
			return fmt.Errorf("unknown source %q in SOURCES", s)
		}
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// SourceEnabled reports whether the named adapter is listed in SOURCES
func (c *Config) SourceEnabled(name string) bool {
	for _, s := range c.EnabledSources {
		if s == name {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return defaultValue
}
