package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Provider  ProviderConfig  `yaml:"provider"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Timezone  string          `yaml:"timezone"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type" validate:"oneof=mysql postgres"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host          string `yaml:"host"`
	APIKey        string `yaml:"api_key"`
	CategoryIndex string `yaml:"category_index"`
}

// ProviderConfig selects and configures the pricing provider
type ProviderConfig struct {
	Kind              string     `yaml:"kind" validate:"oneof=http page"`
	Name              string     `yaml:"name" validate:"required"`
	BaseURL           string     `yaml:"base_url"`
	APIKey            string     `yaml:"api_key"`
	TimeoutSeconds    int        `yaml:"timeout_seconds" validate:"min=1"`
	RetryDelaySeconds int        `yaml:"retry_delay_seconds" validate:"min=0"`
	UserAgent         string     `yaml:"user_agent"`
	FailureThreshold  int        `yaml:"failure_threshold" validate:"min=1"`
	CooldownSeconds   int        `yaml:"cooldown_seconds" validate:"min=0"`
	Page              PageConfig `yaml:"page"`
}

// PageConfig describes how to scrape prices from an HTML page
type PageConfig struct {
	PriceURL       string `yaml:"price_url"`
	IdentifierURL  string `yaml:"identifier_url"`
	Headless       bool   `yaml:"headless"`
	BrowserPath    string `yaml:"browser_path"`
	WaitSelector   string `yaml:"wait_selector"`
	Offer          string `yaml:"offer_selector"`
	OfferName      string `yaml:"offer_name_selector"`
	OfferPrice     string `yaml:"offer_price_selector"`
	TopPrice       string `yaml:"top_price_selector"`
	Currency       string `yaml:"currency_selector"`
	Identifier     string `yaml:"identifier_selector"`
	IdentifierAttr string `yaml:"identifier_attr"`
}

// ScannerConfig contains sweep settings
type ScannerConfig struct {
	Concurrency        int    `yaml:"concurrency" validate:"min=1"`
	PropertyTimeout    string `yaml:"property_timeout"`
	SnapshotResolution string `yaml:"snapshot_resolution"`
	StayNights         int    `yaml:"stay_nights" validate:"min=1"`
	CheckInOffsetDays  int    `yaml:"check_in_offset_days" validate:"min=0"`
	Adults             int    `yaml:"adults" validate:"min=1"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// PricingConfig contains price parsing settings
type PricingConfig struct {
	DefaultCurrency       string   `yaml:"default_currency" validate:"len=3"`
	DotGroupingCurrencies []string `yaml:"dot_grouping_currencies"`
}

// RoomsConfig contains room category selection settings
type RoomsConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	CandidateLimit      int     `yaml:"candidate_limit" validate:"min=1"`
	// Synonyms adds spellings, or whole categories, to the built-in table
	Synonyms map[string][]string `yaml:"synonyms"`
}

// ReconcileConfig contains duplicate merge settings
type ReconcileConfig struct {
	MaxDuplicates int `yaml:"max_duplicates" validate:"min=1"`
}

// SchedulerConfig contains cron settings. Schedules accept "HH:MM" or a cron expression.
type SchedulerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	SweepSchedule     string `yaml:"sweep_schedule"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// ServerConfig contains admin HTTP settings
type ServerConfig struct {
	Port         string   `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "mysql",
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "monitor",
				Database: "hotel_rates",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "monitor",
				Database: "hotel_rates",
				SSLMode:  "disable",
			},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				CategoryIndex: "room_categories",
			},
		},
		Provider: ProviderConfig{
			Kind:              "http",
			Name:              "rates-api",
			TimeoutSeconds:    20,
			RetryDelaySeconds: 2,
			UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
			FailureThreshold:  5,
			CooldownSeconds:   300,
		},
		Scanner: ScannerConfig{
			Concurrency:        4,
			PropertyTimeout:    "45s",
			SnapshotResolution: "24h",
			StayNights:         1,
			CheckInOffsetDays:  1,
			Adults:             2,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			RequestsPerHour:   1800,
			RequestsPerDay:    20000,
		},
		Pricing: PricingConfig{
			DefaultCurrency:       "USD",
			DotGroupingCurrencies: []string{"TRY", "EUR", "IDR", "VND", "DKK", "NOK", "BRL", "ARS", "CLP", "COP"},
		},
		Rooms: RoomsConfig{
			SimilarityThreshold: 0.6,
			CandidateLimit:      5,
		},
		Reconcile: ReconcileConfig{
			MaxDuplicates: 1000,
		},
		Scheduler: SchedulerConfig{
			Enabled:           false,
			SweepSchedule:     "02:00",
			ReconcileSchedule: "04:30",
		},
		Server: ServerConfig{
			Port:         "8085",
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Timezone: "UTC",
	}
}

// LoadConfig loads configuration from a YAML file, then applies .env and environment overrides
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	// .env is optional
	_ = godotenv.Load()

	if _, err := os.Stat(filepath); err == nil {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	setString("DB_TYPE", &c.Database.Type)
	db := &c.Database.MySQL
	if c.Database.Type == "postgres" {
		setString("DB_HOST", &c.Database.Postgres.Host)
		setString("DB_USER", &c.Database.Postgres.User)
		setString("DB_PASSWORD", &c.Database.Postgres.Password)
		setString("DB_NAME", &c.Database.Postgres.Database)
		setString("DB_SSLMODE", &c.Database.Postgres.SSLMode)
		if err := setInt("DB_PORT", &c.Database.Postgres.Port); err != nil {
			return err
		}
	} else {
		setString("DB_HOST", &db.Host)
		setString("DB_USER", &db.User)
		setString("DB_PASSWORD", &db.Password)
		setString("DB_NAME", &db.Database)
		if err := setInt("DB_PORT", &db.Port); err != nil {
			return err
		}
	}

	setString("MEILISEARCH_HOST", &c.Search.Meilisearch.Host)
	setString("MEILISEARCH_KEY", &c.Search.Meilisearch.APIKey)
	setString("PROVIDER_BASE_URL", &c.Provider.BaseURL)
	setString("PROVIDER_API_KEY", &c.Provider.APIKey)
	setString("PORT", &c.Server.Port)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("TZ_NAME", &c.Timezone)
	return setInt("SCAN_CONCURRENCY", &c.Scanner.Concurrency)
}

// Validate checks struct constraints and duration strings
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.ParseDuration(c.Scanner.PropertyTimeout); err != nil {
		return fmt.Errorf("invalid scanner.property_timeout: %w", err)
	}
	if d, err := time.ParseDuration(c.Scanner.SnapshotResolution); err != nil || d <= 0 {
		return fmt.Errorf("invalid scanner.snapshot_resolution %q", c.Scanner.SnapshotResolution)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	return nil
}

// GetPropertyTimeout returns the per-property timeout as a duration
func (c *ScannerConfig) GetPropertyTimeout() time.Duration {
	d, err := time.ParseDuration(c.PropertyTimeout)
	if err != nil || d <= 0 {
		return 45 * time.Second
	}
	return d
}

// GetSnapshotResolution returns the snapshot dedupe window
func (c *ScannerConfig) GetSnapshotResolution() time.Duration {
	d, err := time.ParseDuration(c.SnapshotResolution)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// GetTimeout returns the provider request timeout as a duration
func (c *ProviderConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GetRetryDelay returns the delay before the single in-call retry
func (c *ProviderConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// GetCooldown returns how long the circuit breaker stays open
func (c *ProviderConfig) GetCooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Location resolves the configured timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
