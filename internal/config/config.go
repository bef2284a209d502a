// Package config handles application configuration from environment variables
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Upstream risk API
	EllipticAPIKey    string
	EllipticAPISecret string // base64-encoded HMAC secret
	EllipticURL       string

	// Admin
	AdminHandle string // bootstrap admin identity, always present and never removable
	AdminSecret string // shared secret for the admin API group

	// Usage limits (defaults applied to new identities)
	DefaultDailyLimit   int
	DefaultMonthlyLimit int

	// Compliance thresholds
	RiskScoreThreshold            float64
	MaxHopDistance                int
	GamblingHopLimit              int
	GamblingContributionThreshold float64
	HighRiskCategories            map[string]struct{}
	HighRiskCountries             map[string]struct{}

	// Category reference data
	CategoryCSVPath string

	// Upstream call behavior
	MaxRetries          int
	RetryBaseDelay      time.Duration
	RequestTimeout      time.Duration
	BreakerThreshold    int
	BreakerOpenDuration time.Duration

	// Transport-level flood protection
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultEllipticURL  = "https://aml-api.elliptic.co/v2/wallet/synchronous"
	DefaultDaily        = 10
	DefaultMonthly      = 300
	DefaultScoreCutoff  = 5.0
	DefaultMaxHops      = 3
	DefaultGamblingHops = 2
	DefaultGamblingPct  = 3.0
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 2 * time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultBreakerTrips = 5
	DefaultBreakerOpen  = 30 * time.Second
	DefaultRateLimit    = 60
	DefaultCategoryCSV  = "Category_ID.csv"
)

// defaultHighRiskCategories are the category names that trigger rejection
// when matched within the hop limit.
var defaultHighRiskCategories = []string{
	"Dark Forum", "Phishing", "Dark Market - Centralised", "Dark Market - Decentralised",
	"Dark Vendor Shop", "Ponzi Scheme", "Ransomware", "Dark Service", "Activist Fundraising",
	"Child Sexual Abuse Material Vendor", "Terrorist Organisation", "OFAC Sanctioned Entity",
	"Criminal Organisation", "Extortion", "Known Criminal", "FinCEN Primary Money Laundering Concern",
	"Shielded", "Mixer", "High Transaction Fee", "Research Chemicals", "Charity", "Scam",
	"Credit Card Data Vendor", "Malware", "Political Campaign", "Reported Loss",
}

// defaultHighRiskCountries are ISO 3166-2 codes. The UA-* entries are the
// occupied-region subdivisions (Crimea, Donetsk, Luhansk, Zaporizhzhia,
// Kherson).
var defaultHighRiskCountries = []string{
	"IR", "CU", "VE", "KP", "SY", "MM",
	"UA-43", "UA-14", "UA-09", "UA-23", "UA-65",
	"RU",
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                          getEnv("PORT", DefaultPort),
		Env:                           getEnv("ENV", DefaultEnv),
		LogLevel:                      getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:                   os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		EllipticAPIKey:                os.Getenv("ELLIPTIC_API_KEY"),
		EllipticAPISecret:             os.Getenv("ELLIPTIC_API_SECRET"),
		EllipticURL:                   getEnv("ELLIPTIC_URL", DefaultEllipticURL),
		AdminHandle:                   getEnv("ADMIN_HANDLE", "admin"),
		AdminSecret:                   os.Getenv("ADMIN_SECRET"),
		DefaultDailyLimit:             getEnvInt("DEFAULT_DAILY_LIMIT", DefaultDaily),
		DefaultMonthlyLimit:           getEnvInt("DEFAULT_MONTHLY_LIMIT", DefaultMonthly),
		RiskScoreThreshold:            getEnvFloat("RISK_SCORE_THRESHOLD", DefaultScoreCutoff),
		MaxHopDistance:                getEnvInt("MAX_HOP_DISTANCE", DefaultMaxHops),
		GamblingHopLimit:              getEnvInt("GAMBLING_HOP_LIMIT", DefaultGamblingHops),
		GamblingContributionThreshold: getEnvFloat("GAMBLING_CONTRIBUTION_THRESHOLD", DefaultGamblingPct),
		HighRiskCategories:            toSet(splitEnv("HIGH_RISK_CATEGORIES", defaultHighRiskCategories)),
		HighRiskCountries:             toSet(splitEnv("HIGH_RISK_COUNTRIES", defaultHighRiskCountries)),
		CategoryCSVPath:               getEnv("CATEGORY_CSV_PATH", DefaultCategoryCSV),
		MaxRetries:                    getEnvInt("MAX_RETRIES", DefaultMaxRetries),
		RetryBaseDelay:                getEnvDuration("RETRY_DELAY", DefaultRetryDelay),
		RequestTimeout:                getEnvDuration("REQUEST_TIMEOUT", DefaultTimeout),
		BreakerThreshold:              getEnvInt("BREAKER_THRESHOLD", DefaultBreakerTrips),
		BreakerOpenDuration:           getEnvDuration("BREAKER_OPEN_DURATION", DefaultBreakerOpen),
		RateLimitRPM:                  getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint:                  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.EllipticAPIKey == "" {
		return fmt.Errorf("ELLIPTIC_API_KEY is required")
	}
	if c.EllipticAPISecret == "" {
		return fmt.Errorf("ELLIPTIC_API_SECRET is required")
	}
	if _, err := base64.StdEncoding.DecodeString(c.EllipticAPISecret); err != nil {
		return fmt.Errorf("ELLIPTIC_API_SECRET must be base64-encoded: %w", err)
	}
	if c.AdminHandle == "" {
		return fmt.Errorf("ADMIN_HANDLE must not be empty")
	}
	if c.GamblingHopLimit > c.MaxHopDistance {
		return fmt.Errorf("GAMBLING_HOP_LIMIT (%d) must not exceed MAX_HOP_DISTANCE (%d)",
			c.GamblingHopLimit, c.MaxHopDistance)
	}
	if c.DefaultDailyLimit <= 0 || c.DefaultMonthlyLimit <= 0 {
		return fmt.Errorf("default usage limits must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts either a Go duration string ("30s") or a bare
// number of seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// splitEnv reads a comma-separated list, falling back to defaults when unset.
func splitEnv(key string, defaults []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaults
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
