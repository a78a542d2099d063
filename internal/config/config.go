// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Analysis thresholds
	AutoBlockThreshold int // risk score at or above which we block
	AutoAllowThreshold int // risk score at or below which we allow

	// Default agent limits (native SOL units)
	MaxTransactionValue float64
	DailySpendLimit     float64
	ApprovalThreshold   float64

	// Circuit breaker tunables
	AnomalyThreshold  int
	TimeWindowSeconds int64
	CooldownSeconds   int64

	// LLM analyzer
	LLMAPIURL      string // OpenAI-compatible chat completions endpoint
	LLMAPIKey      string
	LLMModel       string
	LLMTimeoutSecs int64
	LLMMaxTokens   int

	// Security
	APIKey         string // static key for SDK clients (optional; open when unset)
	RateLimitRPM   int
	AllowedOrigins []string

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultAutoBlock          = 80
	DefaultAutoAllow          = 20
	DefaultMaxTransaction     = 10.0  // SOL
	DefaultDailySpendLimit    = 100.0 // SOL
	DefaultApprovalThreshold  = 5.0   // SOL
	DefaultAnomalyThreshold   = 3
	DefaultTimeWindowSeconds  = 3600
	DefaultCooldownSeconds    = 3600
	DefaultLLMModel           = "llama3.1"
	DefaultLLMTimeoutSeconds  = 5
	DefaultLLMMaxTokens       = 512
	DefaultRateLimitPerMinute = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AutoBlockThreshold:  int(getEnvInt64("AUTO_BLOCK_THRESHOLD", DefaultAutoBlock)),
		AutoAllowThreshold:  int(getEnvInt64("AUTO_ALLOW_THRESHOLD", DefaultAutoAllow)),
		MaxTransactionValue: getEnvFloat("MAX_TRANSACTION_VALUE", DefaultMaxTransaction),
		DailySpendLimit:     getEnvFloat("DAILY_SPEND_LIMIT", DefaultDailySpendLimit),
		ApprovalThreshold:   getEnvFloat("APPROVAL_THRESHOLD", DefaultApprovalThreshold),
		AnomalyThreshold:    int(getEnvInt64("ANOMALY_THRESHOLD", DefaultAnomalyThreshold)),
		TimeWindowSeconds:   getEnvInt64("TIME_WINDOW_SECONDS", DefaultTimeWindowSeconds),
		CooldownSeconds:     getEnvInt64("COOLDOWN_SECONDS", DefaultCooldownSeconds),
		LLMAPIURL:           os.Getenv("LLM_API_URL"), // Optional; analyzer degrades fail-closed without it
		LLMAPIKey:           os.Getenv("LLM_API_KEY"),
		LLMModel:            getEnv("LLM_MODEL", DefaultLLMModel),
		LLMTimeoutSecs:      getEnvInt64("LLM_TIMEOUT_SECONDS", DefaultLLMTimeoutSeconds),
		LLMMaxTokens:        int(getEnvInt64("LLM_MAX_TOKENS", DefaultLLMMaxTokens)),
		APIKey:              os.Getenv("API_KEY"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitPerMinute)),
		AllowedOrigins:      splitCSV(os.Getenv("ALLOWED_ORIGINS")),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.AutoBlockThreshold < 0 || c.AutoBlockThreshold > 100 {
		return fmt.Errorf("AUTO_BLOCK_THRESHOLD must be in [0,100], got %d", c.AutoBlockThreshold)
	}
	if c.AutoAllowThreshold < 0 || c.AutoAllowThreshold > 100 {
		return fmt.Errorf("AUTO_ALLOW_THRESHOLD must be in [0,100], got %d", c.AutoAllowThreshold)
	}
	if c.AutoAllowThreshold >= c.AutoBlockThreshold {
		return fmt.Errorf("AUTO_ALLOW_THRESHOLD (%d) must be below AUTO_BLOCK_THRESHOLD (%d)",
			c.AutoAllowThreshold, c.AutoBlockThreshold)
	}
	if c.MaxTransactionValue <= 0 {
		return fmt.Errorf("MAX_TRANSACTION_VALUE must be positive")
	}
	if c.AnomalyThreshold < 1 || c.AnomalyThreshold > 255 {
		return fmt.Errorf("ANOMALY_THRESHOLD must be in [1,255], got %d", c.AnomalyThreshold)
	}
	if c.TimeWindowSeconds <= 0 {
		return fmt.Errorf("TIME_WINDOW_SECONDS must be positive")
	}
	if c.CooldownSeconds <= 0 {
		return fmt.Errorf("COOLDOWN_SECONDS must be positive")
	}
	if c.LLMTimeoutSecs <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
