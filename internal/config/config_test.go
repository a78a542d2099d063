package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultAutoBlock, cfg.AutoBlockThreshold)
	assert.Equal(t, DefaultAutoAllow, cfg.AutoAllowThreshold)
	assert.Equal(t, DefaultMaxTransaction, cfg.MaxTransactionValue)
	assert.Equal(t, DefaultAnomalyThreshold, cfg.AnomalyThreshold)
	assert.Equal(t, int64(DefaultCooldownSeconds), cfg.CooldownSeconds)
	assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "MAX_TRANSACTION_VALUE", "25.5")
	setEnv(t, "ANOMALY_THRESHOLD", "5")
	setEnv(t, "ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 25.5, cfg.MaxTransactionValue)
	assert.Equal(t, 5, cfg.AnomalyThreshold)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidThresholdOrder(t *testing.T) {
	setEnv(t, "AUTO_ALLOW_THRESHOLD", "90")
	setEnv(t, "AUTO_BLOCK_THRESHOLD", "80")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AUTO_ALLOW_THRESHOLD")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			AutoBlockThreshold:  80,
			AutoAllowThreshold:  20,
			MaxTransactionValue: 10,
			AnomalyThreshold:    3,
			TimeWindowSeconds:   3600,
			CooldownSeconds:     3600,
			LLMTimeoutSecs:      5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: ""},
		{
			name:    "block threshold out of range",
			mutate:  func(c *Config) { c.AutoBlockThreshold = 150 },
			wantErr: "AUTO_BLOCK_THRESHOLD",
		},
		{
			name:    "allow above block",
			mutate:  func(c *Config) { c.AutoAllowThreshold = 85 },
			wantErr: "must be below",
		},
		{
			name:    "non-positive max value",
			mutate:  func(c *Config) { c.MaxTransactionValue = 0 },
			wantErr: "MAX_TRANSACTION_VALUE",
		},
		{
			name:    "anomaly threshold overflows u8",
			mutate:  func(c *Config) { c.AnomalyThreshold = 300 },
			wantErr: "ANOMALY_THRESHOLD",
		},
		{
			name:    "zero cooldown",
			mutate:  func(c *Config) { c.CooldownSeconds = 0 },
			wantErr: "COOLDOWN_SECONDS",
		},
		{
			name:    "zero llm timeout",
			mutate:  func(c *Config) { c.LLMTimeoutSecs = 0 },
			wantErr: "LLM_TIMEOUT_SECONDS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.True(t, cfg.IsProduction())
}
