package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ORACLE_URL", "http://oracle.local:5000/")
	setEnv(t, "ORACLE_TIMEOUT", "")
	setEnv(t, "ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, "http://oracle.local:5000", cfg.OracleURL)
	assert.Equal(t, DefaultOracleTimeout, cfg.OracleTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_OracleTimeout(t *testing.T) {
	setEnv(t, "ORACLE_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.OracleTimeout)
}

func TestLoad_BcryptCost(t *testing.T) {
	setEnv(t, "BCRYPT_COST", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)

	setEnv(t, "BCRYPT_COST", "12")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BcryptCost)
}

func TestLoad_CORSOrigins(t *testing.T) {
	setEnv(t, "CORS_ORIGINS", "https://a.example, https://b.example,,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:          "8080",
			Env:           "development",
			LogLevel:      "info",
			OracleTimeout: time.Second,
			RateLimitRPM:  60,
			BcryptCost:    10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = "http" }, wantErr: "PORT must be numeric"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "LOG_LEVEL"},
		{name: "zero oracle timeout", mutate: func(c *Config) { c.OracleTimeout = 0 }, wantErr: "ORACLE_TIMEOUT"},
		{name: "oracle url scheme", mutate: func(c *Config) { c.OracleURL = "oracle:5000" }, wantErr: "ORACLE_URL"},
		{name: "bcrypt cost too low", mutate: func(c *Config) { c.BcryptCost = 1 }, wantErr: "BCRYPT_COST"},
		{name: "admin pin without account", mutate: func(c *Config) { c.AdminPIN = "1234" }, wantErr: "set together"},
		{name: "production without database", mutate: func(c *Config) { c.Env = "production" }, wantErr: "DATABASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
