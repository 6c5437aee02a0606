package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "PORT", "LOG_LEVEL", "LOG_PII_MASKING", "GATEWAYS_FILE", "RANDOM_SEED",
	"PAYMENT_LATENCY_MIN", "PAYMENT_LATENCY_MAX", "REFUND_LATENCY_MIN", "REFUND_LATENCY_MAX",
	"MAX_BODY_BYTES", "SHUTDOWN_TIMEOUT", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"RESULT_TTL", "MYSQL_HOST", "MYSQL_PORT", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE",
}

// clearConfigEnv blanks every key; viper treats empty variables as unset
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.True(t, cfg.LogPIIMasking)
	assert.Empty(t, cfg.GatewaysFile)
	assert.Zero(t, cfg.RandomSeed)
	assert.Equal(t, 100*time.Millisecond, cfg.PaymentLatencyMin)
	assert.Equal(t, 500*time.Millisecond, cfg.PaymentLatencyMax)
	assert.Equal(t, 100*time.Millisecond, cfg.RefundLatencyMin)
	assert.Equal(t, 300*time.Millisecond, cfg.RefundLatencyMax)
	assert.EqualValues(t, 10240, cfg.MaxBodyBytes)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Redis.ResultTTL)
	assert.False(t, cfg.MySQL.Enabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PII_MASKING", "false")
	t.Setenv("RANDOM_SEED", "42")
	t.Setenv("PAYMENT_LATENCY_MIN", "0s")
	t.Setenv("PAYMENT_LATENCY_MAX", "20ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MYSQL_HOST", "db")
	t.Setenv("MYSQL_USER", "sim")
	t.Setenv("MYSQL_PASSWORD", "secret")
	t.Setenv("MYSQL_DATABASE", "paysim")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.False(t, cfg.LogPIIMasking)
	assert.EqualValues(t, 42, cfg.RandomSeed)
	assert.Zero(t, cfg.PaymentLatencyMin)
	assert.Equal(t, 20*time.Millisecond, cfg.PaymentLatencyMax)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.MySQL.Enabled())
	dsn := cfg.MySQL.DSN()
	assert.True(t, strings.HasPrefix(dsn, "sim:secret@tcp(db:3306)/paysim?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
}

func TestLoadConfigFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "paysim.yaml")
	content := "port: \"9000\"\nrefund_latency_max: 150ms\nlog_level: WARN\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "ERROR")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 150*time.Millisecond, cfg.RefundLatencyMax)
	assert.Equal(t, LogLevelError, cfg.LogLevel, "environment wins over the file")
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PAYMENT_LATENCY_MIN", "2s")
	t.Setenv("PAYMENT_LATENCY_MAX", "1s")

	_, err := LoadConfig()
	assert.Error(t, err)

	clearConfigEnv(t)
	t.Setenv("MAX_BODY_BYTES", "0")
	_, err = LoadConfig()
	assert.Error(t, err)

	clearConfigEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	assert.Error(t, err)
}
