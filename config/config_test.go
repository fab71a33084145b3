package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/config"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "obligations.db", cfg.DB.Path)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, "Asia/Kolkata", cfg.Generation.Timezone)
	assert.Equal(t, "system", cfg.Generation.Actor)
	assert.Equal(t, 2, cfg.Generation.CurrencyPrecision)
	assert.Equal(t, 1, cfg.Generation.Concurrency)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 0, cfg.Scheduler.BillingHour)
	assert.Equal(t, 23, cfg.Scheduler.PayrollHour)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "obligations.summary", cfg.Redis.Channel)

	loc, err := cfg.Generation.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "p@ss word")
	t.Setenv("DB_HOST", "db")
	t.Setenv("GENERATION_CONCURRENCY", "0")
	t.Setenv("GENERATION_TIMEZONE", "UTC")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	t.Setenv("SCHEDULER_PAYROLL_HOUR", "20")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "postgres://app:p%40ss%20word@db:5432/obligations?sslmode=disable", cfg.DB.ConnectionString())
	assert.Equal(t, 1, cfg.Generation.Concurrency, "clamped to at least one worker")
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 20, cfg.Scheduler.PayrollHour)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_DatabaseURLWins(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@remote:6543/prod")

	cfg, err := config.Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@remote:6543/prod", cfg.DB.ConnectionString())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("GENERATION_BILL_PREFIX=AMC\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GENERATION_BILL_PREFIX") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AMC", cfg.Generation.BillPrefix)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"negative precision", "GENERATION_CURRENCY_PRECISION", "-1"},
		{"bad timezone", "GENERATION_TIMEZONE", "Mars/Olympus"},
		{"hour out of range", "SCHEDULER_BILLING_HOUR", "24"},
		{"zero interval", "SCHEDULER_INTERVAL", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.Load(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}
