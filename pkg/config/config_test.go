package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bookkeeping")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/bookkeeping", cfg.DB.DatabaseURL)
	assert.Equal(t, int32(25), cfg.DB.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.DB.LockTimeout)
	assert.Equal(t, int64(999999), cfg.Sequences.MaxValue)
	assert.Contains(t, cfg.Sequences.EntityTypes, "issue_vouchers")
	assert.True(t, cfg.App.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_LOCK_TIMEOUT", "250ms")
	t.Setenv("SEQUENCE_ENTITY_TYPES", " payments , cheques,")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.DB.LockTimeout)
	assert.Equal(t, []string{"payments", "cheques"}, cfg.Sequences.EntityTypes)
	assert.False(t, cfg.App.IsDevelopment())
}

func TestLoad_RejectsBadPoolSizing(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "2")
	t.Setenv("DB_MIN_CONNS", "4")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_ReportsEveryField(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("SEQUENCE_MAX_VALUE", "0")
	t.Setenv("DB_LOCK_TIMEOUT", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Log.Level")
	assert.Contains(t, err.Error(), "Config.Sequences.MaxValue")
	assert.Contains(t, err.Error(), "Config.DB.LockTimeout")
}

func TestLoad_SeriesOverrides(t *testing.T) {
	t.Setenv("SEQUENCE_PAYMENTS_PREFIX", "PAY-")
	t.Setenv("SEQUENCE_PAYMENTS_INCREMENT_BY", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SeriesConfig{Prefix: "RET-", MinValue: 100001, MaxValue: 125000}, cfg.Sequences.Series["return_vouchers"])
	assert.Equal(t, SeriesConfig{Prefix: "PAY-", IncrementBy: 10}, cfg.Sequences.Series["payments"])
	assert.NotContains(t, cfg.Sequences.Series, "issue_vouchers")
}

func TestLoad_RejectsInvertedSeriesRange(t *testing.T) {
	t.Setenv("SEQUENCE_RETURN_VOUCHERS_MIN_VALUE", "200000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxValue")
}
