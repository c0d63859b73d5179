package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 2.0, cfg.Risk.MaxPositionSizePct)
	assert.Equal(t, 1.5, cfg.Risk.RiskRewardRatio)
	assert.Equal(t, 20, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, 5, cfg.Risk.MaxConcurrentPositions)
	assert.Equal(t, 5*time.Second, cfg.StrategyEngine.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.PerformanceInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitoring.RiskInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.AlertsInterval)
	assert.Equal(t, 300*time.Second, cfg.Monitoring.CleanupInterval)
	assert.Equal(t, 168*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultSymbols, cfg.StrategyEngine.Symbols)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PD_RISK_MAX_TRADES_PER_DAY", "7")
	t.Setenv("PD_DB_DRIVER", "memory")

	cfg, err := Load("", true)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, "memory", cfg.DB.Driver)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  http_addr: ":9090"
strategy_engine:
  tick_interval: 1s
  symbols: [EURUSD, GOLD]
strategy_defaults:
  TREND_FOLLOWING:
    ma_short: 10
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, time.Second, cfg.StrategyEngine.TickInterval)
	assert.Equal(t, []string{"EURUSD", "GOLD"}, cfg.StrategyEngine.Symbols)
	assert.Contains(t, cfg.StrategyDefaults, "trend_following")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
	assert.Error(t, err)
}
