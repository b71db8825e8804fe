package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradingcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cm, err := NewConfigManager("", false)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "BTC", cfg.Quote)
	assert.Empty(t, cfg.Venues)
	assert.Equal(t, 1.05, cfg.Analysis.CrossStockThreshold)
	assert.Equal(t, 0.001, cfg.Analysis.CrossCurrencyThreshold)
	assert.Equal(t, "BTC", cfg.Analysis.QuoteA)
	assert.Equal(t, "ETH", cfg.Analysis.QuoteB)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 0, cfg.HTTP.MaxRetries)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.HistoricalDataTTL)
	assert.Equal(t, 3, cfg.Health.FailureThreshold)
	assert.Equal(t, 2, cfg.Health.RecoveryThreshold)
}

func TestLoadVenuesFromFile(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
quote: usdt
venues:
  - id: binance
    type: binance
    minCallInterval: 1s
    testnet: true
  - id: paper
    type: mock
    minCallInterval: 250ms
    inactive: true
`)
	cm, err := NewConfigManager(path, false)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "USDT", cfg.Quote)
	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, VenueBinance, cfg.Venues[0].Type)
	assert.Equal(t, time.Second, cfg.Venues[0].MinCallInterval)
	assert.True(t, cfg.Venues[0].Testnet)
	assert.Equal(t, 250*time.Millisecond, cfg.Venues[1].MinCallInterval)

	active := cfg.ActiveVenues()
	require.Len(t, active, 1)
	assert.Equal(t, "binance", active[0].ID)
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown venue type",
			body: "venues:\n  - id: x\n    type: kraken\n    minCallInterval: 1s\n",
		},
		{
			name: "missing interval",
			body: "venues:\n  - id: x\n    type: mock\n",
		},
		{
			name: "duplicate venue ids",
			body: "venues:\n  - id: x\n    type: mock\n    minCallInterval: 1s\n  - id: x\n    type: mock\n    minCallInterval: 1s\n",
		},
		{
			name: "bad log level",
			body: "logLevel: loud\n",
		},
		{
			name: "same cross currency quotes",
			body: "analysis:\n  quoteA: BTC\n  quoteB: BTC\n",
		},
		{
			name: "unknown key",
			body: "colour: blue\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigManager(writeConfig(t, tt.body), false)
			assert.Error(t, err)
		})
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("TRADINGCP_QUOTE", "eth")
	cm, err := NewConfigManager("", false)
	require.NoError(t, err)
	assert.Equal(t, "ETH", cm.GetConfig().Quote)
}

func TestRegisterOnChangeCallback(t *testing.T) {
	cm, err := NewConfigManager("", false)
	require.NoError(t, err)

	var got *Config
	cm.RegisterOnChangeCallback(func(c *Config) { got = c })
	require.Len(t, cm.onChange, 1)

	cm.onChange[0](cm.GetConfig())
	assert.Same(t, cm.GetConfig(), got)
}

func TestWatchReloadsChangedFile(t *testing.T) {
	path := writeConfig(t, "quote: btc\n")
	cm, err := NewConfigManager(path, false)
	require.NoError(t, err)

	var calls atomic.Int32
	cm.RegisterOnChangeCallback(func(*Config) { calls.Add(1) })
	cm.Watch()
	cm.Watch()

	require.NoError(t, os.WriteFile(path, []byte("quote: usdt\n"), 0o600))

	require.Eventually(t, func() bool {
		return cm.GetConfig().Quote == "USDT" && calls.Load() > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchWithoutFile(t *testing.T) {
	cm, err := NewConfigManager("", true)
	require.NoError(t, err)
	cm.Watch()
	assert.Equal(t, "BTC", cm.GetConfig().Quote)
}
