package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobal() {
	globalConfig = nil
	configFilePath = ""
}

func TestLoadDefaults(t *testing.T) {
	resetGlobal()

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "BTC-PERP", cfg.Symbol)
	assert.Equal(t, 0.0003, cfg.Grid.Spacing)
	assert.Equal(t, 8, cfg.Grid.MaxActiveOrders)
	assert.Equal(t, 10, cfg.Grid.PlaceCooldownSec)
	assert.Equal(t, 1800, cfg.Grid.MaxOrderAgeSec)
	assert.Equal(t, 10, cfg.Timing.SyncIntervalSec)
	assert.Equal(t, 60, cfg.Timing.CleanupIntervalSec)
	assert.Equal(t, 120, cfg.Timing.StaleAfterSec)
	assert.False(t, cfg.DryRun)
}

func TestLoadFromYAML(t *testing.T) {
	resetGlobal()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
symbol: ETH-PERP
dry_run: true
grid:
  spacing: 0.0005
  levels_per_side: 6
  max_active_orders: 12
  order_notional: 50
timing:
  sync_interval_sec: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "ETH-PERP", cfg.Symbol)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 0.0005, cfg.Grid.Spacing)
	assert.Equal(t, 6, cfg.Grid.LevelsPerSide)
	assert.Equal(t, 12, cfg.Grid.MaxActiveOrders)
	assert.Equal(t, 50.0, cfg.Grid.OrderNotional)
	assert.Equal(t, 5, cfg.Timing.SyncIntervalSec)
	// 未配置的字段回落到默认值
	assert.Equal(t, 60, cfg.Timing.CleanupIntervalSec)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	resetGlobal()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("symbol = 'X'"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadSpacing(t *testing.T) {
	resetGlobal()

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	cfg.Grid.Spacing = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Grid.Spacing = 0
	assert.Error(t, cfg.Validate())
}
