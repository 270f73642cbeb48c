package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEDGERLINE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MaxBackups)
	assert.Equal(t, 5, cfg.RecentWindowDays)
	assert.Equal(t, 3, cfg.AnchorWindowDays)
	assert.Equal(t, 10.0, cfg.ReasonableSeconds)
	assert.False(t, cfg.MergeVaults)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.EarliestReconcileDate.IsZero())
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "ledger.db"), cfg.DatabasePath())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGERLINE_DATA_DIR", t.TempDir())
	t.Setenv("MAX_BACKUPS", "5")
	t.Setenv("RECENT_WINDOW_DAYS", "7")
	t.Setenv("REASONABLE_SEARCH_SECONDS", "2.5")
	t.Setenv("EARLIEST_RECONCILE_DATE", "2024-01-15")
	t.Setenv("MERGE_VAULTS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxBackups)
	assert.Equal(t, 7, cfg.RecentWindowDays)
	assert.Equal(t, 2.5, cfg.ReasonableSeconds)
	assert.Equal(t, "2024-01-15", cfg.EarliestReconcileDate.Format("2006-01-02"))
	assert.True(t, cfg.MergeVaults)
	assert.Equal(t, "SoFi Vault", cfg.VaultPattern)
}

func TestLoad_RejectsBadDate(t *testing.T) {
	t.Setenv("LEDGERLINE_DATA_DIR", t.TempDir())
	t.Setenv("EARLIEST_RECONCILE_DATE", "15/01/2024")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{MaxBackups: -1}
	assert.Error(t, cfg.Validate())

	cfg = &Config{MergeVaults: true}
	assert.Error(t, cfg.Validate())

	cfg = &Config{MergeVaults: true, VaultPattern: "Vault", VaultParent: "Savings"}
	assert.NoError(t, cfg.Validate())
}
