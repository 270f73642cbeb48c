// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// Config holds application configuration.
type Config struct {
	DataDir    string // Base directory for the ledger database and reports (always absolute)
	ImportDir  string // Where aggregator exports are picked up from
	BackupDir  string // Where database backups go
	MaxBackups int    // Backup copies kept before rotation

	// Reconciliation tuning.
	RecentWindowDays  int     // Trailing window for the narrow search tiers
	AnchorWindowDays  int     // +/- window around the last reconciled date
	ReasonableSeconds float64 // Estimated search cost accepted without prompting

	// EarliestReconcileDate, when set, drops imported transactions older than
	// it and scopes the stale-transaction review. Zero means no cutoff.
	EarliestReconcileDate time.Time

	// Vault merging (vault sub-accounts folded into their parent account).
	MergeVaults  bool
	VaultPattern string
	VaultParent  string

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists.
	dataDir := getEnv("LEDGERLINE_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ledgerline")
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		ImportDir:         getEnv("LEDGERLINE_IMPORT_DIR", absDataDir),
		BackupDir:         getEnv("LEDGERLINE_BACKUP_DIR", filepath.Join(absDataDir, "backups")),
		MaxBackups:        getEnvAsInt("MAX_BACKUPS", 20),
		RecentWindowDays:  getEnvAsInt("RECENT_WINDOW_DAYS", 5),
		AnchorWindowDays:  getEnvAsInt("ANCHOR_WINDOW_DAYS", 3),
		ReasonableSeconds: getEnvAsFloat("REASONABLE_SEARCH_SECONDS", 10),
		MergeVaults:       getEnvAsBool("MERGE_VAULTS", false),
		VaultPattern:      getEnv("VAULT_PATTERN", "SoFi Vault"),
		VaultParent:       getEnv("VAULT_PARENT", "SoFi Savings"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
	}

	if raw := getEnv("EARLIEST_RECONCILE_DATE", ""); raw != "" {
		date, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid EARLIEST_RECONCILE_DATE %q: %w", raw, err)
		}
		cfg.EarliestReconcileDate = date
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the ledger database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// ReportDir returns where unresolved-account exports are written.
func (c *Config) ReportDir() string {
	return c.DataDir
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.MaxBackups < 0 {
		return fmt.Errorf("MAX_BACKUPS must not be negative")
	}
	if c.RecentWindowDays < 0 || c.AnchorWindowDays < 0 {
		return fmt.Errorf("window sizes must not be negative")
	}
	if c.MergeVaults && (c.VaultPattern == "" || c.VaultParent == "") {
		return fmt.Errorf("MERGE_VAULTS requires VAULT_PATTERN and VAULT_PARENT")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
