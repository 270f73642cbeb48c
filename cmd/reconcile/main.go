// Package main is the entry point for the ledgerline reconciliation tool.
// One run backs up the ledger, imports the latest transaction and balance
// exports, seeds checkpoints for accounts never reconciled before, and walks
// every account through discrepancy resolution.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/database"
	"github.com/ledgerline/ledgerline/internal/modules/importing"
	"github.com/ledgerline/ledgerline/internal/modules/ledger"
	"github.com/ledgerline/ledgerline/internal/modules/matching"
	"github.com/ledgerline/ledgerline/internal/modules/reconciliation"
	"github.com/ledgerline/ledgerline/internal/modules/reporting"
	"github.com/ledgerline/ledgerline/internal/reliability"
	"github.com/ledgerline/ledgerline/internal/ui"
	"github.com/ledgerline/ledgerline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still logged
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Reconciliation run failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	surface := ui.NewConsole()

	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate ledger database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ledger database failed health check: %w", err)
	}

	// Back up before anything mutates.
	backups := reliability.NewBackupService(db, cfg.BackupDir, cfg.MaxBackups, log)
	if _, err := backups.Backup(); err != nil {
		return fmt.Errorf("failed to back up ledger database: %w", err)
	}

	transactions := ledger.NewTransactionRepository(db.Conn(), log)
	checkpoints := ledger.NewCheckpointRepository(db.Conn(), log)

	vaults := importing.VaultMerge{
		Enabled: cfg.MergeVaults,
		Pattern: cfg.VaultPattern,
		Parent:  cfg.VaultParent,
	}

	// Import the latest transaction export.
	transactionPath, err := importing.LatestExport(cfg.ImportDir, "transactions*.csv")
	if err != nil {
		return fmt.Errorf("no transaction export to import: %w", err)
	}
	surface.Show(fmt.Sprintf("Importing transactions from %s", transactionPath))

	importer := importing.NewImporter(transactions, surface, log)
	summary, err := importer.ImportFile(transactionPath, importing.Options{
		Cutoff: cfg.EarliestReconcileDate,
		Vaults: vaults,
	})
	if err != nil {
		return fmt.Errorf("transaction import failed: %w", err)
	}
	surface.Show(fmt.Sprintf(" - %d new, %d matched, %d unmatched (%d deleted).",
		summary.New, summary.Matched, summary.Unmatched, summary.Deleted))

	// Load the latest balance export.
	balancePath, err := importing.LatestExport(cfg.ImportDir, "*balances*.csv")
	if err != nil {
		return fmt.Errorf("no balance export to import: %w", err)
	}
	surface.Show(fmt.Sprintf("Loading balances from %s", balancePath))

	balances, err := importing.LoadBalancesFile(balancePath, vaults)
	if err != nil {
		return fmt.Errorf("balance import failed: %w", err)
	}

	// Seed checkpoints for accounts never reconciled before.
	seeder := importing.NewSeeder(transactions, checkpoints, balances, surface, log)
	if err := seeder.SeedMissing(); err != nil {
		return fmt.Errorf("checkpoint seeding failed: %w", err)
	}

	// Reconcile every account.
	estimator := matching.NewEstimator(matching.NewCalibration(log))
	matcher := matching.NewMatcher(estimator, log)
	defer matcher.Close()

	applier := reconciliation.NewApplier(db.Conn(), transactions, checkpoints, surface, log)
	reporter := reporting.NewReporter(cfg.ReportDir(), surface, log)
	resolver := reconciliation.NewSurfaceResolver(surface)

	orchestrator := reconciliation.NewOrchestrator(
		transactions, checkpoints, matcher, estimator, applier,
		balances, resolver, reporter, surface,
		reconciliation.Config{
			RecentWindowDays:  cfg.RecentWindowDays,
			AnchorWindowDays:  cfg.AnchorWindowDays,
			ReasonableSeconds: cfg.ReasonableSeconds,
		}, log)

	outcomes, err := orchestrator.ReconcileAll()
	if err != nil {
		return err
	}

	printSummary(surface, outcomes)

	for _, outcome := range outcomes {
		if outcome.State == reconciliation.StateFailed {
			os.Exit(1)
		}
	}
	return nil
}

func printSummary(surface ui.Surface, outcomes []reconciliation.Outcome) {
	surface.Show("\nReconciliation summary:")
	for _, o := range outcomes {
		line := fmt.Sprintf("  %-30s %-12s discrepancy %s", o.Account, o.State, o.Discrepancy.Display())
		if o.Err != nil {
			line += fmt.Sprintf(" (%v)", o.Err)
		}
		surface.Show(line)
	}
}
