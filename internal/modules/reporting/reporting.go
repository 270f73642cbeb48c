// Package reporting renders unresolved account detail for manual review,
// either on screen or as a timestamped CSV next to the ledger.
package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/ui"
)

// Reporter handles unresolved-account exports.
type Reporter struct {
	outDir  string
	surface ui.Surface
	now     func() time.Time
	log     zerolog.Logger
}

// NewReporter creates a reporter writing CSV exports into outDir.
func NewReporter(outDir string, surface ui.Surface, log zerolog.Logger) *Reporter {
	return &Reporter{
		outDir:  outDir,
		surface: surface,
		now:     time.Now,
		log:     log.With().Str("component", "reporter").Logger(),
	}
}

// row is one unreconciled transaction with its running balance from the
// checkpoint forward.
type row struct {
	tx      domain.Transaction
	running domain.Money
}

// ExportUnresolved offers to display or export the account's unreconciled
// detail with a running balance, so the discrepancy can be chased by hand.
func (r *Reporter) ExportUnresolved(account string, checkpoint domain.Checkpoint, unreconciled []domain.Transaction, current domain.BalancePoint, discrepancy domain.Money) error {
	choice, err := r.surface.AskChoice(fmt.Sprintf(
		"Would you like to display or export details for account %s? (display/export/skip) : ", account),
		[]string{"display", "export", "skip"})
	if err != nil {
		return err
	}
	if choice == "skip" {
		return nil
	}

	rows := runningBalances(checkpoint.Balance, unreconciled)

	if choice == "display" {
		r.surface.Show(renderDetails(account, checkpoint, rows, current, discrepancy))
		return nil
	}

	path, err := r.writeCSV(account, checkpoint, rows, current, discrepancy)
	if err != nil {
		return err
	}

	r.surface.Show(fmt.Sprintf("Details exported to %s", path))
	r.log.Info().Str("account", account).Str("path", path).Msg("Unresolved detail exported")
	return nil
}

// runningBalances accumulates each transaction onto the checkpoint balance,
// quantized for display.
func runningBalances(start domain.Money, transactions []domain.Transaction) []row {
	rows := make([]row, len(transactions))
	running := start
	for i, tx := range transactions {
		running = running.Add(tx.Amount)
		rows[i] = row{tx: tx, running: running.Quantize()}
	}
	return rows
}

func renderDetails(account string, checkpoint domain.Checkpoint, rows []row, current domain.BalancePoint, discrepancy domain.Money) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Account: %s\n", account)
	fmt.Fprintf(&b, "Initial Balance (as of %s): %s\n", checkpoint.Date.Format(domain.DateLayout), checkpoint.Balance.Display())
	fmt.Fprintf(&b, "Current Balance (as of %s): %s\n", current.Date.Format(domain.DateLayout), current.Balance.Display())
	fmt.Fprintf(&b, "Discrepancy: %s\n\n", discrepancy.Display())
	fmt.Fprintf(&b, "Unreconciled Transactions:\n")
	fmt.Fprintf(&b, "%-12s %-25s %12s %16s\n", "Date", "Merchant", "Amount", "Running Balance")
	fmt.Fprintln(&b, strings.Repeat("-", 68))

	for _, r := range rows {
		merchant := r.tx.Merchant
		if len(merchant) > 24 {
			merchant = merchant[:24]
		}
		fmt.Fprintf(&b, "%-12s %-25s %12s %16s\n",
			r.tx.Date.Format(domain.DateLayout), merchant, r.tx.Amount.Display(), r.running.Display())
	}

	return b.String()
}

func (r *Reporter) writeCSV(account string, checkpoint domain.Checkpoint, rows []row, current domain.BalancePoint, discrepancy domain.Money) (string, error) {
	if err := os.MkdirAll(r.outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("reconciliation_details_%s_%s.csv",
		sanitizeAccount(account), r.now().Format("20060102150405"))
	path := filepath.Join(r.outDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"id", "transaction_date", "merchant", "amount", "running_balance",
		"account", "initial_balance", "initial_date", "current_balance", "discrepancy",
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write report header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.tx.ID,
			row.tx.Date.Format(domain.DateLayout),
			row.tx.Merchant,
			row.tx.Amount.Display(),
			row.running.Display(),
			account,
			checkpoint.Balance.Display(),
			checkpoint.Date.Format(domain.DateLayout),
			current.Balance.Display(),
			discrepancy.Display(),
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush report: %w", err)
	}

	return path, nil
}

// sanitizeAccount keeps account-derived file names portable.
func sanitizeAccount(account string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, account)
}
