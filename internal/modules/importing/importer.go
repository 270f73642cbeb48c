// Package importing loads transaction and balance exports from the upstream
// aggregator into the ledger: CSV parsing and column mapping, natural-key
// deduplication against prior imports, vault account merging, and seeding of
// initial checkpoints for accounts never reconciled before.
package importing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/ui"
)

// Transaction export column headers, as produced by the aggregator.
const (
	colDate              = "Date"
	colMerchant          = "Merchant"
	colCategory          = "Category"
	colAccount           = "Account"
	colOriginalStatement = "Original Statement"
	colAmount            = "Amount"
)

// TransactionStore is the slice of the transaction repository the importer
// needs.
type TransactionStore interface {
	Insert(t domain.Transaction) error
	ExistingKeys() (map[domain.NaturalKey]string, error)
	UnreconciledBefore(date time.Time) ([]domain.Transaction, error)
	GetByID(id string) (*domain.Transaction, error)
	Delete(ids []string) error
}

// Options controls one import run.
type Options struct {
	// Cutoff drops exported transactions dated before it, and scopes the
	// stale-transaction review to the same date. Zero means no cutoff.
	Cutoff time.Time
	// Vaults, when enabled, folds vault sub-accounts into their parent
	// before anything is stored.
	Vaults VaultMerge
}

// Summary reports what one import run did.
type Summary struct {
	New       int // exported transactions not seen before, now stored
	Matched   int // exported transactions already in the ledger
	Unmatched int // stored transactions absent from this export
	Deleted   int // stored transactions removed during review
}

// Importer loads a transaction export into the ledger.
type Importer struct {
	transactions TransactionStore
	surface      ui.Surface
	now          func() time.Time
	log          zerolog.Logger
}

// NewImporter creates an importer over the given store and interactive
// surface.
func NewImporter(transactions TransactionStore, surface ui.Surface, log zerolog.Logger) *Importer {
	return &Importer{
		transactions: transactions,
		surface:      surface,
		now:          time.Now,
		log:          log.With().Str("component", "importer").Logger(),
	}
}

// ImportFile imports a transaction export from a CSV file on disk.
func (i *Importer) ImportFile(path string, opts Options) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open transaction export: %w", err)
	}
	defer f.Close()

	return i.Import(f, opts)
}

// Import reads a transaction export, deduplicates it against the ledger on
// the natural key, stores the new rows, and walks the user through stale and
// unmatched entries. Row identity is the (date, account, amount, statement)
// tuple; the export carries no stable identifier, so ids are assigned here.
func (i *Importer) Import(r io.Reader, opts Options) (Summary, error) {
	exported, err := i.parseExport(r, opts)
	if err != nil {
		return Summary{}, err
	}

	if err := i.reviewStale(opts.Cutoff); err != nil {
		return Summary{}, err
	}

	existing, err := i.transactions.ExistingKeys()
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	seen := make(map[domain.NaturalKey]bool, len(exported))
	for _, t := range exported {
		key := t.Key()
		seen[key] = true

		if _, ok := existing[key]; ok {
			summary.Matched++
			continue
		}
		if err := i.transactions.Insert(t); err != nil {
			return Summary{}, err
		}
		summary.New++
	}

	unmatched, err := i.findUnmatched(existing, seen, opts.Cutoff)
	if err != nil {
		return Summary{}, err
	}
	summary.Unmatched = len(unmatched)

	deleted, err := i.reviewUnmatched(unmatched)
	if err != nil {
		return Summary{}, err
	}
	summary.Deleted += deleted

	i.log.Info().
		Int("new", summary.New).
		Int("matched", summary.Matched).
		Int("unmatched", summary.Unmatched).
		Int("deleted", summary.Deleted).
		Msg("Transaction import complete")

	return summary, nil
}

// parseExport reads and validates the CSV, applying the cutoff filter and
// vault merging. Missing statements become empty strings so the natural key
// stays comparable across imports.
func (i *Importer) parseExport(r io.Reader, opts Options) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.TrimSpace(name)] = idx
	}
	for _, required := range []string{colDate, colMerchant, colCategory, colAccount, colOriginalStatement, colAmount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("export is missing required column %q", required)
		}
	}

	importDate := i.now()

	var out []domain.Transaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export line %d: %w", line, err)
		}

		field := func(name string) string {
			idx := cols[name]
			if idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		date, err := time.Parse(domain.DateLayout, field(colDate))
		if err != nil {
			return nil, fmt.Errorf("export line %d: malformed date %q: %w", line, field(colDate), err)
		}
		amount, err := domain.NewMoneyFromString(field(colAmount))
		if err != nil {
			return nil, fmt.Errorf("export line %d: %w", line, err)
		}

		if !opts.Cutoff.IsZero() && date.Before(opts.Cutoff) {
			continue
		}

		out = append(out, domain.Transaction{
			ID:                uuid.New().String(),
			Date:              date,
			Merchant:          field(colMerchant),
			Category:          field(colCategory),
			Account:           opts.Vaults.FoldAccount(field(colAccount)),
			OriginalStatement: field(colOriginalStatement),
			Amount:            amount,
			ImportDate:        importDate,
		})
	}

	return out, nil
}

// reviewStale surfaces unreconciled transactions older than the cutoff and
// offers to drop them. They predate anything the checkpoints can account for
// and only confuse the discrepancy search.
func (i *Importer) reviewStale(cutoff time.Time) error {
	if cutoff.IsZero() {
		return nil
	}

	stale, err := i.transactions.UnreconciledBefore(cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "There are %d unreconciled transaction(s) older than %s:\n",
		len(stale), cutoff.Format(domain.DateLayout))
	for _, t := range stale {
		fmt.Fprintf(&b, "  %s\n", describeTransaction(t))
	}
	i.surface.Show(b.String())

	remove, err := i.surface.AskYesNo("These can cause difficulty during reconciliation. Remove them?")
	if err != nil {
		return err
	}
	if !remove {
		return nil
	}

	ids := make([]string, len(stale))
	for idx, t := range stale {
		ids[idx] = t.ID
	}
	if err := i.transactions.Delete(ids); err != nil {
		return err
	}

	i.log.Info().Int("count", len(ids)).Msg("Removed stale unreconciled transactions")
	return nil
}

// findUnmatched returns stored transactions whose natural key does not appear
// in the current export. Usually these were pending rows the aggregator has
// since replaced with the settled form. The cutoff keeps reconciled history
// out of the review.
func (i *Importer) findUnmatched(existing map[domain.NaturalKey]string, seen map[domain.NaturalKey]bool, cutoff time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for key, id := range existing {
		if seen[key] {
			continue
		}

		t, err := i.transactions.GetByID(id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue // removed during the stale review
		}
		if !cutoff.IsZero() && t.Date.Before(cutoff) {
			continue
		}
		out = append(out, *t)
	}

	sortTransactions(out)
	return out, nil
}

// reviewUnmatched walks the user through transactions missing from the
// export: delete all, keep all, or decide one by one.
func (i *Importer) reviewUnmatched(unmatched []domain.Transaction) (int, error) {
	if len(unmatched) == 0 {
		return 0, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d transaction(s) in the ledger were not found in this export (usually they were pending before):\n", len(unmatched))
	for _, t := range unmatched {
		fmt.Fprintf(&b, "  %s\n", describeTransaction(t))
	}
	i.surface.Show(b.String())

	choice, err := i.surface.AskChoice(
		"Delete all, none, or select individually? (all/none/select) : ",
		[]string{"all", "none", "select"})
	if err != nil {
		return 0, err
	}

	switch choice {
	case "none":
		return 0, nil

	case "all":
		ids := make([]string, len(unmatched))
		for idx, t := range unmatched {
			ids[idx] = t.ID
		}
		if err := i.transactions.Delete(ids); err != nil {
			return 0, err
		}
		return len(ids), nil

	default: // select
		deleted := 0
		for _, t := range unmatched {
			remove, err := i.surface.AskYesNo(fmt.Sprintf("Delete %s?", describeTransaction(t)))
			if err != nil {
				return deleted, err
			}
			if !remove {
				continue
			}
			if err := i.transactions.Delete([]string{t.ID}); err != nil {
				return deleted, err
			}
			deleted++
		}
		return deleted, nil
	}
}

func describeTransaction(t domain.Transaction) string {
	return fmt.Sprintf("%s | %s | %s | %s",
		t.Date.Format(domain.DateLayout), t.Account, t.Merchant, t.Amount.Display())
}

// sortTransactions orders by account, then date, then id, for stable review
// output.
func sortTransactions(ts []domain.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Account != ts[j].Account {
			return ts[i].Account < ts[j].Account
		}
		if !ts[i].Date.Equal(ts[j].Date) {
			return ts[i].Date.Before(ts[j].Date)
		}
		return ts[i].ID < ts[j].ID
	})
}
