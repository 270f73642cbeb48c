// Package domain provides core domain models and types.
package domain

import "time"

// DateLayout is the calendar-date format used everywhere: dates have no time
// component, and lexicographic order equals chronological order.
const DateLayout = "2006-01-02"

// Transaction is one imported ledger entry. Records are immutable after
// import except for the reconciliation fields.
type Transaction struct {
	ID                string     `json:"id"`
	Date              time.Time  `json:"date"`
	Merchant          string     `json:"merchant"`
	Category          string     `json:"category"`
	Account           string     `json:"account"`
	OriginalStatement string     `json:"original_statement"`
	Amount            Money      `json:"amount"`
	Reconciled        bool       `json:"reconciled"`
	ImportDate        time.Time  `json:"import_date"`
	ReconcileDate     *time.Time `json:"reconcile_date,omitempty"`
}

// NaturalKey identifies a transaction across imports. The surrogate ID is
// assigned locally at import time; exports from the upstream aggregator carry
// no stable identifier, so duplicates are detected on this tuple.
type NaturalKey struct {
	Date              string
	Account           string
	Amount            string
	OriginalStatement string
}

// Key returns the transaction's natural import-deduplication key. Amount is
// keyed on its exact string form so that "1.10" and "1.100" from the same
// source stay distinct only if the source itself is inconsistent.
func (t Transaction) Key() NaturalKey {
	return NaturalKey{
		Date:              t.Date.Format(DateLayout),
		Account:           t.Account,
		Amount:            t.Amount.String(),
		OriginalStatement: t.OriginalStatement,
	}
}

// Checkpoint is the last-known-good reconciliation anchor for one account.
// It only ever moves forward in time.
type Checkpoint struct {
	Account string    `json:"account"`
	Balance Money     `json:"balance"`
	Date    time.Time `json:"date"`
}

// BalancePoint is an authoritative "balance as of date" assertion for one
// account, supplied by the balance export.
type BalancePoint struct {
	Account string
	Date    time.Time
	Balance Money
}

// Candidate is one combination of transactions whose amount-sum, quantized
// to the cent, equals the negated discrepancy. Transient: it exists only for
// the duration of one search-and-resolve cycle.
type Candidate struct {
	TransactionIDs []string
}

// Disposition is the per-transaction resolution action chosen when a
// candidate combination is applied.
type Disposition string

const (
	// DispositionExclude leaves the transaction unreconciled and untouched,
	// typically because it is still pending upstream.
	DispositionExclude Disposition = "exclude"
	// DispositionDelete removes the transaction permanently. The caller is
	// responsible for deleting it upstream too, or it will be re-imported.
	DispositionDelete Disposition = "delete"
	// DispositionConfirm marks the transaction reconciled immediately,
	// regardless of combination membership.
	DispositionConfirm Disposition = "confirm"
)
