// Package ledger provides repository implementations for the reconciliation
// ledger: imported transactions and per-account reconciliation checkpoints.
package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// TransactionRepository handles persistence of imported transactions.
// Transactions are immutable once imported, except for the reconciliation
// fields, which only the resolution flow is allowed to touch.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

const transactionColumns = `id, transaction_date, merchant, category, account,
	original_statement, amount, reconciled, import_date, reconcile_date`

// Insert stores a newly imported transaction.
func (r *TransactionRepository) Insert(t domain.Transaction) error {
	var reconcileDate interface{}
	if t.ReconcileDate != nil {
		reconcileDate = t.ReconcileDate.Format(domain.DateLayout)
	}

	_, err := r.db.Exec(`
		INSERT INTO transactions (id, transaction_date, merchant, category,
			account, original_statement, amount, reconciled, import_date, reconcile_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Date.Format(domain.DateLayout),
		t.Merchant,
		t.Category,
		t.Account,
		t.OriginalStatement,
		t.Amount.String(),
		boolToInt(t.Reconciled),
		t.ImportDate.Format(domain.DateLayout),
		reconcileDate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}

	return nil
}

// GetByID returns a single transaction, or nil if it does not exist.
func (r *TransactionRepository) GetByID(id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(`
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}

	return t, nil
}

// Accounts returns all distinct account identifiers present in the ledger.
func (r *TransactionRepository) Accounts() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT account FROM transactions ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var account string
		if err := rows.Scan(&account); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// UnreconciledByAccount returns every unreconciled transaction on the
// account, ordered by date.
func (r *TransactionRepository) UnreconciledByAccount(account string) ([]domain.Transaction, error) {
	return r.queryTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account = ? AND reconciled = 0
		ORDER BY transaction_date, id`, account)
}

// UnreconciledSince returns unreconciled transactions on the account dated
// on or after the given date. Used for the trailing recency window.
func (r *TransactionRepository) UnreconciledSince(account string, from time.Time) ([]domain.Transaction, error) {
	return r.queryTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account = ? AND reconciled = 0 AND transaction_date >= ?
		ORDER BY transaction_date, id`,
		account, from.Format(domain.DateLayout))
}

// UnreconciledInWindows returns unreconciled transactions either on or after
// recentFrom, or inside [anchorFrom, anchorTo]. Used for the widened tier
// that also covers activity around the last reconciliation anchor.
func (r *TransactionRepository) UnreconciledInWindows(account string, recentFrom, anchorFrom, anchorTo time.Time) ([]domain.Transaction, error) {
	return r.queryTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account = ? AND reconciled = 0
		  AND (transaction_date >= ? OR transaction_date BETWEEN ? AND ?)
		ORDER BY transaction_date, id`,
		account,
		recentFrom.Format(domain.DateLayout),
		anchorFrom.Format(domain.DateLayout),
		anchorTo.Format(domain.DateLayout))
}

// UnreconciledBefore returns unreconciled transactions dated strictly before
// the given date, across all accounts. Used at import time to surface stale
// entries older than the earliest reconcile date.
func (r *TransactionRepository) UnreconciledBefore(date time.Time) ([]domain.Transaction, error) {
	return r.queryTransactions(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reconciled = 0 AND transaction_date < ?
		ORDER BY account, transaction_date, id`,
		date.Format(domain.DateLayout))
}

// All returns every transaction in the ledger, ordered by account and date.
func (r *TransactionRepository) All() ([]domain.Transaction, error) {
	return r.queryTransactions(`
		SELECT ` + transactionColumns + `
		FROM transactions
		ORDER BY account, transaction_date, id`)
}

// ExistingKeys returns the natural keys of every stored transaction, used to
// deduplicate imports.
func (r *TransactionRepository) ExistingKeys() (map[domain.NaturalKey]string, error) {
	all, err := r.All()
	if err != nil {
		return nil, err
	}

	keys := make(map[domain.NaturalKey]string, len(all))
	for _, t := range all {
		keys[t.Key()] = t.ID
	}

	return keys, nil
}

// EarliestDate returns the earliest transaction date on the account. The
// second return value is false when the account has no transactions.
func (r *TransactionRepository) EarliestDate(account string) (time.Time, bool, error) {
	var dateStr sql.NullString
	err := r.db.QueryRow(`
		SELECT MIN(transaction_date) FROM transactions WHERE account = ?`,
		account).Scan(&dateStr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get earliest date for %s: %w", account, err)
	}
	if !dateStr.Valid {
		return time.Time{}, false, nil
	}

	date, err := time.Parse(domain.DateLayout, dateStr.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed date %q for %s: %w", dateStr.String, account, err)
	}

	return date, true, nil
}

// Delete removes transactions permanently outside of a resolution, e.g. when
// the user discards stale unmatched entries at import time.
func (r *TransactionRepository) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.db.Exec(
		`DELETE FROM transactions WHERE id IN (`+placeholders(len(ids))+`)`,
		toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}

	return nil
}

// MarkReconciledTx marks the given transactions reconciled as of date,
// inside the caller's transaction.
func (r *TransactionRepository) MarkReconciledTx(tx *sql.Tx, ids []string, date time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := append([]interface{}{date.Format(domain.DateLayout)}, toArgs(ids)...)
	res, err := tx.Exec(`
		UPDATE transactions SET reconciled = 1, reconcile_date = ?
		WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark transactions reconciled: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("marked %d of %d transactions reconciled: %w",
			affected, len(ids), domain.ErrDataInconsistency)
	}

	return nil
}

// MarkAllUnreconciledExceptTx marks every unreconciled transaction on the
// account reconciled as of date, except the excluded ids, inside the
// caller's transaction.
func (r *TransactionRepository) MarkAllUnreconciledExceptTx(tx *sql.Tx, account string, exclude []string, date time.Time) error {
	query := `
		UPDATE transactions SET reconciled = 1, reconcile_date = ?
		WHERE account = ? AND reconciled = 0`
	args := []interface{}{date.Format(domain.DateLayout), account}

	if len(exclude) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(exclude)) + `)`
		args = append(args, toArgs(exclude)...)
	}

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to reconcile remaining transactions for %s: %w", account, err)
	}

	return nil
}

// DeleteTx removes the given transactions permanently, inside the caller's
// transaction. All ids must exist; a partial delete is a data inconsistency.
func (r *TransactionRepository) DeleteTx(tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	res, err := tx.Exec(
		`DELETE FROM transactions WHERE id IN (`+placeholders(len(ids))+`)`,
		toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("deleted %d of %d transactions: %w",
			affected, len(ids), domain.ErrDataInconsistency)
	}

	return nil
}

// queryTransactions runs a SELECT over transactionColumns and scans the rows.
func (r *TransactionRepository) queryTransactions(query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}

	return transactions, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanTransaction.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t             domain.Transaction
		dateStr       string
		amountStr     string
		reconciledInt int
		importStr     string
		reconcileDate sql.NullString
	)

	err := s.Scan(&t.ID, &dateStr, &t.Merchant, &t.Category, &t.Account,
		&t.OriginalStatement, &amountStr, &reconciledInt, &importStr, &reconcileDate)
	if err != nil {
		return nil, err
	}

	if t.Date, err = time.Parse(domain.DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("malformed transaction date %q: %w", dateStr, err)
	}
	if t.Amount, err = domain.NewMoneyFromString(amountStr); err != nil {
		return nil, err
	}
	if t.ImportDate, err = time.Parse(domain.DateLayout, importStr); err != nil {
		return nil, fmt.Errorf("malformed import date %q: %w", importStr, err)
	}

	t.Reconciled = reconciledInt != 0
	if reconcileDate.Valid {
		d, err := time.Parse(domain.DateLayout, reconcileDate.String)
		if err != nil {
			return nil, fmt.Errorf("malformed reconcile date %q: %w", reconcileDate.String, err)
		}
		t.ReconcileDate = &d
	}

	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
