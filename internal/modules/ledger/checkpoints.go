package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// CheckpointRepository handles persistence of per-account reconciliation
// checkpoints. A checkpoint is created once (seeded from an externally
// supplied balance) and afterwards only ever overwritten with a newer
// (balance, date) pair.
type CheckpointRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(db *sql.DB, log zerolog.Logger) *CheckpointRepository {
	return &CheckpointRepository{
		db:  db,
		log: log.With().Str("repo", "checkpoints").Logger(),
	}
}

// Get returns the checkpoint for the account, or nil if none exists yet.
func (r *CheckpointRepository) Get(account string) (*domain.Checkpoint, error) {
	var (
		balanceStr string
		dateStr    string
	)

	err := r.db.QueryRow(`
		SELECT last_reconciled_balance, last_reconciled_date
		FROM account_balances WHERE account = ?`, account).
		Scan(&balanceStr, &dateStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint for %s: %w", account, err)
	}

	balance, err := domain.NewMoneyFromString(balanceStr)
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(domain.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("malformed checkpoint date %q for %s: %w", dateStr, account, err)
	}

	return &domain.Checkpoint{Account: account, Balance: balance, Date: date}, nil
}

// Seed creates the initial checkpoint for an account that has never been
// reconciled. Fails if a checkpoint already exists.
func (r *CheckpointRepository) Seed(account string, balance domain.Money, date time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO account_balances (account, last_reconciled_balance, last_reconciled_date)
		VALUES (?, ?, ?)`,
		account, balance.String(), date.Format(domain.DateLayout))
	if err != nil {
		return fmt.Errorf("failed to seed checkpoint for %s: %w", account, err)
	}

	r.log.Info().
		Str("account", account).
		Str("balance", balance.Display()).
		Str("date", date.Format(domain.DateLayout)).
		Msg("Seeded initial checkpoint")

	return nil
}

// PutTx overwrites the account's checkpoint with a newer (balance, date)
// pair, inside the caller's transaction. Exactly one row must change.
func (r *CheckpointRepository) PutTx(tx *sql.Tx, account string, balance domain.Money, date time.Time) error {
	res, err := tx.Exec(`
		UPDATE account_balances
		SET last_reconciled_balance = ?, last_reconciled_date = ?
		WHERE account = ?`,
		balance.String(), date.Format(domain.DateLayout), account)
	if err != nil {
		return fmt.Errorf("failed to update checkpoint for %s: %w", account, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("no checkpoint to update for %s: %w", account, domain.ErrDataInconsistency)
	}

	return nil
}
