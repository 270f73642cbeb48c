// Package reconciliation drives the per-account discrepancy resolution flow:
// computing the discrepancy against the checkpoint, searching progressively
// wider transaction pools for explaining combinations, and applying the
// chosen resolution atomically.
package reconciliation

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/database"
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/ui"
)

// TransactionStore is the slice of the transaction repository the applier
// needs.
type TransactionStore interface {
	GetByID(id string) (*domain.Transaction, error)
	MarkReconciledTx(tx *sql.Tx, ids []string, date time.Time) error
	MarkAllUnreconciledExceptTx(tx *sql.Tx, account string, exclude []string, date time.Time) error
	DeleteTx(tx *sql.Tx, ids []string) error
}

// CheckpointStore is the slice of the checkpoint repository the applier needs.
type CheckpointStore interface {
	Get(account string) (*domain.Checkpoint, error)
	PutTx(tx *sql.Tx, account string, balance domain.Money, date time.Time) error
}

// Applier turns a chosen candidate combination plus per-transaction
// dispositions into one atomic ledger mutation. Either every effect lands or
// none do; the checkpoint only advances together with the transaction rows.
type Applier struct {
	db           *sql.DB
	transactions TransactionStore
	checkpoints  CheckpointStore
	surface      ui.Surface
	log          zerolog.Logger
}

// NewApplier creates an applier over the given connection and repositories.
func NewApplier(db *sql.DB, transactions TransactionStore, checkpoints CheckpointStore, surface ui.Surface, log zerolog.Logger) *Applier {
	return &Applier{
		db:           db,
		transactions: transactions,
		checkpoints:  checkpoints,
		surface:      surface,
		log:          log.With().Str("component", "applier").Logger(),
	}
}

// Apply commits one resolution for the account in a single database
// transaction:
//
//   - transactions with DispositionDelete are removed,
//   - transactions with DispositionConfirm are marked reconciled,
//   - every other unreconciled transaction on the account is marked
//     reconciled, except those with DispositionExclude,
//   - the account checkpoint is overwritten with (newBalance, reconcileDate).
//
// An empty combination with no dispositions is the zero-discrepancy case:
// everything outstanding reconciles and the checkpoint advances.
func (a *Applier) Apply(account string, dispositions map[string]domain.Disposition, reconcileDate time.Time, newBalance domain.Money) error {
	var deletes, confirms, excludes []string
	for id, d := range dispositions {
		switch d {
		case domain.DispositionDelete:
			deletes = append(deletes, id)
		case domain.DispositionConfirm:
			confirms = append(confirms, id)
		case domain.DispositionExclude:
			excludes = append(excludes, id)
		default:
			return fmt.Errorf("unknown disposition %q for transaction %s", d, id)
		}
	}

	err := database.WithTransaction(a.db, func(tx *sql.Tx) error {
		if err := a.transactions.DeleteTx(tx, deletes); err != nil {
			return err
		}
		if err := a.transactions.MarkReconciledTx(tx, confirms, reconcileDate); err != nil {
			return err
		}
		if err := a.transactions.MarkAllUnreconciledExceptTx(tx, account, excludes, reconcileDate); err != nil {
			return err
		}
		return a.checkpoints.PutTx(tx, account, newBalance.Quantize(), reconcileDate)
	})
	if err != nil {
		return fmt.Errorf("failed to apply resolution for %s: %w", account, err)
	}

	a.log.Info().
		Str("account", account).
		Int("deleted", len(deletes)).
		Int("confirmed", len(confirms)).
		Int("excluded", len(excludes)).
		Str("balance", newBalance.Display()).
		Msg("Resolution applied")

	return nil
}

// AutoExclude applies a candidate without prompting: every transaction in the
// combination is excluded, everything else reconciles. Used when a single
// unambiguous explanation is found among recent activity.
func (a *Applier) AutoExclude(account string, candidate domain.Candidate, reconcileDate time.Time, newBalance domain.Money) error {
	dispositions := make(map[string]domain.Disposition, len(candidate.TransactionIDs))
	for _, id := range candidate.TransactionIDs {
		dispositions[id] = domain.DispositionExclude
	}
	return a.Apply(account, dispositions, reconcileDate, newBalance)
}

// SelectAndApply shows the candidate combinations, lets the user pick one (or
// none), collects a disposition per member transaction, and applies the
// result. It reports whether a resolution was applied.
func (a *Applier) SelectAndApply(account string, candidates []domain.Candidate, reconcileDate time.Time, newBalance domain.Money) (bool, error) {
	if len(candidates) == 0 {
		return false, nil
	}

	chosen, err := a.chooseCandidate(account, candidates)
	if err != nil {
		return false, err
	}
	if chosen == nil {
		return false, nil
	}

	dispositions := make(map[string]domain.Disposition, len(chosen.TransactionIDs))
	for _, id := range chosen.TransactionIDs {
		t, err := a.transactions.GetByID(id)
		if err != nil {
			return false, err
		}
		if t == nil {
			return false, fmt.Errorf("candidate references missing transaction %s: %w", id, domain.ErrDataInconsistency)
		}

		choice, err := a.surface.AskChoice(fmt.Sprintf(
			"%s - (e)xclude as pending, (d)elete as erroneous, or (c)onfirm as reconciled? : ",
			describeTransaction(*t)), []string{"e", "d", "c"})
		if err != nil {
			return false, err
		}

		switch choice {
		case "e":
			dispositions[id] = domain.DispositionExclude
		case "d":
			dispositions[id] = domain.DispositionDelete
		case "c":
			dispositions[id] = domain.DispositionConfirm
		}
	}

	if err := a.Apply(account, dispositions, reconcileDate, newBalance); err != nil {
		return false, err
	}

	return true, nil
}

// chooseCandidate renders the candidates and asks which one explains the
// discrepancy. Returns nil when the user rejects them all.
func (a *Applier) chooseCandidate(account string, candidates []domain.Candidate) (*domain.Candidate, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d possible combination(s) for account %s:\n", len(candidates), account)

	options := make([]string, 0, len(candidates)+1)
	for i, c := range candidates {
		fmt.Fprintf(&b, "(%d)\n", i+1)
		for _, id := range c.TransactionIDs {
			t, err := a.transactions.GetByID(id)
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, fmt.Errorf("candidate references missing transaction %s: %w", id, domain.ErrDataInconsistency)
			}
			fmt.Fprintf(&b, "    %s\n", describeTransaction(*t))
		}
		options = append(options, strconv.Itoa(i+1))
	}
	options = append(options, "n")

	a.surface.Show(b.String())

	choice, err := a.surface.AskChoice("Which combination explains the discrepancy? (number, or 'n' for none) : ", options)
	if err != nil {
		return nil, err
	}
	if choice == "n" {
		return nil, nil
	}

	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 1 || idx > len(candidates) {
		return nil, fmt.Errorf("unexpected candidate choice %q", choice)
	}

	return &candidates[idx-1], nil
}

func describeTransaction(t domain.Transaction) string {
	return fmt.Sprintf("%s | %s | %s | %s",
		t.Date.Format(domain.DateLayout), t.Merchant, t.Amount.Display(), t.Account)
}
