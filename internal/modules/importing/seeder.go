package importing

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/ui"
)

// AccountStore is the slice of the transaction repository the seeder needs.
type AccountStore interface {
	Accounts() ([]string, error)
	EarliestDate(account string) (time.Time, bool, error)
}

// CheckpointSeedStore is the slice of the checkpoint repository the seeder
// needs.
type CheckpointSeedStore interface {
	Get(account string) (*domain.Checkpoint, error)
	Seed(account string, balance domain.Money, date time.Time) error
}

// Seeder creates the initial checkpoint for accounts that have never been
// reconciled. The anchor is the closing balance on the day before the
// account's earliest transaction: from the balance export when it asserts
// one, otherwise from the user. Without either, the account cannot be
// reconciled at all.
type Seeder struct {
	accounts    AccountStore
	checkpoints CheckpointSeedStore
	balances    *BalanceBook
	surface     ui.Surface
	log         zerolog.Logger
}

// NewSeeder creates a checkpoint seeder.
func NewSeeder(accounts AccountStore, checkpoints CheckpointSeedStore, balances *BalanceBook, surface ui.Surface, log zerolog.Logger) *Seeder {
	return &Seeder{
		accounts:    accounts,
		checkpoints: checkpoints,
		balances:    balances,
		surface:     surface,
		log:         log.With().Str("component", "seeder").Logger(),
	}
}

// SeedMissing walks every account in the ledger and seeds a checkpoint where
// none exists.
func (s *Seeder) SeedMissing() error {
	accounts, err := s.accounts.Accounts()
	if err != nil {
		return err
	}

	for _, account := range accounts {
		checkpoint, err := s.checkpoints.Get(account)
		if err != nil {
			return err
		}
		if checkpoint != nil {
			continue
		}
		if err := s.seedAccount(account); err != nil {
			return err
		}
	}

	return nil
}

func (s *Seeder) seedAccount(account string) error {
	earliest, ok, err := s.accounts.EarliestDate(account)
	if err != nil {
		return err
	}
	if !ok {
		// No transactions either; nothing to anchor and nothing to reconcile.
		return nil
	}

	dayBefore := earliest.AddDate(0, 0, -1)

	if point, err := s.balances.BalanceOn(account, dayBefore); err != nil {
		return err
	} else if point != nil {
		s.surface.Show(fmt.Sprintf(
			"Using the exported balance of %s on %s (day before the earliest transaction) as the starting point for account %s.",
			point.Balance.Display(), dayBefore.Format(domain.DateLayout), account))
		return s.checkpoints.Seed(account, point.Balance, dayBefore)
	}

	// The export cannot anchor this account; ask the user for a closing
	// balance on a date they can vouch for.
	s.surface.Show(fmt.Sprintf(
		"I need a starting balance for account %s. Its earliest transaction is on %s.",
		account, earliest.Format(domain.DateLayout)))

	knowsDayBefore, err := s.surface.AskYesNo(fmt.Sprintf(
		"Can you provide the closing balance for account %s as of %s?",
		account, dayBefore.Format(domain.DateLayout)))
	if err != nil {
		return err
	}

	date := dayBefore
	if !knowsDayBefore {
		date, err = s.surface.AskDate("Which closing balance date (YYYY-MM-DD) can you provide? : ")
		if err != nil {
			return fmt.Errorf("cannot seed checkpoint for %s: %w", account, domain.ErrDataInconsistency)
		}
	}

	balance, err := s.surface.AskNumber(fmt.Sprintf(
		"Enter the closing balance for account %s as of %s: ",
		account, date.Format(domain.DateLayout)))
	if err != nil {
		return fmt.Errorf("cannot seed checkpoint for %s: %w", account, domain.ErrDataInconsistency)
	}

	return s.checkpoints.Seed(account, balance, date)
}
