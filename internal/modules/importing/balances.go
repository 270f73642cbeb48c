package importing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// Balance export column headers.
const (
	colBalance = "Balance"
)

// VaultMerge folds vault sub-accounts into a single parent account. Some
// banks expose savings vaults as separate accounts while the statement
// balance lives on the parent; transactions are re-labelled to the parent and
// vault balances are added into the parent's balance per date.
type VaultMerge struct {
	Enabled bool
	// Pattern matches vault account names, case-insensitively, as a
	// substring (e.g. "SoFi Vault").
	Pattern string
	// Parent matches the single account the vaults fold into (e.g.
	// "SoFi Savings").
	Parent string
}

// FoldAccount rewrites a vault account name to its parent. Non-vault names
// pass through unchanged.
func (v VaultMerge) FoldAccount(account string) string {
	if !v.Enabled || !containsFold(account, v.Pattern) {
		return account
	}
	return v.Parent
}

func (v VaultMerge) isVault(account string) bool {
	return v.Enabled && containsFold(account, v.Pattern)
}

func (v VaultMerge) isParent(account string) bool {
	return v.Enabled && containsFold(account, v.Parent)
}

func containsFold(s, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// BalanceBook holds the balance history from one balance export and answers
// "what is the authoritative balance for this account": the most recent
// balance point per account.
type BalanceBook struct {
	points map[string][]domain.BalancePoint // per account, unordered
}

// LoadBalancesFile reads a balance export from a CSV file on disk.
func LoadBalancesFile(path string, vaults VaultMerge) (*BalanceBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open balance export: %w", err)
	}
	defer f.Close()

	return LoadBalances(f, vaults)
}

// LoadBalances parses a balance export (Date, Account, Balance columns).
// With vault merging enabled, vault balances are summed into the parent
// account's balance on each date and the vault accounts disappear from the
// book.
func LoadBalances(r io.Reader, vaults VaultMerge) (*BalanceBook, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read balance header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.TrimSpace(name)] = idx
	}
	for _, required := range []string{colDate, colAccount, colBalance} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("balance export is missing required column %q", required)
		}
	}

	var points []domain.BalancePoint
	vaultSums := make(map[string]domain.Money) // by date string

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read balance line %d: %w", line, err)
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
			return nil, fmt.Errorf("balance line %d: malformed date %q: %w", line, field(colDate), err)
		}
		balance, err := domain.NewMoneyFromString(field(colBalance))
		if err != nil {
			return nil, fmt.Errorf("balance line %d: %w", line, err)
		}

		account := field(colAccount)
		if vaults.isVault(account) {
			key := date.Format(domain.DateLayout)
			vaultSums[key] = vaultSums[key].Add(balance)
			continue
		}

		points = append(points, domain.BalancePoint{Account: account, Date: date, Balance: balance})
	}

	// Fold the per-date vault sums into the parent account's balances.
	if len(vaultSums) > 0 {
		folded := false
		for i, p := range points {
			if !vaults.isParent(p.Account) {
				continue
			}
			if sum, ok := vaultSums[p.Date.Format(domain.DateLayout)]; ok {
				points[i].Balance = p.Balance.Add(sum)
			}
			folded = true
		}
		if !folded {
			return nil, fmt.Errorf("vault balances found but no account matches %q", vaults.Parent)
		}
	}

	book := &BalanceBook{points: make(map[string][]domain.BalancePoint)}
	for _, p := range points {
		book.points[p.Account] = append(book.points[p.Account], p)
	}

	return book, nil
}

// CurrentBalance returns the most recent balance point for the account, or
// nil when the export has none.
func (b *BalanceBook) CurrentBalance(account string) (*domain.BalancePoint, error) {
	points, ok := b.points[account]
	if !ok || len(points) == 0 {
		return nil, nil
	}

	latest := points[0]
	for _, p := range points[1:] {
		if p.Date.After(latest.Date) {
			latest = p
		}
	}

	return &latest, nil
}

// BalanceOn returns the account's balance on an exact date, if the export
// asserts one.
func (b *BalanceBook) BalanceOn(account string, date time.Time) (*domain.BalancePoint, error) {
	for _, p := range b.points[account] {
		if p.Date.Equal(date) {
			point := p
			return &point, nil
		}
	}
	return nil, nil
}

// Accounts lists the accounts present in the export.
func (b *BalanceBook) Accounts() []string {
	accounts := make([]string, 0, len(b.points))
	for account := range b.points {
		accounts = append(accounts, account)
	}
	return accounts
}
