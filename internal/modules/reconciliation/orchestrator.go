package reconciliation

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/modules/ledger"
	"github.com/ledgerline/ledgerline/internal/modules/matching"
	"github.com/ledgerline/ledgerline/internal/ui"
)

// State is the terminal state of one account's reconciliation run.
type State string

const (
	// StateZero means the discrepancy was 0.00 and everything reconciled
	// trivially.
	StateZero State = "zero"
	// StateResolved means an applied combination zeroed the discrepancy.
	StateResolved State = "resolved"
	// StateUnresolved means the search was exhausted or abandoned; account
	// detail was exported for manual review.
	StateUnresolved State = "unresolved"
	// StateSkipped means the user declined to search at all.
	StateSkipped State = "skipped"
	// StateFailed means the account aborted with an error. Other accounts
	// still run.
	StateFailed State = "failed"
)

// Outcome summarizes one account's run.
type Outcome struct {
	Account     string
	State       State
	Discrepancy domain.Money
	Err         error
}

// BalanceSource supplies the authoritative "balance as of date" for an
// account. Returns nil when no balance is known.
type BalanceSource interface {
	CurrentBalance(account string) (*domain.BalancePoint, error)
}

// UnresolvedExporter receives full account detail when a discrepancy could
// not be explained, so a human can chase it outside the tool.
type UnresolvedExporter interface {
	ExportUnresolved(account string, checkpoint domain.Checkpoint, unreconciled []domain.Transaction, current domain.BalancePoint, discrepancy domain.Money) error
}

// Config holds the orchestrator's tunable windows and thresholds.
type Config struct {
	// RecentWindowDays is the trailing window (from the balance date) for the
	// narrow search tiers.
	RecentWindowDays int
	// AnchorWindowDays widens the pool with +/- this many days around the
	// last reconciled date.
	AnchorWindowDays int
	// ReasonableSeconds is the estimated search cost above which the user is
	// asked before searching.
	ReasonableSeconds float64
}

// Orchestrator drives one account at a time from a computed discrepancy to a
// terminal state, escalating through progressively wider search pools.
// Accounts are strictly sequential: resolution is interactive, so there is
// nothing to gain from cross-account parallelism.
type Orchestrator struct {
	transactions *ledger.TransactionRepository
	checkpoints  *ledger.CheckpointRepository
	matcher      *matching.Matcher
	estimator    *matching.Estimator
	applier      *Applier
	balances     BalanceSource
	resolver     DecisionResolver
	exporter     UnresolvedExporter
	surface      ui.Surface
	cfg          Config
	log          zerolog.Logger
}

// NewOrchestrator wires the reconciliation flow together.
func NewOrchestrator(
	transactions *ledger.TransactionRepository,
	checkpoints *ledger.CheckpointRepository,
	matcher *matching.Matcher,
	estimator *matching.Estimator,
	applier *Applier,
	balances BalanceSource,
	resolver DecisionResolver,
	exporter UnresolvedExporter,
	surface ui.Surface,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		transactions: transactions,
		checkpoints:  checkpoints,
		matcher:      matcher,
		estimator:    estimator,
		applier:      applier,
		balances:     balances,
		resolver:     resolver,
		exporter:     exporter,
		surface:      surface,
		cfg:          cfg,
		log:          log.With().Str("component", "orchestrator").Logger(),
	}
}

// ReconcileAll runs every account in the ledger. One account's failure never
// aborts the rest; it lands in the outcomes as StateFailed.
func (o *Orchestrator) ReconcileAll() ([]Outcome, error) {
	accounts, err := o.transactions.Accounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	outcomes := make([]Outcome, 0, len(accounts))
	for _, account := range accounts {
		outcome, err := o.ReconcileAccount(account)
		if err != nil {
			o.log.Error().Err(err).Str("account", account).Msg("Account reconciliation failed")
			outcome = Outcome{Account: account, State: StateFailed, Err: err}
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// ReconcileAccount runs the full tiered flow for one account and returns its
// terminal state.
func (o *Orchestrator) ReconcileAccount(account string) (Outcome, error) {
	checkpoint, err := o.checkpoints.Get(account)
	if err != nil {
		return Outcome{}, err
	}
	if checkpoint == nil {
		// Seeding is the import flow's job; fabricating one here would anchor
		// all future discrepancies on a guess.
		return Outcome{}, fmt.Errorf("account %s has no checkpoint: %w", account, domain.ErrDataInconsistency)
	}

	current, err := o.balances.CurrentBalance(account)
	if err != nil {
		return Outcome{}, err
	}
	if current == nil {
		return Outcome{}, fmt.Errorf("no current balance for account %s: %w", account, domain.ErrDataInconsistency)
	}

	unreconciled, err := o.transactions.UnreconciledByAccount(account)
	if err != nil {
		return Outcome{}, err
	}

	discrepancy := computeDiscrepancy(*checkpoint, *current, unreconciled)
	o.log.Info().
		Str("account", account).
		Str("discrepancy", discrepancy.Display()).
		Int("unreconciled", len(unreconciled)).
		Msg("Discrepancy computed")

	if discrepancy.IsZero() {
		if err := o.applier.Apply(account, nil, current.Date, current.Balance); err != nil {
			return Outcome{}, err
		}
		o.surface.Show(fmt.Sprintf("Account %s is balanced. Reconciled %d transaction(s).", account, len(unreconciled)))
		return Outcome{Account: account, State: StateZero, Discrepancy: discrepancy}, nil
	}

	o.surface.Show(fmt.Sprintf("Account %s has a discrepancy of %s (%d unreconciled transactions).",
		account, discrepancy.Display(), len(unreconciled)))

	proceed, err := o.surface.AskYesNo("Do you want to search for transactions that explain it?")
	if err != nil {
		return Outcome{}, err
	}
	if !proceed {
		return Outcome{Account: account, State: StateSkipped, Discrepancy: discrepancy}, nil
	}

	// A combination explains the discrepancy when excluding it makes the
	// remaining unreconciled sum equal the balance delta, i.e. when it sums
	// to the negated discrepancy.
	target := discrepancy.Neg()

	resolved, err := o.search(account, *checkpoint, *current, unreconciled, target)
	if err != nil {
		return Outcome{}, err
	}
	if resolved {
		return Outcome{Account: account, State: StateResolved, Discrepancy: discrepancy}, nil
	}

	if err := o.exporter.ExportUnresolved(account, *checkpoint, unreconciled, *current, discrepancy); err != nil {
		return Outcome{}, err
	}
	o.surface.Show(fmt.Sprintf("Account %s remains unresolved; details exported for manual review.", account))

	return Outcome{Account: account, State: StateUnresolved, Discrepancy: discrepancy}, nil
}

// search escalates through the tiers until a resolution is applied or every
// tier is exhausted.
func (o *Orchestrator) search(account string, checkpoint domain.Checkpoint, current domain.BalancePoint, unreconciled []domain.Transaction, target domain.Money) (bool, error) {
	recentFrom := current.Date.AddDate(0, 0, -o.cfg.RecentWindowDays)

	// Tier 1: a single transaction that matches the target on its own is the
	// overwhelmingly common case, so check it before any combinatorics.
	applied, err := o.tierExact(account, current, unreconciled, target, recentFrom)
	if err != nil || applied {
		return applied, err
	}

	// Tier 2: combinations within the trailing window.
	recent, err := o.transactions.UnreconciledSince(account, recentFrom)
	if err != nil {
		return false, err
	}
	recentPool := poolFrom(recent)
	applied, err = o.tierWindow(account, TierRecent, recentPool, target, current, true)
	if err != nil || applied {
		return applied, err
	}

	// Tier 3: widen with a window around the last reconciled date. Stale
	// anchors hide their explanation near the checkpoint, not in new
	// activity. Skipped when it adds no transactions.
	anchorFrom := checkpoint.Date.AddDate(0, 0, -o.cfg.AnchorWindowDays)
	anchorTo := checkpoint.Date.AddDate(0, 0, o.cfg.AnchorWindowDays)
	union, err := o.transactions.UnreconciledInWindows(account, recentFrom, anchorFrom, anchorTo)
	if err != nil {
		return false, err
	}
	unionPool := poolFrom(union)
	if len(unionPool) > len(recentPool) {
		applied, err = o.tierWindow(account, TierAnchor, unionPool, target, current, false)
		if err != nil || applied {
			return applied, err
		}
	}

	// Tier 4: everything the account has outstanding.
	return o.tierExhaustive(account, poolFrom(unreconciled), target, current)
}

// tierExact scans for single transactions matching the target. A lone match
// dated within the trailing window is treated as a pending transaction and
// excluded without prompting; anything else goes to manual selection.
func (o *Orchestrator) tierExact(account string, current domain.BalancePoint, unreconciled []domain.Transaction, target domain.Money, recentFrom time.Time) (bool, error) {
	var candidates []domain.Candidate
	var recent bool
	for _, t := range unreconciled {
		if t.Amount.Equals(target) {
			candidates = append(candidates, domain.Candidate{TransactionIDs: []string{t.ID}})
			recent = !t.Date.Before(recentFrom)
		}
	}

	if len(candidates) == 0 {
		return false, nil
	}

	if len(candidates) == 1 && recent {
		o.log.Info().Str("account", account).Msg("Single recent exact match; excluding as pending")
		o.surface.Show(fmt.Sprintf("Found a single recent transaction matching the discrepancy on %s; treating it as pending.", account))
		if err := o.applier.AutoExclude(account, candidates[0], current.Date, current.Balance); err != nil {
			return false, err
		}
		return true, nil
	}

	return o.applier.SelectAndApply(account, candidates, current.Date, current.Balance)
}

// tierWindow runs a collect-all search over one windowed pool, gated on the
// estimated cost. autoSingle enables the pending-transaction shortcut when
// exactly one combination is found.
func (o *Orchestrator) tierWindow(account string, tier Tier, pool []matching.PoolEntry, target domain.Money, current domain.BalancePoint, autoSingle bool) (bool, error) {
	if len(pool) == 0 {
		return false, nil
	}

	seconds, combinations := o.estimator.Estimate(len(pool), 1, 0)
	if seconds >= o.cfg.ReasonableSeconds {
		ok, err := o.resolver.ConfirmSearch(SearchDecisionRequest{
			Account:          account,
			Tier:             tier,
			PoolSize:         len(pool),
			EstimatedSeconds: seconds,
			Combinations:     combinations,
		})
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	candidates := o.matcher.FindMatches(pool, target, 1, 0, matching.CollectAll)
	if len(candidates) == 0 {
		return false, nil
	}

	if autoSingle && len(candidates) == 1 {
		o.log.Info().Str("account", account).Str("tier", string(tier)).Msg("Single windowed match; excluding as pending")
		o.surface.Show(fmt.Sprintf("Found a single recent combination matching the discrepancy on %s; treating it as pending.", account))
		if err := o.applier.AutoExclude(account, candidates[0], current.Date, current.Balance); err != nil {
			return false, err
		}
		return true, nil
	}

	return o.applier.SelectAndApply(account, candidates, current.Date, current.Balance)
}

// tierExhaustive searches the full unreconciled pool. Cheap searches run
// outright; expensive ones proceed through an escalating menu of size caps
// until resolved, exhausted, or abandoned.
func (o *Orchestrator) tierExhaustive(account string, pool []matching.PoolEntry, target domain.Money, current domain.BalancePoint) (bool, error) {
	if len(pool) == 0 {
		return false, nil
	}

	seconds, _ := o.estimator.Estimate(len(pool), 1, 0)
	if seconds < o.cfg.ReasonableSeconds {
		candidates := o.matcher.FindMatches(pool, target, 1, 0, matching.CollectAll)
		if len(candidates) == 0 {
			return false, nil
		}
		return o.applier.SelectAndApply(account, candidates, current.Date, current.Balance)
	}

	searchedUp := 0
	for searchedUp < len(pool) {
		decision, err := o.resolver.ChooseSizeCap(o.sizeCapRequest(account, len(pool), searchedUp))
		if err != nil {
			return false, err
		}

		var rMax int
		switch {
		case decision.Skip:
			return false, nil
		case decision.All:
			rMax = len(pool)
		default:
			rMax = decision.Limit
			if rMax <= searchedUp || rMax > len(pool) {
				return false, fmt.Errorf("size cap %d outside remaining range (%d, %d]", rMax, searchedUp, len(pool))
			}
		}

		candidates := o.matcher.FindMatches(pool, target, searchedUp+1, rMax, matching.CollectAll)
		searchedUp = rMax

		if len(candidates) == 0 {
			o.surface.Show(fmt.Sprintf("No matching combinations of up to %d transactions.", rMax))
			continue
		}

		applied, err := o.applier.SelectAndApply(account, candidates, current.Date, current.Balance)
		if err != nil || applied {
			return applied, err
		}
	}

	return false, nil
}

// sizeCapRequest builds the escalating size-cap menu: one step, two steps, a
// proportional jump, and everything.
func (o *Orchestrator) sizeCapRequest(account string, poolSize, searchedUp int) SizeCapRequest {
	jump := int(math.Ceil(float64(poolSize-searchedUp) / 20))
	if jump < 4 {
		jump = 4
	}

	var options []SizeCapOption
	for _, limit := range []int{searchedUp + 1, searchedUp + 2, searchedUp + jump} {
		if limit > poolSize {
			limit = poolSize
		}
		seconds, combinations := o.estimator.Estimate(poolSize, searchedUp+1, limit)
		options = append(options, SizeCapOption{Limit: limit, EstimatedSeconds: seconds, Combinations: combinations})
	}

	allSeconds, allCombinations := o.estimator.Estimate(poolSize, searchedUp+1, poolSize)

	return SizeCapRequest{
		Account:    account,
		PoolSize:   poolSize,
		SearchedUp: searchedUp,
		Options:    options,
		All:        SizeCapOption{Limit: poolSize, EstimatedSeconds: allSeconds, Combinations: allCombinations},
	}
}

// computeDiscrepancy is the core identity: the gap between the balance delta
// since the checkpoint and the sum of everything still unreconciled.
func computeDiscrepancy(checkpoint domain.Checkpoint, current domain.BalancePoint, unreconciled []domain.Transaction) domain.Money {
	sum := domain.Money{}
	for _, t := range unreconciled {
		sum = sum.Add(t.Amount)
	}
	return current.Balance.Sub(checkpoint.Balance).Sub(sum).Quantize()
}

func poolFrom(transactions []domain.Transaction) []matching.PoolEntry {
	pool := make([]matching.PoolEntry, len(transactions))
	for i, t := range transactions {
		pool[i] = matching.PoolEntry{ID: t.ID, Date: t.Date, Amount: t.Amount}
	}
	return pool
}
