package reconciliation

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/database"
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/modules/ledger"
	"github.com/ledgerline/ledgerline/internal/modules/matching"
)

func day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// scriptedSurface replays pre-recorded answers and fails the test when the
// flow asks for more input than the scenario scripted.
type scriptedSurface struct {
	t       *testing.T
	yesNo   []bool
	choices []string
	shown   []string
}

func (s *scriptedSurface) AskYesNo(prompt string) (bool, error) {
	require.NotEmpty(s.t, s.yesNo, "unscripted AskYesNo: %s", prompt)
	answer := s.yesNo[0]
	s.yesNo = s.yesNo[1:]
	return answer, nil
}

func (s *scriptedSurface) AskChoice(prompt string, options []string) (string, error) {
	require.NotEmpty(s.t, s.choices, "unscripted AskChoice: %s", prompt)
	answer := s.choices[0]
	s.choices = s.choices[1:]
	assert.Contains(s.t, options, answer, "scripted answer not offered: %s", prompt)
	return answer, nil
}

func (s *scriptedSurface) AskNumber(prompt string) (domain.Money, error) {
	s.t.Fatalf("unexpected AskNumber: %s", prompt)
	return domain.Money{}, nil
}

func (s *scriptedSurface) AskDate(prompt string) (time.Time, error) {
	s.t.Fatalf("unexpected AskDate: %s", prompt)
	return time.Time{}, nil
}

func (s *scriptedSurface) Show(text string) {
	s.shown = append(s.shown, text)
}

type scriptedResolver struct {
	t        *testing.T
	confirms []bool
	caps     []SizeCapDecision
}

func (r *scriptedResolver) ConfirmSearch(req SearchDecisionRequest) (bool, error) {
	require.NotEmpty(r.t, r.confirms, "unscripted ConfirmSearch for %s tier %s", req.Account, req.Tier)
	answer := r.confirms[0]
	r.confirms = r.confirms[1:]
	return answer, nil
}

func (r *scriptedResolver) ChooseSizeCap(req SizeCapRequest) (SizeCapDecision, error) {
	require.NotEmpty(r.t, r.caps, "unscripted ChooseSizeCap for %s", req.Account)
	decision := r.caps[0]
	r.caps = r.caps[1:]
	return decision, nil
}

type exportCall struct {
	account      string
	discrepancy  domain.Money
	unreconciled int
}

type recordingExporter struct {
	calls []exportCall
}

func (e *recordingExporter) ExportUnresolved(account string, _ domain.Checkpoint, unreconciled []domain.Transaction, _ domain.BalancePoint, discrepancy domain.Money) error {
	e.calls = append(e.calls, exportCall{
		account:      account,
		discrepancy:  discrepancy,
		unreconciled: len(unreconciled),
	})
	return nil
}

type mapBalances map[string]domain.BalancePoint

func (m mapBalances) CurrentBalance(account string) (*domain.BalancePoint, error) {
	if point, ok := m[account]; ok {
		return &point, nil
	}
	return nil, nil
}

type fixture struct {
	t            *testing.T
	db           *database.DB
	transactions *ledger.TransactionRepository
	checkpoints  *ledger.CheckpointRepository
	matcher      *matching.Matcher
	estimator    *matching.Estimator
	surface      *scriptedSurface
	resolver     *scriptedResolver
	exporter     *recordingExporter
	balances     mapBalances
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	estimator := matching.NewEstimator(matching.NewCalibration(zerolog.Nop()))
	matcher := matching.NewMatcher(estimator, zerolog.Nop())
	t.Cleanup(matcher.Close)

	return &fixture{
		t:            t,
		db:           db,
		transactions: ledger.NewTransactionRepository(db.Conn(), zerolog.Nop()),
		checkpoints:  ledger.NewCheckpointRepository(db.Conn(), zerolog.Nop()),
		matcher:      matcher,
		estimator:    estimator,
		surface:      &scriptedSurface{t: t},
		resolver:     &scriptedResolver{t: t},
		exporter:     &recordingExporter{},
		balances:     mapBalances{},
	}
}

func (f *fixture) applier() *Applier {
	return NewApplier(f.db.Conn(), f.transactions, f.checkpoints, f.surface, zerolog.Nop())
}

func (f *fixture) orchestrator(cfg Config) *Orchestrator {
	return NewOrchestrator(f.transactions, f.checkpoints, f.matcher, f.estimator,
		f.applier(), f.balances, f.resolver, f.exporter, f.surface, cfg, zerolog.Nop())
}

func (f *fixture) insert(id, account, date, amount string) {
	f.t.Helper()
	require.NoError(f.t, f.transactions.Insert(domain.Transaction{
		ID:                id,
		Date:              day(date),
		Merchant:          "merchant-" + id,
		Category:          "misc",
		Account:           account,
		OriginalStatement: "stmt-" + id,
		Amount:            domain.MustMoney(amount),
		ImportDate:        day("2024-01-01"),
	}))
}

func (f *fixture) requireReconciled(id string, want bool) {
	f.t.Helper()
	tx, err := f.transactions.GetByID(id)
	require.NoError(f.t, err)
	require.NotNil(f.t, tx)
	assert.Equal(f.t, want, tx.Reconciled, "transaction %s reconciled flag", id)
}

func (f *fixture) requireCheckpoint(account, balance, date string) {
	f.t.Helper()
	cp, err := f.checkpoints.Get(account)
	require.NoError(f.t, err)
	require.NotNil(f.t, cp)
	assert.True(f.t, cp.Balance.Equals(domain.MustMoney(balance)),
		"checkpoint balance: got %s want %s", cp.Balance.Display(), balance)
	assert.True(f.t, cp.Date.Equal(day(date)), "checkpoint date: got %s", cp.Date)
}

func defaultConfig() Config {
	return Config{RecentWindowDays: 5, AnchorWindowDays: 3, ReasonableSeconds: 1e9}
}

func TestReconcileAccount_ZeroDiscrepancyReconcilesEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-05-01")))
	f.insert("t1", "checking", "2024-06-08", "50.00")
	f.insert("t2", "checking", "2024-06-09", "0.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("150.00")}

	outcome, err := f.orchestrator(defaultConfig()).ReconcileAccount("checking")

	require.NoError(t, err)
	assert.Equal(t, StateZero, outcome.State)
	assert.True(t, outcome.Discrepancy.IsZero())
	f.requireReconciled("t1", true)
	f.requireReconciled("t2", true)
	f.requireCheckpoint("checking", "150.00", "2024-06-10")
}

func TestReconcileAccount_Idempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-05-01")))
	f.insert("t1", "checking", "2024-06-08", "50.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("150.00")}

	o := f.orchestrator(defaultConfig())
	first, err := o.ReconcileAccount("checking")
	require.NoError(t, err)
	require.Equal(t, StateZero, first.State)

	// Same balance again: nothing outstanding, discrepancy re-derives to
	// zero, no prompting.
	second, err := o.ReconcileAccount("checking")
	require.NoError(t, err)
	assert.Equal(t, StateZero, second.State)
	f.requireCheckpoint("checking", "150.00", "2024-06-10")
}

func TestReconcileAccount_SingleRecentMatchAutoExcludes(t *testing.T) {
	// A lone pending transaction explains the gap: -25.00 posted to the
	// ledger but not yet to the real account. It must stay unreconciled
	// without any prompting beyond the initial go-ahead.
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-04-30")))
	f.insert("pending", "checking", "2024-06-08", "-25.00")
	f.insert("cleared", "checking", "2024-05-01", "40.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("140.00")}
	f.surface.yesNo = []bool{true}

	outcome, err := f.orchestrator(defaultConfig()).ReconcileAccount("checking")

	require.NoError(t, err)
	assert.Equal(t, StateResolved, outcome.State)
	f.requireReconciled("pending", false)
	f.requireReconciled("cleared", true)
	f.requireCheckpoint("checking", "140.00", "2024-06-10")
	assert.Empty(t, f.exporter.calls)
}

func TestReconcileAccount_MultipleExactMatchesGoInteractive(t *testing.T) {
	// Two transactions individually match the target, so nothing
	// auto-applies; the user picks the first and deletes it.
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-05-01")))
	f.insert("a", "checking", "2024-06-08", "10.00")
	f.insert("b", "checking", "2024-06-09", "10.00")
	f.insert("c", "checking", "2024-06-09", "5.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("115.00")}
	f.surface.yesNo = []bool{true}
	f.surface.choices = []string{"1", "d"}

	outcome, err := f.orchestrator(defaultConfig()).ReconcileAccount("checking")

	require.NoError(t, err)
	assert.Equal(t, StateResolved, outcome.State)

	deleted, err := f.transactions.GetByID("a")
	require.NoError(t, err)
	assert.Nil(t, deleted)
	f.requireReconciled("b", true)
	f.requireReconciled("c", true)
	f.requireCheckpoint("checking", "115.00", "2024-06-10")
}

func TestReconcileAccount_EscalatesToSizeCappedExhaustiveSearch(t *testing.T) {
	// All activity is months old, so the windowed tiers have empty pools.
	// Only the 3-subset {2.00, 3.00, 7.00} explains the gap; the first cap
	// (sizes 1..2) finds nothing and the user escalates to all sizes.
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-01-01")))
	f.insert("a", "checking", "2024-01-10", "2.00")
	f.insert("b", "checking", "2024-01-10", "3.00")
	f.insert("c", "checking", "2024-01-10", "7.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("100.00")}

	f.surface.yesNo = []bool{true}
	f.surface.choices = []string{"1", "e", "e", "e"}
	f.resolver.caps = []SizeCapDecision{{Limit: 2}, {All: true}}

	cfg := defaultConfig()
	cfg.ReasonableSeconds = 0 // force the size-cap menu

	outcome, err := f.orchestrator(cfg).ReconcileAccount("checking")

	require.NoError(t, err)
	assert.Equal(t, StateResolved, outcome.State)
	assert.Empty(t, f.resolver.caps, "both scripted cap decisions consumed")
	f.requireReconciled("a", false)
	f.requireReconciled("b", false)
	f.requireReconciled("c", false)
	f.requireCheckpoint("checking", "100.00", "2024-06-10")
}

func TestReconcileAccount_UnexplainedDiscrepancyExports(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-01-01")))
	f.insert("t1", "checking", "2024-01-10", "2.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("107.00")}
	f.surface.yesNo = []bool{true}

	outcome, err := f.orchestrator(defaultConfig()).ReconcileAccount("checking")

	require.NoError(t, err)
	assert.Equal(t, StateUnresolved, outcome.State)
	require.Len(t, f.exporter.calls, 1)
	assert.Equal(t, "checking", f.exporter.calls[0].account)
	assert.True(t, f.exporter.calls[0].discrepancy.Equals(domain.MustMoney("5.00")))
	assert.Equal(t, 1, f.exporter.calls[0].unreconciled)

	// Nothing mutates on an unresolved account.
	f.requireReconciled("t1", false)
	f.requireCheckpoint("checking", "100.00", "2024-01-01")
}

func TestReconcileAccount_UserDeclinesSearch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-01-01")))
	f.insert("t1", "checking", "2024-06-08", "2.00")
	f.balances["checking"] = domain.BalancePoint{Account: "checking", Date: day("2024-06-10"), Balance: domain.MustMoney("107.00")}
	f.surface.yesNo = []bool{false}

	outcome, err := f.orchestrator(defaultConfig()).ReconcileAccount("checking")

	require.NoError(t, err)
	assert.Equal(t, StateSkipped, outcome.State)
	assert.Empty(t, f.exporter.calls)
	f.requireReconciled("t1", false)
}

func TestReconcileAccount_MissingCheckpointIsDataInconsistency(t *testing.T) {
	f := newFixture(t)
	f.insert("t1", "orphan", "2024-06-08", "2.00")
	f.balances["orphan"] = domain.BalancePoint{Account: "orphan", Date: day("2024-06-10"), Balance: domain.MustMoney("10.00")}

	_, err := f.orchestrator(defaultConfig()).ReconcileAccount("orphan")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataInconsistency))

	// No checkpoint may be fabricated.
	cp, err := f.checkpoints.Get("orphan")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestReconcileAll_OneAccountFailureDoesNotAbortTheRest(t *testing.T) {
	f := newFixture(t)

	// "a-broken" has no checkpoint; "b-good" reconciles trivially. Accounts
	// run in name order, so the failure comes first.
	f.insert("t1", "a-broken", "2024-06-08", "2.00")
	f.balances["a-broken"] = domain.BalancePoint{Account: "a-broken", Date: day("2024-06-10"), Balance: domain.MustMoney("10.00")}

	require.NoError(t, f.checkpoints.Seed("b-good", domain.MustMoney("100.00"), day("2024-05-01")))
	f.insert("t2", "b-good", "2024-06-08", "50.00")
	f.balances["b-good"] = domain.BalancePoint{Account: "b-good", Date: day("2024-06-10"), Balance: domain.MustMoney("150.00")}

	outcomes, err := f.orchestrator(defaultConfig()).ReconcileAll()

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, StateFailed, outcomes[0].State)
	assert.True(t, errors.Is(outcomes[0].Err, domain.ErrDataInconsistency))
	assert.Equal(t, StateZero, outcomes[1].State)
	f.requireReconciled("t2", true)
}
