package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/domain"
)

func TestApplier_AppliesAllDispositions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-05-01")))
	f.insert("del", "checking", "2024-06-01", "1.00")
	f.insert("conf", "checking", "2024-06-02", "2.00")
	f.insert("excl", "checking", "2024-06-03", "3.00")
	f.insert("rest", "checking", "2024-06-04", "4.00")

	err := f.applier().Apply("checking", map[string]domain.Disposition{
		"del":  domain.DispositionDelete,
		"conf": domain.DispositionConfirm,
		"excl": domain.DispositionExclude,
	}, day("2024-06-10"), domain.MustMoney("200.00"))
	require.NoError(t, err)

	deleted, err := f.transactions.GetByID("del")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	f.requireReconciled("conf", true)
	f.requireReconciled("excl", false)
	f.requireReconciled("rest", true)
	f.requireCheckpoint("checking", "200.00", "2024-06-10")
}

func TestApplier_SetsReconcileDate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("0.00"), day("2024-05-01")))
	f.insert("t1", "checking", "2024-06-01", "1.00")

	require.NoError(t, f.applier().Apply("checking", nil, day("2024-06-10"), domain.MustMoney("1.00")))

	tx, err := f.transactions.GetByID("t1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.NotNil(t, tx.ReconcileDate)
	assert.True(t, tx.ReconcileDate.Equal(day("2024-06-10")))
}

func TestApplier_RollsBackOnPartialFailure(t *testing.T) {
	// Deleting a transaction that does not exist fails the unit of work;
	// nothing else in the same resolution may land.
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("100.00"), day("2024-05-01")))
	f.insert("t1", "checking", "2024-06-01", "1.00")
	f.insert("t2", "checking", "2024-06-02", "2.00")

	err := f.applier().Apply("checking", map[string]domain.Disposition{
		"ghost": domain.DispositionDelete,
		"t1":    domain.DispositionConfirm,
	}, day("2024-06-10"), domain.MustMoney("200.00"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataInconsistency)

	f.requireReconciled("t1", false)
	f.requireReconciled("t2", false)
	f.requireCheckpoint("checking", "100.00", "2024-05-01")
}

func TestApplier_RollsBackWhenCheckpointMissing(t *testing.T) {
	f := newFixture(t)
	f.insert("t1", "nocp", "2024-06-01", "1.00")

	err := f.applier().Apply("nocp", nil, day("2024-06-10"), domain.MustMoney("1.00"))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataInconsistency)
	f.requireReconciled("t1", false)
}

func TestApplier_RejectsUnknownDisposition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.checkpoints.Seed("checking", domain.MustMoney("0.00"), day("2024-05-01")))
	f.insert("t1", "checking", "2024-06-01", "1.00")

	err := f.applier().Apply("checking", map[string]domain.Disposition{
		"t1": domain.Disposition("shrug"),
	}, day("2024-06-10"), domain.MustMoney("1.00"))

	require.Error(t, err)
	f.requireReconciled("t1", false)
}
