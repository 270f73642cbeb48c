// Package matching implements the combinatorial search for transaction
// combinations whose amount-sum exactly matches a target value, together
// with the calibration and estimation machinery that decides whether and how
// a search is worth running.
package matching

import (
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// PoolEntry is one unreconciled transaction in a search pool. Pools are
// scoped by the caller (recency window, anchor window, full set).
type PoolEntry struct {
	ID     string
	Date   time.Time
	Amount domain.Money
}

// Mode selects how much of the search space a call explores.
type Mode int

const (
	// CollectAll enumerates the entire size range and returns every
	// qualifying combination, for presenting options to a human.
	CollectAll Mode = iota
	// FirstMatch stops at the first qualifying combination, for callers
	// that only need existence.
	FirstMatch
)

// SerialThreshold is the combination count below which a search runs on the
// calling goroutine. Larger searches are partitioned by subset size across
// the worker pool.
const SerialThreshold = 10_000

// Matcher enumerates subsets of a transaction pool and returns those whose
// cent-quantized amount-sum equals the target. It owns a reusable bounded
// worker pool for large searches.
type Matcher struct {
	estimator       *Estimator
	exec            *executor
	serialThreshold *big.Int
	log             zerolog.Logger
}

// NewMatcher creates a matcher with a worker pool sized to the available
// hardware parallelism.
func NewMatcher(estimator *Estimator, log zerolog.Logger) *Matcher {
	return &Matcher{
		estimator:       estimator,
		exec:            newExecutor(runtime.NumCPU()),
		serialThreshold: big.NewInt(SerialThreshold),
		log:             log.With().Str("component", "matcher").Logger(),
	}
}

// Close releases the matcher's worker pool.
func (m *Matcher) Close() {
	m.exec.close()
}

// FindMatches returns every combination of rMin..rMax pool entries whose
// quantized amount-sum equals target. rMax <= 0 means all sizes. Each subset
// is considered exactly once regardless of pool order; the returned set is
// deterministic for fixed inputs, though outer order is unspecified when the
// search runs in parallel.
//
// An empty pool, or rMin exceeding the pool size, yields no matches.
func (m *Matcher) FindMatches(pool []PoolEntry, target domain.Money, rMin, rMax int, mode Mode) []domain.Candidate {
	if len(pool) == 0 {
		return nil
	}
	if rMin < 1 {
		rMin = 1
	}
	if rMax <= 0 || rMax > len(pool) {
		rMax = len(pool)
	}
	if rMin > rMax {
		return nil
	}

	target = target.Quantize()

	// Existence checks stop at the first hit, which only makes sense on the
	// calling goroutine: dispatched size-r tasks run to completion.
	if mode == FirstMatch {
		return serialMatch(pool, target, rMin, rMax, true)
	}

	_, combinations := m.estimator.Estimate(len(pool), rMin, rMax)
	if combinations.Cmp(m.serialThreshold) < 0 {
		return serialMatch(pool, target, rMin, rMax, false)
	}

	m.log.Debug().
		Int("pool", len(pool)).
		Int("r_min", rMin).
		Int("r_max", rMax).
		Str("combinations", combinations.String()).
		Msg("Dispatching parallel combination search")

	return m.parallelMatch(pool, target, rMin, rMax)
}

// serialMatch enumerates all subset sizes on the calling goroutine.
func serialMatch(pool []PoolEntry, target domain.Money, rMin, rMax int, firstOnly bool) []domain.Candidate {
	var matches []domain.Candidate
	for r := rMin; r <= rMax; r++ {
		found := matchSize(pool, target, r, firstOnly)
		matches = append(matches, found...)
		if firstOnly && len(matches) > 0 {
			return matches[:1]
		}
	}
	return matches
}

// parallelMatch partitions the search by subset size - one task per r value.
// Partitioning by r rather than by pool slice keeps each task's space
// independent and cannot double-count a subset.
func (m *Matcher) parallelMatch(pool []PoolEntry, target domain.Money, rMin, rMax int) []domain.Candidate {
	results := make([][]domain.Candidate, rMax-rMin+1)

	var wg sync.WaitGroup
	for r := rMin; r <= rMax; r++ {
		r := r
		slot := r - rMin
		wg.Add(1)
		m.exec.submit(func() {
			defer wg.Done()
			results[slot] = matchSize(pool, target, r, false)
		})
	}
	wg.Wait()

	var matches []domain.Candidate
	for _, found := range results {
		matches = append(matches, found...)
	}
	return matches
}

// matchSize tests every r-subset of the pool against the target.
func matchSize(pool []PoolEntry, target domain.Money, r int, firstOnly bool) []domain.Candidate {
	var matches []domain.Candidate

	gen := combin.NewCombinationGenerator(len(pool), r)
	idx := make([]int, r)
	for gen.Next() {
		gen.Combination(idx)

		sum := domain.Money{}
		for _, i := range idx {
			sum = sum.Add(pool[i].Amount)
		}

		if sum.Equals(target) {
			ids := make([]string, r)
			for j, i := range idx {
				ids[j] = pool[i].ID
			}
			matches = append(matches, domain.Candidate{TransactionIDs: ids})
			if firstOnly {
				return matches
			}
		}
	}

	return matches
}
