package matching

import (
	"math/big"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinationCount_AllSizesIsPowerOfTwoMinusOne(t *testing.T) {
	// Sum of C(n, r) for r in 1..n is 2^n - 1.
	for _, n := range []int{1, 2, 5, 10, 20, 40, 63, 100} {
		want := new(big.Int).Lsh(big.NewInt(1), uint(n))
		want.Sub(want, big.NewInt(1))

		got := CombinationCount(n, 1, n)
		assert.Equal(t, 0, got.Cmp(want), "n=%d: got %s want %s", n, got, want)
	}
}

func TestCombinationCount_DefaultsAndClamping(t *testing.T) {
	t.Run("rMax zero means all sizes", func(t *testing.T) {
		assert.Equal(t, 0, CombinationCount(10, 1, 0).Cmp(CombinationCount(10, 1, 10)))
	})

	t.Run("rMax beyond n is clamped", func(t *testing.T) {
		assert.Equal(t, 0, CombinationCount(10, 1, 99).Cmp(CombinationCount(10, 1, 10)))
	})

	t.Run("empty pool", func(t *testing.T) {
		assert.Equal(t, 0, CombinationCount(0, 1, 0).Sign())
	})

	t.Run("empty range", func(t *testing.T) {
		assert.Equal(t, 0, CombinationCount(5, 6, 5).Sign())
	})

	t.Run("single size", func(t *testing.T) {
		// C(5, 2) = 10
		assert.Equal(t, 0, CombinationCount(5, 2, 2).Cmp(big.NewInt(10)))
	})
}

func TestCombinationCount_NoOverflowForLargePools(t *testing.T) {
	// C(300, 150) alone is ~9e88; the sum must survive far past int64.
	got := CombinationCount(300, 1, 300)

	want := new(big.Int).Lsh(big.NewInt(1), 300)
	want.Sub(want, big.NewInt(1))
	require.Equal(t, 0, got.Cmp(want))
}

func TestEstimator_Estimate(t *testing.T) {
	est := NewEstimator(NewCalibration(zerolog.Nop()))

	seconds, count := est.Estimate(30, 1, 3)
	assert.GreaterOrEqual(t, seconds, 0.0)
	assert.Equal(t, 0, count.Cmp(CombinationCount(30, 1, 3)))

	// Proportionality: more combinations never estimates cheaper.
	moreSeconds, moreCount := est.Estimate(30, 1, 10)
	assert.Equal(t, 1, moreCount.Cmp(count))
	assert.GreaterOrEqual(t, moreSeconds, seconds)
}

func TestCalibration_ComputeOnce(t *testing.T) {
	cal := NewCalibration(zerolog.Nop())

	first := cal.SecondsPerCombination()
	second := cal.SecondsPerCombination()
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 0.0)
}

func TestCalibration_ConcurrentFirstUse(t *testing.T) {
	cal := NewCalibration(zerolog.Nop())

	const goroutines = 8
	results := make([]float64, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = cal.SecondsPerCombination()
		}()
	}
	wg.Wait()

	// Idempotent memoization: every caller observes the same value.
	for i := 1; i < goroutines; i++ {
		assert.Equal(t, results[0], results[i])
	}
}
