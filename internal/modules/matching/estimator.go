package matching

import (
	"math"
	"math/big"
)

// Estimator predicts the wall-clock cost of a combination search before any
// CPU is committed to it. Costs come from the injected Calibration context,
// which is measured lazily on first use.
type Estimator struct {
	cal *Calibration
}

// NewEstimator creates an estimator backed by the given calibration context.
func NewEstimator(cal *Calibration) *Estimator {
	return &Estimator{cal: cal}
}

// Estimate returns the estimated wall-clock seconds and the exact number of
// combinations for searching subset sizes rMin..rMax over a pool of n
// entries. rMax <= 0 means "all sizes" (rMax = n).
//
// The count is exact and arbitrary-precision: C(n, n/2) blows past int64
// once pools reach realistic sizes, so the binomial sum is computed in
// big.Int and only projected to float64 for the time estimate.
func (e *Estimator) Estimate(n, rMin, rMax int) (float64, *big.Int) {
	count := CombinationCount(n, rMin, rMax)
	seconds := bigToFloat(count) * e.cal.SecondsPerCombination()
	return seconds, count
}

// CombinationCount returns sum over r in [rMin, rMax] of C(n, r).
// rMax <= 0 defaults to n. Out-of-range bounds are clamped; an empty range
// yields zero.
func CombinationCount(n, rMin, rMax int) *big.Int {
	total := new(big.Int)
	if n <= 0 {
		return total
	}
	if rMin < 1 {
		rMin = 1
	}
	if rMax <= 0 || rMax > n {
		rMax = n
	}

	for r := rMin; r <= rMax; r++ {
		total.Add(total, new(big.Int).Binomial(int64(n), int64(r)))
	}

	return total
}

// bigToFloat projects an arbitrary-precision count onto float64, saturating
// at +Inf for counts beyond float64 range. Good enough for a human-facing
// time estimate.
func bigToFloat(n *big.Int) float64 {
	f, _ := new(big.Float).SetInt(n).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
