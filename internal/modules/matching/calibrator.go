package matching

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// Calibration owns the measured wall-clock cost of evaluating one candidate
// combination. It is measured at most once per process: the first caller
// pays for a short synthetic benchmark, every later caller reads the
// memoized value. The measurement is an order-of-magnitude guide for
// human-facing estimates, not a precise predictor.
type Calibration struct {
	once           sync.Once
	perCombination float64
	log            zerolog.Logger
}

// Calibration benchmark shape: a pool of this many synthetic transactions,
// searched over subset sizes 1..calibrationMaxSize for a target no random
// pool is expected to hit.
const (
	calibrationPoolSize = 50
	calibrationMaxSize  = 3
)

// NewCalibration creates an unmeasured calibration context.
func NewCalibration(log zerolog.Logger) *Calibration {
	return &Calibration{
		log: log.With().Str("component", "calibration").Logger(),
	}
}

// SecondsPerCombination returns the measured per-combination cost in
// seconds, running the benchmark on first use. Safe for concurrent first
// use: sync.Once gives compute-once semantics without locking later reads.
func (c *Calibration) SecondsPerCombination() float64 {
	c.once.Do(c.measure)
	return c.perCombination
}

func (c *Calibration) measure() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	date := time.Now()

	pool := make([]PoolEntry, calibrationPoolSize)
	for i := range pool {
		pool[i] = PoolEntry{
			ID:     "calibration",
			Date:   date,
			Amount: domain.NewMoneyFromFloat(rng.Float64()*200 - 100),
		}
	}

	// A clean two-decimal target is effectively unreachable by sums of
	// full-precision random amounts; the benchmark measures pure
	// enumeration cost.
	target := domain.MustMoney("98.02").Quantize()
	combinations := CombinationCount(calibrationPoolSize, 1, calibrationMaxSize)

	start := time.Now()
	serialMatch(pool, target, 1, calibrationMaxSize, false)
	elapsed := time.Since(start)

	count := bigToFloat(combinations)
	if count <= 0 {
		// Zero-guard: with nothing evaluated, report zero cost so
		// estimates always read as instant rather than blocking.
		c.perCombination = 0
		return
	}

	c.perCombination = elapsed.Seconds() / count

	c.log.Debug().
		Float64("seconds_per_combination", c.perCombination).
		Str("combinations", combinations.String()).
		Dur("elapsed", elapsed).
		Msg("Calibrated combination search cost")
}
