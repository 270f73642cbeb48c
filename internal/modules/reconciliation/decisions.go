package reconciliation

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ledgerline/ledgerline/internal/ui"
)

// Tier identifies one of the progressively widened search pools.
type Tier string

const (
	// TierExact is the single-transaction fast path over all unreconciled
	// transactions.
	TierExact Tier = "exact"
	// TierRecent searches the trailing recency window.
	TierRecent Tier = "recent"
	// TierAnchor widens the pool with a window around the last reconciled
	// date.
	TierAnchor Tier = "anchor"
	// TierExhaustive searches every unreconciled transaction.
	TierExhaustive Tier = "exhaustive"
)

// SearchDecisionRequest describes the tradeoff of running one search tier.
// The orchestrator emits it instead of prompting inline, which keeps the
// combinatorial logic testable without simulating input.
type SearchDecisionRequest struct {
	Account          string
	Tier             Tier
	PoolSize         int
	EstimatedSeconds float64
	Combinations     *big.Int
}

// SizeCapOption is one entry of the escalating size-cap menu for the
// exhaustive tier.
type SizeCapOption struct {
	Limit            int
	EstimatedSeconds float64
	Combinations     *big.Int
}

// SizeCapRequest asks how far to push an expensive exhaustive search.
type SizeCapRequest struct {
	Account    string
	PoolSize   int
	SearchedUp int // largest subset size already searched
	Options    []SizeCapOption
	All        SizeCapOption // cost of searching every remaining size
}

// SizeCapDecision is the resolved answer to a SizeCapRequest.
type SizeCapDecision struct {
	Skip  bool
	All   bool
	Limit int // meaningful when neither Skip nor All
}

// DecisionResolver turns search-tradeoff descriptions into decisions. The
// interactive implementation asks a human; tests script it.
type DecisionResolver interface {
	// ConfirmSearch decides whether an expensive tier search should run.
	ConfirmSearch(req SearchDecisionRequest) (bool, error)

	// ChooseSizeCap picks the next subset-size cap for the exhaustive tier.
	ChooseSizeCap(req SizeCapRequest) (SizeCapDecision, error)
}

// SurfaceResolver resolves search decisions by prompting a Surface.
type SurfaceResolver struct {
	surface ui.Surface
}

// NewSurfaceResolver creates a resolver backed by the interactive surface.
func NewSurfaceResolver(surface ui.Surface) *SurfaceResolver {
	return &SurfaceResolver{surface: surface}
}

// ConfirmSearch explains the estimated cost and asks whether to proceed.
func (r *SurfaceResolver) ConfirmSearch(req SearchDecisionRequest) (bool, error) {
	r.surface.Show(fmt.Sprintf(
		"Account %s: searching %d transactions (%s combinations) is estimated to take %.2f seconds.",
		req.Account, req.PoolSize, req.Combinations, req.EstimatedSeconds))

	return r.surface.AskYesNo("Do you want to proceed with looking for matches within these transactions?")
}

// ChooseSizeCap presents the escalating menu of size-capped searches.
func (r *SurfaceResolver) ChooseSizeCap(req SizeCapRequest) (SizeCapDecision, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Where would you like to cap the number of transactions per combination? (%d of %d sizes searched so far)\n",
		req.SearchedUp, req.PoolSize)

	options := make([]string, 0, len(req.Options)+2)
	seen := make(map[string]bool)
	for _, opt := range req.Options {
		key := strconv.Itoa(opt.Limit)
		if seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, key)
		fmt.Fprintf(&b, " - (%d) Search %s combinations of up to %d transactions: %.2f minutes.\n",
			opt.Limit, opt.Combinations, opt.Limit, opt.EstimatedSeconds/60)
	}
	fmt.Fprintf(&b, " - (a) Search ALL %s remaining combinations: %.2f minutes.\n",
		req.All.Combinations, req.All.EstimatedSeconds/60)
	fmt.Fprintf(&b, " - (s) Skip further searching.")
	options = append(options, "a", "s")

	r.surface.Show(b.String())

	choice, err := r.surface.AskChoice("Your selection? : ", options)
	if err != nil {
		return SizeCapDecision{}, err
	}

	switch choice {
	case "s":
		return SizeCapDecision{Skip: true}, nil
	case "a":
		return SizeCapDecision{All: true}, nil
	default:
		limit, err := strconv.Atoi(choice)
		if err != nil {
			return SizeCapDecision{}, fmt.Errorf("unexpected size cap choice %q: %w", choice, err)
		}
		return SizeCapDecision{Limit: limit}, nil
	}
}
