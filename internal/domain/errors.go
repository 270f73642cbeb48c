package domain

import "errors"

// Sentinel errors for the failure modes the reconciliation flow has to
// distinguish. Wrap these with fmt.Errorf("...: %w", err) and match with
// errors.Is.
var (
	// ErrDataInconsistency means an account cannot be processed at all, e.g.
	// transactions reference an account with no checkpoint and no way to seed
	// one. The account is aborted; a checkpoint is never fabricated.
	ErrDataInconsistency = errors.New("ledger data inconsistency")

	// ErrAmbiguousResolution means multiple valid combinations were found and
	// no disposition was chosen. Recovered locally: the account is left
	// unresolved and its detail exported.
	ErrAmbiguousResolution = errors.New("ambiguous resolution")

	// ErrEstimationUnavailable means a caller demanded a cost estimate
	// without allowing calibration to run.
	ErrEstimationUnavailable = errors.New("estimation unavailable")

	// ErrPrecisionViolation means a comparison was attempted on values that
	// were not quantized to the cent. This is a programming defect; the
	// Money type quantizes at every comparison boundary to prevent it.
	ErrPrecisionViolation = errors.New("arithmetic precision violation")
)
