package revshare

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error in this module wraps exactly one of these,
// so callers can branch on the kind with errors.Is.
var (
	// ErrValidation indicates malformed input; nothing was written.
	ErrValidation = errors.New("revshare: validation failed")

	// ErrNotFound indicates a missing split, contributor, session or invitation.
	ErrNotFound = errors.New("revshare: not found")

	// ErrStateConflict indicates a transition from the wrong state.
	ErrStateConflict = errors.New("revshare: state conflict")

	// ErrExternal indicates a commit-history provider or ledger failure.
	ErrExternal = errors.New("revshare: external provider error")

	// ErrCache indicates a best-effort cache failure.
	ErrCache = errors.New("revshare: cache error")
)

// External provider sub-kinds.
var (
	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrExternal)

	// ErrProviderNotFound indicates the provider does not know the resource.
	ErrProviderNotFound = fmt.Errorf("%w: resource not found", ErrExternal)

	// ErrAuth indicates the provider rejected our credentials.
	ErrAuth = fmt.Errorf("%w: authentication failed", ErrExternal)

	// ErrNetwork indicates a transport failure talking to the provider.
	ErrNetwork = fmt.Errorf("%w: network failure", ErrExternal)

	// ErrRejected indicates the ledger refused a settlement.
	ErrRejected = fmt.Errorf("%w: rejected", ErrExternal)
)

var (
	// ErrShareSum indicates contributor shares do not sum to 100.
	ErrShareSum = fmt.Errorf("%w: contributor shares must sum to 100", ErrValidation)

	// ErrShareRange indicates a share outside [0, 100].
	ErrShareRange = fmt.Errorf("%w: share must be between 0 and 100", ErrValidation)

	// ErrNoContributors indicates a split without contributors.
	ErrNoContributors = fmt.Errorf("%w: at least one contributor is required", ErrValidation)

	// ErrInvalidAddress indicates a settlement or ledger address fails the format rule.
	ErrInvalidAddress = fmt.Errorf("%w: invalid address", ErrValidation)

	// ErrInvalidChain indicates an unknown chain identifier.
	ErrInvalidChain = fmt.Errorf("%w: invalid chain (must be \"mainnet\", \"testnet\", or \"regtest\")", ErrValidation)

	// ErrInvalidHandle indicates an empty or malformed contributor handle.
	ErrInvalidHandle = fmt.Errorf("%w: invalid contributor handle", ErrValidation)

	// ErrDuplicateHandle indicates a handle appears twice in one split.
	ErrDuplicateHandle = fmt.Errorf("%w: duplicate contributor handle", ErrValidation)

	// ErrInsufficientPayment indicates a zero distribution amount.
	ErrInsufficientPayment = fmt.Errorf("%w: insufficient payment for distribution", ErrValidation)

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrStateConflict)

	// ErrClaimsExceedAmount indicates claims add up to more than their distribution.
	ErrClaimsExceedAmount = fmt.Errorf("%w: claims exceed distribution amount", ErrValidation)
)

// Kind returns the name of the error kind err belongs to, or "internal"
// when err wraps none of them.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, ErrExternal):
		return "external"
	case errors.Is(err, ErrCache):
		return "cache"
	default:
		return "internal"
	}
}
