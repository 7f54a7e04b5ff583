package verification

import (
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrSessionNotFound indicates no session has the requested ID.
	ErrSessionNotFound = fmt.Errorf("%w: verification: session", revshare.ErrNotFound)

	// ErrContributorNotFound indicates the contributor being verified does not exist.
	ErrContributorNotFound = fmt.Errorf("%w: verification: contributor", revshare.ErrNotFound)

	// ErrSessionNotPending indicates the session was already completed or expired.
	ErrSessionNotPending = fmt.Errorf("%w: verification: session is not pending", revshare.ErrStateConflict)

	// ErrSessionExpired indicates the session window has closed.
	ErrSessionExpired = fmt.Errorf("%w: verification: session expired", revshare.ErrStateConflict)

	// ErrAlreadyVerified indicates the contributor has already proven an address.
	ErrAlreadyVerified = fmt.Errorf("%w: verification: contributor already verified", revshare.ErrStateConflict)

	// ErrHandleMismatch indicates the handle does not belong to the contributor.
	ErrHandleMismatch = fmt.Errorf("%w: verification: handle does not match contributor", revshare.ErrValidation)

	// ErrChallengeMismatch indicates the published content lacks the challenge.
	ErrChallengeMismatch = fmt.Errorf("%w: verification: published content does not match challenge", revshare.ErrValidation)

	// ErrInvalidSignature indicates the proof is not a valid signature of the
	// challenge by the settlement address.
	ErrInvalidSignature = fmt.Errorf("%w: verification: invalid signature", revshare.ErrValidation)
)
