package invitation

import (
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrInvitationNotFound indicates no invitation matches the token.
	ErrInvitationNotFound = fmt.Errorf("%w: invitation: unknown token", revshare.ErrNotFound)

	// ErrSplitNotFound indicates the split being invited to does not exist.
	ErrSplitNotFound = fmt.Errorf("%w: invitation: split", revshare.ErrNotFound)

	// ErrInvitationUsed indicates the invitation was already accepted or expired.
	ErrInvitationUsed = fmt.Errorf("%w: invitation: already used", revshare.ErrStateConflict)

	// ErrInvitationExpired indicates the invitation window closed before acceptance.
	ErrInvitationExpired = fmt.Errorf("%w: invitation: expired", revshare.ErrStateConflict)

	// ErrSplitClosed indicates an invitation to a closed split.
	ErrSplitClosed = fmt.Errorf("%w: invitation: split is closed", revshare.ErrStateConflict)

	// ErrAddressBound indicates the invited handle already has a settlement address.
	ErrAddressBound = fmt.Errorf("%w: invitation: contributor already has an address", revshare.ErrStateConflict)

	// ErrInvalidEmail indicates a malformed email address.
	ErrInvalidEmail = fmt.Errorf("%w: invitation: invalid email", revshare.ErrValidation)
)
