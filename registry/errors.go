package registry

import (
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrSplitNotFound indicates no split has the requested ID or address.
	ErrSplitNotFound = fmt.Errorf("%w: registry: split", revshare.ErrNotFound)

	// ErrContributorNotFound indicates no contributor has the requested ID.
	ErrContributorNotFound = fmt.Errorf("%w: registry: contributor", revshare.ErrNotFound)

	// ErrSplitExists indicates a split already uses the ledger address.
	ErrSplitExists = fmt.Errorf("%w: registry: split address already registered", revshare.ErrStateConflict)

	// ErrSplitClosed indicates a mutation of a closed split.
	ErrSplitClosed = fmt.Errorf("%w: registry: split is closed", revshare.ErrStateConflict)

	// ErrAddressLocked indicates an attempt to rebind a verified contributor's address.
	ErrAddressLocked = fmt.Errorf("%w: registry: verified address cannot change", revshare.ErrStateConflict)

	// ErrAddressRequired indicates a contributor cannot be verified without an address.
	ErrAddressRequired = fmt.Errorf("%w: registry: settlement address required", revshare.ErrValidation)

	// ErrUnknownHandle indicates a share update names a handle outside the split.
	ErrUnknownHandle = fmt.Errorf("%w: registry: unknown contributor handle", revshare.ErrValidation)
)
