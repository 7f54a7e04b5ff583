package distribution

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrSplitNotFound indicates the split does not exist.
	ErrSplitNotFound = fmt.Errorf("%w: distribution: split", revshare.ErrNotFound)

	// ErrDistributionNotFound indicates the distribution does not exist.
	ErrDistributionNotFound = fmt.Errorf("%w: distribution: distribution", revshare.ErrNotFound)

	// ErrContributorNotFound indicates the contributor does not exist.
	ErrContributorNotFound = fmt.Errorf("%w: distribution: contributor", revshare.ErrNotFound)

	// ErrSplitNotActive indicates funds were checked on a split that is not active.
	ErrSplitNotActive = fmt.Errorf("%w: distribution: split is not active", revshare.ErrStateConflict)

	// ErrNotFailed indicates a retry of a distribution that has not failed.
	ErrNotFailed = fmt.Errorf("%w: distribution: only failed distributions can be retried", revshare.ErrStateConflict)

	// ErrPendingExists indicates the split already has a pending distribution.
	ErrPendingExists = fmt.Errorf("%w: distribution: split already has a pending distribution", revshare.ErrStateConflict)

	// ErrUnrecorded indicates a settlement went through but could not be
	// recorded. The distribution keeps its lease, so later passes skip it
	// and eventually fail it with ErrOutcomeUnknown.
	ErrUnrecorded = errors.New("distribution: settlement executed but not recorded")

	// ErrOutcomeUnknown indicates a settlement attempt stopped without
	// recording a result. The distribution is marked failed; check the chain
	// before retrying it.
	ErrOutcomeUnknown = fmt.Errorf("%w: distribution: settlement outcome unknown", revshare.ErrStateConflict)

	// ErrLeaseLost indicates a settlement attempt no longer holds the
	// distribution.
	ErrLeaseLost = fmt.Errorf("%w: distribution: settlement attempt no longer current", revshare.ErrStateConflict)
)
