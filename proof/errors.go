package proof

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrNotPublished indicates nothing is published for the handle.
	ErrNotPublished = fmt.Errorf("%w: proof: nothing published for handle", revshare.ErrValidation)

	// ErrPublishUnsupported indicates the channel cannot publish on the
	// handle owner's behalf; the owner must publish the content manually.
	ErrPublishUnsupported = errors.New("proof: channel cannot publish")

	// ErrLookupFailed indicates the channel could not be read.
	ErrLookupFailed = fmt.Errorf("%w: proof: lookup failed", revshare.ErrNetwork)

	// ErrDNSSECValidationFailed indicates the upstream resolver did not
	// authenticate the answer.
	ErrDNSSECValidationFailed = fmt.Errorf("%w: proof: DNSSEC validation failed", revshare.ErrRejected)

	// ErrNoRecords indicates the name exists but has no records of the
	// requested type, or does not exist at all.
	ErrNoRecords = errors.New("proof: no records")
)
