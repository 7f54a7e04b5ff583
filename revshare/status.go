package revshare

import "fmt"

// VerificationStatus tracks whether a contributor proved control of their
// settlement address. It only ever moves forward.
type VerificationStatus uint8

const (
	Unassigned VerificationStatus = iota + 1
	PendingVerification
	Verified
)

func (s VerificationStatus) String() string {
	switch s {
	case Unassigned:
		return "UNASSIGNED"
	case PendingVerification:
		return "PENDING"
	case Verified:
		return "VERIFIED"
	default:
		return fmt.Sprintf("VerificationStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s VerificationStatus) Valid() bool {
	switch s {
	case Unassigned, PendingVerification, Verified:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a contributor may move from s to next.
func (s VerificationStatus) CanTransition(next VerificationStatus) bool {
	switch s {
	case Unassigned:
		return next == PendingVerification || next == Verified
	case PendingVerification:
		return next == Verified
	case Verified:
		return false
	default:
		return false
	}
}

// ParseVerificationStatus parses the String form of a VerificationStatus.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch s {
	case "UNASSIGNED":
		return Unassigned, nil
	case "PENDING":
		return PendingVerification, nil
	case "VERIFIED":
		return Verified, nil
	default:
		return 0, fmt.Errorf("%w: unknown verification status %q", ErrValidation, s)
	}
}

// SplitStatus is the lifecycle of a revenue-sharing agreement.
type SplitStatus uint8

const (
	SplitPending SplitStatus = iota + 1
	SplitActive
	SplitPaused
	SplitClosed
)

func (s SplitStatus) String() string {
	switch s {
	case SplitPending:
		return "PENDING"
	case SplitActive:
		return "ACTIVE"
	case SplitPaused:
		return "PAUSED"
	case SplitClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SplitStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s SplitStatus) Valid() bool {
	switch s {
	case SplitPending, SplitActive, SplitPaused, SplitClosed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a split may move from s to next.
// CLOSED is terminal.
func (s SplitStatus) CanTransition(next SplitStatus) bool {
	switch s {
	case SplitPending:
		return next == SplitActive || next == SplitClosed
	case SplitActive:
		return next == SplitPaused || next == SplitClosed
	case SplitPaused:
		return next == SplitActive || next == SplitClosed
	case SplitClosed:
		return false
	default:
		return false
	}
}

// ParseSplitStatus parses the String form of a SplitStatus.
func ParseSplitStatus(s string) (SplitStatus, error) {
	switch s {
	case "PENDING":
		return SplitPending, nil
	case "ACTIVE":
		return SplitActive, nil
	case "PAUSED":
		return SplitPaused, nil
	case "CLOSED":
		return SplitClosed, nil
	default:
		return 0, fmt.Errorf("%w: unknown split status %q", ErrValidation, s)
	}
}

// SessionStatus is the state of one verification attempt.
type SessionStatus uint8

const (
	SessionPending SessionStatus = iota + 1
	SessionCompleted
	SessionExpired
)

func (s SessionStatus) String() string {
	switch s {
	case SessionPending:
		return "PENDING"
	case SessionCompleted:
		return "COMPLETED"
	case SessionExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("SessionStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionCompleted, SessionExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a session may move from s to next.
// COMPLETED and EXPIRED are terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionPending:
		return next == SessionCompleted || next == SessionExpired
	case SessionCompleted, SessionExpired:
		return false
	default:
		return false
	}
}

// ParseSessionStatus parses the String form of a SessionStatus.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch s {
	case "PENDING":
		return SessionPending, nil
	case "COMPLETED":
		return SessionCompleted, nil
	case "EXPIRED":
		return SessionExpired, nil
	default:
		return 0, fmt.Errorf("%w: unknown session status %q", ErrValidation, s)
	}
}

// InvitationStatus is the state of an out-of-band contributor invitation.
type InvitationStatus uint8

const (
	InvitationPending InvitationStatus = iota + 1
	InvitationAccepted
	InvitationExpired
)

func (s InvitationStatus) String() string {
	switch s {
	case InvitationPending:
		return "PENDING"
	case InvitationAccepted:
		return "ACCEPTED"
	case InvitationExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("InvitationStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an invitation may move from s to next.
func (s InvitationStatus) CanTransition(next InvitationStatus) bool {
	switch s {
	case InvitationPending:
		return next == InvitationAccepted || next == InvitationExpired
	case InvitationAccepted, InvitationExpired:
		return false
	default:
		return false
	}
}

// ParseInvitationStatus parses the String form of an InvitationStatus.
func ParseInvitationStatus(s string) (InvitationStatus, error) {
	switch s {
	case "PENDING":
		return InvitationPending, nil
	case "ACCEPTED":
		return InvitationAccepted, nil
	case "EXPIRED":
		return InvitationExpired, nil
	default:
		return 0, fmt.Errorf("%w: unknown invitation status %q", ErrValidation, s)
	}
}

// DistributionStatus is the settlement state of a distribution.
type DistributionStatus uint8

const (
	DistributionPending DistributionStatus = iota + 1
	DistributionCompleted
	DistributionFailed
)

func (s DistributionStatus) String() string {
	switch s {
	case DistributionPending:
		return "PENDING"
	case DistributionCompleted:
		return "COMPLETED"
	case DistributionFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("DistributionStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s DistributionStatus) Valid() bool {
	switch s {
	case DistributionPending, DistributionCompleted, DistributionFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a distribution may move from s to next.
// A FAILED distribution may only be re-queued explicitly.
func (s DistributionStatus) CanTransition(next DistributionStatus) bool {
	switch s {
	case DistributionPending:
		return next == DistributionCompleted || next == DistributionFailed
	case DistributionFailed:
		return next == DistributionPending
	case DistributionCompleted:
		return false
	default:
		return false
	}
}

// ParseDistributionStatus parses the String form of a DistributionStatus.
func ParseDistributionStatus(s string) (DistributionStatus, error) {
	switch s {
	case "PENDING":
		return DistributionPending, nil
	case "COMPLETED":
		return DistributionCompleted, nil
	case "FAILED":
		return DistributionFailed, nil
	default:
		return 0, fmt.Errorf("%w: unknown distribution status %q", ErrValidation, s)
	}
}

// ClaimStatus is the settlement state of one contributor's claim.
type ClaimStatus uint8

const (
	ClaimPending ClaimStatus = iota + 1
	ClaimCompleted
	ClaimFailed
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimPending:
		return "PENDING"
	case ClaimCompleted:
		return "COMPLETED"
	case ClaimFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("ClaimStatus(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimPending, ClaimCompleted, ClaimFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a claim may move from s to next.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	switch s {
	case ClaimPending:
		return next == ClaimCompleted || next == ClaimFailed
	case ClaimFailed:
		return next == ClaimPending
	case ClaimCompleted:
		return false
	default:
		return false
	}
}

// ParseClaimStatus parses the String form of a ClaimStatus.
func ParseClaimStatus(s string) (ClaimStatus, error) {
	switch s {
	case "PENDING":
		return ClaimPending, nil
	case "COMPLETED":
		return ClaimCompleted, nil
	case "FAILED":
		return ClaimFailed, nil
	default:
		return 0, fmt.Errorf("%w: unknown claim status %q", ErrValidation, s)
	}
}

// transitionError builds the error returned when a state machine refuses a move.
func transitionError(entity string, from, to fmt.Stringer) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, entity, from, to)
}
