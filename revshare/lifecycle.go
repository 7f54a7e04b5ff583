package revshare

import "time"

// Transition moves s to next, stamping UpdatedAt.
func (s *Split) Transition(next SplitStatus, now time.Time) error {
	if !s.Status.CanTransition(next) {
		return transitionError("split", s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// AcceptsDistributions reports whether new inflows may be distributed.
func (s *Split) AcceptsDistributions() bool {
	return s.Status == SplitActive
}

// Advance moves the contributor's verification status forward. Moving to the
// current status is a no-op. VerifiedAt is stamped exactly when the
// contributor becomes Verified.
func (c *Contributor) Advance(next VerificationStatus, now time.Time) error {
	if c.Status == next {
		return nil
	}
	if !c.Status.CanTransition(next) {
		return transitionError("contributor", c.Status, next)
	}
	c.Status = next
	if next == Verified {
		t := now
		c.VerifiedAt = &t
	}
	return nil
}

// Complete marks a pending session completed.
func (s *VerificationSession) Complete(now time.Time) error {
	if !s.Status.CanTransition(SessionCompleted) {
		return transitionError("session", s.Status, SessionCompleted)
	}
	s.Status = SessionCompleted
	t := now
	s.CompletedAt = &t
	return nil
}

// Expire marks a pending session expired.
func (s *VerificationSession) Expire() error {
	if !s.Status.CanTransition(SessionExpired) {
		return transitionError("session", s.Status, SessionExpired)
	}
	s.Status = SessionExpired
	return nil
}

// Accept marks a pending invitation accepted.
func (i *Invitation) Accept(now time.Time) error {
	if !i.Status.CanTransition(InvitationAccepted) {
		return transitionError("invitation", i.Status, InvitationAccepted)
	}
	i.Status = InvitationAccepted
	t := now
	i.AcceptedAt = &t
	return nil
}

// Expire marks a pending invitation expired.
func (i *Invitation) Expire() error {
	if !i.Status.CanTransition(InvitationExpired) {
		return transitionError("invitation", i.Status, InvitationExpired)
	}
	i.Status = InvitationExpired
	return nil
}

// Expired reports whether the invitation window has closed at now.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Complete records a successful settlement.
func (d *Distribution) Complete(ref string, now time.Time) error {
	if !d.Status.CanTransition(DistributionCompleted) {
		return transitionError("distribution", d.Status, DistributionCompleted)
	}
	d.Status = DistributionCompleted
	d.SettlementRef = ref
	d.Error = ""
	d.SettlingAt = nil
	t := now
	d.SettledAt = &t
	return nil
}

// Fail records a settlement failure.
func (d *Distribution) Fail(cause error) error {
	if !d.Status.CanTransition(DistributionFailed) {
		return transitionError("distribution", d.Status, DistributionFailed)
	}
	d.Status = DistributionFailed
	d.SettlingAt = nil
	if cause != nil {
		d.Error = cause.Error()
	}
	return nil
}

// Requeue moves a failed distribution back to pending.
func (d *Distribution) Requeue() error {
	if !d.Status.CanTransition(DistributionPending) {
		return transitionError("distribution", d.Status, DistributionPending)
	}
	d.Status = DistributionPending
	d.AttemptID = ""
	d.SettlingAt = nil
	return nil
}

// Complete marks the claim settled under ref.
func (c *Claim) Complete(ref string) error {
	if !c.Status.CanTransition(ClaimCompleted) {
		return transitionError("claim", c.Status, ClaimCompleted)
	}
	c.Status = ClaimCompleted
	c.SettlementRef = ref
	return nil
}
