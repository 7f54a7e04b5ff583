// Package verification binds a contributor handle to a settlement address.
//
// A session issues a one-line challenge. The handle's owner publishes it on a
// proof channel and signs it with the settlement key; completing the session
// checks both before the contributor is marked verified.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bitfsorg/contribsplit/proof"
	"github.com/bitfsorg/contribsplit/registry"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

// DefaultWindow is how long a session stays open.
const DefaultWindow = time.Hour

// Challenge is what a contributor needs to finish a session.
type Challenge struct {
	SessionID     string
	ContributorID string
	Handle        string
	Address       string
	Nonce         string
	Text          string
	ExpiresAt     time.Time

	// Locator is where the challenge was published, when the channel could
	// publish it. Otherwise Instructions says where to put it.
	Locator      string
	Instructions string
}

// Manager runs verification sessions.
type Manager struct {
	store   store.Store
	channel proof.Channel
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the session lifetime.
func WithWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager reading proofs from channel.
func NewManager(s store.Store, channel proof.Channel, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		channel: channel,
		window:  DefaultWindow,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartVerification opens a session for the contributor and returns the
// challenge. The contributor moves from UNASSIGNED to PENDING.
func (m *Manager) StartVerification(ctx context.Context, contributorID, handle, address string) (*Challenge, error) {
	if err := revshare.ValidateHandle(handle); err != nil {
		return nil, err
	}
	if err := revshare.ValidateAddress(address); err != nil {
		return nil, err
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	session := &revshare.VerificationSession{
		ID:            uuid.NewString(),
		ContributorID: contributorID,
		Nonce:         nonce,
		Handle:        handle,
		Address:       address,
		Status:        revshare.SessionPending,
		ExpiresAt:     now.Add(m.window).Truncate(time.Second),
		CreatedAt:     now,
	}

	err = m.store.Update(ctx, func(tx store.Tx) error {
		c, err := tx.GetContributor(contributorID)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrContributorNotFound, contributorID)
			}
			return err
		}
		if c.Handle != handle {
			return fmt.Errorf("%w: %q", ErrHandleMismatch, handle)
		}
		if c.Status == revshare.Verified {
			return fmt.Errorf("%w: %s", ErrAlreadyVerified, contributorID)
		}
		split, err := tx.GetSplit(c.SplitID)
		if err != nil {
			return err
		}
		if err := revshare.ValidateAddressForChain(address, split.Chain); err != nil {
			return err
		}
		if err := c.Advance(revshare.PendingVerification, now); err != nil {
			return err
		}
		if err := tx.PutSession(session); err != nil {
			return err
		}
		return tx.PutContributor(c)
	})
	if err != nil {
		return nil, err
	}

	ch := &Challenge{
		SessionID:     session.ID,
		ContributorID: contributorID,
		Handle:        handle,
		Address:       address,
		Nonce:         nonce,
		Text:          ChallengeText(handle, address, nonce, session.ExpiresAt),
		ExpiresAt:     session.ExpiresAt,
		Instructions:  m.channel.Instructions(handle),
	}
	locator, err := m.channel.Publish(ctx, handle, ch.Text)
	switch {
	case err == nil:
		ch.Locator = locator
	case errors.Is(err, proof.ErrPublishUnsupported):
	default:
		// The session stands; the owner can still publish by hand.
		m.logger.Warn("verification_publish_failed", "session_id", session.ID, "handle", handle, "error", err)
	}

	m.logger.Info("verification_started",
		"session_id", session.ID, "contributor_id", contributorID, "handle", handle,
		"expires_at", session.ExpiresAt)
	return ch, nil
}

func (m *Manager) loadSession(tx store.Tx, sessionID string) (*revshare.VerificationSession, error) {
	s, err := tx.GetSession(sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return s, nil
}

func checkOpen(s *revshare.VerificationSession, now time.Time) error {
	if s.Status != revshare.SessionPending {
		return fmt.Errorf("%w: %s is %s", ErrSessionNotPending, s.ID, s.Status)
	}
	if s.Expired(now) {
		return fmt.Errorf("%w: %s", ErrSessionExpired, s.ID)
	}
	return nil
}

// CompleteVerification checks the published challenge and the signature
// proof, then completes the session and verifies the contributor in one
// transaction. Of two concurrent completions exactly one succeeds; the other
// gets ErrSessionNotPending. Completing closes the contributor's other pending
// sessions, and a contributor that is already verified gets
// ErrAlreadyVerified. An expired session is left for CleanupExpired.
func (m *Manager) CompleteVerification(ctx context.Context, sessionID, proofSig string) (*revshare.Contributor, error) {
	var session *revshare.VerificationSession
	err := m.store.View(ctx, func(tx store.Tx) error {
		var err error
		session, err = m.loadSession(tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := checkOpen(session, m.now()); err != nil {
		return nil, err
	}

	text := ChallengeText(session.Handle, session.Address, session.Nonce, session.ExpiresAt)
	published, err := m.channel.FetchPublished(ctx, session.Handle)
	if err != nil {
		return nil, fmt.Errorf("verification: fetching proof for %s: %w", session.Handle, err)
	}
	if !proof.ContainsLine(published, text) {
		return nil, fmt.Errorf("%w: session %s", ErrChallengeMismatch, sessionID)
	}
	if err := verifySignature(session.Address, proofSig, text); err != nil {
		return nil, err
	}

	var contributor *revshare.Contributor
	err = m.store.Update(ctx, func(tx store.Tx) error {
		s, err := m.loadSession(tx, sessionID)
		if err != nil {
			return err
		}
		now := m.now().UTC()
		if err := checkOpen(s, now); err != nil {
			return err
		}
		if err := s.Complete(now); err != nil {
			return err
		}
		c, err := tx.GetContributor(s.ContributorID)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrContributorNotFound, s.ContributorID)
			}
			return err
		}
		if c.Status == revshare.Verified {
			return fmt.Errorf("%w: %s", ErrAlreadyVerified, c.ID)
		}
		if err := expireSiblings(tx, s); err != nil {
			return err
		}
		verified := revshare.Verified
		if err := registry.ApplyContributorUpdate(tx, c, registry.ContributorUpdate{
			Address: &s.Address,
			Status:  &verified,
		}, now); err != nil {
			return err
		}
		contributor = c
		return tx.PutSession(s)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("verification_completed",
		"session_id", sessionID, "contributor_id", contributor.ID, "address", contributor.SettlementAddress)
	return contributor, nil
}

// expireSiblings closes the contributor's other pending sessions so only
// one session per contributor ever completes.
func expireSiblings(tx store.Tx, done *revshare.VerificationSession) error {
	sessions, err := tx.ListSessions(done.ContributorID)
	if err != nil {
		return err
	}
	for _, o := range sessions {
		if o.ID == done.ID || o.Status != revshare.SessionPending {
			continue
		}
		if err := o.Expire(); err != nil {
			return err
		}
		if err := tx.PutSession(o); err != nil {
			return err
		}
	}
	return nil
}

// CleanupExpired marks every pending session past its expiry as expired and
// returns how many changed. Running it again changes nothing.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	var n int
	err := m.store.Update(ctx, func(tx store.Tx) error {
		pending, err := tx.ListSessionsByStatus(revshare.SessionPending)
		if err != nil {
			return err
		}
		now := m.now()
		for _, s := range pending {
			if !s.Expired(now) {
				continue
			}
			if err := s.Expire(); err != nil {
				return err
			}
			if err := tx.PutSession(s); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("verification_sessions_expired", "count", n)
	}
	return n, nil
}

// GetSession returns one session.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*revshare.VerificationSession, error) {
	var s *revshare.VerificationSession
	err := m.store.View(ctx, func(tx store.Tx) error {
		var err error
		s, err = m.loadSession(tx, sessionID)
		return err
	})
	return s, err
}

// ListSessions returns every session ever opened for a contributor, oldest first.
func (m *Manager) ListSessions(ctx context.Context, contributorID string) ([]*revshare.VerificationSession, error) {
	var out []*revshare.VerificationSession
	err := m.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListSessions(contributorID)
		return err
	})
	return out, err
}
