// Package invitation brings contributors into a split out of band. The
// plaintext token is handed to the caller once; only its hash is stored.
package invitation

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bitfsorg/contribsplit/registry"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

// DefaultTTL is how long an invitation stays open when the request sets none.
const DefaultTTL = 7 * 24 * time.Hour

// InviteRequest names who to invite.
type InviteRequest struct {
	Handle string
	Email  string        // optional
	TTL    time.Duration // zero means the manager default
}

// Issued is a created invitation with its plaintext token. The token is not
// recoverable afterwards.
type Issued struct {
	Invitation *revshare.Invitation
	Token      string
}

// Manager issues and redeems invitations.
type Manager struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the default invitation lifetime.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
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

// NewManager returns an invitation manager over s. Invitations last
// DefaultTTL unless WithTTL says otherwise.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{store: s, ttl: DefaultTTL, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invite creates a pending invitation for req.Handle in the split. The
// handle's existing unassigned contributor row is reused; a handle new to
// the split gets a contributor with a zero share, so the share sum is
// unchanged until shares are reassigned. Earlier pending invitations for the
// same contributor are expired.
func (m *Manager) Invite(ctx context.Context, splitID string, req InviteRequest) (*Issued, error) {
	if err := revshare.ValidateHandle(req.Handle); err != nil {
		return nil, err
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, req.Email)
		}
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = m.ttl
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	inv := &revshare.Invitation{
		ID:        uuid.NewString(),
		TokenHash: HashToken(token),
		SplitID:   splitID,
		Handle:    req.Handle,
		Email:     req.Email,
		Status:    revshare.InvitationPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	err = m.store.Update(ctx, func(tx store.Tx) error {
		split, err := tx.GetSplit(splitID)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrSplitNotFound, splitID)
			}
			return err
		}
		if split.Status == revshare.SplitClosed {
			return fmt.Errorf("%w: %s", ErrSplitClosed, splitID)
		}

		c, err := tx.GetContributorByHandle(splitID, req.Handle)
		switch {
		case err == nil:
			if c.SettlementAddress != "" {
				return fmt.Errorf("%w: %s", ErrAddressBound, req.Handle)
			}
			if c.Email == "" && req.Email != "" {
				c.Email = req.Email
				if err := tx.PutContributor(c); err != nil {
					return err
				}
			}
		case store.IsNotFound(err):
			existing, err := tx.ListContributors(splitID)
			if err != nil {
				return err
			}
			c = &revshare.Contributor{
				ID:        uuid.NewString(),
				SplitID:   splitID,
				Position:  len(existing),
				Handle:    req.Handle,
				Email:     req.Email,
				Share:     decimal.Zero,
				Status:    revshare.Unassigned,
				CreatedAt: now,
			}
			if err := tx.PutContributor(c); err != nil {
				return err
			}
		default:
			return err
		}
		inv.ContributorID = c.ID

		pending, err := tx.ListInvitationsByStatus(revshare.InvitationPending)
		if err != nil {
			return err
		}
		for _, old := range pending {
			if old.ContributorID != c.ID {
				continue
			}
			if err := old.Expire(); err != nil {
				return err
			}
			if err := tx.PutInvitation(old); err != nil {
				return err
			}
		}
		return tx.PutInvitation(inv)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("invitation_created",
		"invitation_id", inv.ID, "split_id", splitID, "handle", req.Handle, "expires_at", inv.ExpiresAt)
	return &Issued{Invitation: inv, Token: token}, nil
}

// Accept redeems token, binding address to the invited contributor and
// moving them to PENDING verification. An expired invitation is marked
// EXPIRED and the call fails.
func (m *Manager) Accept(ctx context.Context, token, address string) (*revshare.Contributor, error) {
	if err := revshare.ValidateAddress(address); err != nil {
		return nil, err
	}
	var (
		contributor *revshare.Contributor
		expired     bool
	)
	err := m.store.Update(ctx, func(tx store.Tx) error {
		contributor, expired = nil, false
		inv, err := tx.GetInvitationByTokenHash(HashToken(token))
		if err != nil {
			if store.IsNotFound(err) {
				return ErrInvitationNotFound
			}
			return err
		}
		if inv.Status != revshare.InvitationPending {
			return fmt.Errorf("%w: %s is %s", ErrInvitationUsed, inv.ID, inv.Status)
		}
		now := m.now().UTC()
		if inv.Expired(now) {
			if err := inv.Expire(); err != nil {
				return err
			}
			expired = true
			return tx.PutInvitation(inv)
		}

		c, err := tx.GetContributor(inv.ContributorID)
		if err != nil {
			return err
		}
		pending := revshare.PendingVerification
		if err := registry.ApplyContributorUpdate(tx, c, registry.ContributorUpdate{
			Address: &address,
			Status:  &pending,
		}, now); err != nil {
			return err
		}
		if err := inv.Accept(now); err != nil {
			return err
		}
		contributor = c
		return tx.PutInvitation(inv)
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrInvitationExpired
	}

	m.logger.Info("invitation_accepted", "contributor_id", contributor.ID, "split_id", contributor.SplitID)
	return contributor, nil
}

// ExpireStale marks every pending invitation past its expiry as expired and
// returns how many changed.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	var n int
	err := m.store.Update(ctx, func(tx store.Tx) error {
		pending, err := tx.ListInvitationsByStatus(revshare.InvitationPending)
		if err != nil {
			return err
		}
		now := m.now()
		for _, inv := range pending {
			if !inv.Expired(now) {
				continue
			}
			if err := inv.Expire(); err != nil {
				return err
			}
			if err := tx.PutInvitation(inv); err != nil {
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
		m.logger.Info("invitations_expired", "count", n)
	}
	return n, nil
}
