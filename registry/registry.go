// Package registry is the durable record of revenue-sharing agreements. It
// enforces the share-sum invariant and the address rule on every write.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

// NewContributor is one contributor of a split being created.
type NewContributor struct {
	Handle            string
	Email             string
	SettlementAddress string // optional
	Share             decimal.Decimal
}

// NewSplit describes a split to create.
type NewSplit struct {
	Address      string
	Chain        string
	Authority    string
	Owner        string
	Repo         string
	Contributors []NewContributor
	Activate     bool // create Active instead of Pending
}

// SplitView is a split with its contributors in insertion order.
type SplitView struct {
	Split        *revshare.Split
	Contributors []*revshare.Contributor
}

// ContributorUpdate lists the fields to change; nil fields are left alone.
type ContributorUpdate struct {
	Address *string
	Status  *revshare.VerificationStatus
}

// Registry reads and writes splits and contributors.
type Registry struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns a registry over s.
func New(s store.Store, opts ...Option) *Registry {
	r := &Registry{store: s, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func validateNewSplit(ns *NewSplit) error {
	if err := revshare.ValidateAddressForChain(ns.Address, ns.Chain); err != nil {
		return fmt.Errorf("split address: %w", err)
	}
	if err := revshare.ValidateAddressForChain(ns.Authority, ns.Chain); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	if len(ns.Contributors) == 0 {
		return revshare.ErrNoContributors
	}

	seen := make(map[string]struct{}, len(ns.Contributors))
	shares := make([]decimal.Decimal, len(ns.Contributors))
	for i, c := range ns.Contributors {
		if err := revshare.ValidateHandle(c.Handle); err != nil {
			return err
		}
		if _, dup := seen[c.Handle]; dup {
			return fmt.Errorf("%w: %q", revshare.ErrDuplicateHandle, c.Handle)
		}
		seen[c.Handle] = struct{}{}
		if err := revshare.ValidateShare(c.Share); err != nil {
			return fmt.Errorf("%s: %w", c.Handle, err)
		}
		if c.SettlementAddress != "" {
			if err := revshare.ValidateAddressForChain(c.SettlementAddress, ns.Chain); err != nil {
				return fmt.Errorf("%s: %w", c.Handle, err)
			}
		}
		shares[i] = c.Share
	}
	return revshare.ValidateShareSum(shares)
}

// CreateSplit validates ns and stores the split with its contributors in
// one transaction. Nothing is written when validation fails.
func (r *Registry) CreateSplit(ctx context.Context, ns NewSplit) (*SplitView, error) {
	if err := validateNewSplit(&ns); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	split := &revshare.Split{
		ID:        uuid.NewString(),
		Address:   ns.Address,
		Chain:     ns.Chain,
		Authority: ns.Authority,
		Owner:     ns.Owner,
		Repo:      ns.Repo,
		Status:    revshare.SplitPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ns.Activate {
		split.Status = revshare.SplitActive
	}

	view := &SplitView{Split: split}
	for i, nc := range ns.Contributors {
		status := revshare.Unassigned
		if nc.SettlementAddress != "" {
			status = revshare.PendingVerification
		}
		view.Contributors = append(view.Contributors, &revshare.Contributor{
			ID:                uuid.NewString(),
			SplitID:           split.ID,
			Position:          i,
			Handle:            nc.Handle,
			Email:             nc.Email,
			SettlementAddress: nc.SettlementAddress,
			Share:             nc.Share,
			Status:            status,
			CreatedAt:         now,
		})
	}

	err := r.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSplitByAddress(split.Address); err == nil {
			return fmt.Errorf("%w: %s", ErrSplitExists, split.Address)
		} else if !store.IsNotFound(err) {
			return err
		}
		if err := tx.PutSplit(split); err != nil {
			return err
		}
		for _, c := range view.Contributors {
			if err := tx.PutContributor(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("registry_split_created",
		"split_id", split.ID, "address", split.Address, "chain", split.Chain,
		"status", split.Status.String(), "contributors", len(view.Contributors))
	return view, nil
}

func loadView(tx store.Tx, split *revshare.Split) (*SplitView, error) {
	cs, err := tx.ListContributors(split.ID)
	if err != nil {
		return nil, err
	}
	return &SplitView{Split: split, Contributors: cs}, nil
}

func notFound(err, kind error, key string) error {
	if store.IsNotFound(err) {
		return fmt.Errorf("%w: %s", kind, key)
	}
	return err
}

// GetSplit returns a split and its contributors.
func (r *Registry) GetSplit(ctx context.Context, splitID string) (*SplitView, error) {
	var view *SplitView
	err := r.store.View(ctx, func(tx store.Tx) error {
		s, err := tx.GetSplit(splitID)
		if err != nil {
			return notFound(err, ErrSplitNotFound, splitID)
		}
		view, err = loadView(tx, s)
		return err
	})
	return view, err
}

// GetSplitByAddress returns the split settled from address.
func (r *Registry) GetSplitByAddress(ctx context.Context, address string) (*SplitView, error) {
	var view *SplitView
	err := r.store.View(ctx, func(tx store.Tx) error {
		s, err := tx.GetSplitByAddress(address)
		if err != nil {
			return notFound(err, ErrSplitNotFound, address)
		}
		view, err = loadView(tx, s)
		return err
	})
	return view, err
}

// ListSplits returns every split.
func (r *Registry) ListSplits(ctx context.Context) ([]*revshare.Split, error) {
	var out []*revshare.Split
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListSplits()
		return err
	})
	return out, err
}

// GetContributor returns one contributor.
func (r *Registry) GetContributor(ctx context.Context, contributorID string) (*revshare.Contributor, error) {
	var c *revshare.Contributor
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetContributor(contributorID)
		return notFound(err, ErrContributorNotFound, contributorID)
	})
	return c, err
}

// ApplyContributorUpdate validates and applies upd to c inside tx. It is
// exported for components that bind addresses as part of a larger
// transaction.
func ApplyContributorUpdate(tx store.Tx, c *revshare.Contributor, upd ContributorUpdate, now time.Time) error {
	split, err := tx.GetSplit(c.SplitID)
	if err != nil {
		return notFound(err, ErrSplitNotFound, c.SplitID)
	}
	if split.Status == revshare.SplitClosed {
		return fmt.Errorf("%w: %s", ErrSplitClosed, split.ID)
	}

	if upd.Address != nil && *upd.Address != c.SettlementAddress {
		if err := revshare.ValidateAddressForChain(*upd.Address, split.Chain); err != nil {
			return err
		}
		if c.Status == revshare.Verified {
			return fmt.Errorf("%w: contributor %s", ErrAddressLocked, c.ID)
		}
		c.SettlementAddress = *upd.Address
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return fmt.Errorf("%w: status %s", revshare.ErrValidation, upd.Status)
		}
		if *upd.Status == revshare.Verified && c.SettlementAddress == "" {
			return fmt.Errorf("%w: contributor %s", ErrAddressRequired, c.ID)
		}
		if err := c.Advance(*upd.Status, now); err != nil {
			return err
		}
	}
	return tx.PutContributor(c)
}

// UpdateContributor changes a contributor's settlement address and/or
// verification status. Status only moves forward.
func (r *Registry) UpdateContributor(ctx context.Context, contributorID string, upd ContributorUpdate) (*revshare.Contributor, error) {
	var c *revshare.Contributor
	err := r.store.Update(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetContributor(contributorID)
		if err != nil {
			return notFound(err, ErrContributorNotFound, contributorID)
		}
		return ApplyContributorUpdate(tx, c, upd, r.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("registry_contributor_updated",
		"contributor_id", c.ID, "split_id", c.SplitID, "status", c.Status.String())
	return c, nil
}

// UpdateShares replaces the shares of the named handles. The full set of
// shares must still sum to 100 afterwards.
func (r *Registry) UpdateShares(ctx context.Context, splitID string, shares map[string]decimal.Decimal) (*SplitView, error) {
	var view *SplitView
	err := r.store.Update(ctx, func(tx store.Tx) error {
		split, err := tx.GetSplit(splitID)
		if err != nil {
			return notFound(err, ErrSplitNotFound, splitID)
		}
		if split.Status == revshare.SplitClosed {
			return fmt.Errorf("%w: %s", ErrSplitClosed, splitID)
		}
		cs, err := tx.ListContributors(splitID)
		if err != nil {
			return err
		}

		byHandle := make(map[string]*revshare.Contributor, len(cs))
		for _, c := range cs {
			byHandle[c.Handle] = c
		}
		for handle, share := range shares {
			c, ok := byHandle[handle]
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
			}
			if err := revshare.ValidateShare(share); err != nil {
				return fmt.Errorf("%s: %w", handle, err)
			}
			c.Share = share
		}

		all := make([]decimal.Decimal, len(cs))
		for i, c := range cs {
			all[i] = c.Share
		}
		if err := revshare.ValidateShareSum(all); err != nil {
			return err
		}
		for _, c := range cs {
			if _, changed := shares[c.Handle]; changed {
				if err := tx.PutContributor(c); err != nil {
					return err
				}
			}
		}
		split.UpdatedAt = r.now().UTC()
		if err := tx.PutSplit(split); err != nil {
			return err
		}
		view = &SplitView{Split: split, Contributors: cs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("registry_shares_updated", "split_id", splitID, "changed", len(shares))
	return view, nil
}

// SetStatus moves a split through its lifecycle.
func (r *Registry) SetStatus(ctx context.Context, splitID string, status revshare.SplitStatus) (*revshare.Split, error) {
	var split *revshare.Split
	err := r.store.Update(ctx, func(tx store.Tx) error {
		var err error
		split, err = tx.GetSplit(splitID)
		if err != nil {
			return notFound(err, ErrSplitNotFound, splitID)
		}
		if err := split.Transition(status, r.now().UTC()); err != nil {
			return err
		}
		return tx.PutSplit(split)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("registry_split_status", "split_id", splitID, "status", status.String())
	return split, nil
}
