package invitation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/contribsplit/registry"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAddress(t *testing.T) string {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := script.NewAddressFromPublicKey(priv.PubKey(), false)
	require.NoError(t, err)
	return addr.AddressString
}

type fixture struct {
	store store.Store
	mgr   *Manager
	reg   *registry.Registry
	clock *time.Time
	split *registry.SplitView
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenBoltStore(filepath.Join(t.TempDir(), "invite.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := start
	now := func() time.Time { return clock }
	reg := registry.New(s, registry.WithClock(now))
	view, err := reg.CreateSplit(context.Background(), registry.NewSplit{
		Address:   newAddress(t),
		Chain:     revshare.ChainTestnet,
		Authority: newAddress(t),
		Contributors: []registry.NewContributor{
			{Handle: "alice", Share: decimal.NewFromInt(70)},
			{Handle: "bob", Share: decimal.NewFromInt(30), SettlementAddress: newAddress(t)},
		},
	})
	require.NoError(t, err)
	return &fixture{store: s, mgr: NewManager(s, WithClock(now)), reg: reg, clock: &clock, split: view}
}

func TestHashToken(t *testing.T) {
	tok, err := newToken()
	require.NoError(t, err)
	assert.Len(t, tok, 43)
	assert.Len(t, HashToken(tok), 64)
	assert.Equal(t, HashToken(tok), HashToken(tok))
	assert.NotEqual(t, HashToken(tok), HashToken(tok+"x"))
}

func TestInvite_ExistingContributor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, HashToken(issued.Token), issued.Invitation.TokenHash)
	assert.NotContains(t, issued.Invitation.TokenHash, issued.Token)
	assert.Equal(t, f.split.Contributors[0].ID, issued.Invitation.ContributorID)
	assert.Equal(t, start.Add(DefaultTTL), issued.Invitation.ExpiresAt)

	c, err := f.reg.GetContributor(ctx, f.split.Contributors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", c.Email)
}

func TestInvite_NewHandleGetsZeroShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "carol", TTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), issued.Invitation.ExpiresAt)

	view, err := f.reg.GetSplit(ctx, f.split.Split.ID)
	require.NoError(t, err)
	require.Len(t, view.Contributors, 3)
	carol := view.Contributors[2]
	assert.Equal(t, "carol", carol.Handle)
	assert.True(t, carol.Share.IsZero())
	assert.Equal(t, revshare.Unassigned, carol.Status)
	assert.NoError(t, revshare.ValidateShareSum([]decimal.Decimal{
		view.Contributors[0].Share, view.Contributors[1].Share, carol.Share,
	}))
}

func TestInvite_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		splitID string
		req     InviteRequest
		wantErr error
	}{
		{"unknown split", "missing", InviteRequest{Handle: "alice"}, ErrSplitNotFound},
		{"address already bound", f.split.Split.ID, InviteRequest{Handle: "bob"}, ErrAddressBound},
		{"bad email", f.split.Split.ID, InviteRequest{Handle: "alice", Email: "not an email"}, ErrInvalidEmail},
		{"bad handle", f.split.Split.ID, InviteRequest{Handle: " alice"}, revshare.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.Invite(ctx, tt.splitID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := f.reg.SetStatus(ctx, f.split.Split.ID, revshare.SplitClosed)
	require.NoError(t, err)
	_, err = f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice"})
	assert.ErrorIs(t, err, ErrSplitClosed)
}

func TestAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice"})
	require.NoError(t, err)

	addr := newAddress(t)
	c, err := f.mgr.Accept(ctx, issued.Token, addr)
	require.NoError(t, err)
	assert.Equal(t, addr, c.SettlementAddress)
	assert.Equal(t, revshare.PendingVerification, c.Status)

	_, err = f.mgr.Accept(ctx, issued.Token, addr)
	assert.ErrorIs(t, err, ErrInvitationUsed)
	assert.Equal(t, "state_conflict", revshare.Kind(err))
}

func TestAccept_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice"})
	require.NoError(t, err)

	_, err = f.mgr.Accept(ctx, "no-such-token", newAddress(t))
	assert.ErrorIs(t, err, ErrInvitationNotFound)
	assert.Equal(t, "not_found", revshare.Kind(err))

	_, err = f.mgr.Accept(ctx, issued.Token, "garbage")
	assert.ErrorIs(t, err, revshare.ErrInvalidAddress)

	// The invitation survives a rejected address.
	c, err := f.mgr.Accept(ctx, issued.Token, newAddress(t))
	require.NoError(t, err)
	assert.Equal(t, revshare.PendingVerification, c.Status)
}

func TestAccept_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice", TTL: time.Hour})
	require.NoError(t, err)

	*f.clock = start.Add(time.Hour)
	_, err = f.mgr.Accept(ctx, issued.Token, newAddress(t))
	assert.ErrorIs(t, err, ErrInvitationExpired)

	// The expiry was persisted, so a retry reports the invitation as used.
	_, err = f.mgr.Accept(ctx, issued.Token, newAddress(t))
	assert.ErrorIs(t, err, ErrInvitationUsed)

	c, err := f.reg.GetContributor(ctx, f.split.Contributors[0].ID)
	require.NoError(t, err)
	assert.Empty(t, c.SettlementAddress)
	assert.Equal(t, revshare.Unassigned, c.Status)
}

var errConflict = errors.New("serialization conflict")

// rerunStore runs every Update body twice, discarding the first attempt the
// way a serialization retry does. between runs after the discarded attempt.
type rerunStore struct {
	store.Store
	between func()
}

func (s *rerunStore) Update(ctx context.Context, fn func(store.Tx) error) error {
	err := s.Store.Update(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errConflict
	})
	if !errors.Is(err, errConflict) {
		return err
	}
	if s.between != nil {
		s.between()
	}
	return s.Store.Update(ctx, fn)
}

func TestAccept_RetriedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice", TTL: time.Hour})
	require.NoError(t, err)

	// The discarded attempt sees the invitation expired; the retry does not.
	*f.clock = start.Add(time.Hour)
	rerun := &rerunStore{Store: f.store, between: func() { *f.clock = start }}
	mgr := NewManager(rerun, WithClock(func() time.Time { return *f.clock }))

	addr := newAddress(t)
	c, err := mgr.Accept(ctx, issued.Token, addr)
	require.NoError(t, err)
	assert.Equal(t, addr, c.SettlementAddress)
	assert.Equal(t, revshare.PendingVerification, c.Status)
}

func TestInvite_SupersedesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice"})
	require.NoError(t, err)
	second, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice"})
	require.NoError(t, err)

	_, err = f.mgr.Accept(ctx, first.Token, newAddress(t))
	assert.ErrorIs(t, err, ErrInvitationUsed)
	_, err = f.mgr.Accept(ctx, second.Token, newAddress(t))
	assert.NoError(t, err)
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "alice", TTL: time.Hour})
	require.NoError(t, err)
	_, err = f.mgr.Invite(ctx, f.split.Split.ID, InviteRequest{Handle: "carol", TTL: 48 * time.Hour})
	require.NoError(t, err)

	*f.clock = start.Add(2 * time.Hour)
	n, err := f.mgr.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.mgr.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
