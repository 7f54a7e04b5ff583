package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAddress(t *testing.T) string {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := script.NewAddressFromPublicKey(priv.PubKey(), false)
	require.NoError(t, err)
	return addr.AddressString
}

func newRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	s, err := store.OpenBoltStore(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, WithClock(func() time.Time { return now })), s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseSplit(t *testing.T, shares ...string) NewSplit {
	ns := NewSplit{
		Address:   newAddress(t),
		Chain:     revshare.ChainTestnet,
		Authority: newAddress(t),
		Owner:     "acme",
		Repo:      "widget",
	}
	for i, s := range shares {
		ns.Contributors = append(ns.Contributors, NewContributor{
			Handle: string(rune('a'+i)) + "-dev",
			Share:  d(s),
		})
	}
	return ns
}

func TestCreateSplit(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	ns := baseSplit(t, "60", "40")
	ns.Contributors[0].SettlementAddress = newAddress(t)
	view, err := r.CreateSplit(ctx, ns)
	require.NoError(t, err)

	assert.Equal(t, revshare.SplitPending, view.Split.Status)
	require.Len(t, view.Contributors, 2)
	assert.Equal(t, revshare.PendingVerification, view.Contributors[0].Status)
	assert.Equal(t, revshare.Unassigned, view.Contributors[1].Status)

	got, err := r.GetSplit(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Equal(t, view.Split.Address, got.Split.Address)
	require.Len(t, got.Contributors, 2)
	assert.Equal(t, "a-dev", got.Contributors[0].Handle)
	assert.True(t, got.Contributors[0].Share.Equal(d("60")))

	byAddr, err := r.GetSplitByAddress(ctx, ns.Address)
	require.NoError(t, err)
	assert.Equal(t, view.Split.ID, byAddr.Split.ID)
}

func TestCreateSplit_Activate(t *testing.T) {
	r, _ := newRegistry(t)
	ns := baseSplit(t, "100")
	ns.Activate = true
	view, err := r.CreateSplit(context.Background(), ns)
	require.NoError(t, err)
	assert.Equal(t, revshare.SplitActive, view.Split.Status)
}

func TestCreateSplit_ValidationPersistsNothing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(ns *NewSplit)
		wantErr error
	}{
		{"share sum over", func(ns *NewSplit) { ns.Contributors[1].Share = d("40.001") }, revshare.ErrShareSum},
		{"share sum under", func(ns *NewSplit) { ns.Contributors[1].Share = d("39") }, revshare.ErrShareSum},
		{"negative share", func(ns *NewSplit) { ns.Contributors[1].Share = d("-1") }, revshare.ErrShareRange},
		{"duplicate handle", func(ns *NewSplit) { ns.Contributors[1].Handle = ns.Contributors[0].Handle }, revshare.ErrDuplicateHandle},
		{"empty handle", func(ns *NewSplit) { ns.Contributors[0].Handle = "" }, revshare.ErrInvalidHandle},
		{"no contributors", func(ns *NewSplit) { ns.Contributors = nil }, revshare.ErrNoContributors},
		{"bad chain", func(ns *NewSplit) { ns.Chain = "ethereum" }, revshare.ErrInvalidChain},
		{"bad split address", func(ns *NewSplit) { ns.Address = "nope" }, revshare.ErrInvalidAddress},
		{"bad authority", func(ns *NewSplit) { ns.Authority = "" }, revshare.ErrInvalidAddress},
		{"bad contributor address", func(ns *NewSplit) { ns.Contributors[0].SettlementAddress = "xyz" }, revshare.ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRegistry(t)
			ctx := context.Background()
			ns := baseSplit(t, "60", "40")
			tt.mutate(&ns)

			_, err := r.CreateSplit(ctx, ns)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, "validation", revshare.Kind(err))

			splits, err := r.ListSplits(ctx)
			require.NoError(t, err)
			assert.Empty(t, splits)
		})
	}
}

func TestCreateSplit_DuplicateAddress(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	ns := baseSplit(t, "100")
	_, err := r.CreateSplit(ctx, ns)
	require.NoError(t, err)

	_, err = r.CreateSplit(ctx, ns)
	assert.ErrorIs(t, err, ErrSplitExists)

	splits, err := r.ListSplits(ctx)
	require.NoError(t, err)
	assert.Len(t, splits, 1)
}

func TestGetSplit_NotFound(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.GetSplit(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSplitNotFound)
	assert.Equal(t, "not_found", revshare.Kind(err))

	_, err = r.GetSplitByAddress(context.Background(), newAddress(t))
	assert.ErrorIs(t, err, ErrSplitNotFound)
}

func TestUpdateContributor(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	view, err := r.CreateSplit(ctx, baseSplit(t, "100"))
	require.NoError(t, err)
	id := view.Contributors[0].ID

	verified := revshare.Verified
	_, err = r.UpdateContributor(ctx, id, ContributorUpdate{Status: &verified})
	assert.ErrorIs(t, err, ErrAddressRequired)

	addr := newAddress(t)
	c, err := r.UpdateContributor(ctx, id, ContributorUpdate{Address: &addr, Status: &verified})
	require.NoError(t, err)
	assert.Equal(t, revshare.Verified, c.Status)
	require.NotNil(t, c.VerifiedAt)
	assert.Equal(t, now, *c.VerifiedAt)

	other := newAddress(t)
	_, err = r.UpdateContributor(ctx, id, ContributorUpdate{Address: &other})
	assert.ErrorIs(t, err, ErrAddressLocked)

	pending := revshare.PendingVerification
	_, err = r.UpdateContributor(ctx, id, ContributorUpdate{Status: &pending})
	assert.ErrorIs(t, err, revshare.ErrInvalidTransition)

	got, err := r.GetContributor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, addr, got.SettlementAddress)
	assert.Equal(t, revshare.Verified, got.Status)
}

func TestUpdateContributor_WrongChainAddress(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	view, err := r.CreateSplit(ctx, baseSplit(t, "100"))
	require.NoError(t, err)

	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	mainAddr, err := script.NewAddressFromPublicKey(priv.PubKey(), true)
	require.NoError(t, err)

	_, err = r.UpdateContributor(ctx, view.Contributors[0].ID, ContributorUpdate{Address: &mainAddr.AddressString})
	assert.ErrorIs(t, err, revshare.ErrInvalidAddress)

	_, err = r.UpdateContributor(ctx, "missing", ContributorUpdate{})
	assert.ErrorIs(t, err, ErrContributorNotFound)
}

func TestUpdateShares(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	view, err := r.CreateSplit(ctx, baseSplit(t, "60", "40"))
	require.NoError(t, err)
	splitID := view.Split.ID

	_, err = r.UpdateShares(ctx, splitID, map[string]decimal.Decimal{"a-dev": d("70")})
	assert.ErrorIs(t, err, revshare.ErrShareSum)

	_, err = r.UpdateShares(ctx, splitID, map[string]decimal.Decimal{"zed": d("10")})
	assert.ErrorIs(t, err, ErrUnknownHandle)

	updated, err := r.UpdateShares(ctx, splitID, map[string]decimal.Decimal{
		"a-dev": d("33.3333"),
		"b-dev": d("66.6667"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Contributors[0].Share.Equal(d("33.3333")))

	got, err := r.GetSplit(ctx, splitID)
	require.NoError(t, err)
	assert.True(t, got.Contributors[1].Share.Equal(d("66.6667")))
}

func TestSetStatus(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	view, err := r.CreateSplit(ctx, baseSplit(t, "100"))
	require.NoError(t, err)
	id := view.Split.ID

	steps := []struct {
		next    revshare.SplitStatus
		wantErr error
	}{
		{revshare.SplitActive, nil},
		{revshare.SplitPaused, nil},
		{revshare.SplitActive, nil},
		{revshare.SplitClosed, nil},
		{revshare.SplitActive, revshare.ErrInvalidTransition},
	}
	for _, st := range steps {
		_, err := r.SetStatus(ctx, id, st.next)
		if st.wantErr != nil {
			assert.ErrorIs(t, err, st.wantErr)
			continue
		}
		require.NoError(t, err)
	}

	got, err := r.GetSplit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, revshare.SplitClosed, got.Split.Status)

	_, err = r.UpdateShares(ctx, id, map[string]decimal.Decimal{"a-dev": d("100")})
	assert.ErrorIs(t, err, ErrSplitClosed)
}
