package distribution

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/contribsplit/ledger"
	"github.com/bitfsorg/contribsplit/registry"
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

// fakeLedger keeps per-address balances and records settlements.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
	failFor  map[string]error
	settled  map[string][]ledger.Recipient
	calls    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]uint64),
		failFor:  make(map[string]error),
		settled:  make(map[string][]ledger.Recipient),
	}
}

func (f *fakeLedger) executor() *ledger.MockExecutor {
	return &ledger.MockExecutor{
		GetBalanceFn: func(_ context.Context, address, _ string) (uint64, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if err := f.failFor[address]; err != nil {
				return 0, err
			}
			return f.balances[address], nil
		},
		ExecuteSettlementFn: func(_ context.Context, splitAddress, _ string, rs []ledger.Recipient) (string, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls++
			if err := f.failFor[splitAddress]; err != nil {
				return "", err
			}
			var paid uint64
			for _, r := range rs {
				paid += r.Amount
			}
			f.balances[splitAddress] -= paid
			f.settled[splitAddress] = rs
			return "tx-" + splitAddress[:8], nil
		},
	}
}

func (f *fakeLedger) set(address string, balance uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = balance
}

func (f *fakeLedger) fail(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[address] = err
}

type fixture struct {
	store  store.Store
	reg    *registry.Registry
	ledger *fakeLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenBoltStore(filepath.Join(t.TempDir(), "dist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &fixture{
		store:  s,
		reg:    registry.New(s, registry.WithClock(func() time.Time { return now })),
		ledger: newFakeLedger(),
	}
}

func (f *fixture) engine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewEngine(f.store, f.ledger.executor(), opts...)
}

// split creates an active split; contributors listed in verified get a
// verified address.
func (f *fixture) split(t *testing.T, shares map[string]string, verified ...string) *registry.SplitView {
	t.Helper()
	ctx := context.Background()
	ns := registry.NewSplit{
		Address:   newAddress(t),
		Chain:     revshare.ChainTestnet,
		Authority: newAddress(t),
		Activate:  true,
	}
	for _, h := range []string{"alice", "bob", "carol"} {
		if s, ok := shares[h]; ok {
			ns.Contributors = append(ns.Contributors, registry.NewContributor{Handle: h, Share: decimal.RequireFromString(s)})
		}
	}
	view, err := f.reg.CreateSplit(ctx, ns)
	require.NoError(t, err)

	status := revshare.Verified
	for _, h := range verified {
		for _, c := range view.Contributors {
			if c.Handle != h {
				continue
			}
			addr := newAddress(t)
			_, err := f.reg.UpdateContributor(ctx, c.ID, registry.ContributorUpdate{Address: &addr, Status: &status})
			require.NoError(t, err)
		}
	}
	view, err = f.reg.GetSplit(ctx, view.Split.ID)
	require.NoError(t, err)
	return view
}

func claimAmounts(t *testing.T, e *Engine, distributionID string) []uint64 {
	t.Helper()
	claims, err := e.ListClaims(context.Background(), distributionID)
	require.NoError(t, err)
	out := make([]uint64, len(claims))
	for i, c := range claims {
		out[i] = c.Amount
	}
	return out
}

func TestDistribution_SixtyForty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "60", "bob": "40"}, "alice", "bob")
	f.ledger.set(view.Split.Address, 1000)
	e := f.engine()

	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, uint64(1000), d.Amount)
	assert.Equal(t, revshare.DistributionPending, d.Status)
	assert.Equal(t, []uint64{600, 400}, claimAmounts(t, e, d.ID))

	report, err := e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, report.Completed)
	assert.Empty(t, report.Failed)

	ds, err := e.ListDistributions(ctx, view.Split.ID)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, revshare.DistributionCompleted, ds[0].Status)
	ref := ds[0].SettlementRef
	assert.NotEmpty(t, ref)
	require.NotNil(t, ds[0].SettledAt)

	claims, err := e.ListClaims(ctx, d.ID)
	require.NoError(t, err)
	for _, c := range claims {
		assert.Equal(t, revshare.ClaimCompleted, c.Status)
		assert.Equal(t, ref, c.SettlementRef)
	}

	alice, err := e.GetClaimableAmount(ctx, view.Contributors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), alice)

	got, err := f.reg.GetSplit(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got.Split.TotalDistributed)
	assert.Equal(t, uint64(600), got.Contributors[0].TotalClaimed)
	assert.Equal(t, uint64(400), got.Contributors[1].TotalClaimed)

	// Nothing left after settlement.
	d, err = e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestCheckForNewFunds_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")
	f.ledger.set(view.Split.Address, 5000)
	e := f.engine()

	first, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, second)

	ds, err := e.ListDistributions(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}

func TestCheckForNewFunds_SkipsUnverified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "60", "bob": "40"}, "alice")
	f.ledger.set(view.Split.Address, 1000)
	e := f.engine()

	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, []uint64{600}, claimAmounts(t, e, d.ID))
}

func TestCheckForNewFunds_NothingToDo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.engine()

	empty := f.split(t, map[string]string{"alice": "100"}, "alice")
	d, err := e.CheckForNewFunds(ctx, empty.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, d)

	nobody := f.split(t, map[string]string{"alice": "100"})
	f.ledger.set(nobody.Split.Address, 1000)
	d, err = e.CheckForNewFunds(ctx, nobody.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestCheckForNewFunds_FeeReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "60", "bob": "40"}, "alice", "bob")
	f.ledger.set(view.Split.Address, 1000)
	e := f.engine(WithFeeReserve(10))

	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, uint64(990), d.Amount)
	assert.Equal(t, []uint64{594, 396}, claimAmounts(t, e, d.ID))

	_, err = e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)
	d, err = e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, d, "the reserve alone is never distributed")
}

func TestCheckForNewFunds_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.engine()

	_, err := e.CheckForNewFunds(ctx, "missing")
	assert.ErrorIs(t, err, ErrSplitNotFound)

	view := f.split(t, map[string]string{"alice": "100"}, "alice")
	_, err = f.reg.SetStatus(ctx, view.Split.ID, revshare.SplitPaused)
	require.NoError(t, err)
	_, err = e.CheckForNewFunds(ctx, view.Split.ID)
	assert.ErrorIs(t, err, ErrSplitNotActive)

	other := f.split(t, map[string]string{"alice": "100"}, "alice")
	f.ledger.fail(other.Split.Address, ledger.ErrConnectionFailed)
	_, err = e.CheckForNewFunds(ctx, other.Split.ID)
	assert.ErrorIs(t, err, revshare.ErrNetwork)
	assert.Equal(t, "external", revshare.Kind(err))
}

func TestProcessPending_OneFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := f.split(t, map[string]string{"alice": "50", "bob": "50"}, "alice", "bob")
	bad := f.split(t, map[string]string{"alice": "100"}, "alice")
	f.ledger.set(good.Split.Address, 2000)
	f.ledger.set(bad.Split.Address, 700)
	e := f.engine()

	created, err := e.CheckAllSplits(ctx)
	require.NoError(t, err)
	require.Len(t, created, 2)

	f.ledger.fail(bad.Split.Address, ledger.ErrBroadcastRejected)
	report, err := e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)
	require.Len(t, report.Completed, 1)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, revshare.ErrRejected)

	badDists, err := e.ListDistributions(ctx, bad.Split.ID)
	require.NoError(t, err)
	require.Len(t, badDists, 1)
	failed := badDists[0]
	assert.Equal(t, revshare.DistributionFailed, failed.Status)
	assert.Contains(t, failed.Error, "rejected")
	claims, err := e.ListClaims(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, revshare.ClaimPending, claims[0].Status)

	goodDists, err := e.ListDistributions(ctx, good.Split.ID)
	require.NoError(t, err)
	assert.Equal(t, revshare.DistributionCompleted, goodDists[0].Status)

	// Failed funds are already promised and are not detected again.
	f.ledger.fail(bad.Split.Address, nil)
	d, err := e.CheckForNewFunds(ctx, bad.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, d)

	// Retry succeeds once the ledger recovers.
	_, err = e.RetryDistribution(ctx, failed.ID)
	require.NoError(t, err)
	report, err = e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{failed.ID}, report.Completed)

	amount, err := e.GetClaimableAmount(ctx, bad.Contributors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), amount)
}

func TestRetryDistribution_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")
	f.ledger.set(view.Split.Address, 1000)
	e := f.engine()

	_, err := e.RetryDistribution(ctx, "missing")
	assert.ErrorIs(t, err, ErrDistributionNotFound)

	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	_, err = e.RetryDistribution(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFailed)

	f.ledger.fail(view.Split.Address, ledger.ErrBroadcastRejected)
	_, err = e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)

	// New funds arrive and a fresh distribution is pending.
	f.ledger.fail(view.Split.Address, nil)
	f.ledger.set(view.Split.Address, 1500)
	fresh, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, uint64(500), fresh.Amount)

	_, err = e.RetryDistribution(ctx, d.ID)
	assert.ErrorIs(t, err, ErrPendingExists)
}

func TestReconcileClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")
	alice := view.Contributors[0]

	settled := now
	err := f.store.Update(ctx, func(tx store.Tx) error {
		d := &revshare.Distribution{
			ID: "d1", SplitID: view.Split.ID, Amount: 300,
			Status: revshare.DistributionCompleted, SettlementRef: "tx-1",
			CreatedAt: now, SettledAt: &settled,
		}
		if err := tx.PutDistribution(d); err != nil {
			return err
		}
		return tx.PutClaim(&revshare.Claim{
			ID: "c1", DistributionID: "d1", ContributorID: alice.ID,
			Address: alice.SettlementAddress, Amount: 300,
			Status: revshare.ClaimPending, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	e := f.engine()
	n, err := e.ReconcileClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.ReconcileClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	claims, err := e.ListClaims(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, revshare.ClaimCompleted, claims[0].Status)
	assert.Equal(t, "tx-1", claims[0].SettlementRef)

	amount, err := e.GetClaimableAmount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), amount)

	got, err := f.reg.GetSplit(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got.Split.TotalDistributed)
}

func TestGetClaimableAmount_UnknownContributor(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().GetClaimableAmount(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrContributorNotFound)
}

func TestProcessPending_SettleTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")

	blocking := &ledger.MockExecutor{
		GetBalanceFn: func(context.Context, string, string) (uint64, error) { return 1000, nil },
		ExecuteSettlementFn: func(ctx context.Context, _, _ string, _ []ledger.Recipient) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	e := NewEngine(f.store, blocking, WithSettleTimeout(10*time.Millisecond), WithClock(func() time.Time { return now }))
	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)

	report, err := e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.True(t, errors.Is(report.Failed[0].Err, context.DeadlineExceeded))

	ds, err := e.ListDistributions(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, ds[0].ID)
	assert.Equal(t, revshare.DistributionFailed, ds[0].Status)
}

func TestProcessPending_ConcurrentPassesSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")

	var (
		mu    sync.Mutex
		calls int
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	gated := &ledger.MockExecutor{
		GetBalanceFn: func(context.Context, string, string) (uint64, error) { return 1000, nil },
		ExecuteSettlementFn: func(context.Context, string, string, []ledger.Recipient) (string, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			entered <- struct{}{}
			<-release
			return "tx-once", nil
		},
	}
	e := NewEngine(f.store, gated, WithClock(func() time.Time { return now }))
	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		first Report
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = e.ProcessPendingDistributions(ctx)
	}()
	<-entered

	// A second pass while the first is inside the executor.
	second, err := e.ProcessPendingDistributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{d.ID}, second.Skipped)
	assert.Empty(t, second.Completed)
	assert.Empty(t, second.Failed)

	close(release)
	wg.Wait()
	assert.Equal(t, []string{d.ID}, first.Completed)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	amount, err := e.GetClaimableAmount(ctx, view.Contributors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), amount)
}

func TestProcessPending_AbandonedLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")
	f.ledger.set(view.Split.Address, 1000)
	e := f.engine()

	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)

	lease := func(at time.Time) {
		err := f.store.Update(ctx, func(tx store.Tx) error {
			got, err := tx.GetDistribution(d.ID)
			if err != nil {
				return err
			}
			got.AttemptID = "crashed"
			got.SettlingAt = &at
			return tx.PutDistribution(got)
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		age     time.Duration
		skipped bool
	}{
		{"live lease is left alone", time.Minute, true},
		{"stale lease fails", DefaultSettleTimeout + leaseGrace + time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lease(now.Add(-tt.age))
			report, err := e.ProcessPendingDistributions(ctx)
			require.NoError(t, err)
			if tt.skipped {
				assert.Equal(t, []string{d.ID}, report.Skipped)
				return
			}
			require.Len(t, report.Failed, 1)
			assert.ErrorIs(t, report.Failed[0].Err, ErrOutcomeUnknown)

			ds, err := e.ListDistributions(ctx, view.Split.ID)
			require.NoError(t, err)
			assert.Equal(t, revshare.DistributionFailed, ds[0].Status)
			assert.Contains(t, ds[0].Error, "outcome unknown")
			assert.Nil(t, ds[0].SettlingAt)
		})
	}

	f.ledger.mu.Lock()
	assert.Equal(t, 0, f.ledger.calls, "an abandoned attempt is never paid again automatically")
	f.ledger.mu.Unlock()

	requeued, err := e.RetryDistribution(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, requeued.AttemptID)
	assert.Nil(t, requeued.SettlingAt)
}

func TestCheckForNewFunds_ResidualNotRedistributed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "60", "bob": "40"}, "alice")
	f.ledger.set(view.Split.Address, 1000)
	e := f.engine()

	for i := 0; i < 4; i++ {
		_, err := e.CheckForNewFunds(ctx, view.Split.ID)
		require.NoError(t, err)
		_, err = e.ProcessPendingDistributions(ctx)
		require.NoError(t, err)
	}

	ds, err := e.ListDistributions(ctx, view.Split.ID)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, uint64(1000), ds[0].Amount)

	amount, err := e.GetClaimableAmount(ctx, view.Contributors[0].ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), amount)

	got, err := f.reg.GetSplit(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), got.Split.TotalDistributed)
	assert.Equal(t, uint64(400), got.Split.Residual)

	// Only the next inflow is divided.
	f.ledger.set(view.Split.Address, 900)
	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, uint64(500), d.Amount)
	assert.Equal(t, []uint64{300}, claimAmounts(t, e, d.ID))
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

func TestCheckForNewFunds_RetriedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.split(t, map[string]string{"alice": "100"}, "alice")
	f.ledger.set(view.Split.Address, 1000)

	// A concurrent writer creates a pending distribution between attempts.
	rerun := &rerunStore{Store: f.store, between: func() {
		err := f.store.Update(ctx, func(tx store.Tx) error {
			return tx.PutDistribution(&revshare.Distribution{
				ID: "other", SplitID: view.Split.ID, Amount: 1000,
				Status: revshare.DistributionPending, CreatedAt: now,
			})
		})
		require.NoError(t, err)
	}}
	e := NewEngine(rerun, f.ledger.executor(), WithClock(func() time.Time { return now }))

	d, err := e.CheckForNewFunds(ctx, view.Split.ID)
	require.NoError(t, err)
	assert.Nil(t, d, "the discarded attempt's distribution is not reported")

	ds, err := e.ListDistributions(ctx, view.Split.ID)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "other", ds[0].ID)
}
