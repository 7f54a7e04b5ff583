package revshare

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAddress(t *testing.T, mainnet bool) string {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := script.NewAddressFromPublicKey(priv.PubKey(), mainnet)
	require.NoError(t, err)
	return addr.AddressString
}

func shares(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}

// --- Share sum ---

func TestValidateShareSum(t *testing.T) {
	tests := []struct {
		name    string
		shares  []decimal.Decimal
		wantErr error
	}{
		{"exact", shares("60", "40"), nil},
		{"single", shares("100"), nil},
		{"within tolerance", shares("33.3333", "33.3333", "33.3333"), nil},
		{"zero share allowed", shares("100", "0"), nil},
		{"at tolerance fails", shares("60", "40.001"), ErrShareSum},
		{"above fails", shares("60", "41"), ErrShareSum},
		{"below fails", shares("50", "49"), ErrShareSum},
		{"negative", shares("110", "-10"), ErrShareRange},
		{"over hundred", shares("100.5"), ErrShareRange},
		{"empty", nil, ErrNoContributors},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateShareSum(tt.shares)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

// --- Claim computation ---

func TestComputeClaimAmount(t *testing.T) {
	tests := []struct {
		amount uint64
		share  string
		want   uint64
	}{
		{1000, "60", 600},
		{1000, "40", 400},
		{1000, "33.3333", 333},
		{999, "50", 499},
		{1, "99.99", 0},
		{0, "50", 0},
		{1000, "0", 0},
		{1000, "100", 1000},
		{21_000_000_00000000, "12.5", 2_625_000_00000000},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d*%s", tt.amount, tt.share), func(t *testing.T) {
			got := ComputeClaimAmount(tt.amount, decimal.RequireFromString(tt.share))
			assert.Equal(t, tt.want, got)
		})
	}
}

func verified(id, addr, share string) Contributor {
	return Contributor{
		ID:                id,
		Handle:            id,
		SettlementAddress: addr,
		Share:             decimal.RequireFromString(share),
		Status:            Verified,
	}
}

func TestComputeClaims_AllVerified(t *testing.T) {
	cs := []Contributor{
		verified("a", "addr-a", "60"),
		verified("b", "addr-b", "40"),
	}
	claims, err := ComputeClaims("d1", 1000, cs)
	require.NoError(t, err)
	require.Len(t, claims, 2)

	assert.Equal(t, uint64(600), claims[0].Amount)
	assert.Equal(t, "a", claims[0].ContributorID)
	assert.Equal(t, "addr-a", claims[0].Address)
	assert.Equal(t, uint64(400), claims[1].Amount)
	for i, c := range claims {
		assert.Equal(t, "d1", c.DistributionID)
		assert.Equal(t, ClaimPending, c.Status)
		assert.Equal(t, i, c.Position)
	}
}

func TestComputeClaims_SkipsUnverified(t *testing.T) {
	b := verified("b", "addr-b", "40")
	b.Status = PendingVerification
	cs := []Contributor{verified("a", "addr-a", "60"), b}

	claims, err := ComputeClaims("d1", 1000, cs)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "a", claims[0].ContributorID)
	assert.Equal(t, uint64(600), claims[0].Amount)
}

func TestComputeClaims_SkipsVerifiedWithoutAddress(t *testing.T) {
	cs := []Contributor{verified("a", "", "100")}
	claims, err := ComputeClaims("d1", 1000, cs)
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestComputeClaims_NeverExceedsAmount(t *testing.T) {
	cs := []Contributor{
		verified("a", "x", "33.3334"),
		verified("b", "y", "33.3333"),
		verified("c", "z", "33.3333"),
	}
	for _, amount := range []uint64{1, 2, 3, 7, 100, 101, 9999, 123456789} {
		claims, err := ComputeClaims("d", amount, cs)
		require.NoError(t, err)
		assert.NoError(t, ValidateClaims(amount, claims), "amount=%d", amount)
	}
}

func TestComputeClaims_ZeroAmount(t *testing.T) {
	_, err := ComputeClaims("d", 0, []Contributor{verified("a", "x", "100")})
	assert.ErrorIs(t, err, ErrInsufficientPayment)
}

func TestValidateClaims_Exceeds(t *testing.T) {
	err := ValidateClaims(100, []Claim{{Amount: 60}, {Amount: 41}})
	assert.ErrorIs(t, err, ErrClaimsExceedAmount)
}

// --- Addresses ---

func TestValidateAddress(t *testing.T) {
	main := newAddress(t, true)
	test := newAddress(t, false)

	assert.NoError(t, ValidateAddress(main))
	assert.NoError(t, ValidateAddress(test))

	for _, bad := range []string{"", "not-an-address", " " + main, main[:len(main)-1], "0x1234"} {
		err := ValidateAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, "addr=%q", bad)
		assert.Equal(t, "validation", Kind(err))
	}
}

func TestValidateAddressForChain(t *testing.T) {
	main := newAddress(t, true)
	test := newAddress(t, false)

	assert.NoError(t, ValidateAddressForChain(main, ChainMainnet))
	assert.NoError(t, ValidateAddressForChain(test, ChainTestnet))
	assert.NoError(t, ValidateAddressForChain(test, ChainRegtest))
	assert.ErrorIs(t, ValidateAddressForChain(test, ChainMainnet), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddressForChain(main, ChainTestnet), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddressForChain(main, "ethereum"), ErrInvalidChain)
}

func TestValidateHandle(t *testing.T) {
	for _, ok := range []string{"alice", "bob-smith", "example.com", "Jane Doe"} {
		assert.NoError(t, ValidateHandle(ok), ok)
	}
	for _, bad := range []string{"", " alice", "alice\n", "a\x00b"} {
		assert.ErrorIs(t, ValidateHandle(bad), ErrInvalidHandle, "%q", bad)
	}
}

// --- Status machines ---

func TestVerificationStatus_Transitions(t *testing.T) {
	assert.True(t, Unassigned.CanTransition(PendingVerification))
	assert.True(t, Unassigned.CanTransition(Verified))
	assert.True(t, PendingVerification.CanTransition(Verified))
	assert.False(t, PendingVerification.CanTransition(Unassigned))
	assert.False(t, Verified.CanTransition(PendingVerification))
	assert.False(t, Verified.CanTransition(Unassigned))
	assert.False(t, VerificationStatus(0).CanTransition(Verified))
}

func TestSplitStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to SplitStatus
		ok       bool
	}{
		{SplitPending, SplitActive, true},
		{SplitPending, SplitPaused, false},
		{SplitActive, SplitPaused, true},
		{SplitPaused, SplitActive, true},
		{SplitActive, SplitClosed, true},
		{SplitPaused, SplitClosed, true},
		{SplitClosed, SplitActive, false},
		{SplitClosed, SplitClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTerminalStates(t *testing.T) {
	for _, next := range []SessionStatus{SessionPending, SessionCompleted, SessionExpired} {
		assert.False(t, SessionCompleted.CanTransition(next))
		assert.False(t, SessionExpired.CanTransition(next))
	}
	for _, next := range []InvitationStatus{InvitationPending, InvitationAccepted, InvitationExpired} {
		assert.False(t, InvitationAccepted.CanTransition(next))
		assert.False(t, InvitationExpired.CanTransition(next))
	}
	assert.False(t, DistributionCompleted.CanTransition(DistributionFailed))
	assert.True(t, DistributionFailed.CanTransition(DistributionPending))
	assert.False(t, DistributionFailed.CanTransition(DistributionCompleted))
	assert.False(t, ClaimCompleted.CanTransition(ClaimPending))
}

func TestStatus_StringParseRoundTrip(t *testing.T) {
	for _, s := range []VerificationStatus{Unassigned, PendingVerification, Verified} {
		got, err := ParseVerificationStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.True(t, s.Valid())
	}
	for _, s := range []SplitStatus{SplitPending, SplitActive, SplitPaused, SplitClosed} {
		got, err := ParseSplitStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	for _, s := range []DistributionStatus{DistributionPending, DistributionCompleted, DistributionFailed} {
		got, err := ParseDistributionStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseSplitStatus("active")
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, SplitStatus(9).Valid())
	assert.Equal(t, "SplitStatus(9)", SplitStatus(9).String())
}

// --- Lifecycle ---

func TestContributorAdvance_StampsVerifiedAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Contributor{Status: Unassigned}

	require.NoError(t, c.Advance(PendingVerification, now))
	assert.Nil(t, c.VerifiedAt)

	require.NoError(t, c.Advance(Verified, now))
	require.NotNil(t, c.VerifiedAt)
	assert.Equal(t, now, *c.VerifiedAt)

	// Same status is a no-op and keeps the original stamp.
	require.NoError(t, c.Advance(Verified, now.Add(time.Hour)))
	assert.Equal(t, now, *c.VerifiedAt)

	err := c.Advance(PendingVerification, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestSessionLifecycle(t *testing.T) {
	now := time.Now().UTC()
	s := VerificationSession{Status: SessionPending, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Hour)))

	require.NoError(t, s.Complete(now))
	assert.Equal(t, SessionCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)

	assert.ErrorIs(t, s.Complete(now), ErrInvalidTransition)
	assert.ErrorIs(t, s.Expire(), ErrInvalidTransition)
}

func TestDistributionLifecycle(t *testing.T) {
	now := time.Now().UTC()
	d := Distribution{Status: DistributionPending}

	require.NoError(t, d.Fail(errors.New("boom")))
	assert.Equal(t, "boom", d.Error)
	assert.ErrorIs(t, d.Complete("ref", now), ErrInvalidTransition)

	require.NoError(t, d.Requeue())
	require.NoError(t, d.Complete("ref", now))
	assert.Equal(t, "ref", d.SettlementRef)
	assert.Empty(t, d.Error)
	assert.ErrorIs(t, d.Requeue(), ErrInvalidTransition)
}

// --- Error kinds ---

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrShareSum, "validation"},
		{fmt.Errorf("wrapped: %w", ErrNotFound), "not_found"},
		{ErrInvalidTransition, "state_conflict"},
		{ErrRateLimited, "external"},
		{ErrRejected, "external"},
		{ErrCache, "cache"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}

func TestStatusText(t *testing.T) {
	b, err := json.Marshal(struct {
		Split SplitStatus
		Claim ClaimStatus
	}{SplitActive, ClaimCompleted})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Split":"ACTIVE","Claim":"COMPLETED"}`, string(b))

	var got struct{ Session SessionStatus }
	require.NoError(t, json.Unmarshal([]byte(`{"Session":"EXPIRED"}`), &got))
	assert.Equal(t, SessionExpired, got.Session)

	assert.Error(t, json.Unmarshal([]byte(`{"Session":"LOST"}`), &got))

	_, err = SplitStatus(99).MarshalText()
	assert.ErrorIs(t, err, ErrValidation)

	var zero SplitStatus
	b, err = zero.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, b)
	require.NoError(t, zero.UnmarshalText(nil))
	assert.Equal(t, SplitStatus(0), zero)
}
