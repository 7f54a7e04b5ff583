package revshare

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// ShareTolerance is how far the share sum may drift from 100.
	ShareTolerance = decimal.New(1, -3)
)

// ValidateShare checks that a single share lies in [0, 100].
func ValidateShare(share decimal.Decimal) error {
	if share.IsNegative() || share.GreaterThan(hundred) {
		return fmt.Errorf("%w: got %s", ErrShareRange, share)
	}
	return nil
}

// ValidateShareSum checks every share is in range and that together they sum
// to 100 within ShareTolerance (exclusive).
func ValidateShareSum(shares []decimal.Decimal) error {
	if len(shares) == 0 {
		return ErrNoContributors
	}
	total := decimal.Zero
	for _, s := range shares {
		if err := ValidateShare(s); err != nil {
			return err
		}
		total = total.Add(s)
	}
	if total.Sub(hundred).Abs().GreaterThanOrEqual(ShareTolerance) {
		return fmt.Errorf("%w: got %s", ErrShareSum, total)
	}
	return nil
}

// ContributorShares returns the shares of cs in order.
func ContributorShares(cs []Contributor) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(cs))
	for i := range cs {
		shares[i] = cs[i].Share
	}
	return shares
}

// ComputeClaimAmount returns floor(amount * share / 100).
func ComputeClaimAmount(amount uint64, share decimal.Decimal) uint64 {
	if amount == 0 || !share.IsPositive() {
		return 0
	}
	v := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).Mul(share).Shift(-2).Floor()
	if v.GreaterThan(decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)) {
		return amount
	}
	return v.BigInt().Uint64()
}

// ComputeClaims freezes the claim of every eligible contributor for a
// distribution of amount. Ineligible contributors and zero-value claims are
// skipped. The sum of the returned amounts never exceeds amount; the
// remainder stays undistributed.
func ComputeClaims(distributionID string, amount uint64, contributors []Contributor) ([]Claim, error) {
	if amount == 0 {
		return nil, ErrInsufficientPayment
	}

	var (
		claims []Claim
		total  uint64
	)
	for i := range contributors {
		c := &contributors[i]
		if !c.Eligible() {
			continue
		}
		a := ComputeClaimAmount(amount, c.Share)
		if a > amount-total {
			a = amount - total
		}
		if a == 0 {
			continue
		}
		total += a
		claims = append(claims, Claim{
			DistributionID: distributionID,
			ContributorID:  c.ID,
			Position:       len(claims),
			Address:        c.SettlementAddress,
			Amount:         a,
			Status:         ClaimPending,
		})
	}
	return claims, nil
}

// ValidateClaims checks that claims do not add up to more than amount.
func ValidateClaims(amount uint64, claims []Claim) error {
	var total uint64
	for _, c := range claims {
		if c.Amount > amount-total {
			return fmt.Errorf("%w: distribution=%d", ErrClaimsExceedAmount, amount)
		}
		total += c.Amount
	}
	return nil
}
