package revshare

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifiers accepted for a split's ledger address.
const (
	ChainMainnet = "mainnet"
	ChainTestnet = "testnet"
	ChainRegtest = "regtest"
)

// Split is a revenue-sharing agreement for one repository.
type Split struct {
	ID               string
	Address          string // ledger address receiving inflows
	Chain            string
	Authority        string // address of the controlling authority that settles
	Owner            string
	Repo             string
	Status           SplitStatus
	TotalDistributed uint64
	Residual         uint64 // left at the address by completed distributions
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Contributor is a person entitled to a percentage of a split's distributions.
// Contributors are never deleted.
type Contributor struct {
	ID                string
	SplitID           string
	Position          int // insertion order within the split
	Handle            string
	Email             string
	SettlementAddress string
	Share             decimal.Decimal
	Status            VerificationStatus
	VerifiedAt        *time.Time
	TotalClaimed      uint64
	CreatedAt         time.Time
}

// Eligible reports whether c may receive a claim: verified with an address bound.
func (c *Contributor) Eligible() bool {
	return c.Status == Verified && c.SettlementAddress != ""
}

// VerificationSession is one attempt to bind a handle to a settlement address.
type VerificationSession struct {
	ID            string
	ContributorID string
	Nonce         string
	Handle        string
	Address       string
	Status        SessionStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Expired reports whether the session window has closed at now.
func (s *VerificationSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Invitation is a single-use out-of-band invitation for a contributor.
// Only the hash of its token is kept.
type Invitation struct {
	ID            string
	TokenHash     string
	SplitID       string
	ContributorID string
	Handle        string
	Email         string
	Status        InvitationStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
	AcceptedAt    *time.Time
}

// Distribution is one payout event covering an observed inflow.
type Distribution struct {
	ID            string
	SplitID       string
	Amount        uint64
	Status        DistributionStatus
	SettlementRef string
	Error         string // last settlement failure, if any
	AttemptID     string // settlement attempt holding the lease
	SettlingAt    *time.Time
	CreatedAt     time.Time
	SettledAt     *time.Time
}

// Claim is one contributor's frozen portion of a distribution.
type Claim struct {
	ID             string
	DistributionID string
	ContributorID  string
	Position       int
	Address        string
	Amount         uint64
	Status         ClaimStatus
	SettlementRef  string
	CreatedAt      time.Time
}

// AnalysisRecord is a cached attribution result for (Owner, Repo).
// Payload is opaque to the store.
type AnalysisRecord struct {
	Owner      string
	Repo       string
	Payload    []byte
	ComputedAt time.Time
}

// AuditEntry is one append-only record of a successful mutation.
type AuditEntry struct {
	ID      string
	Action  string
	Subject string
	Detail  string
	At      time.Time
}
