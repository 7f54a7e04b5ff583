// Package store is the authoritative transactional store for splits,
// contributors, verification sessions, invitations, distributions and claims.
//
// All multi-step state changes run inside a single Update call: returning an
// error from the callback, or a cancelled context, rolls back every write.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bitfsorg/contribsplit/revshare"
)

// Store runs functions inside read-write or read-only transactions.
type Store interface {
	// Update runs fn in a read-write transaction. Writers are serialised, so
	// a read followed by a write inside fn is a compare-and-swap.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error

	// Close releases the underlying database.
	Close() error
}

// Tx is the typed view of one transaction. Put methods insert or replace a
// record by ID and enforce the unique indexes. Get methods return ErrNotFound
// when nothing matches.
type Tx interface {
	PutSplit(s *revshare.Split) error
	GetSplit(id string) (*revshare.Split, error)
	GetSplitByAddress(address string) (*revshare.Split, error)
	ListSplits() ([]*revshare.Split, error)

	// PutContributor enforces a unique (SplitID, Handle).
	PutContributor(c *revshare.Contributor) error
	GetContributor(id string) (*revshare.Contributor, error)
	GetContributorByHandle(splitID, handle string) (*revshare.Contributor, error)
	// ListContributors returns a split's contributors ordered by Position.
	ListContributors(splitID string) ([]*revshare.Contributor, error)

	// PutSession enforces a unique Nonce.
	PutSession(s *revshare.VerificationSession) error
	GetSession(id string) (*revshare.VerificationSession, error)
	// ListSessions returns a contributor's sessions oldest first.
	ListSessions(contributorID string) ([]*revshare.VerificationSession, error)
	ListSessionsByStatus(status revshare.SessionStatus) ([]*revshare.VerificationSession, error)

	// PutInvitation enforces a unique TokenHash.
	PutInvitation(inv *revshare.Invitation) error
	GetInvitation(id string) (*revshare.Invitation, error)
	GetInvitationByTokenHash(hash string) (*revshare.Invitation, error)
	ListInvitationsByStatus(status revshare.InvitationStatus) ([]*revshare.Invitation, error)

	PutDistribution(d *revshare.Distribution) error
	GetDistribution(id string) (*revshare.Distribution, error)
	// ListDistributions returns a split's distributions oldest first.
	ListDistributions(splitID string) ([]*revshare.Distribution, error)
	ListDistributionsByStatus(status revshare.DistributionStatus) ([]*revshare.Distribution, error)

	PutClaim(c *revshare.Claim) error
	// ListClaims returns a distribution's claims ordered by Position.
	ListClaims(distributionID string) ([]*revshare.Claim, error)
	ListClaimsByContributor(contributorID string) ([]*revshare.Claim, error)

	// PutAnalysis replaces the cached analysis for (Owner, Repo).
	PutAnalysis(a *revshare.AnalysisRecord) error
	GetAnalysis(owner, repo string) (*revshare.AnalysisRecord, error)

	AppendAudit(e *revshare.AuditEntry) error
	ListAudit(limit int) ([]*revshare.AuditEntry, error)
}

// Backend names accepted by Open.
const (
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Open opens the backend named by backend. For bolt, target is a file path;
// for postgres, a DSN.
func Open(ctx context.Context, backend, target string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendBolt, "":
		return OpenBoltStore(target)
	case BackendPostgres:
		return OpenPGStore(ctx, target, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
