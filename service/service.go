// Package service is the exposed API of contribsplit. It composes the
// attribution, registry, verification, invitation and distribution
// components over one store and records an audit trail of every successful
// mutation.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bitfsorg/contribsplit/attribution"
	"github.com/bitfsorg/contribsplit/distribution"
	"github.com/bitfsorg/contribsplit/invitation"
	"github.com/bitfsorg/contribsplit/registry"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
	"github.com/bitfsorg/contribsplit/verification"
)

// Components are the parts a Service composes.
type Components struct {
	Store        store.Store
	Calculator   *attribution.Calculator
	Registry     *registry.Registry
	Verification *verification.Manager
	Invitations  *invitation.Manager
	Engine       *distribution.Engine
	Logger       *slog.Logger
	Now          func() time.Time

	// Network is the chain new splits default to.
	Network string
}

// Service is the contribsplit API.
type Service struct {
	store        store.Store
	calculator   *attribution.Calculator
	registry     *registry.Registry
	verification *verification.Manager
	invitations  *invitation.Manager
	engine       *distribution.Engine
	logger       *slog.Logger
	now          func() time.Time
	network      string

	auditWG sync.WaitGroup
}

// New returns a Service over c.
func New(c Components) *Service {
	s := &Service{
		store:        c.Store,
		calculator:   c.Calculator,
		registry:     c.Registry,
		verification: c.Verification,
		invitations:  c.Invitations,
		engine:       c.Engine,
		logger:       c.Logger,
		now:          c.Now,
		network:      c.Network,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Network returns the configured chain.
func (s *Service) Network() string { return s.network }

// Close waits for pending audit writes and closes the store.
func (s *Service) Close() error {
	s.FlushAudit()
	return s.store.Close()
}

// AnalyzeRepository attributes a repository's commits to contributors.
func (s *Service) AnalyzeRepository(ctx context.Context, owner, repo string) (*attribution.Analysis, error) {
	a, err := s.calculator.AnalyzeRepository(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	s.audit(ActionAnalyze, owner+"/"+repo, "contributors=%d commits=%d residual=%d",
		len(a.Contributors), a.TotalCommits, a.RoundingResidual)
	return a, nil
}

// CreateSplit registers a split.
func (s *Service) CreateSplit(ctx context.Context, ns registry.NewSplit) (*registry.SplitView, error) {
	v, err := s.registry.CreateSplit(ctx, ns)
	if err != nil {
		return nil, err
	}
	s.audit(ActionSplitCreate, v.Split.ID, "address=%s chain=%s contributors=%d status=%s",
		v.Split.Address, v.Split.Chain, len(v.Contributors), v.Split.Status)
	return v, nil
}

// SplitParams are the ledger settings of a split seeded from an analysis.
type SplitParams struct {
	Address   string
	Chain     string
	Authority string
	Activate  bool
}

// SeedContributors turns attribution output into split contributors. The
// handle is the login when known, else the author name.
func SeedContributors(a *attribution.Analysis) []registry.NewContributor {
	out := make([]registry.NewContributor, 0, len(a.Contributors))
	for _, c := range a.Contributors {
		handle := c.Handle
		if handle == "" {
			handle = strings.TrimSpace(c.Name)
		}
		out = append(out, registry.NewContributor{
			Handle: handle,
			Email:  c.Email,
			Share:  decimal.NewFromInt(int64(c.Share)),
		})
	}
	return out
}

// CreateSplitFromAnalysis registers a split whose contributors and shares
// come from an attribution analysis.
func (s *Service) CreateSplitFromAnalysis(ctx context.Context, a *attribution.Analysis, p SplitParams) (*registry.SplitView, error) {
	return s.CreateSplit(ctx, registry.NewSplit{
		Address:      p.Address,
		Chain:        p.Chain,
		Authority:    p.Authority,
		Owner:        a.Owner,
		Repo:         a.Repo,
		Contributors: SeedContributors(a),
		Activate:     p.Activate,
	})
}

// GetSplit returns a split and its contributors.
func (s *Service) GetSplit(ctx context.Context, splitID string) (*registry.SplitView, error) {
	return s.registry.GetSplit(ctx, splitID)
}

// GetSplitByAddress returns the split settled from address.
func (s *Service) GetSplitByAddress(ctx context.Context, address string) (*registry.SplitView, error) {
	return s.registry.GetSplitByAddress(ctx, address)
}

// ListSplits returns every split.
func (s *Service) ListSplits(ctx context.Context) ([]*revshare.Split, error) {
	return s.registry.ListSplits(ctx)
}

// SetSplitStatus activates, pauses, resumes or closes a split.
func (s *Service) SetSplitStatus(ctx context.Context, splitID string, status revshare.SplitStatus) (*revshare.Split, error) {
	split, err := s.registry.SetStatus(ctx, splitID, status)
	if err != nil {
		return nil, err
	}
	s.audit(ActionSplitStatus, splitID, "status=%s", status)
	return split, nil
}

// UpdateShares reassigns contributor shares.
func (s *Service) UpdateShares(ctx context.Context, splitID string, shares map[string]decimal.Decimal) (*registry.SplitView, error) {
	v, err := s.registry.UpdateShares(ctx, splitID, shares)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(shares))
	for _, c := range v.Contributors {
		if sh, ok := shares[c.Handle]; ok {
			parts = append(parts, c.Handle+"="+sh.String())
		}
	}
	s.audit(ActionSharesUpdate, splitID, "%s", strings.Join(parts, " "))
	return v, nil
}

// StartVerification opens a verification session for a contributor.
func (s *Service) StartVerification(ctx context.Context, contributorID, handle, address string) (*verification.Challenge, error) {
	ch, err := s.verification.StartVerification(ctx, contributorID, handle, address)
	if err != nil {
		return nil, err
	}
	s.audit(ActionVerificationStart, contributorID, "session=%s address=%s", ch.SessionID, address)
	return ch, nil
}

// CompleteVerification finishes a session with the contributor's signature proof.
func (s *Service) CompleteVerification(ctx context.Context, sessionID, proof string) (*revshare.Contributor, error) {
	c, err := s.verification.CompleteVerification(ctx, sessionID, proof)
	if err != nil {
		return nil, err
	}
	s.audit(ActionVerificationDone, c.ID, "session=%s address=%s", sessionID, c.SettlementAddress)
	return c, nil
}

// CleanupExpired expires stale verification sessions.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.verification.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit(ActionSessionsExpired, "sessions", "count=%d", n)
	}
	return n, nil
}

// Invite issues an invitation; the returned token is shown only once.
func (s *Service) Invite(ctx context.Context, splitID string, req invitation.InviteRequest) (*invitation.Issued, error) {
	issued, err := s.invitations.Invite(ctx, splitID, req)
	if err != nil {
		return nil, err
	}
	s.audit(ActionInvite, splitID, "invitation=%s handle=%s", issued.Invitation.ID, req.Handle)
	return issued, nil
}

// AcceptInvitation redeems an invitation token with a settlement address.
func (s *Service) AcceptInvitation(ctx context.Context, token, address string) (*revshare.Contributor, error) {
	c, err := s.invitations.Accept(ctx, token, address)
	if err != nil {
		return nil, err
	}
	s.audit(ActionInvitationAccept, c.ID, "split=%s address=%s", c.SplitID, address)
	return c, nil
}

// ExpireInvitations expires stale invitations.
func (s *Service) ExpireInvitations(ctx context.Context) (int, error) {
	n, err := s.invitations.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit(ActionInvitationsExpired, "invitations", "count=%d", n)
	}
	return n, nil
}

// CheckForNewFunds creates a distribution for new funds at a split, if any.
func (s *Service) CheckForNewFunds(ctx context.Context, splitID string) (*revshare.Distribution, error) {
	d, err := s.engine.CheckForNewFunds(ctx, splitID)
	if err != nil || d == nil {
		return d, err
	}
	s.audit(ActionDistributionCreate, d.ID, "split=%s amount=%d", splitID, d.Amount)
	return d, nil
}

// CheckAllSplits checks every active split for new funds.
func (s *Service) CheckAllSplits(ctx context.Context) ([]*revshare.Distribution, error) {
	created, err := s.engine.CheckAllSplits(ctx)
	for _, d := range created {
		s.audit(ActionDistributionCreate, d.ID, "split=%s amount=%d", d.SplitID, d.Amount)
	}
	return created, err
}

// ProcessPendingDistributions settles pending distributions.
func (s *Service) ProcessPendingDistributions(ctx context.Context) (distribution.Report, error) {
	report, err := s.engine.ProcessPendingDistributions(ctx)
	for _, id := range report.Completed {
		s.audit(ActionDistributionSettle, id, "completed")
	}
	for _, f := range report.Failed {
		s.audit(ActionDistributionFail, f.DistributionID, "error=%v", f.Err)
	}
	return report, err
}

// RetryDistribution requeues a failed distribution.
func (s *Service) RetryDistribution(ctx context.Context, distributionID string) (*revshare.Distribution, error) {
	d, err := s.engine.RetryDistribution(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	s.audit(ActionDistributionRetry, d.ID, "split=%s", d.SplitID)
	return d, nil
}

// ReconcileClaims repairs claims of completed distributions.
func (s *Service) ReconcileClaims(ctx context.Context) (int, error) {
	n, err := s.engine.ReconcileClaims(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit(ActionClaimsReconciled, "claims", "count=%d", n)
	}
	return n, nil
}

// GetClaimableAmount returns the total a contributor has been paid.
func (s *Service) GetClaimableAmount(ctx context.Context, contributorID string) (uint64, error) {
	return s.engine.GetClaimableAmount(ctx, contributorID)
}

// ListDistributions returns a split's distributions.
func (s *Service) ListDistributions(ctx context.Context, splitID string) ([]*revshare.Distribution, error) {
	return s.engine.ListDistributions(ctx, splitID)
}

// ListClaims returns a distribution's claims.
func (s *Service) ListClaims(ctx context.Context, distributionID string) ([]*revshare.Claim, error) {
	return s.engine.ListClaims(ctx, distributionID)
}

// ListSessions returns a contributor's verification history.
func (s *Service) ListSessions(ctx context.Context, contributorID string) ([]*revshare.VerificationSession, error) {
	return s.verification.ListSessions(ctx, contributorID)
}
