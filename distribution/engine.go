// Package distribution detects inflows to a split's ledger address, freezes
// each contributor's claim on them and settles the claims through the ledger
// executor.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bitfsorg/contribsplit/ledger"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
	"github.com/bitfsorg/contribsplit/telemetry"
)

const scopeName = "github.com/bitfsorg/contribsplit/distribution"

// DefaultSettleTimeout bounds one ExecuteSettlement call.
const DefaultSettleTimeout = 2 * time.Minute

// leaseGrace is added to the settle timeout before a held lease counts as
// abandoned.
const leaseGrace = time.Minute

// Report summarises one ProcessPendingDistributions pass. Skipped lists
// distributions another attempt is already settling.
type Report struct {
	Completed []string
	Failed    []Failure
	Skipped   []string
}

// Failure is a distribution that could not be settled in a pass.
type Failure struct {
	DistributionID string
	Err            error
}

// Engine creates and settles distributions.
type Engine struct {
	store         store.Store
	executor      ledger.Executor
	feeReserve    uint64
	settleTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time

	tracer        trace.Tracer
	completed     metric.Int64Counter
	failed        metric.Int64Counter
	claimsCreated metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithFeeReserve holds sats back from every detected balance so the
// settlement fee never comes out of frozen claims.
func WithFeeReserve(sats uint64) Option {
	return func(e *Engine) { e.feeReserve = sats }
}

// WithSettleTimeout bounds each settlement call.
func WithSettleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.settleTimeout = d
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine settling through executor.
func NewEngine(s store.Store, executor ledger.Executor, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		executor:      executor,
		settleTimeout: DefaultSettleTimeout,
		logger:        slog.Default(),
		now:           time.Now,
		tracer:        telemetry.Tracer(scopeName),
	}
	for _, opt := range opts {
		opt(e)
	}

	m := telemetry.Meter(scopeName)
	e.completed = telemetry.Int64Counter(m, "distributions.completed",
		"Distributions settled on chain", e.logger)
	e.failed = telemetry.Int64Counter(m, "distributions.failed",
		"Distribution settlement failures", e.logger)
	e.claimsCreated = telemetry.Int64Counter(m, "claims.created",
		"Claims frozen at distribution creation", e.logger)
	return e
}

func hasPending(ds []*revshare.Distribution) bool {
	for _, d := range ds {
		if d.Status == revshare.DistributionPending {
			return true
		}
	}
	return false
}

// unsettled sums failed distributions. Their funds are still at the split
// address but already promised.
func unsettled(ds []*revshare.Distribution) uint64 {
	var n uint64
	for _, d := range ds {
		if d.Status == revshare.DistributionFailed {
			n += d.Amount
		}
	}
	return n
}

// CheckForNewFunds reads the split's balance and, when there are funds not
// yet covered by a distribution and no distribution is pending, creates a
// pending distribution with one frozen claim per verified contributor. It
// returns nil when there is nothing to distribute.
func (e *Engine) CheckForNewFunds(ctx context.Context, splitID string) (*revshare.Distribution, error) {
	var split *revshare.Split
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		split, err = tx.GetSplit(splitID)
		if store.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrSplitNotFound, splitID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !split.AcceptsDistributions() {
		return nil, fmt.Errorf("%w: %s is %s", ErrSplitNotActive, splitID, split.Status)
	}

	balance, err := e.executor.GetBalance(ctx, split.Address, split.Chain)
	if err != nil {
		return nil, fmt.Errorf("distribution: balance of %s: %w", split.Address, err)
	}

	// Held back: failed distributions still owed, what completed
	// distributions left undivided, and the fee reserve.

	var (
		dist   *revshare.Distribution
		claims []revshare.Claim
	)
	err = e.store.Update(ctx, func(tx store.Tx) error {
		dist, claims = nil, nil
		current, err := tx.GetSplit(splitID)
		if err != nil {
			return err
		}
		existing, err := tx.ListDistributions(splitID)
		if err != nil {
			return err
		}
		if hasPending(existing) {
			return nil
		}
		held := unsettled(existing) + current.Residual + e.feeReserve
		if balance <= held {
			return nil
		}
		amount := balance - held

		cs, err := tx.ListContributors(splitID)
		if err != nil {
			return err
		}
		contributors := make([]revshare.Contributor, len(cs))
		for i, c := range cs {
			contributors[i] = *c
		}

		now := e.now().UTC()
		d := &revshare.Distribution{
			ID:        uuid.NewString(),
			SplitID:   splitID,
			Amount:    amount,
			Status:    revshare.DistributionPending,
			CreatedAt: now,
		}
		claims, err = revshare.ComputeClaims(d.ID, amount, contributors)
		if err != nil {
			return err
		}
		if len(claims) == 0 {
			return nil
		}
		if err := revshare.ValidateClaims(amount, claims); err != nil {
			return err
		}
		if err := tx.PutDistribution(d); err != nil {
			return err
		}
		for i := range claims {
			claims[i].ID = uuid.NewString()
			claims[i].CreatedAt = now
			if err := tx.PutClaim(&claims[i]); err != nil {
				return err
			}
		}
		dist = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	if dist == nil {
		e.logger.Debug("distribution_nothing_to_do", "split_id", splitID, "balance", balance)
		return nil, nil
	}

	e.claimsCreated.Add(ctx, int64(len(claims)), metric.WithAttributes(attribute.String("split.id", splitID)))
	e.logger.Info("distribution_created",
		"distribution_id", dist.ID, "split_id", splitID, "amount", dist.Amount,
		"claims", len(claims), "balance", balance)
	return dist, nil
}

// CheckAllSplits runs CheckForNewFunds on every active split. A failing
// split does not stop the others; their errors are joined.
func (e *Engine) CheckAllSplits(ctx context.Context) ([]*revshare.Distribution, error) {
	var splits []*revshare.Split
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		splits, err = tx.ListSplits()
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		created []*revshare.Distribution
		errs    []error
	)
	for _, s := range splits {
		if !s.AcceptsDistributions() {
			continue
		}
		d, err := e.CheckForNewFunds(ctx, s.ID)
		if err != nil {
			e.logger.Warn("distribution_check_failed", "split_id", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("split %s: %w", s.ID, err))
			continue
		}
		if d != nil {
			created = append(created, d)
		}
	}
	return created, errors.Join(errs...)
}

// ProcessPendingDistributions settles every pending distribution. A failure
// marks that distribution failed and processing continues with the next.
// Each settlement first takes a lease on its distribution, so concurrent
// passes never pay the same distribution twice. A lease left past the
// settle timeout marks the distribution failed with ErrOutcomeUnknown.
func (e *Engine) ProcessPendingDistributions(ctx context.Context) (Report, error) {
	var pending []*revshare.Distribution
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		pending, err = tx.ListDistributionsByStatus(revshare.DistributionPending)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		settled, err := e.settle(ctx, d)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, Failure{DistributionID: d.ID, Err: err})
		case settled:
			report.Completed = append(report.Completed, d.ID)
		default:
			report.Skipped = append(report.Skipped, d.ID)
		}
	}
	return report, nil
}

// acquire takes the settlement lease on a pending distribution and returns
// the attempt ID, or "" when the distribution is not pending or another
// attempt holds a live lease. An abandoned lease marks the distribution
// failed.
func (e *Engine) acquire(ctx context.Context, distributionID string) (string, error) {
	var (
		attempt   string
		abandoned bool
	)
	err := e.store.Update(ctx, func(tx store.Tx) error {
		attempt, abandoned = "", false
		d, err := tx.GetDistribution(distributionID)
		if err != nil {
			return err
		}
		if d.Status != revshare.DistributionPending {
			return nil
		}
		now := e.now().UTC()
		if d.SettlingAt != nil {
			if now.Sub(*d.SettlingAt) < e.settleTimeout+leaseGrace {
				return nil
			}
			abandoned = true
			if err := d.Fail(fmt.Errorf("%w: attempt %s started %s", ErrOutcomeUnknown,
				d.AttemptID, d.SettlingAt.Format(time.RFC3339))); err != nil {
				return err
			}
			return tx.PutDistribution(d)
		}
		d.AttemptID = uuid.NewString()
		d.SettlingAt = &now
		attempt = d.AttemptID
		return tx.PutDistribution(d)
	})
	if err != nil {
		return "", err
	}
	if abandoned {
		return "", fmt.Errorf("%w: %s", ErrOutcomeUnknown, distributionID)
	}
	return attempt, nil
}

func (e *Engine) settle(ctx context.Context, d *revshare.Distribution) (settled bool, err error) {
	ctx, span := e.tracer.Start(ctx, "distribution.settle", trace.WithAttributes(
		attribute.String("distribution.id", d.ID),
		attribute.String("split.id", d.SplitID),
		attribute.Int64("distribution.amount", int64(d.Amount)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	attempt, err := e.acquire(ctx, d.ID)
	if err != nil {
		if errors.Is(err, ErrOutcomeUnknown) {
			e.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", revshare.Kind(err))))
			e.logger.Error("distribution_outcome_unknown", "distribution_id", d.ID, "split_id", d.SplitID)
		}
		return false, err
	}
	if attempt == "" {
		e.logger.Debug("distribution_skipped", "distribution_id", d.ID, "split_id", d.SplitID)
		return false, nil
	}
	span.SetAttributes(attribute.String("settlement.attempt", attempt))

	var (
		split  *revshare.Split
		claims []*revshare.Claim
	)
	err = e.store.View(ctx, func(tx store.Tx) error {
		var err error
		if split, err = tx.GetSplit(d.SplitID); err != nil {
			return err
		}
		claims, err = tx.ListClaims(d.ID)
		return err
	})
	if err != nil {
		if ferr := e.markFailed(ctx, d.ID, attempt, err); ferr != nil {
			return false, errors.Join(err, ferr)
		}
		return false, err
	}

	recipients := make([]ledger.Recipient, 0, len(claims))
	for _, c := range claims {
		if c.Status == revshare.ClaimPending {
			recipients = append(recipients, ledger.Recipient{Address: c.Address, Amount: c.Amount})
		}
	}

	sctx, cancel := context.WithTimeout(ctx, e.settleTimeout)
	ref, execErr := e.executor.ExecuteSettlement(sctx, split.Address, split.Chain, recipients)
	cancel()
	if execErr != nil {
		e.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", revshare.Kind(execErr))))
		e.logger.Warn("distribution_failed", "distribution_id", d.ID, "split_id", d.SplitID, "error", execErr)
		if err := e.markFailed(ctx, d.ID, attempt, execErr); err != nil {
			return false, errors.Join(execErr, err)
		}
		return false, execErr
	}

	span.SetAttributes(attribute.String("settlement.ref", ref))
	if err := e.recordSettlement(ctx, d.ID, attempt, ref); err != nil {
		e.logger.Error("distribution_unrecorded",
			"distribution_id", d.ID, "split_id", d.SplitID, "settlement_ref", ref, "error", err)
		return false, fmt.Errorf("%w: %s ref %s: %w", ErrUnrecorded, d.ID, ref, err)
	}
	e.completed.Add(ctx, 1)
	e.logger.Info("distribution_completed",
		"distribution_id", d.ID, "split_id", d.SplitID, "settlement_ref", ref, "recipients", len(recipients))
	return true, nil
}

func (e *Engine) markFailed(ctx context.Context, distributionID, attempt string, cause error) error {
	return e.store.Update(context.WithoutCancel(ctx), func(tx store.Tx) error {
		d, err := tx.GetDistribution(distributionID)
		if err != nil {
			return err
		}
		if d.Status != revshare.DistributionPending || d.AttemptID != attempt {
			return nil
		}
		if err := d.Fail(cause); err != nil {
			return err
		}
		return tx.PutDistribution(d)
	})
}

// recordSettlement completes the distribution and its claims and rolls the
// amounts into the split and contributor totals. The part of the amount no
// claim covers is added to the split's residual. Money has already moved, so
// store errors are retried.
func (e *Engine) recordSettlement(ctx context.Context, distributionID, attempt, ref string) error {
	ctx = context.WithoutCancel(ctx)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		err := e.store.Update(ctx, func(tx store.Tx) error {
			d, err := tx.GetDistribution(distributionID)
			if err != nil {
				return err
			}
			if d.AttemptID != attempt {
				return fmt.Errorf("%w: %s", ErrLeaseLost, distributionID)
			}
			if err := d.Complete(ref, e.now().UTC()); err != nil {
				return err
			}
			claims, err := tx.ListClaims(distributionID)
			if err != nil {
				return err
			}
			var paid, claimed uint64
			for _, c := range claims {
				claimed += c.Amount
				if c.Status != revshare.ClaimPending {
					continue
				}
				if err := c.Complete(ref); err != nil {
					return err
				}
				if err := tx.PutClaim(c); err != nil {
					return err
				}
				if err := addClaimed(tx, c.ContributorID, c.Amount); err != nil {
					return err
				}
				paid += c.Amount
			}
			split, err := tx.GetSplit(d.SplitID)
			if err != nil {
				return err
			}
			split.TotalDistributed += paid
			if d.Amount > claimed {
				split.Residual += d.Amount - claimed
			}
			if err := tx.PutSplit(split); err != nil {
				return err
			}
			return tx.PutDistribution(d)
		})
		if errors.Is(err, revshare.ErrStateConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func addClaimed(tx store.Tx, contributorID string, amount uint64) error {
	c, err := tx.GetContributor(contributorID)
	if err != nil {
		return err
	}
	c.TotalClaimed += amount
	return tx.PutContributor(c)
}

// GetClaimableAmount returns the sum of a contributor's completed claims.
func (e *Engine) GetClaimableAmount(ctx context.Context, contributorID string) (uint64, error) {
	var total uint64
	err := e.store.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetContributor(contributorID); err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrContributorNotFound, contributorID)
			}
			return err
		}
		claims, err := tx.ListClaimsByContributor(contributorID)
		if err != nil {
			return err
		}
		for _, c := range claims {
			if c.Status == revshare.ClaimCompleted {
				total += c.Amount
			}
		}
		return nil
	})
	return total, err
}

// ReconcileClaims completes pending claims left behind by completed
// distributions and returns how many it repaired.
func (e *Engine) ReconcileClaims(ctx context.Context) (int, error) {
	var n int
	err := e.store.Update(ctx, func(tx store.Tx) error {
		done, err := tx.ListDistributionsByStatus(revshare.DistributionCompleted)
		if err != nil {
			return err
		}
		for _, d := range done {
			claims, err := tx.ListClaims(d.ID)
			if err != nil {
				return err
			}
			var paid uint64
			for _, c := range claims {
				if c.Status != revshare.ClaimPending {
					continue
				}
				if err := c.Complete(d.SettlementRef); err != nil {
					return err
				}
				if err := tx.PutClaim(c); err != nil {
					return err
				}
				if err := addClaimed(tx, c.ContributorID, c.Amount); err != nil {
					return err
				}
				paid += c.Amount
				n++
			}
			if paid == 0 {
				continue
			}
			split, err := tx.GetSplit(d.SplitID)
			if err != nil {
				return err
			}
			split.TotalDistributed += paid
			if err := tx.PutSplit(split); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("distribution_claims_reconciled", "count", n)
	}
	return n, nil
}

// RetryDistribution moves a failed distribution back to pending so the next
// ProcessPendingDistributions pass settles it again.
func (e *Engine) RetryDistribution(ctx context.Context, distributionID string) (*revshare.Distribution, error) {
	var d *revshare.Distribution
	err := e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		d, err = tx.GetDistribution(distributionID)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrDistributionNotFound, distributionID)
			}
			return err
		}
		if d.Status != revshare.DistributionFailed {
			return fmt.Errorf("%w: %s is %s", ErrNotFailed, distributionID, d.Status)
		}
		siblings, err := tx.ListDistributions(d.SplitID)
		if err != nil {
			return err
		}
		if hasPending(siblings) {
			return fmt.Errorf("%w: %s", ErrPendingExists, d.SplitID)
		}
		if err := d.Requeue(); err != nil {
			return err
		}
		return tx.PutDistribution(d)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("distribution_requeued", "distribution_id", distributionID, "split_id", d.SplitID)
	return d, nil
}

// ListDistributions returns a split's distributions, oldest first.
func (e *Engine) ListDistributions(ctx context.Context, splitID string) ([]*revshare.Distribution, error) {
	var out []*revshare.Distribution
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListDistributions(splitID)
		return err
	})
	return out, err
}

// ListClaims returns a distribution's claims in order.
func (e *Engine) ListClaims(ctx context.Context, distributionID string) ([]*revshare.Claim, error) {
	var out []*revshare.Claim
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListClaims(distributionID)
		return err
	})
	return out, err
}
