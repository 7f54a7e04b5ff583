package attribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bitfsorg/contribsplit/revshare"
)

// DefaultCacheTTL is how long a cached analysis is served.
const DefaultCacheTTL = 24 * time.Hour

// Calculator analyzes repositories through a commit history provider.
type Calculator struct {
	provider CommitProvider
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithCache enables read-through caching of analyses for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Calculator) {
		c.cache = cache
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator returns a calculator reading from provider.
func NewCalculator(provider CommitProvider, opts ...Option) *Calculator {
	c := &Calculator{
		provider: provider,
		ttl:      DefaultCacheTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeRepository computes contributor shares for owner/repo. For a fork,
// the parent's history is upstream and commits absent from it are
// fork-local. Cache failures never fail the call.
func (c *Calculator) AnalyzeRepository(ctx context.Context, owner, repo string) (*Analysis, error) {
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if owner == "" || repo == "" {
		return nil, ErrInvalidRepository
	}

	if a := c.cached(ctx, owner, repo); a != nil {
		return a, nil
	}

	info, err := c.provider.GetRepository(ctx, owner, repo)
	if err != nil {
		return nil, providerError(owner, repo, err)
	}

	var upstream, fork []CommitRecord
	parent := ""
	if info.IsFork && info.ParentOwner != "" && info.ParentName != "" {
		parent = info.ParentOwner + "/" + info.ParentName
		upstream, err = c.provider.ListCommits(ctx, info.ParentOwner, info.ParentName)
		if err != nil {
			return nil, providerError(info.ParentOwner, info.ParentName, err)
		}
		own, err := c.provider.ListCommits(ctx, owner, repo)
		if err != nil {
			return nil, providerError(owner, repo, err)
		}
		fork = forkLocal(upstream, own)
	} else {
		upstream, err = c.provider.ListCommits(ctx, owner, repo)
		if err != nil {
			return nil, providerError(owner, repo, err)
		}
	}

	a := Calculate(upstream, fork)
	a.Owner, a.Repo = owner, repo
	a.IsFork = info.IsFork
	a.Parent = parent
	a.ComputedAt = c.now().UTC()

	c.logger.Info("attribution_analyzed",
		"owner", owner, "repo", repo,
		"commits", a.TotalCommits, "discarded", a.Discarded,
		"contributors", len(a.Contributors), "rounding_residual", a.RoundingResidual,
	)
	c.store(ctx, &a)
	return &a, nil
}

func providerError(owner, repo string, err error) error {
	if errors.Is(err, revshare.ErrProviderNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, repo)
	}
	return fmt.Errorf("%w: %s/%s: %w", ErrProvider, owner, repo, err)
}

// forkLocal returns the commits of own whose SHA the parent does not have.
func forkLocal(parent, own []CommitRecord) []CommitRecord {
	seen := make(map[string]struct{}, len(parent))
	for _, r := range parent {
		seen[r.SHA] = struct{}{}
	}
	var out []CommitRecord
	for _, r := range own {
		if _, ok := seen[r.SHA]; !ok {
			out = append(out, r)
		}
	}
	return out
}

func (c *Calculator) cached(ctx context.Context, owner, repo string) *Analysis {
	if c.cache == nil {
		return nil
	}
	rec, err := c.cache.Get(ctx, owner, repo)
	if err != nil {
		c.logger.Warn("attribution_cache_read_failed", "owner", owner, "repo", repo,
			"error", fmt.Errorf("%w: %w", revshare.ErrCache, err))
		return nil
	}
	if rec == nil || c.now().Sub(rec.ComputedAt) >= c.ttl {
		return nil
	}
	var a Analysis
	if err := json.Unmarshal(rec.Payload, &a); err != nil {
		c.logger.Warn("attribution_cache_decode_failed", "owner", owner, "repo", repo,
			"error", fmt.Errorf("%w: %w", revshare.ErrCache, err))
		return nil
	}
	return &a
}

func (c *Calculator) store(ctx context.Context, a *Analysis) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err == nil {
		err = c.cache.Put(ctx, &revshare.AnalysisRecord{
			Owner:      a.Owner,
			Repo:       a.Repo,
			Payload:    payload,
			ComputedAt: a.ComputedAt,
		})
	}
	if err != nil {
		c.logger.Warn("attribution_cache_write_failed", "owner", a.Owner, "repo", a.Repo,
			"error", fmt.Errorf("%w: %w", revshare.ErrCache, err))
	}
}
