package attribution

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

type fakeProvider struct {
	repos   map[string]*RepositoryInfo
	commits map[string][]CommitRecord
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) GetRepository(_ context.Context, owner, repo string) (*RepositoryInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.repos[owner+"/"+repo]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", revshare.ErrProviderNotFound, owner, repo)
	}
	return r, nil
}

func (f *fakeProvider) ListCommits(_ context.Context, owner, repo string) ([]CommitRecord, error) {
	f.calls.Add(1)
	return f.commits[owner+"/"+repo], nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, string) (*revshare.AnalysisRecord, error) {
	return nil, errors.New("disk on fire")
}

func (brokenCache) Put(context.Context, *revshare.AnalysisRecord) error {
	return errors.New("disk on fire")
}

func newProvider() *fakeProvider {
	shared := []CommitRecord{commit("up", "Upstream Dev", 1), commit("up", "Upstream Dev", 2)}
	forkOnly := commit("forker", "Fork Dev", 3)
	return &fakeProvider{
		repos: map[string]*RepositoryInfo{
			"acme/widget":  {Owner: "acme", Name: "widget"},
			"alice/widget": {Owner: "alice", Name: "widget", IsFork: true, ParentOwner: "acme", ParentName: "widget"},
		},
		commits: map[string][]CommitRecord{
			"acme/widget":  shared,
			"alice/widget": append([]CommitRecord{forkOnly}, shared...),
		},
	}
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAnalyzeRepository(t *testing.T) {
	c := NewCalculator(newProvider())
	a, err := c.AnalyzeRepository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.False(t, a.IsFork)
	assert.Equal(t, "acme", a.Owner)
	require.Len(t, a.Contributors, 1)
	assert.Equal(t, 2, a.Contributors[0].UpstreamCommits)
	assert.Equal(t, 100, a.Contributors[0].Share)
	assert.False(t, a.ComputedAt.IsZero())
}

func TestAnalyzeFork(t *testing.T) {
	c := NewCalculator(newProvider())
	a, err := c.AnalyzeRepository(context.Background(), "alice", "widget")
	require.NoError(t, err)
	assert.True(t, a.IsFork)
	assert.Equal(t, "acme/widget", a.Parent)
	assert.Equal(t, 3, a.TotalCommits)

	byKey := map[string]ContributorShare{}
	for _, cs := range a.Contributors {
		byKey[cs.Key] = cs
	}
	assert.Equal(t, 2, byKey["up"].UpstreamCommits)
	assert.Equal(t, 0, byKey["up"].ForkCommits)
	assert.Equal(t, 1, byKey["forker"].ForkCommits)
	assert.Equal(t, 67, byKey["up"].Share)
	assert.Equal(t, 33, byKey["forker"].Share)
}

func TestAnalyzeErrors(t *testing.T) {
	_, err := NewCalculator(newProvider()).AnalyzeRepository(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
	assert.Equal(t, "not_found", revshare.Kind(err))

	p := newProvider()
	p.err = fmt.Errorf("%w: slow down", revshare.ErrRateLimited)
	_, err = NewCalculator(p).AnalyzeRepository(context.Background(), "acme", "widget")
	assert.ErrorIs(t, err, ErrProvider)
	assert.ErrorIs(t, err, revshare.ErrRateLimited)
	assert.Equal(t, "external", revshare.Kind(err))
	assert.Equal(t, int32(1), p.calls.Load(), "no retries inside the calculator")

	_, err = NewCalculator(p).AnalyzeRepository(context.Background(), "", "widget")
	assert.ErrorIs(t, err, ErrInvalidRepository)
}

func TestAnalyzeReadThroughCache(t *testing.T) {
	p := newProvider()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCalculator(p,
		WithCache(StoreCache{Store: openStore(t)}, time.Hour),
		WithClock(func() time.Time { return now }),
	)

	first, err := c.AnalyzeRepository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	calls := p.calls.Load()

	second, err := c.AnalyzeRepository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, calls, p.calls.Load(), "served from cache")
	assert.Equal(t, shares(*first), shares(*second))
	assert.True(t, first.ComputedAt.Equal(second.ComputedAt))

	now = now.Add(2 * time.Hour)
	_, err = c.AnalyzeRepository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Greater(t, p.calls.Load(), calls, "stale entry is recomputed")
}

func TestAnalyzeCacheFailureDegradesToMiss(t *testing.T) {
	c := NewCalculator(newProvider(), WithCache(brokenCache{}, time.Hour))
	a, err := c.AnalyzeRepository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, 100, a.ShareSum())
}
