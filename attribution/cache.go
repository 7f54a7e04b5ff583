package attribution

import (
	"context"

	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

// Cache holds computed analyses keyed by (owner, repo). A miss is
// (nil, nil); any error is a cache failure.
type Cache interface {
	Get(ctx context.Context, owner, repo string) (*revshare.AnalysisRecord, error)
	Put(ctx context.Context, rec *revshare.AnalysisRecord) error
}

// StoreCache keeps analyses in the authoritative store.
type StoreCache struct {
	Store store.Store
}

var _ Cache = StoreCache{}

// Get returns the stored analysis for owner/repo, or nil when there is none.
func (c StoreCache) Get(ctx context.Context, owner, repo string) (*revshare.AnalysisRecord, error) {
	var rec *revshare.AnalysisRecord
	err := c.Store.View(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.GetAnalysis(owner, repo)
		return err
	})
	if store.IsNotFound(err) {
		return nil, nil
	}
	return rec, err
}

// Put stores rec, replacing any analysis for the same repository.
func (c StoreCache) Put(ctx context.Context, rec *revshare.AnalysisRecord) error {
	return c.Store.Update(ctx, func(tx store.Tx) error {
		return tx.PutAnalysis(rec)
	})
}
