package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	bucketSplits        = []byte("splits")
	bucketSplitAddress  = []byte("splits_address")
	bucketContributors  = []byte("contributors")
	bucketContribHandle = []byte("contributors_handle")
	bucketSessions      = []byte("sessions")
	bucketSessionNonce  = []byte("sessions_nonce")
	bucketSessionOwner  = []byte("sessions_contributor")
	bucketInvitations   = []byte("invitations")
	bucketInviteToken   = []byte("invitations_token")
	bucketDistributions = []byte("distributions")
	bucketDistSplit     = []byte("distributions_split")
	bucketClaims        = []byte("claims")
	bucketClaimDist     = []byte("claims_distribution")
	bucketClaimOwner    = []byte("claims_contributor")
	bucketAnalyses      = []byte("analyses")
	bucketAudit         = []byte("audit")

	allBuckets = [][]byte{
		bucketSplits, bucketSplitAddress,
		bucketContributors, bucketContribHandle,
		bucketSessions, bucketSessionNonce, bucketSessionOwner,
		bucketInvitations, bucketInviteToken,
		bucketDistributions, bucketDistSplit,
		bucketClaims, bucketClaimDist, bucketClaimOwner,
		bucketAnalyses, bucketAudit,
	}
)

// BoltStore is a Store backed by a single bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface checks.
var (
	_ Store = (*BoltStore)(nil)
	_ Tx    = (*boltTx)(nil)
)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Update runs fn in a bbolt read-write transaction. The context is checked
// before starting and again before commit.
func (s *BoltStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bbolt.Tx) error {
		if err := fn(&boltTx{tx: btx}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// View runs fn in a bbolt read-only transaction.
func (s *BoltStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// compositeKey joins parts with a zero byte so prefix scans stay exact.
func compositeKey(parts ...string) []byte {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(p)
	}
	return b.Bytes()
}

// boltTx implements Tx over one bbolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) writable() error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	return nil
}

func getRecord[T any](t *boltTx, bucket []byte, id string) (*T, error) {
	data := t.tx.Bucket(bucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, bucket, id)
	}
	var v T
	if err := decodeGob(data, &v); err != nil {
		return nil, fmt.Errorf("store: decode %s %q: %w", bucket, id, err)
	}
	return &v, nil
}

func putRecord(t *boltTx, bucket []byte, id string, v any) error {
	data, err := encodeGob(v)
	if err != nil {
		return fmt.Errorf("store: encode %s %q: %w", bucket, id, err)
	}
	if err := t.tx.Bucket(bucket).Put([]byte(id), data); err != nil {
		return fmt.Errorf("store: put %s %q: %w", bucket, id, err)
	}
	return nil
}

// claimUnique points a unique index key at id. A key already owned by a
// different record is a duplicate.
func (t *boltTx) claimUnique(bucket, key []byte, id string) error {
	b := t.tx.Bucket(bucket)
	if owner := b.Get(key); owner != nil && string(owner) != id {
		return fmt.Errorf("%w: %s", ErrDuplicate, bucket)
	}
	if err := b.Put(key, []byte(id)); err != nil {
		return fmt.Errorf("store: put index %s: %w", bucket, err)
	}
	return nil
}

// moveIndex removes oldKey from a unique index when a record's indexed
// field changed.
func (t *boltTx) moveIndex(bucket, oldKey, newKey []byte) error {
	if oldKey == nil || bytes.Equal(oldKey, newKey) {
		return nil
	}
	return t.tx.Bucket(bucket).Delete(oldKey)
}

func (t *boltTx) lookup(index, key []byte) (string, error) {
	id := t.tx.Bucket(index).Get(key)
	if id == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, index)
	}
	return string(id), nil
}

// scanPrefix returns the ids stored after prefix+0 in a membership index.
func scanPrefix(t *boltTx, index []byte, prefix string) []string {
	p := compositeKey(prefix, "")
	var ids []string
	c := t.tx.Bucket(index).Cursor()
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		ids = append(ids, string(k[len(p):]))
	}
	return ids
}

func listAll[T any](t *boltTx, bucket []byte, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := t.tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var rec T
		if err := decodeGob(v, &rec); err != nil {
			return fmt.Errorf("store: decode %s %q: %w", bucket, k, err)
		}
		if keep == nil || keep(&rec) {
			out = append(out, &rec)
		}
		return nil
	})
	return out, err
}

func listByIDs[T any](t *boltTx, bucket []byte, ids []string) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		rec, err := getRecord[T](t, bucket, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// --- splits ---

func (t *boltTx) PutSplit(s *revshare.Split) error {
	if s == nil {
		return fmt.Errorf("%w: split", ErrNilParam)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: split", ErrMissingID)
	}
	if err := t.writable(); err != nil {
		return err
	}
	var oldKey []byte
	if old, err := getRecord[revshare.Split](t, bucketSplits, s.ID); err == nil {
		oldKey = []byte(old.Address)
	}
	newKey := []byte(s.Address)
	if err := t.claimUnique(bucketSplitAddress, newKey, s.ID); err != nil {
		return err
	}
	if err := t.moveIndex(bucketSplitAddress, oldKey, newKey); err != nil {
		return err
	}
	return putRecord(t, bucketSplits, s.ID, s)
}

func (t *boltTx) GetSplit(id string) (*revshare.Split, error) {
	return getRecord[revshare.Split](t, bucketSplits, id)
}

func (t *boltTx) GetSplitByAddress(address string) (*revshare.Split, error) {
	id, err := t.lookup(bucketSplitAddress, []byte(address))
	if err != nil {
		return nil, err
	}
	return t.GetSplit(id)
}

func (t *boltTx) ListSplits() ([]*revshare.Split, error) {
	splits, err := listAll[revshare.Split](t, bucketSplits, nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(splits, func(i, j int) bool {
		return splits[i].CreatedAt.Before(splits[j].CreatedAt)
	})
	return splits, nil
}

// --- contributors ---

func (t *boltTx) PutContributor(c *revshare.Contributor) error {
	if c == nil {
		return fmt.Errorf("%w: contributor", ErrNilParam)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: contributor", ErrMissingID)
	}
	if err := t.writable(); err != nil {
		return err
	}
	var oldKey []byte
	if old, err := getRecord[revshare.Contributor](t, bucketContributors, c.ID); err == nil {
		oldKey = compositeKey(old.SplitID, old.Handle)
	}
	newKey := compositeKey(c.SplitID, c.Handle)
	if err := t.claimUnique(bucketContribHandle, newKey, c.ID); err != nil {
		return err
	}
	if err := t.moveIndex(bucketContribHandle, oldKey, newKey); err != nil {
		return err
	}
	return putRecord(t, bucketContributors, c.ID, c)
}

func (t *boltTx) GetContributor(id string) (*revshare.Contributor, error) {
	return getRecord[revshare.Contributor](t, bucketContributors, id)
}

func (t *boltTx) GetContributorByHandle(splitID, handle string) (*revshare.Contributor, error) {
	id, err := t.lookup(bucketContribHandle, compositeKey(splitID, handle))
	if err != nil {
		return nil, err
	}
	return t.GetContributor(id)
}

func (t *boltTx) ListContributors(splitID string) ([]*revshare.Contributor, error) {
	p := compositeKey(splitID, "")
	var ids []string
	c := t.tx.Bucket(bucketContribHandle).Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		ids = append(ids, string(v))
	}
	cs, err := listByIDs[revshare.Contributor](t, bucketContributors, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Position < cs[j].Position })
	return cs, nil
}

// --- sessions ---

func (t *boltTx) PutSession(s *revshare.VerificationSession) error {
	if s == nil {
		return fmt.Errorf("%w: session", ErrNilParam)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: session", ErrMissingID)
	}
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.claimUnique(bucketSessionNonce, []byte(s.Nonce), s.ID); err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketSessionOwner).Put(compositeKey(s.ContributorID, s.ID), []byte{}); err != nil {
		return fmt.Errorf("store: put session index: %w", err)
	}
	return putRecord(t, bucketSessions, s.ID, s)
}

func (t *boltTx) GetSession(id string) (*revshare.VerificationSession, error) {
	return getRecord[revshare.VerificationSession](t, bucketSessions, id)
}

func (t *boltTx) ListSessions(contributorID string) ([]*revshare.VerificationSession, error) {
	ss, err := listByIDs[revshare.VerificationSession](t, bucketSessions, scanPrefix(t, bucketSessionOwner, contributorID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].CreatedAt.Before(ss[j].CreatedAt) })
	return ss, nil
}

func (t *boltTx) ListSessionsByStatus(status revshare.SessionStatus) ([]*revshare.VerificationSession, error) {
	return listAll(t, bucketSessions, func(s *revshare.VerificationSession) bool { return s.Status == status })
}

// --- invitations ---

func (t *boltTx) PutInvitation(inv *revshare.Invitation) error {
	if inv == nil {
		return fmt.Errorf("%w: invitation", ErrNilParam)
	}
	if inv.ID == "" {
		return fmt.Errorf("%w: invitation", ErrMissingID)
	}
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.claimUnique(bucketInviteToken, []byte(inv.TokenHash), inv.ID); err != nil {
		return err
	}
	return putRecord(t, bucketInvitations, inv.ID, inv)
}

func (t *boltTx) GetInvitation(id string) (*revshare.Invitation, error) {
	return getRecord[revshare.Invitation](t, bucketInvitations, id)
}

func (t *boltTx) GetInvitationByTokenHash(hash string) (*revshare.Invitation, error) {
	id, err := t.lookup(bucketInviteToken, []byte(hash))
	if err != nil {
		return nil, err
	}
	return t.GetInvitation(id)
}

func (t *boltTx) ListInvitationsByStatus(status revshare.InvitationStatus) ([]*revshare.Invitation, error) {
	return listAll(t, bucketInvitations, func(inv *revshare.Invitation) bool { return inv.Status == status })
}

// --- distributions ---

func (t *boltTx) PutDistribution(d *revshare.Distribution) error {
	if d == nil {
		return fmt.Errorf("%w: distribution", ErrNilParam)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: distribution", ErrMissingID)
	}
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketDistSplit).Put(compositeKey(d.SplitID, d.ID), []byte{}); err != nil {
		return fmt.Errorf("store: put distribution index: %w", err)
	}
	return putRecord(t, bucketDistributions, d.ID, d)
}

func (t *boltTx) GetDistribution(id string) (*revshare.Distribution, error) {
	return getRecord[revshare.Distribution](t, bucketDistributions, id)
}

func (t *boltTx) ListDistributions(splitID string) ([]*revshare.Distribution, error) {
	ds, err := listByIDs[revshare.Distribution](t, bucketDistributions, scanPrefix(t, bucketDistSplit, splitID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].CreatedAt.Before(ds[j].CreatedAt) })
	return ds, nil
}

func (t *boltTx) ListDistributionsByStatus(status revshare.DistributionStatus) ([]*revshare.Distribution, error) {
	ds, err := listAll(t, bucketDistributions, func(d *revshare.Distribution) bool { return d.Status == status })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].CreatedAt.Before(ds[j].CreatedAt) })
	return ds, nil
}

// --- claims ---

func (t *boltTx) PutClaim(c *revshare.Claim) error {
	if c == nil {
		return fmt.Errorf("%w: claim", ErrNilParam)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: claim", ErrMissingID)
	}
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketClaimDist).Put(compositeKey(c.DistributionID, c.ID), []byte{}); err != nil {
		return fmt.Errorf("store: put claim index: %w", err)
	}
	if err := t.tx.Bucket(bucketClaimOwner).Put(compositeKey(c.ContributorID, c.ID), []byte{}); err != nil {
		return fmt.Errorf("store: put claim index: %w", err)
	}
	return putRecord(t, bucketClaims, c.ID, c)
}

func (t *boltTx) ListClaims(distributionID string) ([]*revshare.Claim, error) {
	cs, err := listByIDs[revshare.Claim](t, bucketClaims, scanPrefix(t, bucketClaimDist, distributionID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Position < cs[j].Position })
	return cs, nil
}

func (t *boltTx) ListClaimsByContributor(contributorID string) ([]*revshare.Claim, error) {
	cs, err := listByIDs[revshare.Claim](t, bucketClaims, scanPrefix(t, bucketClaimOwner, contributorID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CreatedAt.Before(cs[j].CreatedAt) })
	return cs, nil
}

// --- analysis cache ---

func (t *boltTx) PutAnalysis(a *revshare.AnalysisRecord) error {
	if a == nil {
		return fmt.Errorf("%w: analysis", ErrNilParam)
	}
	if err := t.writable(); err != nil {
		return err
	}
	return putRecord(t, bucketAnalyses, string(compositeKey(a.Owner, a.Repo)), a)
}

func (t *boltTx) GetAnalysis(owner, repo string) (*revshare.AnalysisRecord, error) {
	return getRecord[revshare.AnalysisRecord](t, bucketAnalyses, string(compositeKey(owner, repo)))
}

// --- audit ---

// auditKey encodes a sequence number as an 8-byte big-endian key so the
// bucket iterates in append order.
func auditKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (t *boltTx) AppendAudit(e *revshare.AuditEntry) error {
	if e == nil {
		return fmt.Errorf("%w: audit entry", ErrNilParam)
	}
	if err := t.writable(); err != nil {
		return err
	}
	b := t.tx.Bucket(bucketAudit)
	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("store: audit sequence: %w", err)
	}
	data, err := encodeGob(e)
	if err != nil {
		return fmt.Errorf("store: encode audit entry: %w", err)
	}
	return b.Put(auditKey(seq), data)
}

// ListAudit returns up to limit of the most recent entries, newest first.
// A limit of zero or less returns everything.
func (t *boltTx) ListAudit(limit int) ([]*revshare.AuditEntry, error) {
	var out []*revshare.AuditEntry
	c := t.tx.Bucket(bucketAudit).Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var e revshare.AuditEntry
		if err := decodeGob(v, &e); err != nil {
			return nil, fmt.Errorf("store: decode audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}
