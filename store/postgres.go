package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/bitfsorg/contribsplit/revshare"
)

// Postgres error codes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// maxSerializationRetries bounds how often Update re-runs fn after the
// database aborted it for a serialization conflict.
const maxSerializationRetries = 5

// PGStore is a Store backed by PostgreSQL through gorm. Update runs at
// SERIALIZABLE isolation and locks every row it reads.
type PGStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var (
	_ Store = (*PGStore)(nil)
	_ Tx    = (*pgTx)(nil)
)

// OpenPGStore connects to dsn, pings it and migrates the schema.
func OpenPGStore(ctx context.Context, dsn string, log *slog.Logger) (*PGStore, error) {
	if dsn == "" {
		return nil, errors.New("store: postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	s := NewPGStore(db, log)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// NewPGStore wraps an existing gorm handle.
func NewPGStore(db *gorm.DB, log *slog.Logger) *PGStore {
	if log == nil {
		log = slog.Default()
	}
	return &PGStore{db: db, logger: log}
}

// Migrate creates or updates the schema.
func (s *PGStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PGStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Update runs fn in a SERIALIZABLE transaction, retrying with backoff when
// Postgres aborts it for a serialization conflict. fn must therefore be
// safe to re-run.
func (s *PGStore) Update(ctx context.Context, fn func(Tx) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			if err := fn(&pgTx{db: gtx, locking: true}); err != nil {
				return err
			}
			return ctx.Err()
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			s.logger.Debug("store_update_serialization_retry", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSerializationRetries), ctx)
	return backoff.Retry(op, b)
}

// View runs fn in a read-only transaction.
func (s *PGStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&pgTx{db: gtx, readOnly: true})
	}, &sql.TxOptions{ReadOnly: true})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected)
}

// pgTx implements Tx over one gorm transaction.
type pgTx struct {
	db       *gorm.DB
	locking  bool
	readOnly bool
}

// q starts a query that locks the rows it reads inside Update.
func (t *pgTx) q() *gorm.DB {
	if t.locking {
		return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return t.db
}

func (t *pgTx) upsert(kind string, row any) error {
	if t.readOnly {
		return ErrReadOnly
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, kind)
		}
		return fmt.Errorf("store: put %s: %w", kind, err)
	}
	return nil
}

func first[M any](q *gorm.DB, kind string, query string, args ...any) (*M, error) {
	var row M
	if err := q.Where(query, args...).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, kind)
		}
		return nil, fmt.Errorf("store: get %s: %w", kind, err)
	}
	return &row, nil
}

func find[M any](q *gorm.DB, kind, order string, query string, args ...any) ([]M, error) {
	var rows []M
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Order(order).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list %s: %w", kind, err)
	}
	return rows, nil
}

// converter is satisfied by every row model.
type converter[E any] interface {
	toEntity() (*E, error)
}

func convertAll[E any, M converter[E]](rows []M) ([]*E, error) {
	out := make([]*E, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// --- splits ---

func (t *pgTx) PutSplit(s *revshare.Split) error {
	if s == nil {
		return fmt.Errorf("%w: split", ErrNilParam)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: split", ErrMissingID)
	}
	row := splitModelFromEntity(s)
	return t.upsert("split", &row)
}

func (t *pgTx) GetSplit(id string) (*revshare.Split, error) {
	row, err := first[splitModel](t.q(), "split", "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) GetSplitByAddress(address string) (*revshare.Split, error) {
	row, err := first[splitModel](t.q(), "split", "address = ?", address)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) ListSplits() ([]*revshare.Split, error) {
	rows, err := find[splitModel](t.db, "splits", "created_at, id", "")
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Split](rows)
}

// --- contributors ---

func (t *pgTx) PutContributor(c *revshare.Contributor) error {
	if c == nil {
		return fmt.Errorf("%w: contributor", ErrNilParam)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: contributor", ErrMissingID)
	}
	row := contributorModelFromEntity(c)
	return t.upsert("contributor", &row)
}

func (t *pgTx) GetContributor(id string) (*revshare.Contributor, error) {
	row, err := first[contributorModel](t.q(), "contributor", "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) GetContributorByHandle(splitID, handle string) (*revshare.Contributor, error) {
	row, err := first[contributorModel](t.q(), "contributor", "split_id = ? AND handle = ?", splitID, handle)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) ListContributors(splitID string) ([]*revshare.Contributor, error) {
	rows, err := find[contributorModel](t.q(), "contributors", "position, id", "split_id = ?", splitID)
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Contributor](rows)
}

// --- sessions ---

func (t *pgTx) PutSession(s *revshare.VerificationSession) error {
	if s == nil {
		return fmt.Errorf("%w: session", ErrNilParam)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: session", ErrMissingID)
	}
	row := sessionModelFromEntity(s)
	return t.upsert("session", &row)
}

func (t *pgTx) GetSession(id string) (*revshare.VerificationSession, error) {
	row, err := first[sessionModel](t.q(), "session", "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) ListSessions(contributorID string) ([]*revshare.VerificationSession, error) {
	rows, err := find[sessionModel](t.db, "sessions", "created_at, id", "contributor_id = ?", contributorID)
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.VerificationSession](rows)
}

func (t *pgTx) ListSessionsByStatus(status revshare.SessionStatus) ([]*revshare.VerificationSession, error) {
	rows, err := find[sessionModel](t.q(), "sessions", "created_at, id", "status = ?", status.String())
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.VerificationSession](rows)
}

// --- invitations ---

func (t *pgTx) PutInvitation(inv *revshare.Invitation) error {
	if inv == nil {
		return fmt.Errorf("%w: invitation", ErrNilParam)
	}
	if inv.ID == "" {
		return fmt.Errorf("%w: invitation", ErrMissingID)
	}
	row := invitationModelFromEntity(inv)
	return t.upsert("invitation", &row)
}

func (t *pgTx) GetInvitation(id string) (*revshare.Invitation, error) {
	row, err := first[invitationModel](t.q(), "invitation", "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) GetInvitationByTokenHash(hash string) (*revshare.Invitation, error) {
	row, err := first[invitationModel](t.q(), "invitation", "token_hash = ?", hash)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) ListInvitationsByStatus(status revshare.InvitationStatus) ([]*revshare.Invitation, error) {
	rows, err := find[invitationModel](t.q(), "invitations", "created_at, id", "status = ?", status.String())
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Invitation](rows)
}

// --- distributions ---

func (t *pgTx) PutDistribution(d *revshare.Distribution) error {
	if d == nil {
		return fmt.Errorf("%w: distribution", ErrNilParam)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: distribution", ErrMissingID)
	}
	row := distributionModelFromEntity(d)
	return t.upsert("distribution", &row)
}

func (t *pgTx) GetDistribution(id string) (*revshare.Distribution, error) {
	row, err := first[distributionModel](t.q(), "distribution", "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.toEntity()
}

func (t *pgTx) ListDistributions(splitID string) ([]*revshare.Distribution, error) {
	rows, err := find[distributionModel](t.q(), "distributions", "created_at, id", "split_id = ?", splitID)
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Distribution](rows)
}

func (t *pgTx) ListDistributionsByStatus(status revshare.DistributionStatus) ([]*revshare.Distribution, error) {
	rows, err := find[distributionModel](t.q(), "distributions", "created_at, id", "status = ?", status.String())
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Distribution](rows)
}

// --- claims ---

func (t *pgTx) PutClaim(c *revshare.Claim) error {
	if c == nil {
		return fmt.Errorf("%w: claim", ErrNilParam)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: claim", ErrMissingID)
	}
	row := claimModelFromEntity(c)
	return t.upsert("claim", &row)
}

func (t *pgTx) ListClaims(distributionID string) ([]*revshare.Claim, error) {
	rows, err := find[claimModel](t.q(), "claims", "position, id", "distribution_id = ?", distributionID)
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Claim](rows)
}

func (t *pgTx) ListClaimsByContributor(contributorID string) ([]*revshare.Claim, error) {
	rows, err := find[claimModel](t.db, "claims", "created_at, id", "contributor_id = ?", contributorID)
	if err != nil {
		return nil, err
	}
	return convertAll[revshare.Claim](rows)
}

// --- analysis cache ---

func (t *pgTx) PutAnalysis(a *revshare.AnalysisRecord) error {
	if a == nil {
		return fmt.Errorf("%w: analysis", ErrNilParam)
	}
	if t.readOnly {
		return ErrReadOnly
	}
	row := analysisModel{Owner: a.Owner, Repo: a.Repo, Payload: a.Payload, ComputedAt: a.ComputedAt.UTC()}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "repo"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "computed_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: put analysis: %w", err)
	}
	return nil
}

func (t *pgTx) GetAnalysis(owner, repo string) (*revshare.AnalysisRecord, error) {
	row, err := first[analysisModel](t.db, "analysis", "owner = ? AND repo = ?", owner, repo)
	if err != nil {
		return nil, err
	}
	return &revshare.AnalysisRecord{
		Owner:      row.Owner,
		Repo:       row.Repo,
		Payload:    row.Payload,
		ComputedAt: row.ComputedAt.UTC(),
	}, nil
}

// --- audit ---

func (t *pgTx) AppendAudit(e *revshare.AuditEntry) error {
	if e == nil {
		return fmt.Errorf("%w: audit entry", ErrNilParam)
	}
	if t.readOnly {
		return ErrReadOnly
	}
	row := auditModel{ID: e.ID, Action: e.Action, Subject: e.Subject, Detail: e.Detail, At: e.At.UTC()}
	if err := t.db.Create(&row).Error; err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

func (t *pgTx) ListAudit(limit int) ([]*revshare.AuditEntry, error) {
	q := t.db.Order("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []auditModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list audit: %w", err)
	}
	out := make([]*revshare.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, &revshare.AuditEntry{
			ID: r.ID, Action: r.Action, Subject: r.Subject, Detail: r.Detail, At: r.At.UTC(),
		})
	}
	return out, nil
}
