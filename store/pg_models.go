package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bitfsorg/contribsplit/revshare"
)

type splitModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	Address          string    `gorm:"column:address;uniqueIndex"`
	Chain            string    `gorm:"column:chain"`
	Authority        string    `gorm:"column:authority"`
	Owner            string    `gorm:"column:owner"`
	Repo             string    `gorm:"column:repo"`
	Status           string    `gorm:"column:status"`
	TotalDistributed uint64    `gorm:"column:total_distributed"`
	Residual         uint64    `gorm:"column:residual"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (splitModel) TableName() string { return "splits" }

func splitModelFromEntity(s *revshare.Split) splitModel {
	return splitModel{
		ID:               s.ID,
		Address:          s.Address,
		Chain:            s.Chain,
		Authority:        s.Authority,
		Owner:            s.Owner,
		Repo:             s.Repo,
		Status:           s.Status.String(),
		TotalDistributed: s.TotalDistributed,
		Residual:         s.Residual,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

func (m splitModel) toEntity() (*revshare.Split, error) {
	status, err := revshare.ParseSplitStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &revshare.Split{
		ID:               m.ID,
		Address:          m.Address,
		Chain:            m.Chain,
		Authority:        m.Authority,
		Owner:            m.Owner,
		Repo:             m.Repo,
		Status:           status,
		TotalDistributed: m.TotalDistributed,
		Residual:         m.Residual,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}, nil
}

type contributorModel struct {
	ID                string          `gorm:"column:id;primaryKey"`
	SplitID           string          `gorm:"column:split_id;uniqueIndex:idx_contributor_handle,priority:1"`
	Handle            string          `gorm:"column:handle;uniqueIndex:idx_contributor_handle,priority:2"`
	Position          int             `gorm:"column:position"`
	Email             string          `gorm:"column:email"`
	SettlementAddress string          `gorm:"column:settlement_address"`
	Share             decimal.Decimal `gorm:"column:share;type:numeric(12,6)"`
	Status            string          `gorm:"column:status"`
	VerifiedAt        *time.Time      `gorm:"column:verified_at"`
	TotalClaimed      uint64          `gorm:"column:total_claimed"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
}

func (contributorModel) TableName() string { return "contributors" }

func contributorModelFromEntity(c *revshare.Contributor) contributorModel {
	return contributorModel{
		ID:                c.ID,
		SplitID:           c.SplitID,
		Handle:            c.Handle,
		Position:          c.Position,
		Email:             c.Email,
		SettlementAddress: c.SettlementAddress,
		Share:             c.Share,
		Status:            c.Status.String(),
		VerifiedAt:        utcPtr(c.VerifiedAt),
		TotalClaimed:      c.TotalClaimed,
		CreatedAt:         c.CreatedAt.UTC(),
	}
}

func (m contributorModel) toEntity() (*revshare.Contributor, error) {
	status, err := revshare.ParseVerificationStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &revshare.Contributor{
		ID:                m.ID,
		SplitID:           m.SplitID,
		Handle:            m.Handle,
		Position:          m.Position,
		Email:             m.Email,
		SettlementAddress: m.SettlementAddress,
		Share:             m.Share,
		Status:            status,
		VerifiedAt:        utcPtr(m.VerifiedAt),
		TotalClaimed:      m.TotalClaimed,
		CreatedAt:         m.CreatedAt.UTC(),
	}, nil
}

type sessionModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	ContributorID string     `gorm:"column:contributor_id;index"`
	Nonce         string     `gorm:"column:nonce;uniqueIndex"`
	Handle        string     `gorm:"column:handle"`
	Address       string     `gorm:"column:address"`
	Status        string     `gorm:"column:status;index"`
	ExpiresAt     time.Time  `gorm:"column:expires_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
}

func (sessionModel) TableName() string { return "verification_sessions" }

func sessionModelFromEntity(s *revshare.VerificationSession) sessionModel {
	return sessionModel{
		ID:            s.ID,
		ContributorID: s.ContributorID,
		Nonce:         s.Nonce,
		Handle:        s.Handle,
		Address:       s.Address,
		Status:        s.Status.String(),
		ExpiresAt:     s.ExpiresAt.UTC(),
		CreatedAt:     s.CreatedAt.UTC(),
		CompletedAt:   utcPtr(s.CompletedAt),
	}
}

func (m sessionModel) toEntity() (*revshare.VerificationSession, error) {
	status, err := revshare.ParseSessionStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &revshare.VerificationSession{
		ID:            m.ID,
		ContributorID: m.ContributorID,
		Nonce:         m.Nonce,
		Handle:        m.Handle,
		Address:       m.Address,
		Status:        status,
		ExpiresAt:     m.ExpiresAt.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
		CompletedAt:   utcPtr(m.CompletedAt),
	}, nil
}

type invitationModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	TokenHash     string     `gorm:"column:token_hash;uniqueIndex"`
	SplitID       string     `gorm:"column:split_id;index"`
	ContributorID string     `gorm:"column:contributor_id"`
	Handle        string     `gorm:"column:handle"`
	Email         string     `gorm:"column:email"`
	Status        string     `gorm:"column:status;index"`
	ExpiresAt     time.Time  `gorm:"column:expires_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	AcceptedAt    *time.Time `gorm:"column:accepted_at"`
}

func (invitationModel) TableName() string { return "contributor_invitations" }

func invitationModelFromEntity(i *revshare.Invitation) invitationModel {
	return invitationModel{
		ID:            i.ID,
		TokenHash:     i.TokenHash,
		SplitID:       i.SplitID,
		ContributorID: i.ContributorID,
		Handle:        i.Handle,
		Email:         i.Email,
		Status:        i.Status.String(),
		ExpiresAt:     i.ExpiresAt.UTC(),
		CreatedAt:     i.CreatedAt.UTC(),
		AcceptedAt:    utcPtr(i.AcceptedAt),
	}
}

func (m invitationModel) toEntity() (*revshare.Invitation, error) {
	status, err := revshare.ParseInvitationStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &revshare.Invitation{
		ID:            m.ID,
		TokenHash:     m.TokenHash,
		SplitID:       m.SplitID,
		ContributorID: m.ContributorID,
		Handle:        m.Handle,
		Email:         m.Email,
		Status:        status,
		ExpiresAt:     m.ExpiresAt.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
		AcceptedAt:    utcPtr(m.AcceptedAt),
	}, nil
}

type distributionModel struct {
	ID            string     `gorm:"column:id;primaryKey"`
	SplitID       string     `gorm:"column:split_id;index"`
	Amount        uint64     `gorm:"column:amount"`
	Status        string     `gorm:"column:status;index"`
	SettlementRef string     `gorm:"column:settlement_ref"`
	LastError     string     `gorm:"column:last_error"`
	AttemptID     string     `gorm:"column:attempt_id"`
	SettlingAt    *time.Time `gorm:"column:settling_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	SettledAt     *time.Time `gorm:"column:settled_at"`
}

func (distributionModel) TableName() string { return "distributions" }

func distributionModelFromEntity(d *revshare.Distribution) distributionModel {
	return distributionModel{
		ID:            d.ID,
		SplitID:       d.SplitID,
		Amount:        d.Amount,
		Status:        d.Status.String(),
		SettlementRef: d.SettlementRef,
		LastError:     d.Error,
		AttemptID:     d.AttemptID,
		SettlingAt:    utcPtr(d.SettlingAt),
		CreatedAt:     d.CreatedAt.UTC(),
		SettledAt:     utcPtr(d.SettledAt),
	}
}

func (m distributionModel) toEntity() (*revshare.Distribution, error) {
	status, err := revshare.ParseDistributionStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &revshare.Distribution{
		ID:            m.ID,
		SplitID:       m.SplitID,
		Amount:        m.Amount,
		Status:        status,
		SettlementRef: m.SettlementRef,
		Error:         m.LastError,
		AttemptID:     m.AttemptID,
		SettlingAt:    utcPtr(m.SettlingAt),
		CreatedAt:     m.CreatedAt.UTC(),
		SettledAt:     utcPtr(m.SettledAt),
	}, nil
}

type claimModel struct {
	ID             string    `gorm:"column:id;primaryKey"`
	DistributionID string    `gorm:"column:distribution_id;index"`
	ContributorID  string    `gorm:"column:contributor_id;index"`
	Position       int       `gorm:"column:position"`
	Address        string    `gorm:"column:address"`
	Amount         uint64    `gorm:"column:amount"`
	Status         string    `gorm:"column:status"`
	SettlementRef  string    `gorm:"column:settlement_ref"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (claimModel) TableName() string { return "claims" }

func claimModelFromEntity(c *revshare.Claim) claimModel {
	return claimModel{
		ID:             c.ID,
		DistributionID: c.DistributionID,
		ContributorID:  c.ContributorID,
		Position:       c.Position,
		Address:        c.Address,
		Amount:         c.Amount,
		Status:         c.Status.String(),
		SettlementRef:  c.SettlementRef,
		CreatedAt:      c.CreatedAt.UTC(),
	}
}

func (m claimModel) toEntity() (*revshare.Claim, error) {
	status, err := revshare.ParseClaimStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &revshare.Claim{
		ID:             m.ID,
		DistributionID: m.DistributionID,
		ContributorID:  m.ContributorID,
		Position:       m.Position,
		Address:        m.Address,
		Amount:         m.Amount,
		Status:         status,
		SettlementRef:  m.SettlementRef,
		CreatedAt:      m.CreatedAt.UTC(),
	}, nil
}

type analysisModel struct {
	Owner      string    `gorm:"column:owner;primaryKey"`
	Repo       string    `gorm:"column:repo;primaryKey"`
	Payload    []byte    `gorm:"column:payload"`
	ComputedAt time.Time `gorm:"column:computed_at"`
}

func (analysisModel) TableName() string { return "repository_analyses" }

type auditModel struct {
	Seq     int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID      string    `gorm:"column:id"`
	Action  string    `gorm:"column:action"`
	Subject string    `gorm:"column:subject"`
	Detail  string    `gorm:"column:detail"`
	At      time.Time `gorm:"column:at"`
}

func (auditModel) TableName() string { return "audit_log" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func allModels() []any {
	return []any{
		&splitModel{}, &contributorModel{}, &sessionModel{}, &invitationModel{},
		&distributionModel{}, &claimModel{}, &analysisModel{}, &auditModel{},
	}
}
