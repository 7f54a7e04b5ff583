package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/store"
)

// Audit actions.
const (
	ActionAnalyze            = "repository.analyze"
	ActionSplitCreate        = "split.create"
	ActionSplitStatus        = "split.status"
	ActionSharesUpdate       = "split.shares"
	ActionVerificationStart  = "verification.start"
	ActionVerificationDone   = "verification.complete"
	ActionSessionsExpired    = "verification.expire"
	ActionInvite             = "invitation.create"
	ActionInvitationAccept   = "invitation.accept"
	ActionInvitationsExpired = "invitation.expire"
	ActionDistributionCreate = "distribution.create"
	ActionDistributionSettle = "distribution.settle"
	ActionDistributionFail   = "distribution.fail"
	ActionDistributionRetry  = "distribution.retry"
	ActionClaimsReconciled   = "claims.reconcile"
)

// audit appends an entry in the background. Failures are logged and never
// reach the caller.
func (s *Service) audit(action, subject, format string, args ...any) {
	e := &revshare.AuditEntry{
		ID:      uuid.NewString(),
		Action:  action,
		Subject: subject,
		Detail:  fmt.Sprintf(format, args...),
		At:      s.now().UTC(),
	}
	s.auditWG.Add(1)
	go func() {
		defer s.auditWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.store.Update(ctx, func(tx store.Tx) error {
			return tx.AppendAudit(e)
		})
		if err != nil {
			s.logger.Warn("audit_append_failed", "action", action, "subject", subject, "error", err)
		}
	}()
}

// FlushAudit waits for background audit writes to finish.
func (s *Service) FlushAudit() {
	s.auditWG.Wait()
}

// ListAudit returns up to limit recent audit entries, newest first.
func (s *Service) ListAudit(ctx context.Context, limit int) ([]*revshare.AuditEntry, error) {
	var out []*revshare.AuditEntry
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListAudit(limit)
		return err
	})
	return out, err
}
