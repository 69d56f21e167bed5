// internal/allocation/capacity/listener.go
package capacity

import (
	"context"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// ActiveCasesAdjuster bumps the candidate's active case counter alongside
// ledger mutations.
type ActiveCasesAdjuster interface {
	AdjustActiveCases(ctx context.Context, candidateID string, delta int) error
}

// Listener reacts to case status transitions by consuming or freeing ledger
// capacity. Which statuses trigger which mutation comes from the allocation
// config, so operations can move the consume point (offer-time vs
// accept-time) without a deploy.
type Listener struct {
	ledger   *Ledger
	adjuster ActiveCasesAdjuster
	logger   logger.Logger
}

func NewListener(ledger *Ledger, adjuster ActiveCasesAdjuster, log logger.Logger) *Listener {
	return &Listener{ledger: ledger, adjuster: adjuster, logger: log}
}

// OnCaseTransition applies the ledger side effects of a status change. The
// transition itself has already been committed by the caller.
func (l *Listener) OnCaseTransition(ctx context.Context, caseID, candidateID string, to models.CaseStatus, cfg *models.AllocationConfig) error {
	if candidateID == "" {
		return nil
	}

	switch to {
	case cfg.ConsumeTrigger:
		if err := l.ledger.Consume(ctx, candidateID); err != nil {
			return err
		}
		if err := l.adjuster.AdjustActiveCases(ctx, candidateID, 1); err != nil {
			l.logger.Warn("active cases increment failed", map[string]interface{}{
				"caseId":      caseID,
				"candidateId": candidateID,
				"error":       err,
			})
		}

	case cfg.FreeTrigger, models.CaseStatusRejected, models.CaseStatusCancelled:
		if err := l.ledger.Free(ctx, candidateID); err != nil {
			return err
		}
		if err := l.adjuster.AdjustActiveCases(ctx, candidateID, -1); err != nil {
			l.logger.Warn("active cases decrement failed", map[string]interface{}{
				"caseId":      caseID,
				"candidateId": candidateID,
				"error":       err,
			})
		}
	}

	return nil
}
