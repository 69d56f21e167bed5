// internal/allocation/scheduler/batch.go
package scheduler

import (
	"context"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/scoring"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// Preview computes the would-be winner and ranked alternates for each case
// without reserving anything. Two previews of the same state are identical;
// nothing is held between preview and commit.
func (s *Scheduler) Preview(ctx context.Context, caseIDs []string) []*models.AllocationPreview {
	cfg := s.settings.Get()
	previews := make([]*models.AllocationPreview, 0, len(caseIDs))

	for _, caseID := range caseIDs {
		previews = append(previews, s.previewOne(ctx, caseID, cfg))
	}
	return previews
}

func (s *Scheduler) previewOne(ctx context.Context, caseID string, cfg *models.AllocationConfig) *models.AllocationPreview {
	preview := &models.AllocationPreview{CaseID: caseID}

	if cfg == nil {
		preview.Error = "allocation settings not loaded"
		return preview
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		preview.Error = errors.Describe(err)
		return preview
	}
	if c.Status != models.CaseStatusNew && c.Status != models.CaseStatusPendingAllocation {
		preview.Error = "case is not allocatable in status " + string(c.Status)
		return preview
	}

	matches, err := s.eligibility.FindEligible(ctx, c, cfg)
	if err != nil {
		preview.Error = errors.Describe(err)
		return preview
	}
	if len(matches) == 0 {
		preview.Error = "no eligible candidates"
		return preview
	}

	inputs := make([]scoring.Input, 0, len(matches))
	for _, m := range matches {
		inputs = append(inputs, scoring.Input{
			Candidate:     m.Candidate,
			LocationMatch: m.LocationMatch,
			Available:     m.Available,
		})
	}

	ranked := scoring.Rank(inputs, cfg.Weights)
	preview.Winner = ranked[0]
	if len(ranked) > 1 {
		preview.Alternates = ranked[1:]
	}
	return preview
}

// Commit applies previewed assignments one case at a time. Each case settles
// independently: a stale preview or a capacity miss fails that case only,
// the rest of the batch proceeds.
func (s *Scheduler) Commit(ctx context.Context, previews []*models.AllocationPreview, actor string) []*models.CommitResult {
	results := make([]*models.CommitResult, 0, len(previews))
	for _, p := range previews {
		results = append(results, s.commitOne(ctx, p, actor))
	}
	return results
}

func (s *Scheduler) commitOne(ctx context.Context, preview *models.AllocationPreview, actor string) *models.CommitResult {
	result := &models.CommitResult{CaseID: preview.CaseID}

	if preview.Winner == nil {
		result.Reason = "preview has no winner"
		return result
	}
	candidateID := preview.Winner.Candidate.ID

	c, err := s.cases.GetByID(ctx, preview.CaseID)
	if err != nil {
		result.Reason = errors.Describe(err)
		return result
	}
	if c.Status != models.CaseStatusNew && c.Status != models.CaseStatusPendingAllocation {
		result.Reason = errors.Describe(errors.NewPreviewStaleError(preview.CaseID,
			"case moved to status "+string(c.Status)))
		return result
	}

	if err := s.ledger.Consume(ctx, candidateID); err != nil {
		result.Reason = errors.Describe(err)
		return result
	}

	if err := s.log.Append(ctx, &models.AllocationLogEntry{
		CaseID:      preview.CaseID,
		CandidateID: candidateID,
		Decision:    models.DecisionManualOverride,
		Scores:      preview.Winner.Scores,
		Actor:       actor,
		Note:        "batch allocation",
	}); err != nil {
		if ferr := s.ledger.Free(ctx, candidateID); ferr != nil {
			s.logger.Error("capacity reconciliation failed", map[string]interface{}{
				"caseId":      preview.CaseID,
				"candidateId": candidateID,
				"error":       ferr,
			})
		}
		result.Reason = errors.Describe(err)
		return result
	}

	if err := s.cases.SetAssignee(ctx, preview.CaseID, candidateID,
		preview.Winner.Candidate.Type, preview.Winner.LocationMatch); err != nil {
		result.Reason = errors.Describe(err)
		return result
	}
	if err := s.cases.UpdateStatus(ctx, preview.CaseID, c.Status, models.CaseStatusAllocated); err != nil {
		result.Reason = errors.Describe(err)
		return result
	}
	if err := s.cases.UpdateStatus(ctx, preview.CaseID, models.CaseStatusAllocated, models.CaseStatusAccepted); err != nil {
		result.Reason = errors.Describe(err)
		return result
	}

	if err := s.candidates.AdjustActiveCases(ctx, candidateID, 1); err != nil {
		s.logger.Warn("active cases increment failed", map[string]interface{}{
			"caseId":      preview.CaseID,
			"candidateId": candidateID,
			"error":       err,
		})
	}

	metrics.AllocationOffers.WithLabelValues(string(models.DecisionManualOverride)).Inc()
	result.CandidateID = candidateID
	result.Committed = true
	return result
}
