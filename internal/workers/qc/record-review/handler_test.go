package recordreview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	commonerrors "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/qc"
)

type fakeReviewer struct {
	claimErr  error
	review    *models.QCReview
	recordErr error
	claimed   bool
	recorded  bool
}

func (f *fakeReviewer) ClaimReview(ctx context.Context, submissionID, reviewerID string) error {
	f.claimed = true
	return f.claimErr
}

func (f *fakeReviewer) RecordReview(ctx context.Context, input qc.ReviewInput) (*models.QCReview, error) {
	f.recorded = true
	return f.review, f.recordErr
}

func TestExecuteClaimsThenRecords(t *testing.T) {
	reviewer := &fakeReviewer{review: &models.QCReview{
		ID:           "rev-1",
		CaseID:       "case-1",
		Result:       models.QCResultPass,
		QualityScore: 92,
	}}
	h := NewHandler(LoadConfig(), reviewer, logger.NewNoOpLogger())

	output, err := h.Execute(context.Background(), &Input{
		SubmissionID: "sub-1",
		ReviewerID:   "qc-lead",
		Result:       "pass",
		QualityScore: 92,
	})
	assert.NoError(t, err)
	assert.True(t, reviewer.claimed)
	assert.True(t, reviewer.recorded)
	assert.Equal(t, "rev-1", output.ReviewID)
	assert.Equal(t, "case-1", output.CaseID)
	assert.Equal(t, "pass", output.Result)
	assert.Equal(t, 92, output.QualityScore)
}

func TestExecuteClaimConflictStopsReview(t *testing.T) {
	reviewer := &fakeReviewer{
		claimErr: commonerrors.NewConcurrentReviewClaimError("sub-1", "other-reviewer"),
	}
	h := NewHandler(LoadConfig(), reviewer, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{
		SubmissionID: "sub-1",
		ReviewerID:   "qc-lead",
		Result:       "pass",
		QualityScore: 80,
	})
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeConcurrentReviewClaim))
	assert.False(t, reviewer.recorded)
}

func TestExecutePropagatesValidationError(t *testing.T) {
	reviewer := &fakeReviewer{
		recordErr: commonerrors.NewReviewValidationError("reason codes are required for a reject verdict"),
	}
	h := NewHandler(LoadConfig(), reviewer, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{
		SubmissionID: "sub-1",
		ReviewerID:   "qc-lead",
		Result:       "reject",
		QualityScore: 40,
	})
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeReviewValidation))
}
