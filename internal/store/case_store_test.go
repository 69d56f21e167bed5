package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	commonerrors "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

func caseRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "client_ref", "contract_type", "status", "assignee_id", "assignee_type",
		"pincode", "city", "tier", "location_match_type", "due_by", "payout_base",
		"payout_bonus", "payout_penalty", "payout_total", "form_payload", "created_at", "updated_at",
	}).AddRow(
		"case-1", "CL-100", "address-verification", "pending_allocation", nil, nil,
		"560001", "Bengaluru", "tier1", nil, now.Add(48*time.Hour), 250.0,
		0.0, 0.0, 250.0, []byte(`{}`), now, now,
	)
}

func TestCaseStoreGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM cases WHERE id = \$1`).
		WithArgs("case-1").
		WillReturnRows(caseRows())

	s := NewCaseStore(db)
	c, err := s.GetByID(context.Background(), "case-1")
	assert.NoError(t, err)
	assert.Equal(t, "case-1", c.ID)
	assert.Equal(t, models.CaseStatusPendingAllocation, c.Status)
	assert.False(t, c.HasActiveAssignee())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseStoreGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM cases WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s := NewCaseStore(db)
	_, err = s.GetByID(context.Background(), "ghost")
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeCaseNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseStoreUpdateStatus(t *testing.T) {
	t.Run("legal transition updates the row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE cases SET status = \$1`).
			WithArgs(models.CaseStatusAllocated, "case-1", models.CaseStatusPendingAllocation).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := NewCaseStore(db)
		err = s.UpdateStatus(context.Background(), "case-1",
			models.CaseStatusPendingAllocation, models.CaseStatusAllocated)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("illegal transition rejected before touching the database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		s := NewCaseStore(db)
		err = s.UpdateStatus(context.Background(), "case-1",
			models.CaseStatusSubmitted, models.CaseStatusCompleted)
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeInvalidTransition))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost compare-and-set surfaces as invalid transition", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE cases SET status = \$1`).
			WithArgs(models.CaseStatusAllocated, "case-1", models.CaseStatusPendingAllocation).
			WillReturnResult(sqlmock.NewResult(0, 0))

		s := NewCaseStore(db)
		err = s.UpdateStatus(context.Background(), "case-1",
			models.CaseStatusPendingAllocation, models.CaseStatusAllocated)
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeInvalidTransition))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAllocationLogAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO allocation_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewAllocationLogStore(db)
	entry := &models.AllocationLogEntry{
		CaseID:      "case-1",
		CandidateID: "cand-A",
		Wave:        1,
		Decision:    models.DecisionOffered,
		Scores:      models.SubScores{Final: 0.840},
	}
	err = s.Append(context.Background(), entry)
	assert.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "system", entry.Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationLogAppendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO allocation_log`).
		WillReturnError(assert.AnError)

	s := NewAllocationLogStore(db)
	err = s.Append(context.Background(), &models.AllocationLogEntry{CaseID: "case-1"})
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeLogWriteFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQCStoreClaimSubmission(t *testing.T) {
	t.Run("first claim wins", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE qc_submissions SET status = \$1, reviewer_id = \$2`).
			WithArgs(models.QCStatusInReview, "rev-1", "sub-1", models.QCStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := NewQCStore(db)
		assert.NoError(t, s.ClaimSubmission(context.Background(), "sub-1", "rev-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second reviewer gets a claim conflict with the holder", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		now := time.Now()
		mock.ExpectExec(`UPDATE qc_submissions SET status = \$1, reviewer_id = \$2`).
			WithArgs(models.QCStatusInReview, "rev-2", "sub-1", models.QCStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM qc_submissions WHERE id = \$1`).
			WithArgs("sub-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "case_id", "submitted_by", "submitted_at", "evidence_refs", "answers",
				"status", "reviewer_id", "superseded_by", "created_at", "updated_at",
			}).AddRow("sub-1", "case-1", "cand-A", now, "{}", []byte(`{}`),
				"in_review", "rev-1", nil, now, now))

		s := NewQCStore(db)
		err = s.ClaimSubmission(context.Background(), "sub-1", "rev-2")
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeConcurrentReviewClaim))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQCStoreRecordReview(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE qc_submissions SET status = \$1`).
		WithArgs(models.QCStatusPassed, "sub-1", models.QCStatusInReview, "rev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO qc_reviews`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := NewQCStore(db)
	review := &models.QCReview{
		SubmissionID: "sub-1",
		CaseID:       "case-1",
		ReviewerID:   "rev-1",
		Result:       models.QCResultPass,
		QualityScore: 92,
	}
	assert.NoError(t, s.RecordReview(context.Background(), review, models.QCStatusPassed))
	assert.NotEmpty(t, review.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
