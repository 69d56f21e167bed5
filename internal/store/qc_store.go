// internal/store/qc_store.go
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// QCStore persists QC submissions and reviews.
type QCStore struct {
	db *sql.DB
}

func NewQCStore(db *sql.DB) *QCStore {
	return &QCStore{db: db}
}

// CreateSubmission inserts a new pending submission.
func (s *QCStore) CreateSubmission(ctx context.Context, sub *models.QCSubmission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	if sub.Status == "" {
		sub.Status = models.QCStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qc_submissions
		 (id, case_id, submitted_by, submitted_at, evidence_refs, answers, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.CaseID, sub.SubmittedBy, sub.SubmittedAt,
		pq.Array(sub.EvidenceRefs), []byte(sub.Answers), sub.Status,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return errors.NewQueryExecutionFailedError("create qc submission", err)
	}
	return nil
}

const submissionColumns = `id, case_id, submitted_by, submitted_at, evidence_refs, answers,
	status, reviewer_id, superseded_by, created_at, updated_at`

func scanSubmission(row interface {
	Scan(dest ...interface{}) error
}) (*models.QCSubmission, error) {
	var sub models.QCSubmission
	var reviewerID, supersededBy sql.NullString
	var answers []byte

	err := row.Scan(
		&sub.ID, &sub.CaseID, &sub.SubmittedBy, &sub.SubmittedAt,
		pq.Array(&sub.EvidenceRefs), &answers, &sub.Status,
		&reviewerID, &supersededBy, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Answers = answers
	sub.ReviewerID = reviewerID.String
	sub.SupersededBy = supersededBy.String
	return &sub, nil
}

// GetSubmission fetches a submission by id.
func (s *QCStore) GetSubmission(ctx context.Context, submissionID string) (*models.QCSubmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM qc_submissions WHERE id = $1`, submissionID)

	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewSubmissionNotFoundError(submissionID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get qc submission", err)
	}
	return sub, nil
}

// GetPendingSubmissionForCase returns the live submission for a case, if any.
// A rework verdict leaves its submission live too: the resubmission after the
// rework loop supersedes it.
func (s *QCStore) GetPendingSubmissionForCase(ctx context.Context, caseID string) (*models.QCSubmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM qc_submissions
		 WHERE case_id = $1 AND status IN ($2, $3, $4)
		 ORDER BY submitted_at DESC LIMIT 1`,
		caseID, models.QCStatusPending, models.QCStatusInReview, models.QCStatusRework)

	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewSubmissionNotFoundError(caseID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get pending qc submission", err)
	}
	return sub, nil
}

// ClaimSubmission atomically takes the review claim for a reviewer. The
// conditional update is the lock: only one reviewer can flip pending to
// in_review. A lost race returns ConcurrentReviewClaim with the holder's id.
func (s *QCStore) ClaimSubmission(ctx context.Context, submissionID, reviewerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qc_submissions SET status = $1, reviewer_id = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		models.QCStatusInReview, reviewerID, submissionID, models.QCStatusPending)
	if err != nil {
		return errors.NewQueryExecutionFailedError("claim qc submission", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("claim qc submission", err)
	}
	if affected > 0 {
		return nil
	}

	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status == models.QCStatusInReview && sub.ReviewerID != reviewerID {
		return errors.NewConcurrentReviewClaimError(submissionID, sub.ReviewerID)
	}
	if sub.Status == models.QCStatusInReview && sub.ReviewerID == reviewerID {
		return nil // idempotent re-claim by the same reviewer
	}
	return errors.NewReviewValidationError("submission is not claimable in status " + string(sub.Status))
}

// RecordReview writes the verdict and settles the submission in one
// transaction. The submission must be in_review and claimed by the reviewer.
func (s *QCStore) RecordReview(ctx context.Context, review *models.QCReview, finalStatus models.QCStatus) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewQueryExecutionFailedError("begin review tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE qc_submissions SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND reviewer_id = $4`,
		finalStatus, review.SubmissionID, models.QCStatusInReview, review.ReviewerID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("settle qc submission", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("settle qc submission", err)
	}
	if affected == 0 {
		return errors.NewConcurrentReviewClaimError(review.SubmissionID, "")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO qc_reviews
		 (id, submission_id, case_id, reviewer_id, result, quality_score, reason_codes, comments, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		review.ID, review.SubmissionID, review.CaseID, review.ReviewerID,
		review.Result, review.QualityScore, pq.Array(review.ReasonCodes),
		review.Comments, review.CreatedAt)
	if err != nil {
		return errors.NewQueryExecutionFailedError("insert qc review", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewQueryExecutionFailedError("commit review tx", err)
	}
	return nil
}

// SupersedeSubmission links an old submission to its replacement after a
// rework cycle.
func (s *QCStore) SupersedeSubmission(ctx context.Context, oldID, newID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE qc_submissions SET status = $1, superseded_by = $2, updated_at = NOW()
		 WHERE id = $3`,
		models.QCStatusSuperseded, newID, oldID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("supersede qc submission", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("supersede qc submission", err)
	}
	if affected == 0 {
		return errors.NewSubmissionNotFoundError(oldID)
	}
	return nil
}
