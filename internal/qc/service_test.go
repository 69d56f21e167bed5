package qc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	commonerrors "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/notify"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// --- fakes ---

type memQCStore struct {
	mu          sync.Mutex
	submissions map[string]*models.QCSubmission
	reviews     []*models.QCReview
	nextID      int
}

func newMemQCStore() *memQCStore {
	return &memQCStore{submissions: map[string]*models.QCSubmission{}}
}

func (m *memQCStore) CreateSubmission(ctx context.Context, sub *models.QCSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub.ID = "sub-" + string(rune('0'+m.nextID))
	copied := *sub
	m.submissions[sub.ID] = &copied
	return nil
}

func (m *memQCStore) GetSubmission(ctx context.Context, id string) (*models.QCSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, commonerrors.NewSubmissionNotFoundError(id)
	}
	copied := *sub
	return &copied, nil
}

func (m *memQCStore) GetPendingSubmissionForCase(ctx context.Context, caseID string) (*models.QCSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.QCSubmission
	for _, sub := range m.submissions {
		if sub.CaseID != caseID {
			continue
		}
		if sub.Status != models.QCStatusPending && sub.Status != models.QCStatusInReview &&
			sub.Status != models.QCStatusRework {
			continue
		}
		if latest == nil || sub.SubmittedAt.After(latest.SubmittedAt) || sub.ID > latest.ID {
			latest = sub
		}
	}
	if latest == nil {
		return nil, commonerrors.NewSubmissionNotFoundError(caseID)
	}
	copied := *latest
	return &copied, nil
}

func (m *memQCStore) ClaimSubmission(ctx context.Context, id, reviewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return commonerrors.NewSubmissionNotFoundError(id)
	}
	if sub.Status == models.QCStatusInReview {
		if sub.ReviewerID == reviewerID {
			return nil
		}
		return commonerrors.NewConcurrentReviewClaimError(id, sub.ReviewerID)
	}
	if sub.Status != models.QCStatusPending {
		return commonerrors.NewReviewValidationError("not claimable")
	}
	sub.Status = models.QCStatusInReview
	sub.ReviewerID = reviewerID
	return nil
}

func (m *memQCStore) RecordReview(ctx context.Context, review *models.QCReview, finalStatus models.QCStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.submissions[review.SubmissionID]
	if sub == nil || sub.Status != models.QCStatusInReview || sub.ReviewerID != review.ReviewerID {
		return commonerrors.NewConcurrentReviewClaimError(review.SubmissionID, "")
	}
	sub.Status = finalStatus
	copied := *review
	m.reviews = append(m.reviews, &copied)
	return nil
}

func (m *memQCStore) SupersedeSubmission(ctx context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[oldID]
	if !ok {
		return commonerrors.NewSubmissionNotFoundError(oldID)
	}
	sub.Status = models.QCStatusSuperseded
	sub.SupersededBy = newID
	return nil
}

type memCaseGateway struct {
	mu    sync.Mutex
	cases map[string]*models.Case
}

func (m *memCaseGateway) GetByID(ctx context.Context, id string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, commonerrors.NewCaseNotFoundError(id)
	}
	copied := *c
	return &copied, nil
}

func (m *memCaseGateway) UpdateStatus(ctx context.Context, id string, from, to models.CaseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cases[id]
	if c == nil || c.Status != from || !from.CanTransitionTo(to) {
		return commonerrors.NewInvalidTransitionError(id, string(from), string(to))
	}
	c.Status = to
	return nil
}

func (m *memCaseGateway) status(id string) models.CaseStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cases[id].Status
}

type recordingListener struct {
	transitions []models.CaseStatus
}

func (r *recordingListener) OnCaseTransition(ctx context.Context, caseID, candidateID string, to models.CaseStatus, cfg *models.AllocationConfig) error {
	r.transitions = append(r.transitions, to)
	return nil
}

type staticSettings struct{}

func (staticSettings) Get() *models.AllocationConfig {
	return &models.AllocationConfig{
		ConsumeTrigger: models.CaseStatusAccepted,
		FreeTrigger:    models.CaseStatusSubmitted,
	}
}

func newTestService() (*Service, *memQCStore, *memCaseGateway, *recordingListener) {
	store := newMemQCStore()
	cases := &memCaseGateway{cases: map[string]*models.Case{
		"case-1": {ID: "case-1", Status: models.CaseStatusInProgress, AssigneeID: "cand-A"},
	}}
	listener := &recordingListener{}
	svc := NewService(store, cases, listener, staticSettings{}, notify.NoopNotifier{}, logger.NewNoOpLogger())
	return svc, store, cases, listener
}

func submit(t *testing.T, svc *Service) *models.QCSubmission {
	t.Helper()
	sub, err := svc.SubmitForReview(context.Background(), SubmissionInput{
		CaseID:       "case-1",
		SubmittedBy:  "cand-A",
		EvidenceRefs: []string{"s3://evidence/1.jpg"},
		Answers:      json.RawMessage(`{"meterReading": "04211"}`),
	})
	assert.NoError(t, err)
	return sub
}

// --- tests ---

func TestSubmitForReview(t *testing.T) {
	svc, store, cases, listener := newTestService()

	sub := submit(t, svc)
	assert.Equal(t, models.QCStatusPending, sub.Status)
	assert.Equal(t, models.CaseStatusSubmitted, cases.status("case-1"))
	assert.Equal(t, []models.CaseStatus{models.CaseStatusSubmitted}, listener.transitions)
	assert.Len(t, store.submissions, 1)
}

func TestSubmitForReviewGuards(t *testing.T) {
	t.Run("only the assignee can submit", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.SubmitForReview(context.Background(), SubmissionInput{
			CaseID:      "case-1",
			SubmittedBy: "cand-B",
			Answers:     json.RawMessage(`{}`),
		})
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeReviewValidation))
	})

	t.Run("case must be in progress", func(t *testing.T) {
		svc, _, cases, _ := newTestService()
		cases.cases["case-1"].Status = models.CaseStatusAccepted
		_, err := svc.SubmitForReview(context.Background(), SubmissionInput{
			CaseID:      "case-1",
			SubmittedBy: "cand-A",
			Answers:     json.RawMessage(`{}`),
		})
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeInvalidTransition))
	})
}

func TestClaimConflict(t *testing.T) {
	svc, _, _, _ := newTestService()
	sub := submit(t, svc)

	assert.NoError(t, svc.ClaimReview(context.Background(), sub.ID, "rev-1"))

	err := svc.ClaimReview(context.Background(), sub.ID, "rev-2")
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeConcurrentReviewClaim))

	// re-claim by the holder is idempotent
	assert.NoError(t, svc.ClaimReview(context.Background(), sub.ID, "rev-1"))
}

func TestRecordReviewPassCascadesToCompleted(t *testing.T) {
	svc, store, cases, _ := newTestService()
	sub := submit(t, svc)
	assert.NoError(t, svc.ClaimReview(context.Background(), sub.ID, "rev-1"))

	review, err := svc.RecordReview(context.Background(), ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   "rev-1",
		Result:       "pass",
		QualityScore: 92,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.QCResultPass, review.Result)
	assert.Equal(t, models.CaseStatusCompleted, cases.status("case-1"))

	stored, _ := store.GetSubmission(context.Background(), sub.ID)
	assert.Equal(t, models.QCStatusPassed, stored.Status)
}

func TestRecordReviewReworkLoop(t *testing.T) {
	svc, store, cases, _ := newTestService()
	first := submit(t, svc)
	assert.NoError(t, svc.ClaimReview(context.Background(), first.ID, "rev-1"))

	_, err := svc.RecordReview(context.Background(), ReviewInput{
		SubmissionID: first.ID,
		ReviewerID:   "rev-1",
		Result:       "rework",
		QualityScore: 40,
		ReasonCodes:  []string{"BLURRY_PHOTO"},
	})
	assert.NoError(t, err)

	// verdict sends the case back to the field
	assert.Equal(t, models.CaseStatusInProgress, cases.status("case-1"))

	// resubmission supersedes the reworked one
	second := submit(t, svc)
	assert.NotEqual(t, first.ID, second.ID)

	old, _ := store.GetSubmission(context.Background(), first.ID)
	assert.Equal(t, models.QCStatusSuperseded, old.Status, "a reworked submission must not stay reviewable")
	assert.Equal(t, second.ID, old.SupersededBy)

	// only the resubmission is live for reviewers
	live, err := store.GetPendingSubmissionForCase(context.Background(), "case-1")
	assert.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)
}

func TestRecordReviewValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	sub := submit(t, svc)
	assert.NoError(t, svc.ClaimReview(context.Background(), sub.ID, "rev-1"))

	tests := []struct {
		name  string
		input ReviewInput
	}{
		{"unknown verdict", ReviewInput{SubmissionID: sub.ID, ReviewerID: "rev-1", Result: "maybe", QualityScore: 50}},
		{"score above range", ReviewInput{SubmissionID: sub.ID, ReviewerID: "rev-1", Result: "pass", QualityScore: 101}},
		{"score below range", ReviewInput{SubmissionID: sub.ID, ReviewerID: "rev-1", Result: "pass", QualityScore: -1}},
		{"reject without reason codes", ReviewInput{SubmissionID: sub.ID, ReviewerID: "rev-1", Result: "reject", QualityScore: 10}},
		{"rework without reason codes", ReviewInput{SubmissionID: sub.ID, ReviewerID: "rev-1", Result: "rework", QualityScore: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordReview(context.Background(), tt.input)
			assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeReviewValidation))
		})
	}
}

func TestRecordReviewRequiresClaim(t *testing.T) {
	svc, _, _, _ := newTestService()
	sub := submit(t, svc)
	assert.NoError(t, svc.ClaimReview(context.Background(), sub.ID, "rev-1"))

	_, err := svc.RecordReview(context.Background(), ReviewInput{
		SubmissionID: sub.ID,
		ReviewerID:   "rev-2",
		Result:       "pass",
		QualityScore: 80,
	})
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeConcurrentReviewClaim))
}

func TestPayloadSchemas(t *testing.T) {
	t.Run("valid review payload", func(t *testing.T) {
		doc := []byte(`{"submissionId":"sub-1","reviewerId":"rev-1","result":"pass","qualityScore":92}`)
		assert.NoError(t, ValidateReviewPayload(doc))
	})

	t.Run("review with bad verdict fails", func(t *testing.T) {
		doc := []byte(`{"submissionId":"sub-1","reviewerId":"rev-1","result":"maybe","qualityScore":92}`)
		err := ValidateReviewPayload(doc)
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeReviewValidation))
	})

	t.Run("submission missing answers fails", func(t *testing.T) {
		doc := []byte(`{"caseId":"case-1","submittedBy":"cand-A"}`)
		err := ValidateSubmissionPayload(doc)
		assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeReviewValidation))
	})

	t.Run("valid submission payload", func(t *testing.T) {
		doc := []byte(`{"caseId":"case-1","submittedBy":"cand-A","answers":{"ok":true},"evidenceRefs":["s3://x"]}`)
		assert.NoError(t, ValidateSubmissionPayload(doc))
	})
}
