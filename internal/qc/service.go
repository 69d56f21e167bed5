// internal/qc/service.go

// Package qc runs the review gate between a worker's submission and payment.
// A submission moves pending -> in_review -> {passed|rejected|rework}; the
// claim on in_review belongs to exactly one reviewer. Verdicts cascade onto
// the case status, and a pass rolls the case straight into completed.
package qc

import (
	"context"
	"fmt"
	"time"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/notify"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// SubmissionStore is the QC persistence surface.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *models.QCSubmission) error
	GetSubmission(ctx context.Context, submissionID string) (*models.QCSubmission, error)
	GetPendingSubmissionForCase(ctx context.Context, caseID string) (*models.QCSubmission, error)
	ClaimSubmission(ctx context.Context, submissionID, reviewerID string) error
	RecordReview(ctx context.Context, review *models.QCReview, finalStatus models.QCStatus) error
	SupersedeSubmission(ctx context.Context, oldID, newID string) error
}

// CaseGateway reads and transitions cases.
type CaseGateway interface {
	GetByID(ctx context.Context, caseID string) (*models.Case, error)
	UpdateStatus(ctx context.Context, caseID string, from, to models.CaseStatus) error
}

// TransitionListener applies capacity side effects of a status change.
type TransitionListener interface {
	OnCaseTransition(ctx context.Context, caseID, candidateID string, to models.CaseStatus, cfg *models.AllocationConfig) error
}

// SettingsSource provides the config for transition side effects.
type SettingsSource interface {
	Get() *models.AllocationConfig
}

// Service coordinates submissions and reviews.
type Service struct {
	store    SubmissionStore
	cases    CaseGateway
	listener TransitionListener
	settings SettingsSource
	notifier notify.Notifier
	logger   logger.Logger
}

func NewService(store SubmissionStore, cases CaseGateway, listener TransitionListener, settings SettingsSource, notifier notify.Notifier, log logger.Logger) *Service {
	return &Service{
		store:    store,
		cases:    cases,
		listener: listener,
		settings: settings,
		notifier: notifier,
		logger:   log,
	}
}

// SubmissionInput is a worker's evidence package.
type SubmissionInput struct {
	CaseID       string   `json:"caseId"`
	SubmittedBy  string   `json:"submittedBy"`
	EvidenceRefs []string `json:"evidenceRefs"`
	Answers      []byte   `json:"answers"`
}

// SubmitForReview records a submission and moves the case to submitted. A
// resubmission after rework supersedes the previous submission, so reviewers
// only ever see one live submission per case.
func (s *Service) SubmitForReview(ctx context.Context, input SubmissionInput) (*models.QCSubmission, error) {
	c, err := s.cases.GetByID(ctx, input.CaseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseStatusInProgress {
		return nil, errors.NewInvalidTransitionError(input.CaseID, string(c.Status), string(models.CaseStatusSubmitted))
	}
	if input.SubmittedBy != c.AssigneeID {
		return nil, errors.NewReviewValidationError(
			fmt.Sprintf("submitter %s is not the case assignee", input.SubmittedBy))
	}

	// a still-live predecessor (stuck pending, abandoned mid-review, or
	// settled as rework) is no longer reviewable once the new submission lands
	var prevID string
	if prev, err := s.store.GetPendingSubmissionForCase(ctx, input.CaseID); err == nil {
		prevID = prev.ID
	}

	sub := &models.QCSubmission{
		CaseID:       input.CaseID,
		SubmittedBy:  input.SubmittedBy,
		SubmittedAt:  time.Now().UTC(),
		EvidenceRefs: input.EvidenceRefs,
		Answers:      input.Answers,
		Status:       models.QCStatusPending,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}

	if prevID != "" {
		if err := s.store.SupersedeSubmission(ctx, prevID, sub.ID); err != nil {
			return nil, err
		}
	}

	if err := s.cases.UpdateStatus(ctx, input.CaseID, models.CaseStatusInProgress, models.CaseStatusSubmitted); err != nil {
		return nil, err
	}
	if err := s.listener.OnCaseTransition(ctx, input.CaseID, c.AssigneeID, models.CaseStatusSubmitted, s.settings.Get()); err != nil {
		s.logger.Warn("capacity side effect failed on submission", map[string]interface{}{
			"caseId": input.CaseID,
			"error":  err,
		})
	}

	s.logger.Info("case submitted for review", map[string]interface{}{
		"caseId":       input.CaseID,
		"submissionId": sub.ID,
	})
	return sub, nil
}

// ClaimReview takes the review lock for a reviewer.
func (s *Service) ClaimReview(ctx context.Context, submissionID, reviewerID string) error {
	return s.store.ClaimSubmission(ctx, submissionID, reviewerID)
}

// ReviewInput is a reviewer's verdict.
type ReviewInput struct {
	SubmissionID string   `json:"submissionId"`
	ReviewerID   string   `json:"reviewerId"`
	Result       string   `json:"result"`
	QualityScore int      `json:"qualityScore"`
	ReasonCodes  []string `json:"reasonCodes"`
	Comments     string   `json:"comments"`
}

// RecordReview validates and stores a verdict, then cascades the case
// status: pass -> qc_passed -> completed, reject -> qc_rejected,
// rework -> qc_rework (the worker revises and resubmits).
func (s *Service) RecordReview(ctx context.Context, input ReviewInput) (*models.QCReview, error) {
	result := models.QCResult(input.Result)
	if result.CaseStatusFor() == "" {
		return nil, errors.NewReviewValidationError("unknown result " + input.Result)
	}
	if input.QualityScore < 0 || input.QualityScore > 100 {
		return nil, errors.NewReviewValidationError(
			fmt.Sprintf("quality score must be 0-100, got %d", input.QualityScore))
	}
	if result.RequiresReasonCodes() && len(input.ReasonCodes) == 0 {
		return nil, errors.NewReviewValidationError(
			"reason codes are required for a " + input.Result + " verdict")
	}

	sub, err := s.store.GetSubmission(ctx, input.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.QCStatusInReview || sub.ReviewerID != input.ReviewerID {
		return nil, errors.NewConcurrentReviewClaimError(input.SubmissionID, sub.ReviewerID)
	}

	var finalStatus models.QCStatus
	switch result {
	case models.QCResultPass:
		finalStatus = models.QCStatusPassed
	case models.QCResultReject:
		finalStatus = models.QCStatusRejected
	case models.QCResultRework:
		finalStatus = models.QCStatusRework
	}

	review := &models.QCReview{
		SubmissionID: input.SubmissionID,
		CaseID:       sub.CaseID,
		ReviewerID:   input.ReviewerID,
		Result:       result,
		QualityScore: input.QualityScore,
		ReasonCodes:  input.ReasonCodes,
		Comments:     input.Comments,
	}
	if err := s.store.RecordReview(ctx, review, finalStatus); err != nil {
		return nil, err
	}

	if err := s.cascadeCaseStatus(ctx, sub.CaseID, result); err != nil {
		return nil, err
	}

	metrics.QCReviews.WithLabelValues(string(result)).Inc()

	s.notify(ctx, notify.Event{
		Type:        "qc_verdict",
		CaseID:      sub.CaseID,
		CandidateID: sub.SubmittedBy,
		Message:     fmt.Sprintf("QC verdict: %s", result),
	})

	s.logger.Info("qc review recorded", map[string]interface{}{
		"caseId":       sub.CaseID,
		"submissionId": input.SubmissionID,
		"result":       string(result),
		"qualityScore": input.QualityScore,
	})
	return review, nil
}

func (s *Service) cascadeCaseStatus(ctx context.Context, caseID string, result models.QCResult) error {
	target := result.CaseStatusFor()
	if err := s.cases.UpdateStatus(ctx, caseID, models.CaseStatusSubmitted, target); err != nil {
		return err
	}

	switch result {
	case models.QCResultPass:
		return s.cases.UpdateStatus(ctx, caseID, models.CaseStatusQCPassed, models.CaseStatusCompleted)
	case models.QCResultRework:
		// back to the field: the worker revises without a reallocation
		return s.cases.UpdateStatus(ctx, caseID, models.CaseStatusQCRework, models.CaseStatusInProgress)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, event notify.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("notification trigger failed", map[string]interface{}{
			"type":   event.Type,
			"caseId": event.CaseID,
			"error":  err,
		})
	}
}
