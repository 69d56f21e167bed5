// internal/workers/qc/record-review/handler.go
package recordreview

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/qc"
)

const TaskType = "record-qc-review"

// Reviewer claims a submission for a reviewer and records the verdict.
type Reviewer interface {
	ClaimReview(ctx context.Context, submissionID, reviewerID string) error
	RecordReview(ctx context.Context, input qc.ReviewInput) (*models.QCReview, error)
}

type Handler struct {
	config       *Config
	reviewer     Reviewer
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, reviewer Reviewer, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		reviewer:     reviewer,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()

	if err := qc.ValidateReviewPayload([]byte(job.Variables)); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return nil
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job,
			errors.NewBusinessRuleError("Invalid job variables", err.Error()))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return nil
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	// claiming is idempotent for the same reviewer, so a retried job
	// does not lock itself out
	if err := h.reviewer.ClaimReview(ctx, input.SubmissionID, input.ReviewerID); err != nil {
		return nil, err
	}

	review, err := h.reviewer.RecordReview(ctx, qc.ReviewInput{
		SubmissionID: input.SubmissionID,
		ReviewerID:   input.ReviewerID,
		Result:       input.Result,
		QualityScore: input.QualityScore,
		ReasonCodes:  input.ReasonCodes,
		Comments:     input.Comments,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		ReviewID:     review.ID,
		CaseID:       review.CaseID,
		Result:       string(review.Result),
		QualityScore: review.QualityScore,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}
