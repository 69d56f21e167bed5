// internal/workers/allocation/batch-allocation/handler.go
package batchallocation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

const TaskType = "batch-allocate-cases"

// Batcher previews and commits bulk assignments.
type Batcher interface {
	Preview(ctx context.Context, caseIDs []string) []*models.AllocationPreview
	Commit(ctx context.Context, previews []*models.AllocationPreview, actor string) []*models.CommitResult
}

type Handler struct {
	config       *Config
	batcher      Batcher
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, batcher Batcher, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		batcher:      batcher,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()

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

// Execute runs the batch in the requested mode. Preview never reserves
// anything; commit recomputes against current state so a stale preview
// fails only its own case.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.CaseIDs) == 0 {
		return nil, errors.NewBusinessRuleError("caseIds is required", "")
	}
	if len(input.CaseIDs) > h.config.MaxBatchSize {
		return nil, errors.NewBusinessRuleError("batch too large",
			fmt.Sprintf("got %d cases, max %d", len(input.CaseIDs), h.config.MaxBatchSize))
	}

	previews := h.batcher.Preview(ctx, input.CaseIDs)

	switch input.Mode {
	case ModePreview:
		return &Output{Mode: ModePreview, Previews: previews}, nil

	case ModeCommit:
		if input.Actor == "" {
			return nil, errors.NewBusinessRuleError("actor is required for commit", "")
		}
		results := h.batcher.Commit(ctx, previews, input.Actor)

		committed := 0
		for _, r := range results {
			if r.Committed {
				committed++
			}
		}
		h.logger.Info("batch allocation committed", map[string]interface{}{
			"total":     len(results),
			"committed": committed,
			"actor":     input.Actor,
		})
		return &Output{Mode: ModeCommit, Results: results}, nil

	default:
		return nil, errors.NewBusinessRuleError("unknown mode", input.Mode)
	}
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
