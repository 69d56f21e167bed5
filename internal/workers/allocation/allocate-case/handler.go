// internal/workers/allocation/allocate-case/handler.go
package allocatecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/scheduler"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
)

const TaskType = "allocate-case"

// Allocator runs the wave loop for one case.
type Allocator interface {
	Allocate(ctx context.Context, caseID string) (*scheduler.Result, error)
}

type Handler struct {
	config       *Config
	allocator    Allocator
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, allocator Allocator, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		allocator:    allocator,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
	})

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
	if input.CaseID == "" {
		return nil, errors.NewBusinessRuleError("caseId is required", "")
	}

	result, err := h.allocator.Allocate(ctx, input.CaseID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("allocation settled", map[string]interface{}{
		"caseId":      result.CaseID,
		"outcome":     string(result.Outcome),
		"candidateId": result.CandidateID,
		"wave":        result.Wave,
	})

	return &Output{
		Outcome:       string(result.Outcome),
		CandidateID:   result.CandidateID,
		Wave:          result.Wave,
		ConfigVersion: result.ConfigVersion,
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
