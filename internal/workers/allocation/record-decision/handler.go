// internal/workers/allocation/record-decision/handler.go
package recorddecision

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
)

const TaskType = "record-allocation-decision"

// Decider delivers a candidate's accept or reject to the live wave.
type Decider interface {
	RecordDecision(ctx context.Context, caseID string, wave int, candidateID string, accepted bool) error
}

type Handler struct {
	config       *Config
	decider      Decider
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, decider Decider, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		decider:      decider,
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

// Execute applies the decision. A stale decision is a normal outcome, not a
// job failure: it is logged, discarded, and the job completes with
// applied=false so the process can branch on it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.CaseID == "" || input.CandidateID == "" || input.Wave < 1 {
		return nil, errors.NewBusinessRuleError("caseId, candidateId and wave are required", "")
	}

	err := h.decider.RecordDecision(ctx, input.CaseID, input.Wave, input.CandidateID, input.Accepted)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeStaleDecision) {
			h.logger.Info("stale decision discarded", map[string]interface{}{
				"caseId":      input.CaseID,
				"wave":        input.Wave,
				"candidateId": input.CandidateID,
				"accepted":    input.Accepted,
			})
			return &Output{Applied: false, Reason: "decision arrived after the wave settled"}, nil
		}
		return nil, err
	}

	return &Output{Applied: true}, nil
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
