// internal/workers/allocation/reallocate-case/handler.go
package reallocatecase

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
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

const TaskType = "reallocate-case"

// CaseGateway reads and mutates the case being pulled back.
type CaseGateway interface {
	GetByID(ctx context.Context, caseID string) (*models.Case, error)
	UpdateStatus(ctx context.Context, caseID string, from, to models.CaseStatus) error
	ClearAssignee(ctx context.Context, caseID string) error
}

// Ledger frees the previous assignee's capacity.
type Ledger interface {
	Free(ctx context.Context, candidateID string) error
}

// ActiveCasesAdjuster drops the previous assignee's active count.
type ActiveCasesAdjuster interface {
	AdjustActiveCases(ctx context.Context, candidateID string, delta int) error
}

// LogStore records the pullback in the allocation trail.
type LogStore interface {
	Append(ctx context.Context, entry *models.AllocationLogEntry) error
	LatestWave(ctx context.Context, caseID string) (int, error)
}

// Allocator re-runs the wave loop once the case is freed, or applies a
// forced assignment when the operator named a candidate. Cancel withdraws
// any in-flight offer before the case changes hands.
type Allocator interface {
	Allocate(ctx context.Context, caseID string) (*scheduler.Result, error)
	ManualOverride(ctx context.Context, caseID, candidateID, actor string) (*scheduler.Result, error)
	Cancel(caseID string) bool
}

// SettingsSource returns the current allocation config snapshot.
type SettingsSource interface {
	Get() *models.AllocationConfig
}

type Handler struct {
	config       *Config
	cases        CaseGateway
	ledger       Ledger
	adjuster     ActiveCasesAdjuster
	log          LogStore
	allocator    Allocator
	settings     SettingsSource
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, cases CaseGateway, ledger Ledger, adjuster ActiveCasesAdjuster, logStore LogStore, allocator Allocator, settings SettingsSource, log logger.Logger) *Handler {
	return &Handler{
		config:       config,
		cases:        cases,
		ledger:       ledger,
		adjuster:     adjuster,
		log:          logStore,
		allocator:    allocator,
		settings:     settings,
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

// Execute pulls the case back from its current assignee and runs a fresh
// allocation. Capacity is freed only if the case had reached the consume
// trigger; a withdrawn live offer is reconciled by its own wave goroutine.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.CaseID == "" {
		return nil, errors.NewBusinessRuleError("caseId is required", "")
	}
	cfg := h.settings.Get()
	if cfg == nil {
		return nil, errors.NewConfigInvalidError("allocation settings not loaded")
	}

	c, err := h.cases.GetByID(ctx, input.CaseID)
	if err != nil {
		return nil, err
	}
	reallocatable := c.Status == models.CaseStatusNew ||
		c.Status == models.CaseStatusPendingAllocation ||
		c.Status.CanTransitionTo(models.CaseStatusPendingAllocation)
	if !reallocatable {
		return nil, errors.NewInvalidTransitionError(input.CaseID, string(c.Status), string(models.CaseStatusPendingAllocation))
	}

	// Forcing the candidate who already holds the case is a no-op; the
	// ledger must not be touched twice for the same assignment.
	if input.TargetCandidateID != "" && input.TargetCandidateID == c.AssigneeID {
		h.logger.Info("reallocation skipped, candidate unchanged", map[string]interface{}{
			"caseId":      input.CaseID,
			"candidateId": c.AssigneeID,
		})
		return &Output{
			Outcome:     string(scheduler.OutcomeOverride),
			CandidateID: c.AssigneeID,
		}, nil
	}

	// A live wave loop must stop before the case changes hands, or its
	// timeout would clear the next assignee. A withdrawn offer's capacity is
	// reconciled by the wave goroutine itself.
	offerWithdrawn := h.allocator.Cancel(input.CaseID)

	if c.AssigneeID != "" {
		// Capacity was only consumed once the case reached the consume
		// trigger; freeing an offer that never got there would mint capacity.
		if c.Status.AtOrAfter(cfg.ConsumeTrigger) && !offerWithdrawn {
			if err := h.ledger.Free(ctx, c.AssigneeID); err != nil {
				return nil, err
			}
		}
		// The active counter only moves at acceptance.
		if c.Status.AtOrAfter(models.CaseStatusAccepted) {
			if err := h.adjuster.AdjustActiveCases(ctx, c.AssigneeID, -1); err != nil {
				h.logger.Warn("active cases decrement failed", map[string]interface{}{
					"caseId":      input.CaseID,
					"candidateId": c.AssigneeID,
					"error":       err,
				})
			}
		}
		wave, err := h.log.LatestWave(ctx, input.CaseID)
		if err != nil {
			h.logger.Warn("latest wave lookup failed", map[string]interface{}{
				"caseId": input.CaseID,
				"error":  err,
			})
		}
		if err := h.log.Append(ctx, &models.AllocationLogEntry{
			CaseID:      input.CaseID,
			CandidateID: c.AssigneeID,
			Wave:        wave,
			Decision:    models.DecisionRejected,
			Actor:       input.Actor,
			Note:        "reallocation: " + input.Reason,
		}); err != nil {
			return nil, err
		}
		if err := h.cases.ClearAssignee(ctx, input.CaseID); err != nil {
			return nil, err
		}
	}

	if c.Status != models.CaseStatusPendingAllocation && c.Status != models.CaseStatusNew {
		if err := h.cases.UpdateStatus(ctx, input.CaseID, c.Status, models.CaseStatusPendingAllocation); err != nil {
			return nil, err
		}
	}

	var result *scheduler.Result
	if input.TargetCandidateID != "" {
		result, err = h.allocator.ManualOverride(ctx, input.CaseID, input.TargetCandidateID, input.Actor)
	} else {
		result, err = h.allocator.Allocate(ctx, input.CaseID)
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("case reallocated", map[string]interface{}{
		"caseId":      input.CaseID,
		"reason":      input.Reason,
		"outcome":     string(result.Outcome),
		"candidateId": result.CandidateID,
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
