// internal/allocation/scheduler/scheduler.go

// Package scheduler drives wave-based case dispatch. Each wave offers the
// case to the best ranked candidate and waits out the acceptance window,
// nudging once partway through. Rejections and timeouts advance to the next
// wave with a fresh ranking; capacity races skip to the next candidate
// within the same wave. A case that exhausts its waves parks in
// pending_allocation for manual assignment.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/eligibility"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/scoring"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/notify"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// CaseStore is the case persistence surface the scheduler needs.
type CaseStore interface {
	GetByID(ctx context.Context, caseID string) (*models.Case, error)
	UpdateStatus(ctx context.Context, caseID string, from, to models.CaseStatus) error
	SetAssignee(ctx context.Context, caseID, candidateID string, candidateType models.CandidateType, match models.LocationMatchType) error
	ClearAssignee(ctx context.Context, caseID string) error
}

// LogStore is the append-only allocation trail.
type LogStore interface {
	Append(ctx context.Context, entry *models.AllocationLogEntry) error
}

// Ledger mutates daily candidate capacity.
type Ledger interface {
	Consume(ctx context.Context, candidateID string) error
	Free(ctx context.Context, candidateID string) error
}

// EligibilityEngine filters the roster for a case.
type EligibilityEngine interface {
	FindEligible(ctx context.Context, c *models.Case, cfg *models.AllocationConfig) ([]eligibility.Match, error)
}

// SettingsSource returns the current allocation config snapshot.
type SettingsSource interface {
	Get() *models.AllocationConfig
}

// CandidateDirectory reads candidate records and bumps their active case
// counters.
type CandidateDirectory interface {
	GetByID(ctx context.Context, candidateID string) (*models.Candidate, error)
	AdjustActiveCases(ctx context.Context, candidateID string, delta int) error
}

// Outcome is how an allocation attempt ended.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeOverride  Outcome = "manual-override"
)

// Result summarizes one allocation attempt.
type Result struct {
	CaseID        string  `json:"caseId"`
	Outcome       Outcome `json:"outcome"`
	CandidateID   string  `json:"candidateId,omitempty"`
	Wave          int     `json:"wave"`
	ConfigVersion int     `json:"configVersion"`
}

type decision struct {
	candidateID string
	accepted    bool
	actor       string
}

// waveRun is the registry entry for one in-flight offer. The latch lives
// here: the first decision flips decided, everything after is stale.
type waveRun struct {
	caseID      string
	wave        int
	candidateID string

	mu        sync.Mutex
	decided   bool
	withdrawn bool
	ch        chan decision
	cancel    chan struct{}
}

// Scheduler runs allocation workflows.
type Scheduler struct {
	cases       CaseStore
	log         LogStore
	ledger      Ledger
	eligibility EligibilityEngine
	settings    SettingsSource
	candidates  CandidateDirectory
	notifier    notify.Notifier
	logger      logger.Logger

	mu    sync.Mutex
	runs  map[string]*waveRun
	loops map[string]chan struct{}
}

func New(
	cases CaseStore,
	log LogStore,
	ledger Ledger,
	elig EligibilityEngine,
	settings SettingsSource,
	candidates CandidateDirectory,
	notifier notify.Notifier,
	lg logger.Logger,
) *Scheduler {
	return &Scheduler{
		cases:       cases,
		log:         log,
		ledger:      ledger,
		eligibility: elig,
		settings:    settings,
		candidates:  candidates,
		notifier:    notifier,
		logger:      lg,
		runs:        make(map[string]*waveRun),
		loops:       make(map[string]chan struct{}),
	}
}

// Allocate runs the full wave loop for one case, blocking until the case is
// accepted, exhausted, or the context ends. The config snapshot is captured
// once; a settings update mid-flight does not change this case's waves.
func (s *Scheduler) Allocate(ctx context.Context, caseID string) (*Result, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CaseStatusNew && c.Status != models.CaseStatusPendingAllocation {
		return nil, errors.NewInvalidTransitionError(caseID, string(c.Status), string(models.CaseStatusAllocated))
	}

	cfg := s.settings.Get()
	if cfg == nil {
		return nil, errors.NewConfigInvalidError("allocation settings not loaded")
	}

	loop := s.registerLoop(caseID)
	defer s.unregisterLoop(caseID, loop)

	offered := make(map[string]bool)
	status := c.Status

	for wave := 1; wave <= cfg.MaxWaves; wave++ {
		matches, err := s.eligibility.FindEligible(ctx, c, cfg)
		if err != nil {
			return nil, err
		}

		inputs := make([]scoring.Input, 0, len(matches))
		for _, m := range matches {
			if offered[m.Candidate.ID] {
				continue
			}
			inputs = append(inputs, scoring.Input{
				Candidate:     m.Candidate,
				LocationMatch: m.LocationMatch,
				Available:     m.Available,
			})
		}
		if len(inputs) == 0 {
			break
		}

		ranked := scoring.Rank(inputs, cfg.Weights)

		waveSettled := false
		for _, sc := range ranked {
			select {
			case <-loop:
				// the case was taken over between offers; its new owner has
				// every mutation from here
				return &Result{
					CaseID:        caseID,
					Outcome:       OutcomeOverride,
					Wave:          wave,
					ConfigVersion: cfg.Version,
				}, nil
			default:
			}

			dec, err := s.runWave(ctx, c, &status, sc, wave, cfg)
			if err != nil {
				if errors.HasCode(err, errors.ErrCodeCapacityExhausted) {
					// raced out of capacity, try the next candidate this wave
					offered[sc.Candidate.ID] = true
					continue
				}
				return nil, err
			}

			switch dec {
			case models.DecisionAccepted:
				metrics.AllocationWaves.WithLabelValues(string(OutcomeAccepted)).Observe(float64(wave))
				return &Result{
					CaseID:        caseID,
					Outcome:       OutcomeAccepted,
					CandidateID:   sc.Candidate.ID,
					Wave:          wave,
					ConfigVersion: cfg.Version,
				}, nil

			case models.DecisionManualOverride:
				return &Result{
					CaseID:        caseID,
					Outcome:       OutcomeOverride,
					Wave:          wave,
					ConfigVersion: cfg.Version,
				}, nil

			case models.DecisionRejected, models.DecisionTimeout:
				offered[sc.Candidate.ID] = true
				waveSettled = true
			}
			if waveSettled {
				break
			}
		}
		if !waveSettled {
			// every remaining candidate fell to a capacity race
			break
		}
	}

	return s.markUnallocated(ctx, caseID, &status, cfg)
}

// runWave offers the case to one candidate and waits for a decision, the
// window timeout, or cancellation. Returns the recorded decision.
func (s *Scheduler) runWave(ctx context.Context, c *models.Case, status *models.CaseStatus, sc *models.ScoredCandidate, wave int, cfg *models.AllocationConfig) (models.Decision, error) {
	candidateID := sc.Candidate.ID

	consumedAtOffer := false
	if cfg.ConsumeTrigger == models.CaseStatusAllocated {
		if err := s.ledger.Consume(ctx, candidateID); err != nil {
			return "", err
		}
		consumedAtOffer = true
	}

	release := func() {
		if consumedAtOffer {
			if err := s.ledger.Free(ctx, candidateID); err != nil {
				s.logger.Error("capacity release failed", map[string]interface{}{
					"caseId":      c.ID,
					"candidateId": candidateID,
					"error":       err,
				})
			}
		}
	}

	if err := s.cases.SetAssignee(ctx, c.ID, candidateID, sc.Candidate.Type, sc.LocationMatch); err != nil {
		release()
		return "", err
	}
	if err := s.cases.UpdateStatus(ctx, c.ID, *status, models.CaseStatusAllocated); err != nil {
		release()
		return "", err
	}
	*status = models.CaseStatusAllocated

	if err := s.log.Append(ctx, &models.AllocationLogEntry{
		CaseID:      c.ID,
		CandidateID: candidateID,
		Wave:        wave,
		Decision:    models.DecisionOffered,
		Scores:      sc.Scores,
	}); err != nil {
		release()
		return "", err
	}
	metrics.AllocationOffers.WithLabelValues(string(models.DecisionOffered)).Inc()

	s.notify(ctx, notify.Event{
		Type:        "offer",
		CaseID:      c.ID,
		CandidateID: candidateID,
		Wave:        wave,
		Message:     fmt.Sprintf("New case offer, respond within %s", cfg.AcceptanceWindow),
	})

	run := s.register(c.ID, wave, candidateID)
	defer s.unregister(c.ID, run)

	nudge := time.NewTimer(cfg.NudgeOffset)
	window := time.NewTimer(cfg.AcceptanceWindow)
	defer nudge.Stop()
	defer window.Stop()

	for {
		select {
		case dec := <-run.ch:
			if dec.accepted {
				return s.settleAccept(ctx, c, status, sc, wave, consumedAtOffer, cfg)
			}
			return s.settleDecline(ctx, c, status, sc, wave, models.DecisionRejected, release)

		case <-nudge.C:
			// exactly one nudge per wave
			metrics.NudgesSent.Inc()
			s.notify(ctx, notify.Event{
				Type:        "nudge",
				CaseID:      c.ID,
				CandidateID: candidateID,
				Wave:        wave,
				Message:     "Reminder: case offer awaiting your response",
			})

		case <-window.C:
			if !run.tryLatch() {
				// a decision won the race against the window, honor it
				dec := <-run.ch
				if dec.accepted {
					return s.settleAccept(ctx, c, status, sc, wave, consumedAtOffer, cfg)
				}
				return s.settleDecline(ctx, c, status, sc, wave, models.DecisionRejected, release)
			}
			s.notify(ctx, notify.Event{
				Type:        "timeout",
				CaseID:      c.ID,
				CandidateID: candidateID,
				Wave:        wave,
				Message:     "Offer expired",
			})
			return s.settleDecline(ctx, c, status, sc, wave, models.DecisionTimeout, release)

		case <-run.cancel:
			// an override or reallocation took the case mid-wave; whoever
			// cancelled owns every case mutation from here, this goroutine
			// only reconciles its own capacity and records the withdrawn offer
			release()
			s.appendBestEffort(ctx, &models.AllocationLogEntry{
				CaseID:      c.ID,
				CandidateID: candidateID,
				Wave:        wave,
				Decision:    models.DecisionRejected,
				Scores:      sc.Scores,
				Note:        "offer withdrawn",
			})
			return models.DecisionManualOverride, nil

		case <-ctx.Done():
			release()
			return "", ctx.Err()
		}
	}
}

func (s *Scheduler) settleAccept(ctx context.Context, c *models.Case, status *models.CaseStatus, sc *models.ScoredCandidate, wave int, consumedAtOffer bool, cfg *models.AllocationConfig) (models.Decision, error) {
	candidateID := sc.Candidate.ID

	if !consumedAtOffer {
		if err := s.ledger.Consume(ctx, candidateID); err != nil {
			if errors.HasCode(err, errors.ErrCodeCapacityExhausted) {
				// accepted but the last capacity unit went elsewhere; record
				// the miss and let the wave move on
				s.appendBestEffort(ctx, &models.AllocationLogEntry{
					CaseID:      c.ID,
					CandidateID: candidateID,
					Wave:        wave,
					Decision:    models.DecisionRejected,
					Scores:      sc.Scores,
					Note:        "capacity exhausted at acceptance",
				})
				if err := s.cases.ClearAssignee(ctx, c.ID); err != nil {
					return "", err
				}
				return "", errors.NewCapacityExhaustedError(candidateID)
			}
			return "", err
		}
	}

	if err := s.log.Append(ctx, &models.AllocationLogEntry{
		CaseID:      c.ID,
		CandidateID: candidateID,
		Wave:        wave,
		Decision:    models.DecisionAccepted,
		Scores:      sc.Scores,
	}); err != nil {
		// capacity was consumed, the log write is the point of no return:
		// give the unit back and fail the acceptance
		if ferr := s.ledger.Free(ctx, candidateID); ferr != nil {
			s.logger.Error("capacity reconciliation failed", map[string]interface{}{
				"caseId":      c.ID,
				"candidateId": candidateID,
				"error":       ferr,
			})
		}
		return "", err
	}
	metrics.AllocationOffers.WithLabelValues(string(models.DecisionAccepted)).Inc()

	if err := s.cases.UpdateStatus(ctx, c.ID, *status, models.CaseStatusAccepted); err != nil {
		return "", err
	}
	*status = models.CaseStatusAccepted

	if err := s.candidates.AdjustActiveCases(ctx, candidateID, 1); err != nil {
		s.logger.Warn("active cases increment failed", map[string]interface{}{
			"caseId":      c.ID,
			"candidateId": candidateID,
			"error":       err,
		})
	}

	return models.DecisionAccepted, nil
}

func (s *Scheduler) settleDecline(ctx context.Context, c *models.Case, status *models.CaseStatus, sc *models.ScoredCandidate, wave int, dec models.Decision, release func()) (models.Decision, error) {
	release()

	s.appendBestEffort(ctx, &models.AllocationLogEntry{
		CaseID:      c.ID,
		CandidateID: sc.Candidate.ID,
		Wave:        wave,
		Decision:    dec,
		Scores:      sc.Scores,
	})
	metrics.AllocationOffers.WithLabelValues(string(dec)).Inc()

	if err := s.cases.ClearAssignee(ctx, c.ID); err != nil {
		return "", err
	}
	return dec, nil
}

func (s *Scheduler) markUnallocated(ctx context.Context, caseID string, status *models.CaseStatus, cfg *models.AllocationConfig) (*Result, error) {
	if *status != models.CaseStatusPendingAllocation {
		if err := s.cases.UpdateStatus(ctx, caseID, *status, models.CaseStatusPendingAllocation); err != nil {
			return nil, err
		}
		*status = models.CaseStatusPendingAllocation
	}

	metrics.AllocationExhausted.Inc()
	metrics.AllocationWaves.WithLabelValues(string(OutcomeExhausted)).Observe(float64(cfg.MaxWaves))

	s.notify(ctx, notify.Event{
		Type:    "unallocated",
		CaseID:  caseID,
		Message: "Case could not be allocated automatically, manual assignment required",
	})

	return &Result{
		CaseID:        caseID,
		Outcome:       OutcomeExhausted,
		ConfigVersion: cfg.Version,
	}, nil
}

// RecordDecision delivers a candidate's accept or reject for a specific
// wave. Late and duplicate decisions return StaleDecision and change
// nothing; the latch belongs to whichever settlement got there first.
func (s *Scheduler) RecordDecision(ctx context.Context, caseID string, wave int, candidateID string, accepted bool) error {
	s.mu.Lock()
	run, ok := s.runs[caseID]
	s.mu.Unlock()

	if !ok || run.wave != wave || run.candidateID != candidateID {
		metrics.StaleDecisions.Inc()
		return errors.NewStaleDecisionError(caseID, wave)
	}

	run.mu.Lock()
	if run.decided {
		run.mu.Unlock()
		metrics.StaleDecisions.Inc()
		return errors.NewStaleDecisionError(caseID, wave)
	}
	run.decided = true
	run.mu.Unlock()

	select {
	case run.ch <- decision{candidateID: candidateID, accepted: accepted}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ManualOverride assigns a case to a chosen candidate, bypassing ranking.
// Capacity is still consumed; an exhausted candidate cannot be forced. An
// in-flight wave for the case is cancelled and its offer withdrawn.
func (s *Scheduler) ManualOverride(ctx context.Context, caseID, candidateID, actor string) (*Result, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	cand, err := s.candidates.GetByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	offerWithdrawn := s.Cancel(caseID)

	if err := s.ledger.Consume(ctx, candidateID); err != nil {
		return nil, err
	}

	if err := s.log.Append(ctx, &models.AllocationLogEntry{
		CaseID:      caseID,
		CandidateID: candidateID,
		Decision:    models.DecisionManualOverride,
		Actor:       actor,
	}); err != nil {
		if ferr := s.ledger.Free(ctx, candidateID); ferr != nil {
			s.logger.Error("capacity reconciliation failed", map[string]interface{}{
				"caseId":      caseID,
				"candidateId": candidateID,
				"error":       ferr,
			})
		}
		return nil, err
	}

	if err := s.cases.SetAssignee(ctx, caseID, candidateID, cand.Type, eligibility.LocationMatchFor(cand, c)); err != nil {
		return nil, err
	}

	from := c.Status
	if offerWithdrawn {
		from = models.CaseStatusAllocated
	}
	if from != models.CaseStatusAccepted {
		if err := s.cases.UpdateStatus(ctx, caseID, from, models.CaseStatusAccepted); err != nil {
			// tolerate the wave goroutine having already parked the case
			if uerr := s.cases.UpdateStatus(ctx, caseID, models.CaseStatusPendingAllocation, models.CaseStatusAccepted); uerr != nil {
				return nil, err
			}
		}
	}

	if err := s.candidates.AdjustActiveCases(ctx, candidateID, 1); err != nil {
		s.logger.Warn("active cases increment failed", map[string]interface{}{
			"caseId":      caseID,
			"candidateId": candidateID,
			"error":       err,
		})
	}

	metrics.AllocationOffers.WithLabelValues(string(models.DecisionManualOverride)).Inc()
	return &Result{
		CaseID:      caseID,
		Outcome:     OutcomeOverride,
		CandidateID: candidateID,
	}, nil
}

// Cancel withdraws the case's in-flight offer (if any) and stops its wave
// loop between offers. The wave goroutine owns reconciling any capacity it
// consumed at offer time. Reports whether a live offer was withdrawn.
func (s *Scheduler) Cancel(caseID string) bool {
	s.mu.Lock()
	run := s.runs[caseID]
	loop := s.loops[caseID]
	delete(s.loops, caseID)
	s.mu.Unlock()

	if run != nil {
		run.withdraw()
	}
	if loop != nil {
		close(loop)
	}
	return run != nil
}

func (s *Scheduler) registerLoop(caseID string) chan struct{} {
	loop := make(chan struct{})
	s.mu.Lock()
	s.loops[caseID] = loop
	s.mu.Unlock()
	return loop
}

func (s *Scheduler) unregisterLoop(caseID string, loop chan struct{}) {
	s.mu.Lock()
	if s.loops[caseID] == loop {
		delete(s.loops, caseID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) register(caseID string, wave int, candidateID string) *waveRun {
	run := &waveRun{
		caseID:      caseID,
		wave:        wave,
		candidateID: candidateID,
		ch:          make(chan decision, 1),
		cancel:      make(chan struct{}),
	}
	s.mu.Lock()
	s.runs[caseID] = run
	s.mu.Unlock()
	return run
}

func (s *Scheduler) unregister(caseID string, run *waveRun) {
	s.mu.Lock()
	if s.runs[caseID] == run {
		delete(s.runs, caseID)
	}
	s.mu.Unlock()
}

// withdraw latches the run and signals cancellation exactly once.
func (r *waveRun) withdraw() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decided = true
	if !r.withdrawn {
		r.withdrawn = true
		close(r.cancel)
	}
}

// tryLatch reports whether this caller won the settlement race.
func (r *waveRun) tryLatch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decided {
		return false
	}
	r.decided = true
	return true
}

func (s *Scheduler) notify(ctx context.Context, event notify.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("notification trigger failed", map[string]interface{}{
			"type":   event.Type,
			"caseId": event.CaseID,
			"error":  err,
		})
	}
}

func (s *Scheduler) appendBestEffort(ctx context.Context, entry *models.AllocationLogEntry) {
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Error("allocation log write failed", map[string]interface{}{
			"caseId":   entry.CaseID,
			"decision": entry.Decision,
			"error":    err,
		})
	}
}
