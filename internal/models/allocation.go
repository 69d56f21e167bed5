// internal/models/allocation.go
package models

import (
	"fmt"
	"math"
	"time"
)

// Decision is the recorded outcome of one offer wave for one candidate.
type Decision string

const (
	DecisionOffered        Decision = "offered"
	DecisionAccepted       Decision = "accepted"
	DecisionRejected       Decision = "rejected"
	DecisionTimeout        Decision = "timeout"
	DecisionManualOverride Decision = "manual-override"
)

// SubScores is the per-component breakdown behind a candidate's final score.
// Kept on every log entry so an allocation can be explained after the fact.
type SubScores struct {
	Quality       float64 `json:"quality"`
	Completion    float64 `json:"completion"`
	Ontime        float64 `json:"ontime"`
	Acceptance    float64 `json:"acceptance"`
	PriorityBoost float64 `json:"priorityBoost"`
	Final         float64 `json:"final"`
}

// AllocationLogEntry is one append-only row in the allocation audit trail.
type AllocationLogEntry struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	CandidateID string    `json:"candidateId"`
	Wave        int       `json:"wave"`
	Decision    Decision  `json:"decision"`
	Scores      SubScores `json:"scores"`
	Actor       string    `json:"actor"` // "system" or an operator id
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ScoringWeights are the relative weights of the four primary metrics.
type ScoringWeights struct {
	QualityScore   float64 `json:"qualityScore"`
	CompletionRate float64 `json:"completionRate"`
	OntimeRate     float64 `json:"ontimeRate"`
	AcceptanceRate float64 `json:"acceptanceRate"`
}

// Sum returns the total weight mass.
func (w ScoringWeights) Sum() float64 {
	return w.QualityScore + w.CompletionRate + w.OntimeRate + w.AcceptanceRate
}

// Max returns the largest single weight.
func (w ScoringWeights) Max() float64 {
	m := w.QualityScore
	for _, v := range []float64{w.CompletionRate, w.OntimeRate, w.AcceptanceRate} {
		if v > m {
			m = v
		}
	}
	return m
}

// WeightSumTolerance is the allowed deviation of the weight sum from 1.0.
const WeightSumTolerance = 0.01

// EligibilityThresholds are hard floors a candidate must clear to be offered
// a case at all.
type EligibilityThresholds struct {
	MinQualityScore   float64 `json:"minQualityScore"`
	MinCompletionRate float64 `json:"minCompletionRate"`
	MinAcceptanceRate float64 `json:"minAcceptanceRate"`
}

// AllocationConfig is one immutable version of the allocation settings.
// Updates create a new version; in-flight waves keep the version they
// started with.
type AllocationConfig struct {
	Version int `json:"version"`

	Weights ScoringWeights `json:"weights"`

	AcceptanceWindow time.Duration `json:"acceptanceWindow"`
	NudgeOffset      time.Duration `json:"nudgeOffset"`
	MaxWaves         int           `json:"maxWaves"`

	ConsumeTrigger CaseStatus `json:"consumeTrigger"`
	FreeTrigger    CaseStatus `json:"freeTrigger"`

	DailyResetTime string `json:"dailyResetTime"` // "HH:MM", local service time

	Thresholds EligibilityThresholds `json:"thresholds"`

	UpdatedBy string    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the config invariants. An invalid config must never be
// applied, partially or otherwise.
func (c *AllocationConfig) Validate() error {
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("scoring weights must sum to 1.0 (±%.2f), got %.4f", WeightSumTolerance, sum)
	}
	for name, w := range map[string]float64{
		"qualityScore":   c.Weights.QualityScore,
		"completionRate": c.Weights.CompletionRate,
		"ontimeRate":     c.Weights.OntimeRate,
		"acceptanceRate": c.Weights.AcceptanceRate,
	} {
		if w < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %.4f", name, w)
		}
	}
	if c.AcceptanceWindow <= 0 {
		return fmt.Errorf("acceptance window must be positive, got %s", c.AcceptanceWindow)
	}
	if c.NudgeOffset <= 0 || c.NudgeOffset >= c.AcceptanceWindow {
		return fmt.Errorf("nudge offset must be positive and shorter than the acceptance window (%s), got %s",
			c.AcceptanceWindow, c.NudgeOffset)
	}
	if c.MaxWaves < 1 {
		return fmt.Errorf("max waves must be at least 1, got %d", c.MaxWaves)
	}
	if _, err := ParseDailyResetTime(c.DailyResetTime); err != nil {
		return err
	}
	for name, t := range map[string]float64{
		"minQualityScore":   c.Thresholds.MinQualityScore,
		"minCompletionRate": c.Thresholds.MinCompletionRate,
		"minAcceptanceRate": c.Thresholds.MinAcceptanceRate,
	} {
		if t < 0 || t > 1 {
			return fmt.Errorf("threshold %s must be in [0,1], got %.4f", name, t)
		}
	}
	return nil
}

// ParseDailyResetTime parses an "HH:MM" reset time into hour and minute.
func ParseDailyResetTime(s string) (time.Duration, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("daily reset time must be HH:MM, got %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("daily reset time out of range: %q", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// ScoredCandidate pairs a candidate with its computed scores and, when it
// was not chosen, the reasons it lost to the winner.
type ScoredCandidate struct {
	Candidate        *Candidate        `json:"candidate"`
	Scores           SubScores         `json:"scores"`
	LocationMatch    LocationMatchType `json:"locationMatch"`
	Available        int               `json:"available"`
	RejectionReasons []string          `json:"rejectionReasons,omitempty"`
}

// AllocationPreview is one case's row in a batch preview. Pure computation:
// producing a preview reserves nothing.
type AllocationPreview struct {
	CaseID     string             `json:"caseId"`
	Winner     *ScoredCandidate   `json:"winner,omitempty"`
	Alternates []*ScoredCandidate `json:"alternates,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// CommitResult is the per-case outcome of a batch commit.
type CommitResult struct {
	CaseID      string `json:"caseId"`
	CandidateID string `json:"candidateId,omitempty"`
	Committed   bool   `json:"committed"`
	Reason      string `json:"reason,omitempty"`
}
