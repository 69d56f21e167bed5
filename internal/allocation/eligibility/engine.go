// internal/allocation/eligibility/engine.go

// Package eligibility filters the candidate roster down to those allowed to
// receive a given case. Location matching falls back in precision order:
// exact pincode, then city, then tier. A broader level is only consulted
// when the narrower one produced nobody.
package eligibility

import (
	"context"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// CandidateSource lists the active roster.
type CandidateSource interface {
	ListActive(ctx context.Context) ([]*models.Candidate, error)
}

// CapacitySource reports remaining daily capacity.
type CapacitySource interface {
	Available(ctx context.Context, candidateID string) (int, error)
}

// Match is an eligible candidate with the coverage level that matched and
// the day-scoped capacity the ledger reported while qualifying them.
type Match struct {
	Candidate     *models.Candidate
	LocationMatch models.LocationMatchType
	Available     int
}

// Engine finds eligible candidates for a case.
type Engine struct {
	candidates CandidateSource
	capacity   CapacitySource
	logger     logger.Logger
}

func NewEngine(candidates CandidateSource, capacity CapacitySource, log logger.Logger) *Engine {
	return &Engine{candidates: candidates, capacity: capacity, logger: log}
}

// FindEligible returns every candidate that covers the case location, clears
// the metric thresholds, and has capacity left today. An empty result is a
// normal outcome (the case goes to pending_allocation), not an error.
func (e *Engine) FindEligible(ctx context.Context, c *models.Case, cfg *models.AllocationConfig) ([]Match, error) {
	roster, err := e.candidates.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	qualified := make([]Match, 0, len(roster))
	for _, cand := range roster {
		if !e.meetsThresholds(cand, cfg.Thresholds) {
			continue
		}
		avail, err := e.capacity.Available(ctx, cand.ID)
		if err != nil {
			return nil, err
		}
		if avail <= 0 {
			continue
		}
		qualified = append(qualified, Match{Candidate: cand, Available: avail})
	}

	matches := matchByLocation(qualified, c)

	e.logger.Debug("eligibility evaluated", map[string]interface{}{
		"caseId":    c.ID,
		"roster":    len(roster),
		"qualified": len(qualified),
		"eligible":  len(matches),
	})
	return matches, nil
}

func (e *Engine) meetsThresholds(cand *models.Candidate, t models.EligibilityThresholds) bool {
	return cand.QualityScore >= t.MinQualityScore &&
		cand.CompletionRate >= t.MinCompletionRate &&
		cand.AcceptanceRate >= t.MinAcceptanceRate
}

func matchByLocation(qualified []Match, c *models.Case) []Match {
	var matches []Match

	for _, q := range qualified {
		if q.Candidate.CoversPincode(c.Pincode) {
			q.LocationMatch = models.LocationMatchPincode
			matches = append(matches, q)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	for _, q := range qualified {
		if q.Candidate.CoversCity(c.City) {
			q.LocationMatch = models.LocationMatchCity
			matches = append(matches, q)
		}
	}
	if len(matches) > 0 {
		return matches
	}

	for _, q := range qualified {
		if q.Candidate.CoversTier(c.Tier) {
			q.LocationMatch = models.LocationMatchTier
			matches = append(matches, q)
		}
	}
	return matches
}

// LocationMatchFor reports the narrowest coverage level a single candidate
// has for a case, without the roster-wide fallback. Empty when nothing
// covers the case.
func LocationMatchFor(cand *models.Candidate, c *models.Case) models.LocationMatchType {
	switch {
	case cand.CoversPincode(c.Pincode):
		return models.LocationMatchPincode
	case cand.CoversCity(c.City):
		return models.LocationMatchCity
	case cand.CoversTier(c.Tier):
		return models.LocationMatchTier
	}
	return ""
}
