package eligibility

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

type fakeRoster struct {
	candidates []*models.Candidate
}

func (f *fakeRoster) ListActive(ctx context.Context) ([]*models.Candidate, error) {
	return f.candidates, nil
}

type fakeCapacity struct {
	available map[string]int
}

func (f *fakeCapacity) Available(ctx context.Context, id string) (int, error) {
	return f.available[id], nil
}

func candidate(id string, pincodes, cities, tiers []string) *models.Candidate {
	return &models.Candidate{
		ID:               id,
		Type:             models.CandidateDirectGig,
		CoveragePincodes: pincodes,
		CoverageCities:   cities,
		CoverageTiers:    tiers,
		QualityScore:     0.9,
		CompletionRate:   0.9,
		AcceptanceRate:   0.9,
		IsActive:         true,
		IsAvailable:      true,
	}
}

func testCase() *models.Case {
	return &models.Case{
		ID:      "case-1",
		Pincode: "560001",
		City:    "Bengaluru",
		Tier:    "tier1",
	}
}

func TestFindEligiblePrefersNarrowestLocationMatch(t *testing.T) {
	pin := candidate("pin", []string{"560001"}, nil, nil)
	city := candidate("city", nil, []string{"Bengaluru"}, nil)
	tier := candidate("tier", nil, nil, []string{"tier1"})

	roster := &fakeRoster{candidates: []*models.Candidate{pin, city, tier}}
	capacity := &fakeCapacity{available: map[string]int{"pin": 1, "city": 1, "tier": 1}}
	engine := NewEngine(roster, capacity, logger.NewNoOpLogger())

	matches, err := engine.FindEligible(context.Background(), testCase(), &models.AllocationConfig{})
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "pin", matches[0].Candidate.ID)
	assert.Equal(t, models.LocationMatchPincode, matches[0].LocationMatch)
}

func TestFindEligibleFallsBackToCityThenTier(t *testing.T) {
	city := candidate("city", nil, []string{"Bengaluru"}, nil)
	tier := candidate("tier", nil, nil, []string{"tier1"})

	roster := &fakeRoster{candidates: []*models.Candidate{city, tier}}
	capacity := &fakeCapacity{available: map[string]int{"city": 1, "tier": 1}}
	engine := NewEngine(roster, capacity, logger.NewNoOpLogger())

	matches, err := engine.FindEligible(context.Background(), testCase(), &models.AllocationConfig{})
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "city", matches[0].Candidate.ID)
	assert.Equal(t, models.LocationMatchCity, matches[0].LocationMatch)

	// city candidate gone, tier coverage picks up
	roster.candidates = []*models.Candidate{tier}
	matches, err = engine.FindEligible(context.Background(), testCase(), &models.AllocationConfig{})
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, models.LocationMatchTier, matches[0].LocationMatch)
}

func TestFindEligibleAppliesThresholds(t *testing.T) {
	weak := candidate("weak", []string{"560001"}, nil, nil)
	weak.QualityScore = 0.4

	strong := candidate("strong", []string{"560001"}, nil, nil)

	roster := &fakeRoster{candidates: []*models.Candidate{weak, strong}}
	capacity := &fakeCapacity{available: map[string]int{"weak": 1, "strong": 1}}
	engine := NewEngine(roster, capacity, logger.NewNoOpLogger())

	cfg := &models.AllocationConfig{
		Thresholds: models.EligibilityThresholds{MinQualityScore: 0.5},
	}
	matches, err := engine.FindEligible(context.Background(), testCase(), cfg)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "strong", matches[0].Candidate.ID)
}

func TestFindEligibleCarriesLedgerAvailability(t *testing.T) {
	// the ledger is day-scoped; active cases carried over from yesterday make
	// MaxDailyCapacity - ActiveCasesCount the wrong number
	a := candidate("a", []string{"560001"}, nil, nil)
	a.MaxDailyCapacity = 5
	a.ActiveCasesCount = 4

	roster := &fakeRoster{candidates: []*models.Candidate{a}}
	capacity := &fakeCapacity{available: map[string]int{"a": 5}}
	engine := NewEngine(roster, capacity, logger.NewNoOpLogger())

	matches, err := engine.FindEligible(context.Background(), testCase(), &models.AllocationConfig{})
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, 5, matches[0].Available)
}

func TestFindEligibleSkipsExhaustedCapacity(t *testing.T) {
	a := candidate("a", []string{"560001"}, nil, nil)
	b := candidate("b", []string{"560001"}, nil, nil)

	roster := &fakeRoster{candidates: []*models.Candidate{a, b}}
	capacity := &fakeCapacity{available: map[string]int{"a": 0, "b": 2}}
	engine := NewEngine(roster, capacity, logger.NewNoOpLogger())

	matches, err := engine.FindEligible(context.Background(), testCase(), &models.AllocationConfig{})
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].Candidate.ID)
}

func TestFindEligibleEmptySetIsNotAnError(t *testing.T) {
	roster := &fakeRoster{}
	engine := NewEngine(roster, &fakeCapacity{}, logger.NewNoOpLogger())

	matches, err := engine.FindEligible(context.Background(), testCase(), &models.AllocationConfig{})
	assert.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLocationMatchFor(t *testing.T) {
	c := testCase()

	assert.Equal(t, models.LocationMatchPincode,
		LocationMatchFor(candidate("x", []string{"560001"}, []string{"Bengaluru"}, nil), c))
	assert.Equal(t, models.LocationMatchCity,
		LocationMatchFor(candidate("x", nil, []string{"Bengaluru"}, nil), c))
	assert.Equal(t, models.LocationMatchTier,
		LocationMatchFor(candidate("x", nil, nil, []string{"tier1"}), c))
	assert.Equal(t, models.LocationMatchType(""),
		LocationMatchFor(candidate("x", nil, nil, nil), c))
}
