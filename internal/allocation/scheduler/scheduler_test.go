package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/allocation/eligibility"
	commonerrors "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/notify"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// --- in-memory fakes ---

type memCases struct {
	mu    sync.Mutex
	cases map[string]*models.Case
}

func (m *memCases) GetByID(ctx context.Context, id string) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, commonerrors.NewCaseNotFoundError(id)
	}
	copied := *c
	return &copied, nil
}

func (m *memCases) UpdateStatus(ctx context.Context, id string, from, to models.CaseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return commonerrors.NewCaseNotFoundError(id)
	}
	if !from.CanTransitionTo(to) || c.Status != from {
		return commonerrors.NewInvalidTransitionError(id, string(c.Status), string(to))
	}
	c.Status = to
	return nil
}

func (m *memCases) SetAssignee(ctx context.Context, id, candidateID string, t models.CandidateType, match models.LocationMatchType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cases[id]
	c.AssigneeID = candidateID
	c.AssigneeType = t
	c.LocationMatchType = match
	return nil
}

func (m *memCases) ClearAssignee(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cases[id]
	c.AssigneeID = ""
	c.AssigneeType = ""
	c.LocationMatchType = ""
	return nil
}

func (m *memCases) snapshot(id string) models.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.cases[id]
}

type memLog struct {
	mu      sync.Mutex
	entries []*models.AllocationLogEntry
	failOn  models.Decision
}

func (m *memLog) Append(ctx context.Context, entry *models.AllocationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && entry.Decision == m.failOn {
		return commonerrors.NewLogWriteFailedError(entry.CaseID, assertAnError)
	}
	copied := *entry
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *memLog) decisions() []models.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Decision, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Decision)
	}
	return out
}

var assertAnError = assert.AnError

type memLedger struct {
	mu   sync.Mutex
	max  map[string]int
	used map[string]int
}

func (m *memLedger) Consume(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used == nil {
		m.used = map[string]int{}
	}
	if m.used[id] >= m.max[id] {
		return commonerrors.NewCapacityExhaustedError(id)
	}
	m.used[id]++
	return nil
}

func (m *memLedger) Free(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[id] > 0 {
		m.used[id]--
	}
	return nil
}

func (m *memLedger) usedFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[id]
}

type fixedElig struct {
	mu      sync.Mutex
	matches []eligibility.Match
}

func (f *fixedElig) FindEligible(ctx context.Context, c *models.Case, cfg *models.AllocationConfig) ([]eligibility.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]eligibility.Match, len(f.matches))
	copy(out, f.matches)
	return out, nil
}

type fixedSettings struct{ cfg *models.AllocationConfig }

func (f *fixedSettings) Get() *models.AllocationConfig { return f.cfg }

type memDirectory struct {
	mu     sync.Mutex
	byID   map[string]*models.Candidate
	counts map[string]int
}

func (m *memDirectory) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cand, ok := m.byID[id]
	if !ok {
		return nil, commonerrors.NewCandidateNotFoundError(id)
	}
	copied := *cand
	return &copied, nil
}

func (m *memDirectory) AdjustActiveCases(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[id] += delta
	return nil
}

func (m *memDirectory) add(cand *models.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = map[string]*models.Candidate{}
	}
	m.byID[cand.ID] = cand
}

type safeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *safeNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *safeNotifier) byType(eventType string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- helpers ---

func testConfig(maxWaves int) *models.AllocationConfig {
	return &models.AllocationConfig{
		Version: 1,
		Weights: models.ScoringWeights{
			QualityScore:   0.35,
			CompletionRate: 0.25,
			OntimeRate:     0.25,
			AcceptanceRate: 0.15,
		},
		AcceptanceWindow: 80 * time.Millisecond,
		NudgeOffset:      30 * time.Millisecond,
		MaxWaves:         maxWaves,
		ConsumeTrigger:   models.CaseStatusAccepted,
		FreeTrigger:      models.CaseStatusSubmitted,
		DailyResetTime:   "00:00",
	}
}

func strongCandidate(id string, quality float64) *models.Candidate {
	return &models.Candidate{
		ID:                   id,
		Type:                 models.CandidateDirectGig,
		QualityScore:         quality,
		CompletionRate:       0.8,
		OntimeCompletionRate: 0.85,
		AcceptanceRate:       0.75,
		MaxDailyCapacity:     5,
		IsActive:             true,
		IsAvailable:          true,
	}
}

type env struct {
	sched    *Scheduler
	cases    *memCases
	log      *memLog
	ledger   *memLedger
	notifier *safeNotifier
	dir      *memDirectory
}

func newEnv(cfg *models.AllocationConfig, matches []eligibility.Match, ledger *memLedger) *env {
	cases := &memCases{cases: map[string]*models.Case{
		"case-1": {ID: "case-1", Status: models.CaseStatusPendingAllocation, Pincode: "560001"},
	}}
	log := &memLog{}
	notifier := &safeNotifier{}
	dir := &memDirectory{}
	for _, m := range matches {
		dir.add(m.Candidate)
	}
	sched := New(cases, log, ledger, &fixedElig{matches: matches}, &fixedSettings{cfg: cfg},
		dir, notifier, logger.NewNoOpLogger())
	return &env{sched: sched, cases: cases, log: log, ledger: ledger, notifier: notifier, dir: dir}
}

// decide retries until the target wave's offer is live.
func decide(t *testing.T, s *Scheduler, caseID string, wave int, candidateID string, accepted bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := s.RecordDecision(context.Background(), caseID, wave, candidateID, accepted); err == nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("offer for case %s wave %d candidate %s never became live", caseID, wave, candidateID)
}

// --- tests ---

func TestAllocateAcceptedFirstWave(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	b := strongCandidate("cand-B", 0.7)
	e := newEnv(testConfig(3), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
		{Candidate: b, LocationMatch: models.LocationMatchPincode},
	}, &memLedger{max: map[string]int{"cand-A": 2, "cand-B": 2}})

	done := make(chan struct{})
	var result *Result
	var err error
	go func() {
		result, err = e.sched.Allocate(context.Background(), "case-1")
		close(done)
	}()

	decide(t, e.sched, "case-1", 1, "cand-A", true)
	<-done

	assert.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, "cand-A", result.CandidateID)
	assert.Equal(t, 1, result.Wave)

	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusAccepted, c.Status)
	assert.Equal(t, "cand-A", c.AssigneeID)
	assert.Equal(t, 1, e.ledger.usedFor("cand-A"))
	assert.Equal(t, []models.Decision{models.DecisionOffered, models.DecisionAccepted}, e.log.decisions())
	assert.Equal(t, 1, e.dir.counts["cand-A"])
}

func TestAllocateRejectionAdvancesWave(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	b := strongCandidate("cand-B", 0.7)
	e := newEnv(testConfig(3), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
		{Candidate: b, LocationMatch: models.LocationMatchPincode},
	}, &memLedger{max: map[string]int{"cand-A": 2, "cand-B": 2}})

	done := make(chan struct{})
	var result *Result
	go func() {
		result, _ = e.sched.Allocate(context.Background(), "case-1")
		close(done)
	}()

	decide(t, e.sched, "case-1", 1, "cand-A", false)
	decide(t, e.sched, "case-1", 2, "cand-B", true)
	<-done

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, "cand-B", result.CandidateID)
	assert.Equal(t, 2, result.Wave)
	assert.Equal(t, []models.Decision{
		models.DecisionOffered, models.DecisionRejected,
		models.DecisionOffered, models.DecisionAccepted,
	}, e.log.decisions())

	// the rejecting candidate holds no capacity
	assert.Equal(t, 0, e.ledger.usedFor("cand-A"))
	assert.Equal(t, 1, e.ledger.usedFor("cand-B"))
}

func TestAllocateTimeoutThenExhausted(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	e := newEnv(testConfig(2), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
	}, &memLedger{max: map[string]int{"cand-A": 2}})

	result, err := e.sched.Allocate(context.Background(), "case-1")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeExhausted, result.Outcome)

	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusPendingAllocation, c.Status)
	assert.Empty(t, c.AssigneeID)

	assert.Equal(t, []models.Decision{models.DecisionOffered, models.DecisionTimeout}, e.log.decisions())
	assert.Len(t, e.notifier.byType("nudge"), 1, "exactly one nudge per wave")
	assert.Len(t, e.notifier.byType("timeout"), 1)
	assert.Len(t, e.notifier.byType("unallocated"), 1)
	assert.Equal(t, 0, e.ledger.usedFor("cand-A"))
}

func TestRecordDecisionStaleAfterSettlement(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	e := newEnv(testConfig(1), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
	}, &memLedger{max: map[string]int{"cand-A": 2}})

	done := make(chan struct{})
	go func() {
		e.sched.Allocate(context.Background(), "case-1")
		close(done)
	}()

	decide(t, e.sched, "case-1", 1, "cand-A", true)
	<-done

	err := e.sched.RecordDecision(context.Background(), "case-1", 1, "cand-A", false)
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeStaleDecision))

	// the late rejection changed nothing
	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusAccepted, c.Status)
	assert.Equal(t, "cand-A", c.AssigneeID)
}

func TestAllocateCapacityRaceSkipsWithinWave(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	b := strongCandidate("cand-B", 0.7)
	e := newEnv(testConfig(3), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
		{Candidate: b, LocationMatch: models.LocationMatchPincode},
	}, &memLedger{max: map[string]int{"cand-A": 0, "cand-B": 2}})

	done := make(chan struct{})
	var result *Result
	go func() {
		result, _ = e.sched.Allocate(context.Background(), "case-1")
		close(done)
	}()

	// A accepts but their last capacity unit is gone
	decide(t, e.sched, "case-1", 1, "cand-A", true)
	// same wave falls through to B
	decide(t, e.sched, "case-1", 1, "cand-B", true)
	<-done

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, "cand-B", result.CandidateID)
	assert.Equal(t, 1, result.Wave, "capacity races stay within the wave")
	assert.Equal(t, 1, e.ledger.usedFor("cand-B"))
}

func TestAllocateLogWriteFailureReturnsCapacity(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	ledger := &memLedger{max: map[string]int{"cand-A": 2}}
	e := newEnv(testConfig(1), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
	}, ledger)
	e.log.failOn = models.DecisionAccepted

	done := make(chan struct{})
	var err error
	go func() {
		_, err = e.sched.Allocate(context.Background(), "case-1")
		close(done)
	}()

	decide(t, e.sched, "case-1", 1, "cand-A", true)
	<-done

	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeLogWriteFailed))
	assert.Equal(t, 0, ledger.usedFor("cand-A"), "consumed capacity must be reconciled back")
}

func TestManualOverrideMidWave(t *testing.T) {
	cfg := testConfig(3)
	cfg.AcceptanceWindow = 500 * time.Millisecond
	cfg.NudgeOffset = 400 * time.Millisecond

	a := strongCandidate("cand-A", 0.9)
	ledger := &memLedger{max: map[string]int{"cand-A": 2, "cand-C": 1}}
	e := newEnv(cfg, []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
	}, ledger)
	forced := strongCandidate("cand-C", 0.6)
	forced.CoveragePincodes = []string{"560001"}
	e.dir.add(forced)

	done := make(chan struct{})
	var result *Result
	go func() {
		result, _ = e.sched.Allocate(context.Background(), "case-1")
		close(done)
	}()

	// wait for the wave 1 offer to go live
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.cases.snapshot("case-1").Status == models.CaseStatusAllocated {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	override, err := e.sched.ManualOverride(context.Background(), "case-1", "cand-C", "ops-admin")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeOverride, override.Outcome)
	assert.Equal(t, "cand-C", override.CandidateID)

	<-done
	assert.Equal(t, OutcomeOverride, result.Outcome)

	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusAccepted, c.Status)
	assert.Equal(t, "cand-C", c.AssigneeID)
	assert.Equal(t, models.CandidateDirectGig, c.AssigneeType)
	assert.Equal(t, models.LocationMatchPincode, c.LocationMatchType)
	assert.Equal(t, 1, ledger.usedFor("cand-C"))
	assert.Equal(t, 0, ledger.usedFor("cand-A"))
}

func TestManualOverrideRespectsCapacity(t *testing.T) {
	e := newEnv(testConfig(1), nil, &memLedger{max: map[string]int{"cand-C": 0}})
	forced := strongCandidate("cand-C", 0.6)
	forced.CoveragePincodes = []string{"560001"}
	e.dir.add(forced)

	_, err := e.sched.ManualOverride(context.Background(), "case-1", "cand-C", "ops-admin")
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeCapacityExhausted))

	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusPendingAllocation, c.Status)
	assert.Empty(t, c.AssigneeID)
}

func TestCancelWithdrawsOfferAndStopsAbandonedLoop(t *testing.T) {
	cfg := testConfig(3)
	cfg.AcceptanceWindow = 400 * time.Millisecond
	cfg.NudgeOffset = 300 * time.Millisecond

	a := strongCandidate("cand-A", 0.9)
	ledger := &memLedger{max: map[string]int{"cand-A": 2}}
	e := newEnv(cfg, []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
	}, ledger)

	first := make(chan *Result, 1)
	go func() {
		r, _ := e.sched.Allocate(context.Background(), "case-1")
		first <- r
	}()

	// wait for the wave 1 offer to go live
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.cases.snapshot("case-1").Status == models.CaseStatusAllocated {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	assert.True(t, e.sched.Cancel("case-1"), "a live offer must report as withdrawn")

	abandoned := <-first
	assert.Equal(t, OutcomeOverride, abandoned.Outcome)

	// the case is pulled back and rerun; the abandoned loop must not touch it
	assert.NoError(t, e.cases.ClearAssignee(context.Background(), "case-1"))
	assert.NoError(t, e.cases.UpdateStatus(context.Background(), "case-1",
		models.CaseStatusAllocated, models.CaseStatusPendingAllocation))

	second := make(chan *Result, 1)
	go func() {
		r, _ := e.sched.Allocate(context.Background(), "case-1")
		second <- r
	}()
	decide(t, e.sched, "case-1", 1, "cand-A", true)
	result := <-second

	assert.Equal(t, OutcomeAccepted, result.Outcome)
	assert.Equal(t, "cand-A", result.CandidateID)

	// give the abandoned wave's window a chance to have fired
	time.Sleep(500 * time.Millisecond)
	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusAccepted, c.Status)
	assert.Equal(t, "cand-A", c.AssigneeID, "the settled assignment must survive the abandoned wave")
	assert.Equal(t, 1, ledger.usedFor("cand-A"))

	var withdrawn bool
	e.log.mu.Lock()
	for _, entry := range e.log.entries {
		if entry.Note == "offer withdrawn" {
			withdrawn = true
		}
	}
	e.log.mu.Unlock()
	assert.True(t, withdrawn, "the withdrawn offer belongs in the allocation trail")
}

func TestCancelWithoutLiveOfferReportsFalse(t *testing.T) {
	e := newEnv(testConfig(1), nil, &memLedger{max: map[string]int{}})
	assert.False(t, e.sched.Cancel("case-1"))
}

func TestPreviewIsPure(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	b := strongCandidate("cand-B", 0.7)
	ledger := &memLedger{max: map[string]int{"cand-A": 2, "cand-B": 2}}
	e := newEnv(testConfig(3), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
		{Candidate: b, LocationMatch: models.LocationMatchPincode},
	}, ledger)

	first := e.sched.Preview(context.Background(), []string{"case-1"})
	second := e.sched.Preview(context.Background(), []string{"case-1"})

	assert.Equal(t, "cand-A", first[0].Winner.Candidate.ID)
	assert.Equal(t, first[0].Winner.Candidate.ID, second[0].Winner.Candidate.ID)
	assert.Len(t, first[0].Alternates, 1)
	assert.NotEmpty(t, first[0].Alternates[0].RejectionReasons)

	// previewing reserved nothing
	assert.Equal(t, 0, ledger.usedFor("cand-A"))
	assert.Equal(t, models.CaseStatusPendingAllocation, e.cases.snapshot("case-1").Status)
}

func TestCommitSettlesCasesIndependently(t *testing.T) {
	a := strongCandidate("cand-A", 0.9)
	ledger := &memLedger{max: map[string]int{"cand-A": 2}}
	e := newEnv(testConfig(3), []eligibility.Match{
		{Candidate: a, LocationMatch: models.LocationMatchPincode},
	}, ledger)
	e.cases.cases["case-2"] = &models.Case{ID: "case-2", Status: models.CaseStatusInProgress}

	previews := e.sched.Preview(context.Background(), []string{"case-1"})
	// a second preview targets a case that has since moved on
	stale := &models.AllocationPreview{
		CaseID: "case-2",
		Winner: &models.ScoredCandidate{Candidate: a},
	}

	results := e.sched.Commit(context.Background(), append(previews, stale), "ops-admin")

	assert.True(t, results[0].Committed)
	assert.Equal(t, "cand-A", results[0].CandidateID)
	assert.False(t, results[1].Committed)
	assert.Contains(t, results[1].Reason, "in_progress")

	c := e.cases.snapshot("case-1")
	assert.Equal(t, models.CaseStatusAccepted, c.Status)
	assert.Equal(t, "cand-A", c.AssigneeID)
	assert.Equal(t, 1, ledger.usedFor("cand-A"))
}
