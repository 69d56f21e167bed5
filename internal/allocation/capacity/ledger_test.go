package capacity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	commonerrors "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

type fakeCandidates struct {
	byID map[string]*models.Candidate
}

func (f *fakeCandidates) GetByID(ctx context.Context, id string) (*models.Candidate, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, commonerrors.NewCandidateNotFoundError(id)
	}
	return c, nil
}

func newTestLedger(t *testing.T, maxCapacity int) *Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	candidates := &fakeCandidates{byID: map[string]*models.Candidate{
		"cand-A": {ID: "cand-A", MaxDailyCapacity: maxCapacity},
	}}
	return NewLedger(client, candidates, logger.NewNoOpLogger())
}

func TestLedgerConsumeAndFree(t *testing.T) {
	l := newTestLedger(t, 2)
	ctx := context.Background()

	avail, err := l.Available(ctx, "cand-A")
	assert.NoError(t, err)
	assert.Equal(t, 2, avail)

	assert.NoError(t, l.Consume(ctx, "cand-A"))
	assert.NoError(t, l.Consume(ctx, "cand-A"))

	err = l.Consume(ctx, "cand-A")
	assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeCapacityExhausted))

	avail, err = l.Available(ctx, "cand-A")
	assert.NoError(t, err)
	assert.Equal(t, 0, avail)

	assert.NoError(t, l.Free(ctx, "cand-A"))
	avail, err = l.Available(ctx, "cand-A")
	assert.NoError(t, err)
	assert.Equal(t, 1, avail)
}

func TestLedgerFreeFloorsAtZero(t *testing.T) {
	l := newTestLedger(t, 3)
	ctx := context.Background()

	assert.NoError(t, l.Free(ctx, "cand-A"))
	assert.NoError(t, l.Free(ctx, "cand-A"))

	avail, err := l.Available(ctx, "cand-A")
	assert.NoError(t, err)
	assert.Equal(t, 3, avail)
}

func TestLedgerConcurrentConsumeNeverExceedsMax(t *testing.T) {
	const maxCapacity = 5
	const attempts = 25
	l := newTestLedger(t, maxCapacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Consume(ctx, "cand-A")
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, commonerrors.HasCode(err, commonerrors.ErrCodeCapacityExhausted))
		}
	}

	assert.Equal(t, maxCapacity, succeeded)
	avail, err := l.Available(ctx, "cand-A")
	assert.NoError(t, err)
	assert.Equal(t, 0, avail)
}

func TestLedgerDailyResetIdempotent(t *testing.T) {
	l := newTestLedger(t, 2)
	ctx := context.Background()
	today := time.Now()

	performed, err := l.ResetDaily(ctx, today)
	assert.NoError(t, err)
	assert.True(t, performed)

	performed, err = l.ResetDaily(ctx, today)
	assert.NoError(t, err)
	assert.False(t, performed, "second reset for the same day must be a no-op")
}

type fakeAdjuster struct {
	deltas map[string]int
}

func (f *fakeAdjuster) AdjustActiveCases(ctx context.Context, candidateID string, delta int) error {
	if f.deltas == nil {
		f.deltas = map[string]int{}
	}
	f.deltas[candidateID] += delta
	return nil
}

func TestListenerConsumesAndFreesOnConfiguredTriggers(t *testing.T) {
	l := newTestLedger(t, 2)
	adjuster := &fakeAdjuster{}
	listener := NewListener(l, adjuster, logger.NewNoOpLogger())
	ctx := context.Background()

	cfg := &models.AllocationConfig{
		ConsumeTrigger: models.CaseStatusAccepted,
		FreeTrigger:    models.CaseStatusSubmitted,
	}

	assert.NoError(t, listener.OnCaseTransition(ctx, "case-1", "cand-A", models.CaseStatusAccepted, cfg))
	avail, _ := l.Available(ctx, "cand-A")
	assert.Equal(t, 1, avail)
	assert.Equal(t, 1, adjuster.deltas["cand-A"])

	// unrelated transition touches nothing
	assert.NoError(t, listener.OnCaseTransition(ctx, "case-1", "cand-A", models.CaseStatusInProgress, cfg))
	avail, _ = l.Available(ctx, "cand-A")
	assert.Equal(t, 1, avail)

	assert.NoError(t, listener.OnCaseTransition(ctx, "case-1", "cand-A", models.CaseStatusSubmitted, cfg))
	avail, _ = l.Available(ctx, "cand-A")
	assert.Equal(t, 2, avail)
	assert.Equal(t, 0, adjuster.deltas["cand-A"])
}

func TestListenerIgnoresUnassignedCases(t *testing.T) {
	l := newTestLedger(t, 2)
	listener := NewListener(l, &fakeAdjuster{}, logger.NewNoOpLogger())

	cfg := &models.AllocationConfig{ConsumeTrigger: models.CaseStatusAccepted}
	assert.NoError(t, listener.OnCaseTransition(context.Background(), "case-1", "", models.CaseStatusAccepted, cfg))
}
