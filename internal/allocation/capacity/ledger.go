// internal/allocation/capacity/ledger.go

// Package capacity tracks per-candidate daily case capacity. The ledger
// lives in Redis under day-scoped keys, so a new day implicitly starts every
// candidate at zero used capacity. Mutations go through atomic Redis
// operations, which serializes concurrent consumers per candidate.
package capacity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/metrics"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// CandidateSource provides the per-candidate capacity limit.
type CandidateSource interface {
	GetByID(ctx context.Context, candidateID string) (*models.Candidate, error)
}

// freeScript decrements the used counter with a floor at zero. Freeing
// capacity that was never consumed is a no-op, not an error.
var freeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v or tonumber(v) <= 0 then
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// Ledger is the daily capacity ledger.
type Ledger struct {
	client     *redis.Client
	candidates CandidateSource
	logger     logger.Logger
	now        func() time.Time
}

func NewLedger(client *redis.Client, candidates CandidateSource, log logger.Logger) *Ledger {
	return &Ledger{
		client:     client,
		candidates: candidates,
		logger:     log,
		now:        time.Now,
	}
}

func (l *Ledger) usedKey(candidateID string) string {
	return fmt.Sprintf("capacity:used:%s:%s", candidateID, l.now().UTC().Format("2006-01-02"))
}

// Available returns max minus used for today, never below zero.
func (l *Ledger) Available(ctx context.Context, candidateID string) (int, error) {
	cand, err := l.candidates.GetByID(ctx, candidateID)
	if err != nil {
		return 0, err
	}

	used, err := l.client.Get(ctx, l.usedKey(candidateID)).Int()
	if err != nil && err != redis.Nil {
		return 0, errors.NewExternalServiceError("redis", err)
	}

	available := cand.MaxDailyCapacity - used
	if available < 0 {
		available = 0
	}
	return available, nil
}

// Consume takes one unit of today's capacity. Returns CapacityExhausted when
// the candidate is already at their daily max. INCR is atomic, so two
// concurrent consumers racing for the last unit cannot both win: the loser's
// increment lands above max and is rolled back.
func (l *Ledger) Consume(ctx context.Context, candidateID string) error {
	cand, err := l.candidates.GetByID(ctx, candidateID)
	if err != nil {
		return err
	}

	key := l.usedKey(candidateID)
	used, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	if used == 1 {
		// day-scoped key, expire well after the day rolls over
		l.client.Expire(ctx, key, 48*time.Hour)
	}

	if used > int64(cand.MaxDailyCapacity) {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			l.logger.Error("capacity rollback failed", map[string]interface{}{
				"candidateId": candidateID,
				"error":       err,
			})
		}
		metrics.CapacityFailures.Inc()
		return errors.NewCapacityExhaustedError(candidateID)
	}

	return nil
}

// Free returns one unit of today's capacity. Floors at zero.
func (l *Ledger) Free(ctx context.Context, candidateID string) error {
	if err := freeScript.Run(ctx, l.client, []string{l.usedKey(candidateID)}).Err(); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

// ResetDaily marks the daily reset done for the given date. The ledger keys
// are date-scoped so there is nothing to clear; the day-stamp makes the reset
// idempotent across instances and restarts. Returns true when this call
// performed the reset, false when another instance already had.
func (l *Ledger) ResetDaily(ctx context.Context, date time.Time) (bool, error) {
	stamp := fmt.Sprintf("capacity:reset-done:%s", date.UTC().Format("2006-01-02"))
	performed, err := l.client.SetNX(ctx, stamp, l.now().UTC().Format(time.RFC3339), 48*time.Hour).Result()
	if err != nil {
		return false, errors.NewExternalServiceError("redis", err)
	}
	if performed {
		l.logger.Info("daily capacity reset", map[string]interface{}{
			"date": date.UTC().Format("2006-01-02"),
		})
	}
	return performed, nil
}
