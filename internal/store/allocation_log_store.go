// internal/store/allocation_log_store.go
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// AllocationLogStore is the append-only allocation audit trail. Entries are
// never updated or deleted.
type AllocationLogStore struct {
	db *sql.DB
}

func NewAllocationLogStore(db *sql.DB) *AllocationLogStore {
	return &AllocationLogStore{db: db}
}

// Append writes one log entry. Fills ID and CreatedAt when empty. A failure
// here is surfaced as LOG_WRITE_FAILED so the caller can reconcile any
// capacity mutation it made first.
func (s *AllocationLogStore) Append(ctx context.Context, entry *models.AllocationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO allocation_log
		 (id, case_id, candidate_id, wave, decision, score_quality, score_completion,
		  score_ontime, score_acceptance, score_priority_boost, score_final, actor, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.CaseID, entry.CandidateID, entry.Wave, entry.Decision,
		entry.Scores.Quality, entry.Scores.Completion, entry.Scores.Ontime,
		entry.Scores.Acceptance, entry.Scores.PriorityBoost, entry.Scores.Final,
		entry.Actor, entry.Note, entry.CreatedAt)
	if err != nil {
		return errors.NewLogWriteFailedError(entry.CaseID, err)
	}
	return nil
}

const logColumns = `id, case_id, candidate_id, wave, decision, score_quality, score_completion,
	score_ontime, score_acceptance, score_priority_boost, score_final, actor, note, created_at`

func scanLogEntry(row interface {
	Scan(dest ...interface{}) error
}) (*models.AllocationLogEntry, error) {
	var e models.AllocationLogEntry
	err := row.Scan(
		&e.ID, &e.CaseID, &e.CandidateID, &e.Wave, &e.Decision,
		&e.Scores.Quality, &e.Scores.Completion, &e.Scores.Ontime,
		&e.Scores.Acceptance, &e.Scores.PriorityBoost, &e.Scores.Final,
		&e.Actor, &e.Note, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByCase returns the full allocation history of a case in wave order.
func (s *AllocationLogStore) ListByCase(ctx context.Context, caseID string) ([]*models.AllocationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM allocation_log WHERE case_id = $1 ORDER BY created_at ASC`,
		caseID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list allocation log", err)
	}
	defer rows.Close()

	var entries []*models.AllocationLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan allocation log entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("list allocation log", err)
	}
	return entries, nil
}

// LatestWave returns the highest wave number recorded for a case, zero when
// the case has never been offered.
func (s *AllocationLogStore) LatestWave(ctx context.Context, caseID string) (int, error) {
	var wave sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(wave) FROM allocation_log WHERE case_id = $1`, caseID).Scan(&wave)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("latest wave", err)
	}
	return int(wave.Int64), nil
}
