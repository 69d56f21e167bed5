// internal/store/candidate_store.go
package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// CandidateStore persists the candidate roster and their rolling metrics.
type CandidateStore struct {
	db *sql.DB
}

func NewCandidateStore(db *sql.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

const candidateColumns = `id, type, name, coverage_pincodes, coverage_cities, coverage_tiers,
	capacity_available, max_daily_capacity, quality_score, completion_rate,
	ontime_completion_rate, acceptance_rate, is_active, is_available, vendor_id,
	active_cases_count, priority_boost, created_at, updated_at`

func scanCandidate(row interface {
	Scan(dest ...interface{}) error
}) (*models.Candidate, error) {
	var c models.Candidate
	var vendorID sql.NullString

	err := row.Scan(
		&c.ID, &c.Type, &c.Name,
		pq.Array(&c.CoveragePincodes), pq.Array(&c.CoverageCities), pq.Array(&c.CoverageTiers),
		&c.CapacityAvailable, &c.MaxDailyCapacity,
		&c.QualityScore, &c.CompletionRate, &c.OntimeCompletionRate, &c.AcceptanceRate,
		&c.IsActive, &c.IsAvailable, &vendorID, &c.ActiveCasesCount, &c.PriorityBoost,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if vendorID.Valid {
		c.VendorID = &vendorID.String
	}
	return &c, nil
}

// GetByID fetches a single candidate.
func (s *CandidateStore) GetByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, candidateID)

	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewCandidateNotFoundError(candidateID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get candidate", err)
	}
	return c, nil
}

// ListActive returns all active, available candidates. Coverage and
// threshold filtering happens in the eligibility engine, not here.
func (s *CandidateStore) ListActive(ctx context.Context) ([]*models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE is_active = TRUE AND is_available = TRUE`)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list active candidates", err)
	}
	defer rows.Close()

	var candidates []*models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan candidate", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("list active candidates", err)
	}
	return candidates, nil
}

// AdjustActiveCases increments or decrements the active case counter, with
// a floor at zero.
func (s *CandidateStore) AdjustActiveCases(ctx context.Context, candidateID string, delta int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET active_cases_count = GREATEST(active_cases_count + $1, 0), updated_at = NOW()
		 WHERE id = $2`,
		delta, candidateID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("adjust active cases", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("adjust active cases", err)
	}
	if affected == 0 {
		return errors.NewCandidateNotFoundError(candidateID)
	}
	return nil
}
