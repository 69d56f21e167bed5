// internal/store/case_store.go
package store

import (
	"context"
	"database/sql"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// CaseStore persists verification cases.
type CaseStore struct {
	db *sql.DB
}

func NewCaseStore(db *sql.DB) *CaseStore {
	return &CaseStore{db: db}
}

const caseColumns = `id, client_ref, contract_type, status, assignee_id, assignee_type,
	pincode, city, tier, location_match_type, due_by, payout_base, payout_bonus,
	payout_penalty, payout_total, form_payload, created_at, updated_at`

func scanCase(row interface {
	Scan(dest ...interface{}) error
}) (*models.Case, error) {
	var c models.Case
	var assigneeID, assigneeType, locationMatch sql.NullString
	var formPayload []byte

	err := row.Scan(
		&c.ID, &c.ClientRef, &c.ContractType, &c.Status, &assigneeID, &assigneeType,
		&c.Pincode, &c.City, &c.Tier, &locationMatch, &c.DueBy,
		&c.Payout.Base, &c.Payout.Bonus, &c.Payout.Penalty, &c.Payout.Total,
		&formPayload, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.AssigneeID = assigneeID.String
	c.AssigneeType = models.CandidateType(assigneeType.String)
	c.LocationMatchType = models.LocationMatchType(locationMatch.String)
	c.FormPayload = formPayload
	return &c, nil
}

// GetByID fetches a single case.
func (s *CaseStore) GetByID(ctx context.Context, caseID string) (*models.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, caseID)

	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewCaseNotFoundError(caseID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get case", err)
	}
	return c, nil
}

// ListByStatus returns cases in the given status, oldest first.
func (s *CaseStore) ListByStatus(ctx context.Context, status models.CaseStatus, limit int) ([]*models.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		status, limit)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list cases by status", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan case", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("list cases by status", err)
	}
	return cases, nil
}

// UpdateStatus moves a case between statuses with a compare-and-set on the
// expected current status. Returns InvalidTransition when the row was in a
// different state, which keeps concurrent writers from clobbering each other.
func (s *CaseStore) UpdateStatus(ctx context.Context, caseID string, from, to models.CaseStatus) error {
	if !from.CanTransitionTo(to) {
		return errors.NewInvalidTransitionError(caseID, string(from), string(to))
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, caseID, from)
	if err != nil {
		return errors.NewQueryExecutionFailedError("update case status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("update case status", err)
	}
	if affected == 0 {
		return errors.NewInvalidTransitionError(caseID, string(from), string(to))
	}
	return nil
}

// SetAssignee records the winning candidate on the case.
func (s *CaseStore) SetAssignee(ctx context.Context, caseID, candidateID string, candidateType models.CandidateType, match models.LocationMatchType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET assignee_id = $1, assignee_type = $2, location_match_type = $3, updated_at = NOW()
		 WHERE id = $4`,
		candidateID, candidateType, match, caseID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("set assignee", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("set assignee", err)
	}
	if affected == 0 {
		return errors.NewCaseNotFoundError(caseID)
	}
	return nil
}

// ClearAssignee removes the assignee, used when a wave times out or the case
// is pulled back for reallocation.
func (s *CaseStore) ClearAssignee(ctx context.Context, caseID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cases SET assignee_id = NULL, assignee_type = NULL, location_match_type = NULL, updated_at = NOW()
		 WHERE id = $1`, caseID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("clear assignee", err)
	}
	return nil
}
