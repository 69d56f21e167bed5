// internal/store/settings_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// SettingsStore persists allocation config versions. Rows are immutable;
// every update inserts a new version.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetLatest returns the newest config version, or sql.ErrNoRows wrapped as a
// query error when the table is empty (callers seed the first version then).
func (s *SettingsStore) GetLatest(ctx context.Context) (*models.AllocationConfig, error) {
	var version int
	var body []byte
	var updatedBy string
	var updatedAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT version, config, updated_by, updated_at FROM allocation_settings
		 ORDER BY version DESC LIMIT 1`).Scan(&version, &body, &updatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get latest settings", err)
	}

	var cfg models.AllocationConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, errors.NewConfigInvalidError("stored settings unreadable: " + err.Error())
	}
	cfg.Version = version
	cfg.UpdatedBy = updatedBy
	cfg.UpdatedAt = updatedAt
	return &cfg, nil
}

// Insert writes a new config version. The version must be the next one in
// sequence; the primary key on version rejects concurrent writers.
func (s *SettingsStore) Insert(ctx context.Context, cfg *models.AllocationConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(cfg)
	if err != nil {
		return errors.NewConfigInvalidError("settings not serializable: " + err.Error())
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO allocation_settings (version, config, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		cfg.Version, body, cfg.UpdatedBy, cfg.UpdatedAt)
	if err != nil {
		return errors.NewQueryExecutionFailedError("insert settings version", err)
	}
	return nil
}
