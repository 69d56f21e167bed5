// internal/allocation/settings/manager.go

// Package settings manages versioned allocation configuration. Reads are
// lock-free snapshots; updates validate, persist a new immutable version,
// then swap the snapshot. A wave that started under version N finishes under
// version N regardless of updates landing meanwhile.
package settings

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/config"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

const cacheKey = "allocation:settings:latest"
const cacheTTL = 5 * time.Minute

// Store is the persistence surface the manager needs.
type Store interface {
	GetLatest(ctx context.Context) (*models.AllocationConfig, error)
	Insert(ctx context.Context, cfg *models.AllocationConfig) error
}

// Manager holds the current allocation config in memory and keeps the
// version history in the store. The redis cache lets sibling instances pick
// up a new version without polling Postgres.
type Manager struct {
	store   Store
	cache   *redis.Client
	logger  logger.Logger
	current atomic.Value // *models.AllocationConfig
}

func NewManager(store Store, cache *redis.Client, log logger.Logger) *Manager {
	return &Manager{store: store, cache: cache, logger: log}
}

// FromSeed builds the first config version from the service configuration.
// Used only when the settings table is empty.
func FromSeed(seed config.AllocationSeed) *models.AllocationConfig {
	return &models.AllocationConfig{
		Version: 1,
		Weights: models.ScoringWeights{
			QualityScore:   seed.Weights.QualityScore,
			CompletionRate: seed.Weights.CompletionRate,
			OntimeRate:     seed.Weights.OntimeRate,
			AcceptanceRate: seed.Weights.AcceptanceRate,
		},
		AcceptanceWindow: time.Duration(seed.AcceptanceWindowMinutes) * time.Minute,
		NudgeOffset:      time.Duration(seed.NudgeOffsetMinutes) * time.Minute,
		MaxWaves:         seed.MaxWaves,
		ConsumeTrigger:   models.CaseStatus(seed.ConsumeTriggerStatus),
		FreeTrigger:      models.CaseStatus(seed.FreeTriggerStatus),
		DailyResetTime:   seed.DailyResetTime,
		Thresholds: models.EligibilityThresholds{
			MinQualityScore:   seed.Thresholds.MinQualityScore,
			MinCompletionRate: seed.Thresholds.MinCompletionRate,
			MinAcceptanceRate: seed.Thresholds.MinAcceptanceRate,
		},
		UpdatedBy: "seed",
		UpdatedAt: time.Now().UTC(),
	}
}

// Load primes the snapshot from the store, seeding the first version when
// the table is empty.
func (m *Manager) Load(ctx context.Context, seed config.AllocationSeed) error {
	cfg, err := m.store.GetLatest(ctx)
	if err != nil {
		return err
	}

	if cfg == nil {
		cfg = FromSeed(seed)
		if err := cfg.Validate(); err != nil {
			return errors.NewConfigInvalidError(err.Error())
		}
		if err := m.store.Insert(ctx, cfg); err != nil {
			return err
		}
		m.logger.Info("seeded allocation settings", map[string]interface{}{
			"version": cfg.Version,
		})
	}

	m.current.Store(cfg)
	m.writeCache(ctx, cfg)
	return nil
}

// Get returns the current config snapshot. Callers must treat it as
// read-only; a wave captures the pointer once and uses it throughout.
func (m *Manager) Get() *models.AllocationConfig {
	cfg, _ := m.current.Load().(*models.AllocationConfig)
	return cfg
}

// Update validates and applies a new config version. On validation failure
// nothing changes, partially or otherwise, and the previous version stays
// live.
func (m *Manager) Update(ctx context.Context, next models.AllocationConfig, updatedBy string) (*models.AllocationConfig, error) {
	if err := next.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(err.Error())
	}

	prev := m.Get()
	next.Version = 1
	if prev != nil {
		next.Version = prev.Version + 1
	}
	next.UpdatedBy = updatedBy
	next.UpdatedAt = time.Now().UTC()

	if err := m.store.Insert(ctx, &next); err != nil {
		return nil, err
	}

	applied := next
	m.current.Store(&applied)
	m.writeCache(ctx, &applied)

	m.logger.Info("allocation settings updated", map[string]interface{}{
		"version":   applied.Version,
		"updatedBy": updatedBy,
	})
	return &applied, nil
}

// Refresh re-reads the store and swaps the snapshot if a newer version
// exists. Called periodically so instances converge on updates made by
// siblings.
func (m *Manager) Refresh(ctx context.Context) error {
	if cached := m.readCache(ctx); cached != nil {
		if cur := m.Get(); cur == nil || cached.Version > cur.Version {
			m.current.Store(cached)
		}
		return nil
	}

	cfg, err := m.store.GetLatest(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}
	if cur := m.Get(); cur == nil || cfg.Version > cur.Version {
		m.current.Store(cfg)
		m.writeCache(ctx, cfg)
	}
	return nil
}

func (m *Manager) writeCache(ctx context.Context, cfg *models.AllocationConfig) {
	if m.cache == nil {
		return
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, cacheKey, body, cacheTTL).Err(); err != nil {
		m.logger.Debug("settings cache write failed", map[string]interface{}{"error": err})
	}
}

func (m *Manager) readCache(ctx context.Context) *models.AllocationConfig {
	if m.cache == nil {
		return nil
	}
	body, err := m.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return nil
	}
	var cfg models.AllocationConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil
	}
	return &cfg
}
