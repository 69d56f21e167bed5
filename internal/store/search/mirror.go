// internal/store/search/mirror.go
package search

import (
	"context"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// PrimaryLog is the durable append target (Postgres).
type PrimaryLog interface {
	Append(ctx context.Context, entry *models.AllocationLogEntry) error
	LatestWave(ctx context.Context, caseID string) (int, error)
}

// MirroredLog appends to the primary store first, then mirrors the entry into
// the audit index. The mirror never fails the append.
type MirroredLog struct {
	primary PrimaryLog
	indexer *AuditIndexer
}

func NewMirroredLog(primary PrimaryLog, indexer *AuditIndexer) *MirroredLog {
	return &MirroredLog{primary: primary, indexer: indexer}
}

func (m *MirroredLog) Append(ctx context.Context, entry *models.AllocationLogEntry) error {
	if err := m.primary.Append(ctx, entry); err != nil {
		return err
	}
	m.indexer.IndexEntry(ctx, entry)
	return nil
}

// LatestWave reads from the primary store; the index may lag.
func (m *MirroredLog) LatestWave(ctx context.Context, caseID string) (int, error) {
	return m.primary.LatestWave(ctx, caseID)
}
