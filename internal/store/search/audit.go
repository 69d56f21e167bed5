// internal/store/search/audit.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// AuditIndexer mirrors allocation log entries into Elasticsearch so
// operations can search the trail by case, candidate, or decision without
// hitting the primary database. Indexing is best-effort: the Postgres row is
// the source of truth, a failed mirror is logged and dropped.
type AuditIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewAuditIndexer(client *elasticsearch.Client, index string, log logger.Logger) *AuditIndexer {
	return &AuditIndexer{client: client, index: index, logger: log}
}

// IndexEntry mirrors one allocation log entry.
func (a *AuditIndexer) IndexEntry(ctx context.Context, entry *models.AllocationLogEntry) {
	body, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("audit entry not serializable", map[string]interface{}{
			"caseId": entry.CaseID,
			"error":  err,
		})
		return
	}

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(body),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		a.logger.Warn("audit index failed", map[string]interface{}{
			"caseId": entry.CaseID,
			"error":  err,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		a.logger.Warn("audit index rejected", map[string]interface{}{
			"caseId": entry.CaseID,
			"status": res.Status(),
		})
	}
}

// SearchByCase returns the indexed trail for one case, oldest first.
func (a *AuditIndexer) SearchByCase(ctx context.Context, caseID string, size int) ([]*models.AllocationLogEntry, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"caseId": caseID,
			},
		},
		"sort": []map[string]interface{}{
			{"createdAt": map[string]interface{}{"order": "asc"}},
		},
		"size": size,
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.index),
		a.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("audit search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("audit search error: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.AllocationLogEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode audit search response: %w", err)
	}

	entries := make([]*models.AllocationLogEntry, 0, len(parsed.Hits.Hits))
	for i := range parsed.Hits.Hits {
		e := parsed.Hits.Hits[i].Source
		entries = append(entries, &e)
	}
	return entries, nil
}
