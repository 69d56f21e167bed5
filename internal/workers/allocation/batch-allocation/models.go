// internal/workers/allocation/batch-allocation/models.go
package batchallocation

import "github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"

const (
	ModePreview = "preview"
	ModeCommit  = "commit"
)

type Input struct {
	CaseIDs []string `json:"caseIds"`
	Mode    string   `json:"mode"`
	Actor   string   `json:"actor"`
}

type Output struct {
	Mode     string                      `json:"mode"`
	Previews []*models.AllocationPreview `json:"previews,omitempty"`
	Results  []*models.CommitResult      `json:"results,omitempty"`
}
