// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"os"
	"time"
)

func Load(path string) (*TaskRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TaskRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

func (r *TaskRegistry) Save(path string) error {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Builtin returns the registry for the task types compiled into this binary.
func Builtin() *TaskRegistry {
	return &TaskRegistry{
		Version: "1.0",
		Tasks: []Task{
			{
				ID:          "allocate-case",
				DisplayName: "Allocate Case",
				Description: "Runs the scoring waves for a new or unallocated case until a candidate accepts or waves are exhausted",
				Category:    "allocation",
				TaskType:    "allocate-case",
				InputSchema: map[string]interface{}{
					"caseId": "string",
				},
				OutputSchema: map[string]interface{}{
					"outcome":       "string",
					"candidateId":   "string",
					"wave":          "integer",
					"configVersion": "integer",
				},
				ErrorCodes: []string{"CASE_NOT_FOUND", "INVALID_STATUS_TRANSITION", "CONFIG_INVALID"},
				Timeout:    "2h",
				Retries:    3,
			},
			{
				ID:          "record-allocation-decision",
				DisplayName: "Record Allocation Decision",
				Description: "Applies a candidate's accept or reject to the live wave; late decisions are reported as stale",
				Category:    "allocation",
				TaskType:    "record-allocation-decision",
				InputSchema: map[string]interface{}{
					"caseId":      "string",
					"wave":        "integer",
					"candidateId": "string",
					"accepted":    "boolean",
				},
				OutputSchema: map[string]interface{}{
					"applied": "boolean",
					"reason":  "string",
				},
				ErrorCodes: []string{"STALE_DECISION"},
				Timeout:    "10s",
				Retries:    3,
			},
			{
				ID:          "reallocate-case",
				DisplayName: "Reallocate Case",
				Description: "Pulls a case back from its assignee and re-runs allocation, or forces a named candidate",
				Category:    "allocation",
				TaskType:    "reallocate-case",
				InputSchema: map[string]interface{}{
					"caseId":            "string",
					"reason":            "string",
					"actor":             "string",
					"targetCandidateId": "string",
				},
				OutputSchema: map[string]interface{}{
					"outcome":     "string",
					"candidateId": "string",
				},
				ErrorCodes: []string{"CASE_NOT_FOUND", "INVALID_STATUS_TRANSITION", "CAPACITY_EXHAUSTED"},
				Timeout:    "2h",
				Retries:    3,
			},
			{
				ID:          "batch-allocate-cases",
				DisplayName: "Batch Allocate Cases",
				Description: "Previews winners for a set of cases without side effects, or commits a confirmed preview",
				Category:    "allocation",
				TaskType:    "batch-allocate-cases",
				InputSchema: map[string]interface{}{
					"caseIds": "array",
					"mode":    "string",
					"actor":   "string",
				},
				OutputSchema: map[string]interface{}{
					"mode":     "string",
					"previews": "array",
					"results":  "array",
				},
				ErrorCodes: []string{"PREVIEW_STALE", "CAPACITY_EXHAUSTED"},
				Timeout:    "5m",
				Retries:    3,
			},
			{
				ID:          "submit-for-review",
				DisplayName: "Submit For Review",
				Description: "Records a field submission and moves the case into the QC queue",
				Category:    "qc",
				TaskType:    "submit-for-review",
				InputSchema: map[string]interface{}{
					"caseId":       "string",
					"submittedBy":  "string",
					"evidenceRefs": "array",
					"answers":      "object",
				},
				OutputSchema: map[string]interface{}{
					"submissionId": "string",
					"status":       "string",
				},
				ErrorCodes: []string{"CASE_NOT_FOUND", "INVALID_STATUS_TRANSITION", "REVIEW_VALIDATION_FAILED"},
				Timeout:    "30s",
				Retries:    3,
			},
			{
				ID:          "record-qc-review",
				DisplayName: "Record QC Review",
				Description: "Claims a submission for a reviewer and records the verdict with case cascade",
				Category:    "qc",
				TaskType:    "record-qc-review",
				InputSchema: map[string]interface{}{
					"submissionId": "string",
					"reviewerId":   "string",
					"result":       "string",
					"qualityScore": "integer",
					"reasonCodes":  "array",
					"comments":     "string",
				},
				OutputSchema: map[string]interface{}{
					"reviewId":     "string",
					"caseId":       "string",
					"result":       "string",
					"qualityScore": "integer",
				},
				ErrorCodes: []string{"SUBMISSION_NOT_FOUND", "CONCURRENT_REVIEW_CLAIM", "REVIEW_VALIDATION_FAILED"},
				Timeout:    "30s",
				Retries:    3,
			},
		},
	}
}
