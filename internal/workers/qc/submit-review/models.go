// internal/workers/qc/submit-review/models.go
package submitreview

import "encoding/json"

type Input struct {
	CaseID       string          `json:"caseId"`
	SubmittedBy  string          `json:"submittedBy"`
	EvidenceRefs []string        `json:"evidenceRefs"`
	Answers      json.RawMessage `json:"answers"`
}

type Output struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
}
