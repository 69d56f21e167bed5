// internal/workers/allocation/record-decision/models.go
package recorddecision

type Input struct {
	CaseID      string `json:"caseId"`
	Wave        int    `json:"wave"`
	CandidateID string `json:"candidateId"`
	Accepted    bool   `json:"accepted"`
}

type Output struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}
