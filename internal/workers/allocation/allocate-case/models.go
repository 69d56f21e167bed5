// internal/workers/allocation/allocate-case/models.go
package allocatecase

type Input struct {
	CaseID string `json:"caseId"`
}

type Output struct {
	Outcome       string `json:"outcome"`
	CandidateID   string `json:"candidateId,omitempty"`
	Wave          int    `json:"wave"`
	ConfigVersion int    `json:"configVersion"`
}
