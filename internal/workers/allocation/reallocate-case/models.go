// internal/workers/allocation/reallocate-case/models.go
package reallocatecase

type Input struct {
	CaseID string `json:"caseId"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`

	// When set, the operator forces this candidate instead of re-running
	// the scoring waves.
	TargetCandidateID string `json:"targetCandidateId,omitempty"`
}

type Output struct {
	Outcome       string `json:"outcome"`
	CandidateID   string `json:"candidateId,omitempty"`
	Wave          int    `json:"wave"`
	ConfigVersion int    `json:"configVersion"`
}
