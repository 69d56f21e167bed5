// internal/workers/qc/record-review/models.go
package recordreview

type Input struct {
	SubmissionID string   `json:"submissionId"`
	ReviewerID   string   `json:"reviewerId"`
	Result       string   `json:"result"`
	QualityScore int      `json:"qualityScore"`
	ReasonCodes  []string `json:"reasonCodes"`
	Comments     string   `json:"comments"`
}

type Output struct {
	ReviewID     string `json:"reviewId"`
	CaseID       string `json:"caseId"`
	Result       string `json:"result"`
	QualityScore int    `json:"qualityScore"`
}
