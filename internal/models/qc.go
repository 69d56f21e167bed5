// internal/models/qc.go
package models

import (
	"encoding/json"
	"time"
)

// QCStatus is the review lifecycle state of a submission.
type QCStatus string

const (
	QCStatusPending    QCStatus = "pending"
	QCStatusInReview   QCStatus = "in_review"
	QCStatusPassed     QCStatus = "passed"
	QCStatusRejected   QCStatus = "rejected"
	QCStatusRework     QCStatus = "rework"
	QCStatusSuperseded QCStatus = "superseded"
)

// QCResult is a reviewer's verdict.
type QCResult string

const (
	QCResultPass   QCResult = "pass"
	QCResultReject QCResult = "reject"
	QCResultRework QCResult = "rework"
)

// RequiresReasonCodes reports whether the verdict must carry reason codes.
func (r QCResult) RequiresReasonCodes() bool {
	return r == QCResultReject || r == QCResultRework
}

// CaseStatusFor maps the verdict to the resulting case status.
func (r QCResult) CaseStatusFor() CaseStatus {
	switch r {
	case QCResultPass:
		return CaseStatusQCPassed
	case QCResultReject:
		return CaseStatusQCRejected
	case QCResultRework:
		return CaseStatusQCRework
	}
	return ""
}

// QCSubmission is a worker's evidence package awaiting review. A rework
// cycle produces a fresh submission; the old one is marked superseded.
type QCSubmission struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	SubmittedBy string    `json:"submittedBy"`
	SubmittedAt time.Time `json:"submittedAt"`

	EvidenceRefs []string        `json:"evidenceRefs"`
	Answers      json.RawMessage `json:"answers"`

	Status QCStatus `json:"status"`

	// ReviewerID holds the claim: set when a reviewer takes the submission,
	// cleared never (the claim survives until a verdict lands).
	ReviewerID string `json:"reviewerId,omitempty"`

	SupersededBy string `json:"supersededBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QCReview is the recorded verdict on a submission.
type QCReview struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submissionId"`
	CaseID       string    `json:"caseId"`
	ReviewerID   string    `json:"reviewerId"`
	Result       QCResult  `json:"result"`
	QualityScore int       `json:"qualityScore"` // 0-100
	ReasonCodes  []string  `json:"reasonCodes,omitempty"`
	Comments     string    `json:"comments,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
