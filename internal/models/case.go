// internal/models/case.go
package models

import (
	"encoding/json"
	"time"
)

// CaseStatus is the lifecycle state of a verification case.
type CaseStatus string

const (
	CaseStatusNew               CaseStatus = "new"
	CaseStatusPendingAllocation CaseStatus = "pending_allocation"
	CaseStatusAllocated         CaseStatus = "allocated"
	CaseStatusAccepted          CaseStatus = "accepted"
	CaseStatusInProgress        CaseStatus = "in_progress"
	CaseStatusSubmitted         CaseStatus = "submitted"
	CaseStatusQCPassed          CaseStatus = "qc_passed"
	CaseStatusQCRejected        CaseStatus = "qc_rejected"
	CaseStatusQCRework          CaseStatus = "qc_rework"
	CaseStatusCompleted         CaseStatus = "completed"
	CaseStatusInPaymentCycle    CaseStatus = "in_payment_cycle"
	CaseStatusPaymentComplete   CaseStatus = "payment_complete"
	CaseStatusRejected          CaseStatus = "rejected"
	CaseStatusCancelled         CaseStatus = "cancelled"
)

// caseTransitions defines the allowed forward edges of the status graph.
// qc_rework is the only backward edge (back to in_progress). rejected and
// cancelled are reachable from every pre-completion state and handled below.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusNew:               {CaseStatusPendingAllocation, CaseStatusAllocated},
	CaseStatusPendingAllocation: {CaseStatusAllocated, CaseStatusAccepted},
	CaseStatusAllocated:         {CaseStatusAccepted, CaseStatusPendingAllocation, CaseStatusAllocated},
	CaseStatusAccepted:          {CaseStatusInProgress, CaseStatusPendingAllocation, CaseStatusAllocated},
	CaseStatusInProgress:        {CaseStatusSubmitted, CaseStatusPendingAllocation, CaseStatusAllocated},
	CaseStatusSubmitted:         {CaseStatusQCPassed, CaseStatusQCRejected, CaseStatusQCRework},
	CaseStatusQCPassed:          {CaseStatusCompleted},
	CaseStatusQCRework:          {CaseStatusInProgress},
	CaseStatusCompleted:         {CaseStatusInPaymentCycle},
	CaseStatusInPaymentCycle:    {CaseStatusPaymentComplete},
}

// terminalStatuses cannot be left once entered.
var terminalStatuses = map[CaseStatus]bool{
	CaseStatusPaymentComplete: true,
	CaseStatusRejected:        true,
	CaseStatusCancelled:       true,
}

// CanTransitionTo reports whether moving from s to target is a legal edge.
func (s CaseStatus) CanTransitionTo(target CaseStatus) bool {
	if terminalStatuses[s] {
		return false
	}
	// rejected/cancelled are reachable from any pre-completion state
	if target == CaseStatusRejected || target == CaseStatusCancelled {
		return s != CaseStatusCompleted && s != CaseStatusInPaymentCycle
	}
	for _, next := range caseTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the case lifecycle.
func (s CaseStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// statusOrder ranks the forward path of the lifecycle. The three QC verdicts
// share a rank: all of them sit past submission. rejected and cancelled are
// unordered side exits and carry no rank.
var statusOrder = map[CaseStatus]int{
	CaseStatusNew:               0,
	CaseStatusPendingAllocation: 1,
	CaseStatusAllocated:         2,
	CaseStatusAccepted:          3,
	CaseStatusInProgress:        4,
	CaseStatusSubmitted:         5,
	CaseStatusQCPassed:          6,
	CaseStatusQCRejected:        6,
	CaseStatusQCRework:          6,
	CaseStatusCompleted:         7,
	CaseStatusInPaymentCycle:    8,
	CaseStatusPaymentComplete:   9,
}

// AtOrAfter reports whether the status sits at or past the given milestone
// on the forward lifecycle path. Used to decide whether a trigger-bound side
// effect (capacity consume, active-case counters) has already happened.
func (s CaseStatus) AtOrAfter(milestone CaseStatus) bool {
	rank, ok := statusOrder[s]
	if !ok {
		return false
	}
	milestoneRank, ok := statusOrder[milestone]
	if !ok {
		return false
	}
	return rank >= milestoneRank
}

// LocationMatchType records how a candidate's coverage matched the case.
type LocationMatchType string

const (
	LocationMatchPincode LocationMatchType = "pincode"
	LocationMatchCity    LocationMatchType = "city"
	LocationMatchTier    LocationMatchType = "tier"
)

// Payout is the case payout breakdown.
type Payout struct {
	Base    float64 `json:"base"`
	Bonus   float64 `json:"bonus"`
	Penalty float64 `json:"penalty"`
	Total   float64 `json:"total"`
}

// Case is a unit of field verification work.
type Case struct {
	ID           string     `json:"id"`
	ClientRef    string     `json:"clientRef"`
	ContractType string     `json:"contractType"`
	Status       CaseStatus `json:"status"`

	AssigneeID   string        `json:"assigneeId,omitempty"`
	AssigneeType CandidateType `json:"assigneeType,omitempty"`

	Pincode string `json:"pincode"`
	City    string `json:"city"`
	Tier    string `json:"tier"` // derived from pincode: tier1/tier2/tier3

	LocationMatchType LocationMatchType `json:"locationMatchType,omitempty"`

	DueBy  time.Time `json:"dueBy"`
	Payout Payout    `json:"payout"`

	// FormPayload carries the intake form answers and bonus/penalty rules.
	// Opaque to this service; stored and forwarded as-is.
	FormPayload json.RawMessage `json:"formPayload,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasActiveAssignee reports whether the case currently holds an assignee.
func (c *Case) HasActiveAssignee() bool {
	return c.AssigneeID != ""
}
