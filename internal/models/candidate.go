// internal/models/candidate.go
package models

import "time"

// CandidateType distinguishes how a candidate is contracted.
type CandidateType string

const (
	CandidateDirectGig CandidateType = "direct-gig"
	CandidateVendorGig CandidateType = "vendor-gig"
	CandidateVendor    CandidateType = "vendor"
)

// Candidate is a gig worker or vendor able to receive cases.
type Candidate struct {
	ID   string        `json:"id"`
	Type CandidateType `json:"type"`
	Name string        `json:"name"`

	CoveragePincodes []string `json:"coveragePincodes"`
	CoverageCities   []string `json:"coverageCities"`
	CoverageTiers    []string `json:"coverageTiers"`

	CapacityAvailable int `json:"capacityAvailable"`
	MaxDailyCapacity  int `json:"maxDailyCapacity"`

	// Performance metrics, each normalized to [0,1].
	QualityScore         float64 `json:"qualityScore"`
	CompletionRate       float64 `json:"completionRate"`
	OntimeCompletionRate float64 `json:"ontimeCompletionRate"`
	AcceptanceRate       float64 `json:"acceptanceRate"`

	IsActive    bool `json:"isActive"`
	IsAvailable bool `json:"isAvailable"`

	VendorID *string `json:"vendorId,omitempty"`

	ActiveCasesCount int `json:"activeCasesCount"`

	// PriorityBoost is an additive secondary signal (vendor-preferred
	// routing). Bounded by the scorer, never dominant.
	PriorityBoost float64 `json:"priorityBoost,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CoversPincode reports an exact pincode coverage match.
func (c *Candidate) CoversPincode(pincode string) bool {
	for _, p := range c.CoveragePincodes {
		if p == pincode {
			return true
		}
	}
	return false
}

// CoversCity reports a city-level coverage match.
func (c *Candidate) CoversCity(city string) bool {
	if city == "" {
		return false
	}
	for _, ct := range c.CoverageCities {
		if ct == city {
			return true
		}
	}
	return false
}

// CoversTier reports a tier-level coverage match.
func (c *Candidate) CoversTier(tier string) bool {
	if tier == "" {
		return false
	}
	for _, t := range c.CoverageTiers {
		if t == tier {
			return true
		}
	}
	return false
}
