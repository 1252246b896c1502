package model

import "time"

// VerificationStatus is the tri-state verification outcome plus the initial
// "unverified" state every grant starts in.
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
	StatusWarning    VerificationStatus = "warning"
	StatusFailed     VerificationStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusUnverified, StatusVerified, StatusWarning, StatusFailed:
		return true
	}
	return false
}

// Grant is a stored funding opportunity. The verification fields are
// denormalized from the latest verification log row.
type Grant struct {
	ID                     string               `json:"id"`
	Name                   string               `json:"name"`
	OfficialURL            string               `json:"official_url,omitempty"`
	FundingSource          string               `json:"funding_source,omitempty"`
	MinAmount              *float64             `json:"min_amount,omitempty"`
	MaxAmount              *float64             `json:"max_amount,omitempty"`
	Deadline               *time.Time           `json:"deadline,omitempty"`
	EligibilitySummary     string               `json:"eligibility_summary,omitempty"`
	VerificationStatus     VerificationStatus   `json:"verification_status"`
	VerificationConfidence int                  `json:"verification_confidence"`
	LastVerifiedAt         *time.Time           `json:"last_verified_at,omitempty"`
	VerificationDetails    *VerificationDetails `json:"verification_details,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// HasVerification reports whether the confidence value carries meaning.
func (g *Grant) HasVerification() bool {
	return g.VerificationStatus != "" && g.VerificationStatus != StatusUnverified
}

// DeadlineString formats the deadline as YYYY-MM-DD, or "" when unset.
func (g *Grant) DeadlineString() string {
	if g.Deadline == nil {
		return ""
	}
	return g.Deadline.Format("2006-01-02")
}

// VerificationDetails is the compact summary written onto the grant after
// each verification run.
type VerificationDetails struct {
	ChecksPassed     int            `json:"checks_passed"`
	ChecksTotal      int            `json:"checks_total"`
	Issues           []Issue        `json:"issues"`
	SourceType       SourceType     `json:"source_type"`
	CrossrefRan      bool           `json:"crossref_ran"`
	DiscrepancyCount int            `json:"discrepancy_count"`
	FreshData        map[string]any `json:"fresh_data,omitempty"`
	DurationMS       int64          `json:"duration_ms"`
}

// GrantVerificationUpdate is the overwrite applied to a grant's denormalized
// verification fields.
type GrantVerificationUpdate struct {
	Status     VerificationStatus
	Confidence int
	VerifiedAt time.Time
	Details    VerificationDetails
}
