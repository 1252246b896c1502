package model

import (
	"encoding/json"
	"time"
)

// ProbeResult is the outcome of fetching a grant's claimed official URL.
// PageText is kept for downstream use within a run and never persisted.
type ProbeResult struct {
	URLValid             bool   `json:"url_valid"`
	URLStatusCode        *int   `json:"url_status_code"`
	URLContainsGrantName bool   `json:"url_contains_grant_name"`
	URLDomain            string `json:"url_domain"`
	IsGovernmentDomain   bool   `json:"is_government_domain"`
	PageText             string `json:"-"`
}

// SourceType classifies the publisher of a source domain.
type SourceType string

const (
	SourceOfficialGovernment SourceType = "official_government"
	SourceGovernment         SourceType = "government"
	SourceInstitutional      SourceType = "institutional"
	SourceThirdParty         SourceType = "third_party"
	SourceUnknown            SourceType = "unknown"
)

// AuthorityTier is a coarse bucket of how authoritative a source is.
type AuthorityTier string

const (
	TierTop    AuthorityTier = "top_tier"
	TierHigh   AuthorityTier = "high"
	TierMedium AuthorityTier = "medium"
	TierLow    AuthorityTier = "low"
	TierNone   AuthorityTier = "none"
)

// TrustScore rates a source domain 0-100.
type TrustScore struct {
	Score         int           `json:"score"`
	SourceType    SourceType    `json:"source_type"`
	AuthorityTier AuthorityTier `json:"authority_tier"`
}

// Match is the result of comparing one stored field against fresh research.
// The zero value is MatchNotChecked.
type Match int

const (
	MatchNotChecked Match = iota
	MatchYes
	MatchNo
)

// MatchFromPtr maps a nullable boolean onto a Match.
func MatchFromPtr(b *bool) Match {
	switch {
	case b == nil:
		return MatchNotChecked
	case *b:
		return MatchYes
	default:
		return MatchNo
	}
}

func (m Match) String() string {
	switch m {
	case MatchYes:
		return "match"
	case MatchNo:
		return "mismatch"
	default:
		return "not_checked"
	}
}

// Ptr converts back to the nullable boolean form used in storage.
func (m Match) Ptr() *bool {
	switch m {
	case MatchYes:
		v := true
		return &v
	case MatchNo:
		v := false
		return &v
	default:
		return nil
	}
}

// MarshalJSON encodes Match as true, false or null.
func (m Match) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Ptr())
}

// UnmarshalJSON accepts true, false or null. Any other value decodes as
// MatchNotChecked so one off-type field cannot sink the enclosing object.
func (m *Match) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	b, ok := v.(bool)
	if !ok {
		*m = MatchNotChecked
		return nil
	}
	*m = MatchFromPtr(&b)
	return nil
}

// Severity ranks issues and discrepancies.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// NormalizeSeverity maps free-form severities onto the known set. Anything
// unrecognized becomes info.
func NormalizeSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return Severity(s)
	}
	return SeverityInfo
}

// Discrepancy is a single mismatch between a stored value and a freshly
// researched one.
type Discrepancy struct {
	Field       string   `json:"field"`
	StoredValue any      `json:"stored_value"`
	FreshValue  any      `json:"fresh_value"`
	Severity    Severity `json:"severity"`
	Explanation string   `json:"explanation"`
}

// CrossReferenceResult is the outcome of independent re-research of a grant.
type CrossReferenceResult struct {
	Ran                bool           `json:"crossref_ran"`
	Provider           string         `json:"provider,omitempty"`
	AmountMatch        Match          `json:"amount_match"`
	DeadlineMatch      Match          `json:"deadline_match"`
	EligibilityMatch   Match          `json:"eligibility_match"`
	ProgramFound       *bool          `json:"program_found"`
	ProgramStillActive *bool          `json:"program_still_active"`
	Discrepancies      []Discrepancy  `json:"discrepancies"`
	FreshData          map[string]any `json:"fresh_data"`
	ConfidenceNotes    string         `json:"confidence_notes,omitempty"`
}

// Issue is one finding reported by the aggregator.
type Issue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Outcome is the aggregated decision for one verification run.
type Outcome struct {
	Confidence   int                `json:"confidence"`
	Status       VerificationStatus `json:"status"`
	ChecksPassed int                `json:"checks_passed"`
	ChecksTotal  int                `json:"checks_total"`
	Issues       []Issue            `json:"issues"`
}

// HasSeverity reports whether any issue has the given severity.
func (o Outcome) HasSeverity(s Severity) bool {
	for _, is := range o.Issues {
		if is.Severity == s {
			return true
		}
	}
	return false
}

// VerificationLog is the immutable row written once per verification run.
type VerificationLog struct {
	ID                   string             `json:"id"`
	GrantID              string             `json:"grant_id"`
	Confidence           int                `json:"confidence"`
	Status               VerificationStatus `json:"status"`
	URLValid             bool               `json:"url_valid"`
	URLStatusCode        *int               `json:"url_status_code"`
	URLContainsGrantName bool               `json:"url_contains_grant_name"`
	URLDomain            string             `json:"url_domain"`
	IsGovernmentDomain   bool               `json:"is_government_domain"`
	CrossrefRan          bool               `json:"crossref_ran"`
	AmountMatch          Match              `json:"amount_match"`
	DeadlineMatch        Match              `json:"deadline_match"`
	EligibilityMatch     Match              `json:"eligibility_match"`
	Discrepancies        []Discrepancy      `json:"discrepancies"`
	FreshData            map[string]any     `json:"fresh_data"`
	TrustScore           int                `json:"trust_score"`
	SourceType           SourceType         `json:"source_type"`
	AuthorityTier        AuthorityTier      `json:"authority_tier"`
	ChecksPassed         int                `json:"checks_passed"`
	ChecksTotal          int                `json:"checks_total"`
	Issues               []Issue            `json:"issues"`
	DurationMS           int64              `json:"duration_ms"`
	CreatedAt            time.Time          `json:"created_at"`
}
