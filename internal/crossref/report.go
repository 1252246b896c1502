package crossref

import (
	"github.com/sells-group/grant-verifier/internal/model"
)

// report is the JSON object the research prompt asks for. The validate tags
// describe a fully conforming answer; looser answers are still accepted as
// Extracted.
type report struct {
	ProgramFound       model.Match         `json:"program_found" validate:"required"`
	ProgramStillActive model.Match         `json:"program_still_active"`
	FreshData          map[string]any      `json:"fresh_data"`
	Comparisons        reportComparisons   `json:"comparisons"`
	Discrepancies      []reportDiscrepancy `json:"discrepancies" validate:"dive"`
	ConfidenceNotes    string              `json:"confidence_notes"`
}

type reportComparisons struct {
	AmountMatch      model.Match `json:"amount_match"`
	DeadlineMatch    model.Match `json:"deadline_match"`
	EligibilityMatch model.Match `json:"eligibility_match"`
}

type reportDiscrepancy struct {
	Field       string `json:"field" validate:"required"`
	StoredValue any    `json:"stored_value"`
	FreshValue  any    `json:"fresh_value"`
	Severity    string `json:"severity" validate:"omitempty,oneof=critical warning info"`
	Explanation string `json:"explanation"`
}

// empty reports whether r carries none of the fields the prompt asks for.
func (r report) empty() bool {
	c := r.Comparisons
	return r.ProgramFound == model.MatchNotChecked &&
		r.ProgramStillActive == model.MatchNotChecked &&
		c.AmountMatch == model.MatchNotChecked &&
		c.DeadlineMatch == model.MatchNotChecked &&
		c.EligibilityMatch == model.MatchNotChecked &&
		len(r.Discrepancies) == 0 &&
		len(r.FreshData) == 0 &&
		r.ConfidenceNotes == ""
}
