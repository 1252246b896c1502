package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grant-verifier/internal/model"
)

func intPtr(v int) *int { return &v }

func reachable(mentions bool) model.ProbeResult {
	return model.ProbeResult{
		URLValid:             true,
		URLStatusCode:        intPtr(200),
		URLContainsGrantName: mentions,
		URLDomain:            "www.boe.es",
		IsGovernmentDomain:   true,
	}
}

var topTier = model.TrustScore{Score: 95, SourceType: model.SourceOfficialGovernment, AuthorityTier: model.TierTop}

func issueTypes(o model.Outcome) []string {
	out := make([]string, 0, len(o.Issues))
	for _, is := range o.Issues {
		out = append(out, is.Type)
	}
	return out
}

func TestAggregate_VerifiedScenario(t *testing.T) {
	xref := model.CrossReferenceResult{
		Ran:              true,
		AmountMatch:      model.MatchYes,
		DeadlineMatch:    model.MatchYes,
		EligibilityMatch: model.MatchNotChecked,
	}

	o := Aggregate(reachable(true), topTier, xref)

	// 15 + 15 + round(95*0.25)=24 + 20 + 15
	assert.Equal(t, 89, o.Confidence)
	assert.Equal(t, 5, o.ChecksTotal)
	assert.Equal(t, 5, o.ChecksPassed)
	assert.Equal(t, model.StatusVerified, o.Status)
	assert.Empty(t, o.Issues)
}

func TestAggregate_ProgramNotFound(t *testing.T) {
	xref := model.CrossReferenceResult{
		Ran:           true,
		AmountMatch:   model.MatchYes,
		DeadlineMatch: model.MatchYes,
		Discrepancies: []model.Discrepancy{{
			Field:       "program_existence",
			Severity:    model.SeverityCritical,
			Explanation: "Program could not be found in official sources",
		}},
	}

	o := Aggregate(reachable(true), topTier, xref)

	// Cross-reference subtotal 35 less the flat 20 penalty.
	assert.Equal(t, 15+15+24+15, o.Confidence)
	assert.Equal(t, model.StatusFailed, o.Status)
	require.Len(t, o.Issues, 1)
	assert.Equal(t, model.Issue{
		Type:     IssueCriticalDiscrepancy,
		Severity: model.SeverityCritical,
		Message:  "Program could not be found in official sources",
	}, o.Issues[0])
}

func TestAggregate_PenaltyFloorsAtZero(t *testing.T) {
	xref := model.CrossReferenceResult{
		Ran:              true,
		AmountMatch:      model.MatchNo,
		DeadlineMatch:    model.MatchNotChecked,
		EligibilityMatch: model.MatchYes,
		Discrepancies: []model.Discrepancy{
			{Field: "program_status", Severity: model.SeverityCritical, Explanation: "closed"},
			{Field: "program_existence", Severity: model.SeverityCritical},
			{Field: "notes", Severity: model.SeverityInfo, Explanation: "minor wording"},
		},
	}

	o := Aggregate(reachable(true), topTier, xref)

	// Eligibility 10 - 20 floors at 0, penalty applied once.
	assert.Equal(t, 15+15+24, o.Confidence)
	assert.Equal(t, model.StatusFailed, o.Status)
	assert.Equal(t, []string{IssueAmountMismatch, IssueCriticalDiscrepancy, IssueCriticalDiscrepancy}, issueTypes(o))
	assert.Equal(t, "Critical discrepancy in program_existence", o.Issues[2].Message)
	assert.Equal(t, 5, o.ChecksTotal)
	assert.Equal(t, 4, o.ChecksPassed)
}

func TestAggregate_MissingURL(t *testing.T) {
	o := Aggregate(model.ProbeResult{}, model.TrustScore{Score: 0, SourceType: model.SourceUnknown, AuthorityTier: model.TierNone}, model.CrossReferenceResult{})

	assert.Equal(t, 0, o.Confidence)
	var urlIssues []model.Issue
	for _, is := range o.Issues {
		if is.Type == IssueURLUnreachable || is.Type == IssueURLContentMismatch {
			urlIssues = append(urlIssues, is)
		}
	}
	require.Len(t, urlIssues, 1)
	assert.Equal(t, model.SeverityWarning, urlIssues[0].Severity)
	assert.Equal(t, "Official URL is not reachable (status: no response)", urlIssues[0].Message)
	assert.Equal(t, model.StatusWarning, o.Status, "warnings keep a zero score at warning")
	assert.Equal(t, 3, o.ChecksTotal)
	assert.Equal(t, 0, o.ChecksPassed)
}

func TestAggregate_UnreachableNamesStatus(t *testing.T) {
	probe := model.ProbeResult{URLStatusCode: intPtr(404), URLDomain: "example.com"}
	o := Aggregate(probe, model.TrustScore{}, model.CrossReferenceResult{})

	require.NotEmpty(t, o.Issues)
	assert.Equal(t, "Official URL is not reachable (status: 404)", o.Issues[0].Message)
	assert.NotContains(t, issueTypes(o), IssueURLContentMismatch, "content mismatch only reported for reachable pages")
}

func TestAggregate_ContentMismatchIsInfo(t *testing.T) {
	xref := model.CrossReferenceResult{Ran: true, AmountMatch: model.MatchYes}
	o := Aggregate(reachable(false), topTier, xref)

	assert.Equal(t, 15+24+20, o.Confidence)
	require.Len(t, o.Issues, 1)
	assert.Equal(t, IssueURLContentMismatch, o.Issues[0].Type)
	assert.Equal(t, model.SeverityInfo, o.Issues[0].Severity)
	assert.Equal(t, model.StatusWarning, o.Status)
}

func TestAggregate_CrossrefNotRunExcludesChecks(t *testing.T) {
	// Match values are ignored when the cross-reference did not run.
	xref := model.CrossReferenceResult{
		Ran:              false,
		AmountMatch:      model.MatchYes,
		DeadlineMatch:    model.MatchNo,
		EligibilityMatch: model.MatchYes,
		Discrepancies:    []model.Discrepancy{{Severity: model.SeverityCritical}},
	}

	o := Aggregate(reachable(true), topTier, xref)

	assert.Equal(t, 3, o.ChecksTotal)
	assert.Equal(t, 54, o.Confidence)
	assert.Empty(t, o.Issues)
	assert.Equal(t, model.StatusWarning, o.Status)
}

func TestAggregate_MismatchSeverities(t *testing.T) {
	xref := model.CrossReferenceResult{
		Ran:              true,
		AmountMatch:      model.MatchYes,
		DeadlineMatch:    model.MatchNo,
		EligibilityMatch: model.MatchNo,
	}

	o := Aggregate(reachable(true), topTier, xref)

	assert.Equal(t, 15+15+24+20, o.Confidence)
	assert.Equal(t, []string{IssueDeadlineMismatch, IssueEligibilityMismatch}, issueTypes(o))
	assert.Equal(t, model.SeverityWarning, o.Issues[0].Severity)
	assert.Equal(t, model.StatusWarning, o.Status, "warnings block verified even at 74")
}

func TestAggregate_LowSourceQuality(t *testing.T) {
	third := model.TrustScore{Score: 25, SourceType: model.SourceUnknown, AuthorityTier: model.TierLow}
	o := Aggregate(reachable(true), third, model.CrossReferenceResult{})

	assert.Equal(t, 15+15+6, o.Confidence)
	assert.Equal(t, []string{IssueLowSourceQuality}, issueTypes(o))
	assert.Equal(t, model.StatusWarning, o.Status)
	assert.Equal(t, 2, o.ChecksPassed)
}

func TestAggregate_FailedWithoutWarnings(t *testing.T) {
	// Reachable, mentions missing, professional-TLD source: 15 + 11 = 26 with
	// only an info issue.
	pro := model.TrustScore{Score: 45, SourceType: model.SourceThirdParty, AuthorityTier: model.TierMedium}
	o := Aggregate(reachable(false), pro, model.CrossReferenceResult{})

	assert.Equal(t, 26, o.Confidence)
	assert.Equal(t, model.StatusFailed, o.Status)
}

func TestAggregate_Bounds(t *testing.T) {
	probes := []model.ProbeResult{{}, reachable(false), reachable(true), {URLStatusCode: intPtr(500)}}
	scores := []model.TrustScore{{Score: 0}, {Score: 25}, {Score: 45}, {Score: 75}, {Score: 85}, {Score: 95}, {Score: 100}}
	matches := []model.Match{model.MatchNotChecked, model.MatchYes, model.MatchNo}
	discs := [][]model.Discrepancy{nil, {{Severity: model.SeverityCritical}}, {{Severity: model.SeverityWarning}}}

	for _, p := range probes {
		for _, s := range scores {
			for _, m := range matches {
				for _, d := range discs {
					for _, ran := range []bool{true, false} {
						xref := model.CrossReferenceResult{Ran: ran, AmountMatch: m, DeadlineMatch: m, EligibilityMatch: m, Discrepancies: d}
						o := Aggregate(p, s, xref)

						assert.GreaterOrEqual(t, o.Confidence, 0)
						assert.LessOrEqual(t, o.Confidence, 100)
						assert.LessOrEqual(t, o.ChecksPassed, o.ChecksTotal)
						if o.HasSeverity(model.SeverityCritical) {
							assert.Equal(t, model.StatusFailed, o.Status)
						}
						if !ran {
							assert.Equal(t, 3, o.ChecksTotal)
						}
						assert.Equal(t, o, Aggregate(p, s, xref), "aggregate is deterministic")
					}
				}
			}
		}
	}
}

func TestDecideStatus(t *testing.T) {
	warn := []model.Issue{{Severity: model.SeverityWarning}}
	info := []model.Issue{{Severity: model.SeverityInfo}}
	crit := []model.Issue{{Severity: model.SeverityCritical}}

	tests := []struct {
		name   string
		conf   int
		issues []model.Issue
		want   model.VerificationStatus
	}{
		{"critical beats high score", 100, crit, model.StatusFailed},
		{"verified at threshold", 70, nil, model.StatusVerified},
		{"info does not block verified", 90, info, model.StatusVerified},
		{"warning blocks verified", 95, warn, model.StatusWarning},
		{"middle band", 40, nil, model.StatusWarning},
		{"warning lifts low score", 10, warn, model.StatusWarning},
		{"low without warnings fails", 39, info, model.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideStatus(model.Outcome{Confidence: tt.conf, Issues: tt.issues}))
		})
	}
}
