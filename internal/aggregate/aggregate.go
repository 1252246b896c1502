// Package aggregate turns probe, trust and cross-reference results into a
// single confidence score and verification status.
package aggregate

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sells-group/grant-verifier/internal/model"
)

// Point budget. URL and source checks total 55, cross-reference 45.
const (
	PointsReachable   = 15
	PointsMentions    = 15
	SourceWeight      = 0.25
	PointsAmount      = 20
	PointsDeadline    = 15
	PointsEligibility = 10

	CriticalPenalty = 20

	SourceQualityThreshold = 40
	VerifiedThreshold      = 70
	WarningThreshold       = 40
)

// Issue types.
const (
	IssueURLUnreachable      = "url_unreachable"
	IssueURLContentMismatch  = "url_content_mismatch"
	IssueLowSourceQuality    = "low_source_quality"
	IssueAmountMismatch      = "amount_mismatch"
	IssueDeadlineMismatch    = "deadline_mismatch"
	IssueEligibilityMismatch = "eligibility_mismatch"
	IssueCriticalDiscrepancy = "critical_discrepancy"
)

type crossrefCheck struct {
	match    model.Match
	points   int
	issue    string
	severity model.Severity
	label    string
}

// Aggregate computes the outcome of one verification run. It is pure: equal
// inputs always produce equal outcomes.
func Aggregate(probe model.ProbeResult, trust model.TrustScore, xref model.CrossReferenceResult) model.Outcome {
	out := model.Outcome{Issues: []model.Issue{}}

	// URL checks.
	urlScore := 0
	out.ChecksTotal += 2
	if probe.URLValid {
		urlScore += PointsReachable
		out.ChecksPassed++
	} else {
		out.Issues = append(out.Issues, model.Issue{
			Type:     IssueURLUnreachable,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Official URL is not reachable (status: %s)", statusText(probe.URLStatusCode)),
		})
	}
	if probe.URLContainsGrantName {
		urlScore += PointsMentions
		out.ChecksPassed++
	} else if probe.URLValid {
		out.Issues = append(out.Issues, model.Issue{
			Type:     IssueURLContentMismatch,
			Severity: model.SeverityInfo,
			Message:  "Official page does not mention the grant name",
		})
	}

	// Source quality.
	sourceScore := int(math.Round(float64(trust.Score) * SourceWeight))
	out.ChecksTotal++
	if trust.Score >= SourceQualityThreshold {
		out.ChecksPassed++
	} else {
		out.Issues = append(out.Issues, model.Issue{
			Type:     IssueLowSourceQuality,
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Source quality is low (trust score %d, %s)", trust.Score, trust.SourceType),
		})
	}

	// Cross-reference. Unchecked fields are neither scored nor counted.
	xrefScore := 0
	if xref.Ran {
		checks := []crossrefCheck{
			{xref.AmountMatch, PointsAmount, IssueAmountMismatch, model.SeverityCritical, "Funding amount"},
			{xref.DeadlineMatch, PointsDeadline, IssueDeadlineMismatch, model.SeverityWarning, "Deadline"},
			{xref.EligibilityMatch, PointsEligibility, IssueEligibilityMismatch, model.SeverityWarning, "Eligibility"},
		}
		for _, c := range checks {
			switch c.match {
			case model.MatchNotChecked:
				continue
			case model.MatchYes:
				out.ChecksTotal++
				out.ChecksPassed++
				xrefScore += c.points
			case model.MatchNo:
				out.ChecksTotal++
				out.Issues = append(out.Issues, model.Issue{
					Type:     c.issue,
					Severity: c.severity,
					Message:  c.label + " does not match official sources",
				})
			}
		}

		critical := 0
		for _, d := range xref.Discrepancies {
			if d.Severity != model.SeverityCritical {
				continue
			}
			critical++
			out.Issues = append(out.Issues, model.Issue{
				Type:     IssueCriticalDiscrepancy,
				Severity: model.SeverityCritical,
				Message:  discrepancyMessage(d),
			})
		}
		if critical > 0 {
			xrefScore = max(xrefScore-CriticalPenalty, 0)
		}
	}

	out.Confidence = clamp(urlScore+sourceScore+xrefScore, 0, 100)
	out.Status = decideStatus(out)
	return out
}

// decideStatus applies the status table in order.
func decideStatus(o model.Outcome) model.VerificationStatus {
	hasWarning := o.HasSeverity(model.SeverityWarning)
	switch {
	case o.HasSeverity(model.SeverityCritical):
		return model.StatusFailed
	case o.Confidence >= VerifiedThreshold && !hasWarning:
		return model.StatusVerified
	case o.Confidence >= WarningThreshold || hasWarning:
		return model.StatusWarning
	default:
		return model.StatusFailed
	}
}

func statusText(code *int) string {
	if code == nil {
		return "no response"
	}
	return strconv.Itoa(*code)
}

func discrepancyMessage(d model.Discrepancy) string {
	if d.Explanation != "" {
		return d.Explanation
	}
	return fmt.Sprintf("Critical discrepancy in %s", d.Field)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
