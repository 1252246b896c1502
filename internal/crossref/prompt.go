package crossref

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/grant-verifier/internal/model"
)

const systemPrompt = `You are a grants research analyst. You verify stored records about public funding programmes by searching the web for the programme's current official information.

Rules:
- Prefer official sources: government gazettes, ministry and agency portals, EU portals.
- Research independently first, then compare with the stored values you are given.
- Use null for a comparison you could not check. Never guess.
- Reply with exactly one JSON object and nothing else.`

const responseSchema = `{
  "program_found": true | false,
  "program_still_active": true | false | null,
  "fresh_data": {
    "official_name": string | null,
    "min_amount": number | null,
    "max_amount": number | null,
    "deadline": "YYYY-MM-DD" | null,
    "eligibility_summary": string | null,
    "official_url": string | null,
    "sources": [string]
  },
  "comparisons": {
    "amount_match": true | false | null,
    "deadline_match": true | false | null,
    "eligibility_match": true | false | null
  },
  "discrepancies": [
    {
      "field": string,
      "stored_value": any,
      "fresh_value": any,
      "severity": "critical" | "warning" | "info",
      "explanation": string
    }
  ],
  "confidence_notes": string
}`

// BuildPrompt renders the research request for g. today anchors whether the
// programme is still open.
func BuildPrompt(g *model.Grant, today time.Time) ResearchRequest {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today is %s.\n\n", today.Format("2006-01-02"))
	sb.WriteString("Research this funding programme and check the stored record against what you find.\n\n")
	sb.WriteString("Stored record:\n")
	writeField(&sb, "Name", g.Name)
	writeField(&sb, "Funding source", g.FundingSource)
	writeField(&sb, "Claimed official URL", g.OfficialURL)
	writeField(&sb, "Minimum amount", formatAmount(g.MinAmount))
	writeField(&sb, "Maximum amount", formatAmount(g.MaxAmount))
	writeField(&sb, "Deadline", g.DeadlineString())
	writeField(&sb, "Eligibility", g.EligibilitySummary)
	sb.WriteString("\nAmounts match when the official range covers the stored amounts. ")
	sb.WriteString("Mark a wrong amount as critical, a wrong deadline or eligibility as warning.\n\n")
	sb.WriteString("Respond with one JSON object of this shape:\n")
	sb.WriteString(responseSchema)

	return ResearchRequest{
		System: systemPrompt,
		Prompt: sb.String(),
	}
}

func writeField(sb *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "(not stored)"
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, value)
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
