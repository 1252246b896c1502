// Package crossref re-researches a grant's facts with a search-capable LLM
// and diffs them against the stored record.
package crossref

import (
	"context"
	"strings"
)

// Segment is one content block of a research response.
type Segment struct {
	Kind string
	Text string
}

// Usage is the provider-reported token consumption of a research call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Searches     int64
}

// ResearchRequest is a single research prompt.
type ResearchRequest struct {
	System    string
	Prompt    string
	MaxTokens int64
}

// ResearchResponse holds the ordered content segments returned by a provider.
// Sources lists the URLs the provider cited, when it reports them separately
// from the text.
type ResearchResponse struct {
	Provider string
	Model    string
	Segments []Segment
	Sources  []string
	Usage    Usage
}

// Text concatenates every text-bearing segment in order.
func (r *ResearchResponse) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n")
}

// ResearchService sends one research request to an LLM that can search the
// web. Implementations must not retry.
type ResearchService interface {
	Name() string
	Research(ctx context.Context, req ResearchRequest) (*ResearchResponse, error)
}
