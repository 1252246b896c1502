package crossref

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grant-verifier/pkg/anthropic"
)

// AnthropicResearcher researches with Claude and the server-side web search
// tool.
type AnthropicResearcher struct {
	client      anthropic.Client
	model       string
	maxSearches int64
}

// NewAnthropicResearcher creates an AnthropicResearcher. maxSearches <= 0
// leaves the search count to the API default.
func NewAnthropicResearcher(client anthropic.Client, model string, maxSearches int64) *AnthropicResearcher {
	return &AnthropicResearcher{client: client, model: model, maxSearches: maxSearches}
}

// Name implements ResearchService.
func (a *AnthropicResearcher) Name() string { return "anthropic" }

// Research implements ResearchService.
func (a *AnthropicResearcher) Research(ctx context.Context, req ResearchRequest) (*ResearchResponse, error) {
	msgReq := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: req.MaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: req.Prompt}},
		WebSearch: &anthropic.WebSearchTool{MaxUses: a.maxSearches},
	}
	if req.System != "" {
		msgReq.System = anthropic.BuildCachedSystemBlocks(req.System, "")
	}

	resp, err := a.client.CreateMessage(ctx, msgReq)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: anthropic research")
	}
	resp.Usage.LogCost(a.model, "crossref")

	out := &ResearchResponse{
		Provider: a.Name(),
		Model:    resp.Model,
		Segments: make([]Segment, 0, len(resp.Content)),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Searches:     resp.Usage.WebSearchRequests,
		},
	}
	for _, b := range resp.Content {
		out.Segments = append(out.Segments, Segment{Kind: b.Type, Text: b.Text})
	}
	return out, nil
}
