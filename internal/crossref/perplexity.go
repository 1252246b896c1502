package crossref

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grant-verifier/pkg/perplexity"
)

// PerplexityResearcher researches with Perplexity's sonar models, which
// search the web on every request.
type PerplexityResearcher struct {
	client        perplexity.Client
	model         string
	domainFilter  []string
	recencyFilter string
}

// NewPerplexityResearcher creates a PerplexityResearcher. An empty model uses
// the client default.
func NewPerplexityResearcher(client perplexity.Client, model string, domainFilter []string, recencyFilter string) *PerplexityResearcher {
	return &PerplexityResearcher{
		client:        client,
		model:         model,
		domainFilter:  domainFilter,
		recencyFilter: recencyFilter,
	}
}

// Name implements ResearchService.
func (p *PerplexityResearcher) Name() string { return "perplexity" }

// Research implements ResearchService.
func (p *PerplexityResearcher) Research(ctx context.Context, req ResearchRequest) (*ResearchResponse, error) {
	var msgs []perplexity.Message
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	chatReq := perplexity.ChatCompletionRequest{
		Model:               p.model,
		Messages:            msgs,
		SearchDomainFilter:  p.domainFilter,
		SearchRecencyFilter: p.recencyFilter,
	}
	if req.MaxTokens > 0 {
		n := int(req.MaxTokens)
		chatReq.MaxTokens = &n
	}

	resp, err := p.client.ChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: perplexity research")
	}

	return &ResearchResponse{
		Provider: p.Name(),
		Model:    resp.Model,
		Segments: []Segment{{Kind: "text", Text: resp.Content()}},
		Sources:  resp.Citations,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			Searches:     1,
		},
	}, nil
}
