package crossref

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel searches the web before answering.
const DefaultOpenAIModel = "gpt-4o-search-preview"

// OpenAIResearcher researches with an OpenAI search-enabled chat model.
type OpenAIResearcher struct {
	client *openai.Client
	model  string
}

// NewOpenAIResearcher creates an OpenAIResearcher. baseURL may be empty.
func NewOpenAIResearcher(apiKey, baseURL, model string) *OpenAIResearcher {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIResearcher{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name implements ResearchService.
func (o *OpenAIResearcher) Name() string { return "openai" }

// Research implements ResearchService.
func (o *OpenAIResearcher) Research(ctx context.Context, req ResearchRequest) (*ResearchResponse, error) {
	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = int(req.MaxTokens)
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, eris.Wrap(err, "crossref: openai research")
	}

	out := &ResearchResponse{
		Provider: o.Name(),
		Model:    resp.Model,
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	for _, c := range resp.Choices {
		out.Segments = append(out.Segments, Segment{Kind: "text", Text: c.Message.Content})
	}
	return out, nil
}
