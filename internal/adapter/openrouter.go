package adapter

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/pkg/openrouter"
)

// OpenRouterAdapter calls one model through the OpenRouter API and maps
// its url_citation annotations into the annotation-style raw shape.
type OpenRouterAdapter struct {
	client  openrouter.Client
	modelID string
	timeout time.Duration
}

// NewOpenRouter creates an adapter for one OpenRouter model id.
func NewOpenRouter(client openrouter.Client, modelID string, timeout time.Duration) *OpenRouterAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenRouterAdapter{client: client, modelID: modelID, timeout: timeout}
}

func (a *OpenRouterAdapter) ModelID() string { return a.modelID }

func (a *OpenRouterAdapter) Capability() Capability { return ChatWithAnnotations }

// Execute performs a single chat completion attempt.
func (a *OpenRouterAdapter) Execute(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	temp := req.Temperature
	resp, err := a.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model: a.modelID,
		Messages: []openrouter.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserQuery},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "adapter: openrouter model %s", a.modelID)
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Errorf("adapter: openrouter model %s: empty choices", a.modelID)
	}

	msg := resp.Choices[0].Message
	anns := make([]citation.Annotation, 0, len(msg.Annotations))
	for _, ann := range msg.Annotations {
		anns = append(anns, citation.Annotation{
			Type:       ann.Type,
			URL:        ann.URLCitation.URL,
			Title:      ann.URLCitation.Title,
			Snippet:    ann.URLCitation.Content,
			StartIndex: ann.URLCitation.StartIndex,
		})
	}

	return &Response{
		Text:         msg.Content,
		Annotations:  anns,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
