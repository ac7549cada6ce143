package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/pkg/perplexity"
)

// PerplexityAdapter calls one Perplexity model and maps its search_results
// into the search-result-style raw shape.
type PerplexityAdapter struct {
	client  perplexity.Client
	modelID string
	timeout time.Duration
}

// NewPerplexity creates an adapter for one Perplexity model id. The id may
// carry a "perplexity/" prefix for panel readability; the API model name
// is the part after the slash.
func NewPerplexity(client perplexity.Client, modelID string, timeout time.Duration) *PerplexityAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PerplexityAdapter{client: client, modelID: modelID, timeout: timeout}
}

func (a *PerplexityAdapter) ModelID() string { return a.modelID }

func (a *PerplexityAdapter) Capability() Capability { return SearchWithCitations }

// Execute performs a single chat completion attempt.
func (a *PerplexityAdapter) Execute(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	apiModel := a.modelID
	if i := strings.Index(apiModel, "/"); i >= 0 {
		apiModel = apiModel[i+1:]
	}

	temp := req.Temperature
	resp, err := a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: apiModel,
		Messages: []perplexity.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserQuery},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "adapter: perplexity model %s", a.modelID)
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Errorf("adapter: perplexity model %s: empty choices", a.modelID)
	}

	results := make([]citation.SearchResult, 0, len(resp.SearchResults))
	for _, sr := range resp.SearchResults {
		results = append(results, citation.SearchResult{
			URL:     sr.URL,
			Title:   sr.Title,
			Date:    sr.Date,
			Snippet: sr.Snippet,
		})
	}
	// Older responses carry only the flat citations list.
	if len(results) == 0 {
		for _, u := range resp.Citations {
			results = append(results, citation.SearchResult{URL: u})
		}
	}

	return &Response{
		Text:          resp.Choices[0].Message.Content,
		SearchResults: results,
		InputTokens:   resp.Usage.PromptTokens,
		OutputTokens:  resp.Usage.CompletionTokens,
	}, nil
}
