package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-engine/internal/citation"
	"github.com/sells-group/visibility-engine/internal/resilience"
	"github.com/sells-group/visibility-engine/pkg/openrouter"
	"github.com/sells-group/visibility-engine/pkg/perplexity"
)

type fakeOpenRouter struct {
	resp *openrouter.ChatCompletionResponse
	err  error
}

func (f *fakeOpenRouter) ChatCompletion(_ context.Context, _ openrouter.ChatCompletionRequest) (*openrouter.ChatCompletionResponse, error) {
	return f.resp, f.err
}

type fakePerplexity struct {
	resp    *perplexity.ChatCompletionResponse
	err     error
	lastReq perplexity.ChatCompletionRequest
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func TestOpenRouterAdapter_MapsAnnotations(t *testing.T) {
	client := &fakeOpenRouter{resp: &openrouter.ChatCompletionResponse{
		Choices: []openrouter.Choice{{Message: openrouter.ResponseMessage{
			Content: "Acme is great.",
			Annotations: []openrouter.Annotation{
				{Type: "url_citation", URLCitation: openrouter.URLCitation{URL: "https://acme.com", Title: "Acme", StartIndex: 3}},
			},
		}}},
		Usage: openrouter.Usage{PromptTokens: 11, CompletionTokens: 4},
	}}

	a := NewOpenRouter(client, "openai/gpt-4o", time.Second)
	assert.Equal(t, ChatWithAnnotations, a.Capability())

	resp, err := a.Execute(context.Background(), Request{UserQuery: "best CRM"})
	require.NoError(t, err)
	assert.Equal(t, "Acme is great.", resp.Text)
	require.Len(t, resp.Annotations, 1)
	assert.Equal(t, "https://acme.com", resp.Annotations[0].URL)
	assert.Equal(t, 11, resp.InputTokens)

	cites, ok := resp.NormalizedCitations(a.Capability())
	require.True(t, ok)
	require.Len(t, cites, 1)
	assert.Equal(t, "https://acme.com", cites[0].URL)
}

func TestOpenRouterAdapter_EmptyChoices(t *testing.T) {
	a := NewOpenRouter(&fakeOpenRouter{resp: &openrouter.ChatCompletionResponse{}}, "openai/gpt-4o", time.Second)

	_, err := a.Execute(context.Background(), Request{UserQuery: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai/gpt-4o")
}

func TestPerplexityAdapter_MapsSearchResults(t *testing.T) {
	client := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "Try Acme."}}},
		SearchResults: []perplexity.SearchResult{
			{URL: "https://acme.com/pricing", Title: "Pricing"},
		},
		Usage: perplexity.Usage{PromptTokens: 7, CompletionTokens: 3},
	}}

	a := NewPerplexity(client, "perplexity/sonar", time.Second)
	assert.Equal(t, SearchWithCitations, a.Capability())

	resp, err := a.Execute(context.Background(), Request{UserQuery: "best CRM"})
	require.NoError(t, err)
	assert.Equal(t, "sonar", client.lastReq.Model, "panel prefix stripped for the API call")
	require.Len(t, resp.SearchResults, 1)
	assert.Equal(t, "https://acme.com/pricing", resp.SearchResults[0].URL)
}

func TestPerplexityAdapter_FlatCitationsFallback(t *testing.T) {
	client := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Content: "ok"}}},
		Citations: []string{"https://acme.com", "https://other.com"},
	}}

	a := NewPerplexity(client, "perplexity/sonar", time.Second)
	resp, err := a.Execute(context.Background(), Request{UserQuery: "x"})
	require.NoError(t, err)
	require.Len(t, resp.SearchResults, 2)
	assert.Equal(t, "https://acme.com", resp.SearchResults[0].URL)
}

func TestPerplexityAdapter_ErrorTaggedWithModel(t *testing.T) {
	a := NewPerplexity(&fakePerplexity{err: eris.New("boom")}, "perplexity/sonar", time.Second)

	_, err := a.Execute(context.Background(), Request{UserQuery: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perplexity/sonar")
}

func TestNormalizedCitations_ChatOnlyIsNil(t *testing.T) {
	resp := &Response{Text: "no citations here"}
	cites, ok := resp.NormalizedCitations(ChatOnly)
	assert.False(t, ok)
	assert.Nil(t, cites)
}

func TestNormalizedCitations_MalformedPayloadDegradesToEmpty(t *testing.T) {
	resp := &Response{
		Text:        "x",
		Annotations: []citation.Annotation{{Type: "url_citation"}}, // no URL
	}
	cites, ok := resp.NormalizedCitations(ChatWithAnnotations)
	assert.True(t, ok)
	assert.Empty(t, cites)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := NewOpenRouter(&fakeOpenRouter{}, "openai/gpt-4o", time.Second)
	r.Register(a)

	assert.Same(t, a, r.Get("openai/gpt-4o").(*OpenRouterAdapter))
	assert.Nil(t, r.Get("missing/model"))
	assert.Equal(t, []string{"openai/gpt-4o"}, r.List())
}

func TestWithBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	failing := &fakeOpenRouter{err: eris.New("provider down")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	a := WithBreaker(NewOpenRouter(failing, "openai/gpt-4o", time.Second), cb)

	for i := 0; i < 2; i++ {
		_, err := a.Execute(context.Background(), Request{UserQuery: "x"})
		require.Error(t, err)
	}

	_, err := a.Execute(context.Background(), Request{UserQuery: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, "openai/gpt-4o", a.ModelID(), "decorator keeps identity")
}
