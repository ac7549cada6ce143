package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "openai/gpt-4o", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Acme is a solid pick."}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 9}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "openai/gpt-4o",
		Messages: []Message{{Role: "user", Content: "best CRM"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Acme is a solid pick.", resp.Choices[0].Message.Content)
	assert.Equal(t, 9, resp.Usage.CompletionTokens)
}

func TestChatCompletion_Annotations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-2",
			"choices": [{"index": 0, "message": {
				"role": "assistant",
				"content": "Acme leads the market.",
				"annotations": [
					{"type": "url_citation", "url_citation": {"url": "https://acme.com/pricing", "title": "Pricing", "start_index": 0, "end_index": 22}}
				]
			}}],
			"usage": {"prompt_tokens": 15, "completion_tokens": 6}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "perplexity/sonar",
		Messages: []Message{{Role: "user", Content: "best CRM"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	anns := resp.Choices[0].Message.Annotations
	require.Len(t, anns, 1)
	assert.Equal(t, "url_citation", anns[0].Type)
	assert.Equal(t, "https://acme.com/pricing", anns[0].URLCitation.URL)
	assert.Equal(t, "Pricing", anns[0].URLCitation.Title)
}

func TestChatCompletion_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"rate_limit", http.StatusTooManyRequests, "unexpected status 429"},
		{"server_error", http.StatusInternalServerError, "unexpected status 500"},
		{"unauthorized", http.StatusUnauthorized, "unexpected status 401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Model:    "openai/gpt-4o",
				Messages: []Message{{Role: "user", Content: "x"}},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChatCompletion_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{invalid`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "openai/gpt-4o",
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestChatCompletion_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.ChatCompletion(ctx, ChatCompletionRequest{
		Model:    "openai/gpt-4o",
		Messages: []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}
