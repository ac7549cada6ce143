package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
)

// AnthropicAdapter calls a Claude model directly. Claude returns no
// citation payload, so this is the chat-only capability: its scans count
// toward mentions and visibility but never toward citation rate.
type AnthropicAdapter struct {
	client    anthropic.Client
	modelID   string
	apiModel  string
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropic creates an adapter for one Claude model. The panel id may
// carry an "anthropic/" prefix; apiModel is the real API model name.
func NewAnthropic(client anthropic.Client, modelID, apiModel string, timeout time.Duration) *AnthropicAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if apiModel == "" {
		apiModel = strings.TrimPrefix(modelID, "anthropic/")
	}
	return &AnthropicAdapter{
		client:    client,
		modelID:   modelID,
		apiModel:  apiModel,
		maxTokens: 1024,
		timeout:   timeout,
	}
}

func (a *AnthropicAdapter) ModelID() string { return a.modelID }

func (a *AnthropicAdapter) Capability() Capability { return ChatOnly }

// Execute performs a single messages API attempt.
func (a *AnthropicAdapter) Execute(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.apiModel),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System:      []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserQuery)),
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "adapter: anthropic model %s", a.modelID)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         sb.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
