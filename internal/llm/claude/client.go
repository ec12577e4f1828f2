// Package claude implements the triage.Provider interface on the Anthropic
// messages API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/solace/internal/triage"
)

// Client calls the Claude messages API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude provider with the given API key and model name.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate sends one system+prompt request and returns the completion text.
// Any transport or API failure is returned to the caller, which treats it
// as "no assessment"; no retry happens here.
func (c *Client) Generate(ctx context.Context, req *triage.GenRequest) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude: %w", err)
	}
	return textFromResponse(msg), nil
}

// textFromResponse concatenates the text blocks of a response, skipping any
// non-text content.
func textFromResponse(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
