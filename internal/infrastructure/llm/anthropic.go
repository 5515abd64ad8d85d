package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// AnthropicClient is the Claude-backed text generator.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

var _ ports.TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client for one configured model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{client: &client, model: model}
}

// Name identifies the provider in router logs and task records.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Generate runs a messages call and returns the first text block.
func (c *AnthropicClient) Generate(ctx context.Context, req domain.TextRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		kind := domain.FailureUnavailable
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			kind = domain.FailureQuota
		}
		return "", &domain.ProviderFailure{
			Provider: c.Name(),
			Kind:     kind,
			Err:      fmt.Errorf("anthropic API error: %w", err),
		}
	}
	if len(resp.Content) == 0 {
		return "", &domain.ProviderFailure{
			Provider: c.Name(),
			Kind:     domain.FailureMalformed,
			Err:      errors.New("no content in response"),
		}
	}

	return strings.TrimSpace(resp.Content[0].Text), nil
}
