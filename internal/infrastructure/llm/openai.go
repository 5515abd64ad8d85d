package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// OpenAIClient serves both the text and image capabilities through the
// official SDK.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ ports.TextGenerator = (*OpenAIClient)(nil)
var _ ports.ImageGenerator = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client for one configured model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client, model: model}
}

// Name identifies the provider in router logs and task records.
func (c *OpenAIClient) Name() string { return "openai" }

// Generate runs a chat completion and returns the raw text.
func (c *OpenAIClient) Generate(ctx context.Context, req domain.TextRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.failure(err)
	}
	if len(resp.Choices) == 0 {
		return "", &domain.ProviderFailure{
			Provider: c.Name(),
			Kind:     domain.FailureMalformed,
			Err:      errors.New("no choices in response"),
		}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Render generates one image and returns its hosted URL.
func (c *OpenAIClient) Render(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  openai.ImageModel(c.model),
		Prompt: prompt,
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return "", c.failure(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &domain.ProviderFailure{
			Provider: c.Name(),
			Kind:     domain.FailureMalformed,
			Err:      errors.New("no image in response"),
		}
	}

	return resp.Data[0].URL, nil
}

func (c *OpenAIClient) failure(err error) error {
	kind := domain.FailureUnavailable
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		kind = domain.FailureQuota
	}
	return &domain.ProviderFailure{
		Provider: c.Name(),
		Kind:     kind,
		Err:      fmt.Errorf("openai API error: %w", err),
	}
}
