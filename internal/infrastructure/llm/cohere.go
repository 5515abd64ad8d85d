package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// CohereClient is the Cohere-backed text generator.
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

var _ ports.TextGenerator = (*CohereClient)(nil)

// NewCohereClient builds a client for one configured model.
func NewCohereClient(apiKey, model string) *CohereClient {
	return &CohereClient{
		client: cohereclient.NewClient(cohereclient.WithToken(apiKey)),
		model:  model,
	}
}

// Name identifies the provider in router logs and task records.
func (c *CohereClient) Name() string { return "cohere" }

// Generate runs a chat call with the system text as preamble.
func (c *CohereClient) Generate(ctx context.Context, req domain.TextRequest) (string, error) {
	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Model:    &c.model,
		Message:  req.Prompt,
		Preamble: &req.System,
	})
	if err != nil {
		kind := domain.FailureUnavailable
		var apiErr *core.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
			kind = domain.FailureQuota
		}
		return "", &domain.ProviderFailure{
			Provider: c.Name(),
			Kind:     kind,
			Err:      fmt.Errorf("cohere API error: %w", err),
		}
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", &domain.ProviderFailure{
			Provider: c.Name(),
			Kind:     domain.FailureMalformed,
			Err:      errors.New("empty response text"),
		}
	}

	return strings.TrimSpace(resp.Text), nil
}
