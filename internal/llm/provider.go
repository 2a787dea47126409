// Package llm wraps the language-model providers used for narrative
// summaries and owns the summary cache contract: generated summaries are
// persisted per entity and period, keyed by prompt version.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Provider is the single operation the summary agents need.
type Provider interface {
	// Generate sends a prompt and returns the model's text reply.
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultBedrockModel   = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	maxTokens             = 2048
)

// NewProvider builds the provider selected by the llm_provider config
// value ("bedrock" by default, alternatively "anthropic").
func NewProvider(ctx context.Context, providerName, model string) (Provider, error) {
	switch providerName {
	case "", "bedrock":
		if model == "" {
			model = defaultBedrockModel
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("llm: failed to load AWS config: %w", err)
		}
		return &bedrockProvider{
			client: bedrockruntime.NewFromConfig(cfg),
			model:  model,
		}, nil
	case "anthropic":
		if model == "" {
			model = defaultAnthropicModel
		}
		// The client reads ANTHROPIC_API_KEY from the environment.
		client := anthropic.NewClient()
		return &anthropicProvider{client: &client, model: model}, nil
	}
	return nil, fmt.Errorf("llm: unknown llm_provider: %s", providerName)
}

type anthropicProvider struct {
	client *anthropic.Client
	model  string
}

func (p *anthropicProvider) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: anthropic request failed: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

type bedrockProvider struct {
	client *bedrockruntime.Client
	model  string
}

// bedrock uses the Anthropic messages body format.
type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockResponse struct {
	Content []bedrockBlock `json:"content"`
}

func (p *bedrockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockBlock{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("llm: failed to encode request: %w", err)
	}

	contentType := "application/json"
	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &p.model,
		ContentType: &contentType,
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("llm: bedrock request failed: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("llm: failed to decode bedrock response: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// stripCodeFences removes markdown code fences models sometimes wrap JSON
// replies in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		rest, _ = strings.CutSuffix(rest, "```")
		return strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		rest, _ = strings.CutSuffix(rest, "```")
		return strings.TrimSpace(rest)
	}
	return s
}
