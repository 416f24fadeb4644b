package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/models"
)

// ClaudeProvider classifies with Anthropic Claude
type ClaudeProvider struct {
	client anthropic.Client
	config *common.ClaudeConfig
	logger arbor.ILogger
}

// NewClaudeProvider creates the provider. Extra options are passed to the SDK client.
func NewClaudeProvider(apiKey string, config *common.ClaudeConfig, logger arbor.ILogger, opts ...option.RequestOption) *ClaudeProvider {
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &ClaudeProvider{
		client: anthropic.NewClient(clientOpts...),
		config: config,
		logger: logger,
	}
}

// Name implements interfaces.Classifier
func (p *ClaudeProvider) Name() string { return string(common.LLMProviderClaude) }

// Classify implements interfaces.Classifier
func (p *ClaudeProvider) Classify(ctx context.Context, text string) (*models.StructuredAnalysis, error) {
	return classifyWith(ctx, p, text)
}

// ClassifyBatch implements interfaces.Classifier
func (p *ClaudeProvider) ClassifyBatch(ctx context.Context, texts []string) ([]*models.StructuredAnalysis, error) {
	return classifyBatchWith(ctx, p, texts)
}

func (p *ClaudeProvider) generate(ctx context.Context, system, prompt string, schema map[string]interface{}) (string, error) {
	if len(schema) > 0 {
		// Claude has no response schema parameter; embed it in the instructions
		if b, err := json.Marshal(schema); err == nil {
			system += "\n\nThe reply must validate against this JSON schema:\n" + string(b)
		}
	}

	maxTokens := p.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}
	if p.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(p.config.Temperature))
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		if IsRateLimitError(err) {
			p.logger.Warn().Err(err).Str("model", p.config.Model).Msg("Claude rate limited")
		}
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}
