package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/models"
)

// DeepSeekProvider classifies through DeepSeek's OpenAI-compatible chat API
type DeepSeekProvider struct {
	client openai.Client
	config *common.DeepSeekConfig
	logger arbor.ILogger
}

// NewDeepSeekProvider creates the provider
func NewDeepSeekProvider(apiKey string, config *common.DeepSeekConfig, logger arbor.ILogger) *DeepSeekProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	return &DeepSeekProvider{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		config: config,
		logger: logger,
	}
}

// Name implements interfaces.Classifier
func (p *DeepSeekProvider) Name() string { return string(common.LLMProviderDeepSeek) }

// Classify implements interfaces.Classifier
func (p *DeepSeekProvider) Classify(ctx context.Context, text string) (*models.StructuredAnalysis, error) {
	return classifyWith(ctx, p, text)
}

// ClassifyBatch implements interfaces.Classifier
func (p *DeepSeekProvider) ClassifyBatch(ctx context.Context, texts []string) ([]*models.StructuredAnalysis, error) {
	return classifyBatchWith(ctx, p, texts)
}

// generate ignores schema; the reasoner model does not support JSON mode
// so the reply is parsed from free text.
func (p *DeepSeekProvider) generate(ctx context.Context, system, prompt string, schema map[string]interface{}) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	}
	if p.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(p.config.Temperature))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if IsRateLimitError(err) {
			p.logger.Warn().Err(err).Str("model", p.config.Model).Msg("DeepSeek rate limited")
		}
		return "", fmt.Errorf("DeepSeek API call failed: %w", err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from DeepSeek API")
	}
	return resp.Choices[0].Message.Content, nil
}
