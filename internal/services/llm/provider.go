package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
)

// generator is the transport each provider implements. schema is nil when
// the provider cannot enforce structured output.
type generator interface {
	generate(ctx context.Context, system, prompt string, schema map[string]interface{}) (string, error)
}

func classifyWith(ctx context.Context, g generator, text string) (*models.StructuredAnalysis, error) {
	raw, err := g.generate(ctx, systemPrompt, SinglePrompt(text), AnalysisSchema())
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(raw)
}

func classifyBatchWith(ctx context.Context, g generator, texts []string) ([]*models.StructuredAnalysis, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	raw, err := g.generate(ctx, systemPrompt, BatchPrompt(texts), BatchSchema())
	if err != nil {
		return nil, err
	}
	return ParseAnalysisBatch(raw, len(texts))
}

// IsRateLimitError reports whether a provider error is a quota or 429 response
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}

// NewProvider builds the classifier for kind. An empty kind returns nil so a
// missing fallback is simply skipped.
func NewProvider(ctx context.Context, kind common.LLMProvider, config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.Classifier, error) {
	switch kind {
	case "":
		return nil, nil
	case common.LLMProviderGemini:
		key, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", config.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
		}
		return NewGeminiProvider(ctx, key, &config.Gemini, logger)
	case common.LLMProviderClaude:
		key, err := common.ResolveAPIKey(ctx, kvStorage, "anthropic_api_key", config.Claude.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
		}
		return NewClaudeProvider(key, &config.Claude, logger), nil
	case common.LLMProviderDeepSeek:
		key, err := common.ResolveAPIKey(ctx, kvStorage, "deepseek_api_key", config.DeepSeek.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DeepSeek API key: %w", err)
		}
		return NewDeepSeekProvider(key, &config.DeepSeek, logger), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", kind)
	}
}
