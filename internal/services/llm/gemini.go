package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/models"
)

// GeminiProvider classifies with Google Gemini using schema-enforced JSON output
type GeminiProvider struct {
	client *genai.Client
	config *common.GeminiConfig
	logger arbor.ILogger
}

// NewGeminiProvider creates the provider
func NewGeminiProvider(ctx context.Context, apiKey string, config *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, config: config, logger: logger}, nil
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Name implements interfaces.Classifier
func (p *GeminiProvider) Name() string { return string(common.LLMProviderGemini) }

// Classify implements interfaces.Classifier
func (p *GeminiProvider) Classify(ctx context.Context, text string) (*models.StructuredAnalysis, error) {
	return classifyWith(ctx, p, text)
}

// ClassifyBatch implements interfaces.Classifier
func (p *GeminiProvider) ClassifyBatch(ctx context.Context, texts []string) ([]*models.StructuredAnalysis, error) {
	return classifyBatchWith(ctx, p, texts)
}

func (p *GeminiProvider) generate(ctx context.Context, system, prompt string, schema map[string]interface{}) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(p.config.Temperature),
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}

	if len(schema) > 0 {
		genaiSchema, err := convertToGenaiSchema(schema)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to convert output schema")
		} else if genaiSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = genaiSchema
		}
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, config)
	if err != nil {
		if IsRateLimitError(err) {
			p.logger.Warn().Err(err).Str("model", p.config.Model).Msg("Gemini rate limited")
		}
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}
	return text, nil
}

// GeminiEmbedder produces embeddings with the Gemini embedding model
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiEmbedder creates an embedder
func NewGeminiEmbedder(ctx context.Context, apiKey string, config *common.GeminiConfig) (*GeminiEmbedder, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: client, model: config.EmbedModel, dimension: config.EmbedDimension}, nil
}

// Embed implements interfaces.Embedder
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(e.dimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	return result.Embeddings[0].Values, nil
}

// convertToGenaiSchema converts a map representation of a JSON schema to a genai.Schema
func convertToGenaiSchema(schemaMap map[string]interface{}) (*genai.Schema, error) {
	if len(schemaMap) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{}

	if typeStr, ok := schemaMap["type"].(string); ok {
		switch strings.ToLower(typeStr) {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		default:
			return nil, fmt.Errorf("unsupported schema type '%s'", typeStr)
		}
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	if reqVals, ok := schemaMap["required"].([]interface{}); ok {
		for _, v := range reqVals {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if minVal, ok := schemaMap["minimum"].(float64); ok {
		schema.Minimum = &minVal
	}
	if maxVal, ok := schemaMap["maximum"].(float64); ok {
		schema.Maximum = &maxVal
	}

	if itemsMap, ok := schemaMap["items"].(map[string]interface{}); ok {
		itemSchema, err := convertToGenaiSchema(itemsMap)
		if err != nil {
			return nil, fmt.Errorf("failed to convert items schema: %w", err)
		}
		schema.Items = itemSchema
	}

	if propsMap, ok := schemaMap["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(propsMap))
		for propName, propVal := range propsMap {
			propMap, ok := propVal.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema, err := convertToGenaiSchema(propMap)
			if err != nil {
				return nil, fmt.Errorf("failed to convert property '%s': %w", propName, err)
			}
			schema.Properties[propName] = propSchema
		}
	}

	return schema, nil
}
