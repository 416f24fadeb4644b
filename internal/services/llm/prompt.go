package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/aurum/internal/models"
)

const systemPrompt = `You are a macro analyst covering gold (XAU/USD). For each news item decide how it
affects gold prices through the dollar, real yields, risk sentiment and safe-haven demand.

Respond with JSON only. Every text field is an object with "en" and "zh" keys holding
English and Simplified Chinese versions.

Fields:
- summary: one or two sentence factual summary
- sentiment: short label such as "Bullish", "Bearish" or "Neutral" (for gold)
- sentiment_score: number from -1.0 (very bearish for gold) to 1.0 (very bullish)
- urgency_score: integer from 1 (background noise) to 10 (market-moving, act now)
- market_implication: expected effect on gold, the dollar and yields
- actionable_advice: what a gold trader should watch or do`

// analysisProperties is the JSON schema of one StructuredAnalysis
var analysisProperties = map[string]interface{}{
	"index":              map[string]interface{}{"type": "integer"},
	"summary":            localizedSchema("Factual summary"),
	"sentiment":          localizedSchema("Sentiment label for gold"),
	"sentiment_score":    map[string]interface{}{"type": "number", "minimum": -1.0, "maximum": 1.0},
	"urgency_score":      map[string]interface{}{"type": "integer", "minimum": 1.0, "maximum": 10.0},
	"market_implication": localizedSchema("Expected market effect"),
	"actionable_advice":  localizedSchema("Trader guidance"),
}

var analysisRequired = []interface{}{"summary", "sentiment", "sentiment_score", "urgency_score", "market_implication", "actionable_advice"}

func localizedSchema(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": desc,
		"properties": map[string]interface{}{
			"en": map[string]interface{}{"type": "string"},
			"zh": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"en", "zh"},
	}
}

// AnalysisSchema returns the output schema for a single analysis
func AnalysisSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": analysisProperties,
		"required":   analysisRequired,
	}
}

// BatchSchema returns the output schema for a batch: an array of indexed analyses
func BatchSchema() map[string]interface{} {
	item := AnalysisSchema()
	item["required"] = append([]interface{}{"index"}, analysisRequired...)
	return map[string]interface{}{
		"type":  "array",
		"items": item,
	}
}

// SinglePrompt builds the user message for one item
func SinglePrompt(text string) string {
	return "Analyse this news item and return one JSON object.\n\nNEWS:\n" + strings.TrimSpace(text)
}

// BatchPrompt builds the user message for several items, numbered from zero
func BatchPrompt(texts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyse each of the %d news items below. Return a JSON array with one object per item, "+
		"and set \"index\" to the item's number.\n", len(texts))
	for i, t := range texts {
		fmt.Fprintf(&b, "\n[%d] %s\n", i, strings.TrimSpace(t))
	}
	return b.String()
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// extractJSON pulls the JSON payload out of a model reply, preferring a
// fenced block and otherwise the outermost object or array.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fencedBlock.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// ParseAnalysis decodes a single analysis from a model reply
func ParseAnalysis(raw string) (*models.StructuredAnalysis, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("empty model response")
	}

	if strings.HasPrefix(payload, "[") {
		var list []*models.StructuredAnalysis
		if err := json.Unmarshal([]byte(payload), &list); err != nil {
			return nil, fmt.Errorf("failed to parse analysis: %w", err)
		}
		if len(list) == 0 || list[0] == nil {
			return nil, fmt.Errorf("empty analysis array")
		}
		return list[0], nil
	}

	var a models.StructuredAnalysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &a, nil
}

// ParseAnalysisBatch decodes a batch reply and aligns it to n inputs by index.
// Slots with no matching analysis are nil. When the model omits indexes the
// results are taken positionally.
func ParseAnalysisBatch(raw string, n int) ([]*models.StructuredAnalysis, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var list []*models.StructuredAnalysis
	if strings.HasPrefix(payload, "{") {
		// Some models wrap the array: {"results": [...]}
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse batch: %w", err)
		}
		for _, v := range wrapped {
			if err := json.Unmarshal(v, &list); err == nil {
				break
			}
		}
		if list == nil {
			return nil, fmt.Errorf("batch response has no array")
		}
	} else if err := json.Unmarshal([]byte(payload), &list); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}

	out := make([]*models.StructuredAnalysis, n)

	indexed := false
	for _, a := range list {
		if a != nil && a.Index != 0 {
			indexed = true
			break
		}
	}

	for pos, a := range list {
		if a == nil {
			continue
		}
		idx := pos
		if indexed {
			idx = a.Index
		}
		if idx < 0 || idx >= n || out[idx] != nil {
			continue
		}
		out[idx] = a
	}
	return out, nil
}
