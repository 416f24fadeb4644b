package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/aurum/internal/common"
	"github.com/ternarybob/aurum/internal/models"
)

const sampleAnalysis = `{
  "summary": {"en": "Trump announces new tariffs on EU imports", "zh": "特朗普宣布对欧盟进口商品征收新关税"},
  "sentiment": {"en": "Bullish", "zh": "看涨"},
  "sentiment_score": 0.6,
  "urgency_score": 8,
  "market_implication": {"en": "Safe-haven demand rises", "zh": "避险需求上升"},
  "actionable_advice": {"en": "Watch the 2400 level", "zh": "关注2400关口"}
}`

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"plain", sampleAnalysis},
		{"fenced", "Here you go:\n```json\n" + sampleAnalysis + "\n```\nThanks"},
		{"prose around object", "Result: " + sampleAnalysis + " done"},
		{"single element array", "[" + sampleAnalysis + "]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnalysis(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "Trump announces new tariffs on EU imports", a.Summary.Get(models.LangEN))
			assert.Equal(t, "看涨", a.Sentiment.Get(models.LangZH))
			assert.Equal(t, 0.6, a.SentimentScore)
			assert.Equal(t, 8, a.UrgencyScore)
		})
	}

	_, err := ParseAnalysis("not json at all")
	assert.Error(t, err)
	_, err = ParseAnalysis("")
	assert.Error(t, err)
}

func TestParseAnalysisBatch(t *testing.T) {
	raw := `[
	  {"index": 2, "summary": {"en": "third"}, "urgency_score": 3},
	  {"index": 0, "summary": {"en": "first"}, "urgency_score": 5},
	  {"index": 9, "summary": {"en": "out of range"}, "urgency_score": 5}
	]`
	out, err := ParseAnalysisBatch(raw, 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "first", out[0].Summary.Get(models.LangEN))
	assert.Nil(t, out[1])
	assert.Equal(t, "third", out[2].Summary.Get(models.LangEN))

	// No indexes: positional
	out, err = ParseAnalysisBatch(`{"results": [{"summary": "a"}, {"summary": "b"}]}`, 2)
	require.NoError(t, err)
	assert.Equal(t, "a", out[0].Summary.Get(models.LangEN))
	assert.Equal(t, "b", out[1].Summary.Get(models.LangEN))

	_, err = ParseAnalysisBatch(`{"oops": 1}`, 2)
	assert.Error(t, err)
}

func TestBatchPrompt(t *testing.T) {
	p := BatchPrompt([]string{"first item", " second item "})
	assert.Contains(t, p, "[0] first item")
	assert.Contains(t, p, "[1] second item")
	assert.Contains(t, p, "2 news items")
}

func TestConvertToGenaiSchema(t *testing.T) {
	s, err := convertToGenaiSchema(BatchSchema())
	require.NoError(t, err)
	assert.Equal(t, genai.TypeArray, s.Type)
	require.NotNil(t, s.Items)
	assert.Equal(t, genai.TypeObject, s.Items.Type)
	assert.Contains(t, s.Items.Required, "index")
	require.NotNil(t, s.Items.Properties["urgency_score"])
	assert.Equal(t, 10.0, *s.Items.Properties["urgency_score"].Maximum)
	assert.Equal(t, genai.TypeString, s.Items.Properties["summary"].Properties["zh"].Type)

	_, err = convertToGenaiSchema(map[string]interface{}{"type": "tuple"})
	assert.Error(t, err)
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(assert.AnError))
	assert.True(t, IsRateLimitError(errString("Error 429, RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(nil))
}

type errString string

func (e errString) Error() string { return string(e) }

func TestDeepSeekProvider_Classify(t *testing.T) {
	var requests int
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		content, _ := json.Marshal("```json\n" + sampleAnalysis + "\n```")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"deepseek-reasoner",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":`+string(content)+`}}]}`)
	}))
	defer srv.Close()

	p := NewDeepSeekProvider("test-key", &common.DeepSeekConfig{BaseURL: srv.URL, Model: "deepseek-reasoner"}, arbor.NewLogger())
	a, err := p.Classify(t.Context(), "Trump announces tariffs")
	require.NoError(t, err)
	assert.Equal(t, 8, a.UrgencyScore)
	assert.Equal(t, "deepseek-reasoner", got["model"])
	assert.Equal(t, 1, requests)
}

func TestDeepSeekProvider_NoRetryOnError(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom"}}`)
	}))
	defer srv.Close()

	p := NewDeepSeekProvider("k", &common.DeepSeekConfig{BaseURL: srv.URL, Model: "m"}, arbor.NewLogger())
	_, err := p.Classify(t.Context(), "text")
	require.Error(t, err)
	assert.Equal(t, 1, requests)
}

func TestClaudeProvider_ClassifyBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		text, _ := json.Marshal(`[{"index":1,"summary":{"en":"second"},"urgency_score":4},{"index":0,"summary":{"en":"first"},"urgency_score":6}]`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",`+
			`"content":[{"type":"text","text":`+string(text)+`}],"stop_reason":"end_turn","stop_sequence":null,`+
			`"usage":{"input_tokens":10,"output_tokens":10}}`)
	}))
	defer srv.Close()

	p := NewClaudeProvider("k", &common.ClaudeConfig{Model: "claude-3-5-haiku-latest", MaxTokens: 512}, arbor.NewLogger(), option.WithBaseURL(srv.URL))
	out, err := p.ClassifyBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Summary.Get(models.LangEN))
	assert.Equal(t, "second", out[1].Summary.Get(models.LangEN))
}
