package dedup

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/ternarybob/aurum/internal/interfaces"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	boilerplatePrefix = regexp.MustCompile(`(?i)^\s*(breaking( news)?|update|exclusive|just in|developing)\s*[:\-–—]\s*`)
	wireDateline      = regexp.MustCompile(`(?i)\((reuters|ap|bloomberg|afp)\)\s*[-–—]?\s*`)
	outletSuffix      = regexp.MustCompile(`\s+[-|]\s+[^-|]{2,40}$`)
	whitespace        = regexp.MustCompile(`\s+`)
)

// NormalizeText strips urls and wire boilerplate, lower-cases and collapses whitespace
func NormalizeText(text string) string {
	s := urlPattern.ReplaceAllString(text, " ")
	s = boilerplatePrefix.ReplaceAllString(s, "")
	s = wireDateline.ReplaceAllString(s, " ")
	s = outletSuffix.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Tokens splits normalized text into words. Runs of Han characters, which
// carry no spaces, are split into overlapping character bigrams.
func Tokens(normalized string) []string {
	var out []string
	for _, word := range strings.Fields(normalized) {
		runes := []rune(word)
		han := true
		for _, r := range runes {
			if !unicode.Is(unicode.Han, r) {
				han = false
				break
			}
		}
		if !han || len(runes) < 2 {
			out = append(out, word)
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			out = append(out, string(runes[i:i+2]))
		}
	}
	return out
}

// TermVectorEmbedder embeds text as an L2-normalized hashed bag of unigrams
// and bigrams. It needs no network and is deterministic.
type TermVectorEmbedder struct {
	Dim int
}

// NewTermVectorEmbedder creates an embedder with dim buckets
func NewTermVectorEmbedder(dim int) *TermVectorEmbedder {
	if dim <= 0 {
		dim = 2048
	}
	return &TermVectorEmbedder{Dim: dim}
}

// Embed implements interfaces.Embedder
func (e *TermVectorEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := Tokens(NormalizeText(text))
	vec := make([]float32, e.Dim)
	if len(tokens) == 0 {
		return vec, nil
	}

	bump := func(term string, w float32) {
		vec[xxhash.Sum64String(term)%uint64(e.Dim)] += w
	}
	for i, tok := range tokens {
		bump(tok, 1)
		if i > 0 {
			bump(tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is empty
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type semanticEntry struct {
	id  string
	vec []float32
}

// SemanticDeduplicator flags texts whose embedding is at least threshold
// similar to one already seen in this run. Feed it oldest-first so the
// earliest instance of a story is the one kept.
type SemanticDeduplicator struct {
	mu        sync.Mutex
	embedder  interfaces.Embedder
	threshold float64
	cap       int
	history   []semanticEntry
}

// NewSemanticDeduplicator creates a run-local semantic gate
func NewSemanticDeduplicator(embedder interfaces.Embedder, threshold float64, historySize int) *SemanticDeduplicator {
	if threshold <= 0 {
		threshold = 0.85
	}
	if historySize <= 0 {
		historySize = 5000
	}
	return &SemanticDeduplicator{
		embedder:  embedder,
		threshold: threshold,
		cap:       historySize,
	}
}

// Check compares text against the history. Non-duplicates are added to it.
func (s *SemanticDeduplicator) Check(ctx context.Context, id, text string) (Verdict, error) {
	if NormalizeText(text) == "" {
		return Verdict{}, nil
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Verdict{}, fmt.Errorf("embed %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	best := 0.0
	bestID := ""
	for _, e := range s.history {
		if sim := Cosine(vec, e.vec); sim > best {
			best, bestID = sim, e.id
		}
	}
	if best >= s.threshold {
		return Verdict{Duplicate: true, Reason: ReasonSemantic, MatchID: bestID, Similarity: best}, nil
	}

	if len(s.history) >= s.cap {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, semanticEntry{id: id, vec: vec})
	return Verdict{Similarity: best}, nil
}
