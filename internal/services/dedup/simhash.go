package dedup

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// ShingleWidth is the rune width of the sliding window fed into SimHash
const ShingleWidth = 3

// NormalizeForFingerprint lower-cases text and drops everything that is not a
// letter, digit or underscore.
func NormalizeForFingerprint(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Shingles returns overlapping rune windows of the given width. Text shorter
// than width yields a single shingle.
func Shingles(text string, width int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= width {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-width+1)
	for i := 0; i+width <= len(runes); i++ {
		out = append(out, string(runes[i:i+width]))
	}
	return out
}

// SimHash computes a 64-bit locality-sensitive fingerprint of text. ok is
// false when the normalized text is empty.
func SimHash(text string) (fp uint64, ok bool) {
	features := Shingles(NormalizeForFingerprint(text), ShingleWidth)
	if len(features) == 0 {
		return 0, false
	}

	var v [64]int
	for _, f := range features {
		h := xxhash.Sum64String(f)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				v[i]++
			} else {
				v[i]--
			}
		}
	}

	for i := 0; i < 64; i++ {
		if v[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp, true
}

// HammingDistance counts differing bits between two fingerprints
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// FingerprintEntry pairs a fingerprint with the item that produced it
type FingerprintEntry struct {
	ID          string `json:"id"`
	Fingerprint uint64 `json:"fp"`
}

// FingerprintHistory is a bounded rolling window of fingerprints, oldest
// evicted first. Callers serialize access.
type FingerprintHistory struct {
	cap     int
	entries []FingerprintEntry
}

// NewFingerprintHistory creates a history holding at most capacity entries
func NewFingerprintHistory(capacity int) *FingerprintHistory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &FingerprintHistory{cap: capacity, entries: make([]FingerprintEntry, 0, capacity)}
}

// Nearest returns the closest stored entry and its distance
func (h *FingerprintHistory) Nearest(fp uint64) (FingerprintEntry, int, bool) {
	best := -1
	bestDist := 65
	for i, e := range h.entries {
		if d := HammingDistance(fp, e.Fingerprint); d < bestDist {
			best, bestDist = i, d
			if d == 0 {
				break
			}
		}
	}
	if best < 0 {
		return FingerprintEntry{}, 0, false
	}
	return h.entries[best], bestDist, true
}

// Add appends an entry, evicting the oldest when full
func (h *FingerprintHistory) Add(id string, fp uint64) {
	if len(h.entries) >= h.cap {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, FingerprintEntry{ID: id, Fingerprint: fp})
}

// Len returns the number of stored fingerprints
func (h *FingerprintHistory) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the stored entries oldest first
func (h *FingerprintHistory) Entries() []FingerprintEntry {
	out := make([]FingerprintEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Load replaces the history, keeping the most recent cap entries
func (h *FingerprintHistory) Load(entries []FingerprintEntry) {
	h.entries = h.entries[:0]
	for _, e := range entries {
		h.Add(e.ID, e.Fingerprint)
	}
}
