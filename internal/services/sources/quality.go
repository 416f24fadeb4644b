package sources

import (
	"strings"

	"github.com/ternarybob/aurum/internal/models"
)

var (
	tierOneOutlets = []string{
		"Bloomberg", "Reuters", "Wall Street Journal", "WSJ", "Financial Times", "CNBC",
		"Dow Jones", "Barron's", "Fox Business",
	}
	tierTwoOutlets = []string{
		"The New York Times", "Washington Post", "Politico", "Associated Press", "AP News",
		"BBC", "MarketWatch", "Forbes", "Fortune", "Business Insider",
	}
	blockedOutlets = []string{
		"Daily Mail", "New York Post", "Express", "Sun", "Mirror", "Opinion", "Blog", "Substack",
	}
	noiseTitlePrefixes = []string{
		"Opinion:", "Analysis:", "Fact Check:", "Podcast:", "Watch:", "Video:", "Review:", "Editorial:",
	}
)

// ClassifySource maps an outlet name to its tier and urgency multiplier.
// Tiers are checked best-first, so "Reuters Blog" is still tier one.
func ClassifySource(name string) (tier int, multiplier float64) {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, tierOneOutlets):
		return models.TierOne, 1.5
	case containsAny(lower, tierTwoOutlets):
		return models.TierTwo, 1.0
	case containsAny(lower, blockedOutlets):
		return models.TierBlocked, 0
	default:
		return models.TierThree, 0.8
	}
}

// IsNoiseTitle reports whether a title is opinion, analysis or media rather than news
func IsNoiseTitle(title string) bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, p := range noiseTitlePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
