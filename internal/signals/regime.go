package signals

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/aurum/internal/models"
)

// Regime values
const (
	RegimeHawkish = -1
	RegimeNeutral = 0
	RegimeDovish  = 1
)

// RegimeSeed is one entry of a regime seed file
type RegimeSeed struct {
	Date        string  `yaml:"date"`
	Value       float64 `yaml:"value"`
	Description string  `yaml:"description"`
}

var defaultRegimeSeeds = []RegimeSeed{
	{Date: "2021-01-01", Value: RegimeNeutral, Description: "Neutral / Post-COVID Accommodation"},
	{Date: "2022-03-16", Value: RegimeHawkish, Description: "Hawkish / Fed starts aggressive hike cycle"},
	{Date: "2024-09-18", Value: RegimeDovish, Description: "Dovish / Fed starts rate cut cycle (50bps pivot)"},
}

// DefaultFedRegimes returns the built-in Fed policy regime rows
func DefaultFedRegimes() []*models.MarketIndicator {
	rows, _ := RegimeRows(defaultRegimeSeeds)
	return rows
}

// LoadRegimeSeeds reads seeds from a YAML file of the form:
//
//	regimes:
//	  - date: 2022-03-16
//	    value: -1
//	    description: Hawkish
func LoadRegimeSeeds(path string) ([]RegimeSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read regime file: %w", err)
	}
	var doc struct {
		Regimes []RegimeSeed `yaml:"regimes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse regime file: %w", err)
	}
	if len(doc.Regimes) == 0 {
		return nil, fmt.Errorf("regime file %s has no regimes", path)
	}
	return doc.Regimes, nil
}

// RegimeRows converts seeds to FED_REGIME indicator rows at UTC midnight
func RegimeRows(seeds []RegimeSeed) ([]*models.MarketIndicator, error) {
	rows := make([]*models.MarketIndicator, 0, len(seeds))
	for _, s := range seeds {
		ts, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid regime date %q: %w", s.Date, err)
		}
		rows = append(rows, &models.MarketIndicator{
			ID:          models.IndicatorID(models.IndicatorFedRegime, ts),
			Timestamp:   ts,
			Name:        models.IndicatorFedRegime,
			Value:       s.Value,
			Description: s.Description,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

// RegimeAt returns the latest row at or before t, nil when t precedes every row
func RegimeAt(rows []*models.MarketIndicator, t time.Time) *models.MarketIndicator {
	var best *models.MarketIndicator
	for _, r := range rows {
		if r.Timestamp.After(t) {
			continue
		}
		if best == nil || r.Timestamp.After(best.Timestamp) {
			best = r
		}
	}
	return best
}

// RegimeLabel names a regime value
func RegimeLabel(v float64) string {
	switch {
	case v < 0:
		return "HAWKISH"
	case v > 0:
		return "DOVISH"
	default:
		return "NEUTRAL"
	}
}
