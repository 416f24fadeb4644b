package indicators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/interfaces"
	"github.com/ternarybob/aurum/internal/models"
	"github.com/ternarybob/aurum/internal/signals"
)

// SeedRegimes writes FED_REGIME rows from path, or the built-in defaults
// when path is empty. Rows are keyed by date so reseeding overwrites.
func SeedRegimes(ctx context.Context, store interfaces.IndicatorStorage, path string, logger arbor.ILogger) (int, error) {
	rows := signals.DefaultFedRegimes()
	if path != "" {
		seeds, err := signals.LoadRegimeSeeds(path)
		if err != nil {
			return 0, err
		}
		if rows, err = signals.RegimeRows(seeds); err != nil {
			return 0, err
		}
	}

	for _, row := range rows {
		if err := store.SaveIndicator(ctx, row); err != nil {
			return 0, fmt.Errorf("save regime %s: %w", row.ID, err)
		}
		logger.Debug().
			Str("date", row.Timestamp.Format("2006-01-02")).
			Float64("value", row.Value).
			Str("description", row.Description).
			Msg("Regime seeded")
	}

	logger.Info().Int("rows", len(rows)).Msg("Fed regimes seeded")
	return len(rows), nil
}

// RegimeAt returns the regime in force at t, nil when none was seeded before t
func RegimeAt(ctx context.Context, store interfaces.IndicatorStorage, at time.Time) (*models.MarketIndicator, error) {
	row, err := store.GetIndicatorAt(ctx, models.IndicatorFedRegime, at)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("regime at %s: %w", at.Format(time.RFC3339), err)
	}
	return row, nil
}
