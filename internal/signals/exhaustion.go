package signals

import (
	"math"
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// ExhaustionScore measures how much same-direction news preceded an event.
// Each prior event in the window contributes 0.5^(age/halfLife); the sum is
// squashed into [0,1) with 1 - 1/(1+sum). Neutral events score 0.
func ExhaustionScore(events []models.EventPoint, at time.Time, direction int, window, halfLife time.Duration) float64 {
	if direction == 0 {
		return 0
	}
	if window <= 0 {
		window = DefaultExhaustionWindow
	}
	if halfLife <= 0 {
		halfLife = DefaultExhaustionHalfLife
	}
	from := at.Add(-window)

	sum := 0.0
	for _, e := range events {
		if e.Direction != direction || e.Time.Before(from) || !e.Time.Before(at) {
			continue
		}
		age := at.Sub(e.Time)
		sum += math.Pow(0.5, float64(age)/float64(halfLife))
	}
	return round(clamp(1-1/(1+sum), 0, 1), 4)
}
