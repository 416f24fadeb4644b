package signals

import (
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// SessionAt maps a time to the active gold trading session by UTC hour
func SessionAt(t time.Time) models.MarketSession {
	t = t.UTC()
	h := t.Hour()

	switch t.Weekday() {
	case time.Saturday:
		return models.SessionClosed
	case time.Sunday:
		// The week opens in Asia on Sunday evening
		if h < 22 {
			return models.SessionClosed
		}
		return models.SessionAsia
	}

	switch {
	case h < 7:
		return models.SessionAsia
	case h < 13:
		return models.SessionEurope
	case h < 21:
		return models.SessionUS
	default:
		return models.SessionClosed
	}
}
