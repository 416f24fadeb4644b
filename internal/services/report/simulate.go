package report

import (
	"time"
)

// DefaultInitialCapital is the starting equity of the simulated account
const DefaultInitialCapital = 10000.0

// Trade is one closed simulated position: entry at the event snapshot,
// exit at the 1h price, sized with the full current equity
type Trade struct {
	Time      time.Time
	Direction int
	Entry     float64
	Exit      float64
	Capital   float64
	ReturnPct float64
	PnL       float64
	Equity    float64
	DailyPnL  float64
	Score     float64
}

// Win reports a positive return
func (t Trade) Win() bool {
	return t.ReturnPct > 0
}

// OpenPosition is a signal whose exit price is not known yet
type OpenPosition struct {
	ID        string
	Time      time.Time
	Direction int
	Entry     float64
	Score     float64
}

// Simulation is the result of replaying the month's signals as trades
type Simulation struct {
	InitialCapital float64
	Equity         float64
	Trades         []Trade
	Open           []OpenPosition
	Wins           int
	TotalReturnPct float64 // sum of per-trade returns
}

// WinRate is the share of winning trades in percent
func (s *Simulation) WinRate() float64 {
	return rate(s.Wins, len(s.Trades))
}

// AverageReturn is the mean per-trade return in percent
func (s *Simulation) AverageReturn() float64 {
	if len(s.Trades) == 0 {
		return 0
	}
	return s.TotalReturnPct / float64(len(s.Trades))
}

// MonthlyReturn is the equity change in percent
func (s *Simulation) MonthlyReturn() float64 {
	if s.InitialCapital == 0 {
		return 0
	}
	return (s.Equity - s.InitialCapital) / s.InitialCapital * 100
}

// Simulate replays rows in time order. Neutral rows and rows without a
// snapshot are skipped. A signal in the same direction as the previous one
// while that position is still held is ignored.
func Simulate(rows []Row, capital float64, hold time.Duration) *Simulation {
	sim := &Simulation{InitialCapital: capital, Equity: capital}

	var (
		activeUntil time.Time
		activeDir   int
		day         string
		dayStart    = capital
	)

	for _, row := range rows {
		rec := row.Record
		if row.Direction == 0 {
			continue
		}
		at := rec.Timestamp.UTC()
		if at.Before(activeUntil) && row.Direction == activeDir {
			continue
		}
		if rec.GoldPriceSnapshot == nil || *rec.GoldPriceSnapshot == 0 {
			continue
		}
		entry := *rec.GoldPriceSnapshot

		if d := at.Format(time.DateOnly); d != day {
			day = d
			dayStart = sim.Equity
		}

		activeUntil = at.Add(hold)
		activeDir = row.Direction

		if rec.Price1h == nil {
			sim.Open = append(sim.Open, OpenPosition{
				ID:        rec.ID,
				Time:      at,
				Direction: row.Direction,
				Entry:     entry,
				Score:     rec.SentimentScore,
			})
			continue
		}

		exit := *rec.Price1h
		ret := (exit - entry) / entry
		if row.Direction < 0 {
			ret = -ret
		}

		trade := Trade{
			Time:      at,
			Direction: row.Direction,
			Entry:     entry,
			Exit:      exit,
			Capital:   sim.Equity,
			ReturnPct: ret * 100,
			PnL:       sim.Equity * ret,
			Score:     rec.SentimentScore,
		}
		sim.Equity += trade.PnL
		trade.Equity = sim.Equity
		trade.DailyPnL = sim.Equity - dayStart

		sim.TotalReturnPct += trade.ReturnPct
		if trade.Win() {
			sim.Wins++
		}
		sim.Trades = append(sim.Trades, trade)
	}

	return sim
}
