package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	maxOpenListed = 5
	maxTopEvents  = 10
)

// Markdown renders the report as GitHub-flavoured markdown
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Title())
	fmt.Fprintf(&b, "Generated %s UTC from %d records (%d clustered).\n\n", r.Generated.Format("2006-01-02 15:04"), len(r.Rows), r.Clustered)

	b.WriteString("## Direction hit rate\n\n")
	b.WriteString("| Set | Sentiment | Events | 1h evaluated | 1h hit rate | 24h evaluated | 24h hit rate |\n")
	b.WriteString("|-----|-----------|--------|--------------|-------------|---------------|--------------|\n")
	for _, set := range []struct {
		name  string
		stats Stats
	}{
		{"All", r.All},
		{"Clean", r.Clean},
	} {
		writeHitRow(&b, set.name, "Bullish", set.stats.Bullish)
		writeHitRow(&b, set.name, "Bearish", set.stats.Bearish)
	}
	b.WriteString("\nClean excludes events inside a news cluster.\n\n")

	if sim := r.Simulation; sim != nil {
		b.WriteString("## Simulated trading\n\n")
		fmt.Fprintf(&b, "- Trades: %d\n", len(sim.Trades))
		if len(sim.Trades) > 0 {
			fmt.Fprintf(&b, "- Win rate: %.1f%%\n", sim.WinRate())
			fmt.Fprintf(&b, "- Average return per trade: %.2f%%\n", sim.AverageReturn())
		}
		fmt.Fprintf(&b, "- Initial capital: $%.2f\n", sim.InitialCapital)
		fmt.Fprintf(&b, "- Final equity: $%.2f\n", sim.Equity)
		fmt.Fprintf(&b, "- Monthly return: $%.2f (%.2f%%)\n\n", sim.Equity-sim.InitialCapital, sim.MonthlyReturn())

		if len(sim.Trades) > 0 {
			b.WriteString("| # | Side | Time (UTC) | Entry | Exit | Capital | Return | Equity | Day PnL | Score |\n")
			b.WriteString("|---|------|------------|-------|------|---------|--------|--------|---------|-------|\n")
			for i, t := range sim.Trades {
				fmt.Fprintf(&b, "| %d | %s | %s | %.2f | %.2f | %.2f | %.2f%% | %.2f | %.2f | %.2f |\n",
					i+1, side(t.Direction), t.Time.Format("2006-01-02 15:04"), t.Entry, t.Exit, t.Capital, t.ReturnPct, t.Equity, t.DailyPnL, t.Score)
			}
			b.WriteString("\n")
		}

		if len(sim.Open) > 0 {
			fmt.Fprintf(&b, "### Open positions\n\n%d signals have no exit price yet.\n\n", len(sim.Open))
			for i, p := range sim.Open {
				if i == maxOpenListed {
					fmt.Fprintf(&b, "- and %d more\n", len(sim.Open)-maxOpenListed)
					break
				}
				fmt.Fprintf(&b, "- %s %s at %.2f (%s)\n", p.Time.Format("2006-01-02 15:04"), side(p.Direction), p.Entry, p.ID)
			}
			b.WriteString("\n")
		}
	}

	if top := r.topEvents(maxTopEvents); len(top) > 0 {
		b.WriteString("## Most urgent events\n\n")
		b.WriteString("| Time (UTC) | Urgency | Author | Summary | 1h | 24h |\n")
		b.WriteString("|------------|---------|--------|---------|----|-----|\n")
		for _, row := range top {
			rec := row.Record
			fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s |\n",
				rec.Timestamp.UTC().Format("2006-01-02 15:04"),
				rec.UrgencyScore,
				cell(rec.Author),
				cell(rec.Summary.Get("en")),
				pct(row.Change1h),
				pct(row.Change24h))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeHitRow(b *strings.Builder, set, sentiment string, h HitStats) {
	fmt.Fprintf(b, "| %s | %s | %d | %d | %.1f%% | %d | %.1f%% |\n",
		set, sentiment, h.Events, h.Evaluated1h, h.Rate1h(), h.Evaluated24h, h.Rate24h())
}

// topEvents returns the most urgent rows, newest first among equals
func (r *Report) topEvents(n int) []Row {
	rows := make([]Row, len(r.Rows))
	copy(rows, r.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Record, rows[j].Record
		if a.UrgencyScore != b.UrgencyScore {
			return a.UrgencyScore > b.UrgencyScore
		}
		return a.Timestamp.After(b.Timestamp)
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func side(direction int) string {
	if direction > 0 {
		return "Long"
	}
	return "Short"
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

// cell flattens text for a table cell
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", "/")
	if r := []rune(s); len(r) > 120 {
		s = string(r[:117]) + "..."
	}
	return s
}

// FileBase is the file name stem for a month's artifacts
func FileBase(month time.Time) string {
	return "report_" + month.Format(monthLayout)
}
