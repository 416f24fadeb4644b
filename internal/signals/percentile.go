package signals

// Positioning labels for a percentile
const (
	PositionOvercrowded = "OVERCROWDED"
	PositionClearing    = "CLEARING"
	PositionNeutral     = "NEUTRAL"
)

// Percentile defaults sized for three years of weekly data
const (
	DefaultPercentileWindow     = 156
	DefaultPercentileMinPeriods = 20
)

// RollingPercentile ranks the last value within the trailing window, with
// ties averaged, scaled to 0-100. Fewer than minPeriods values yield 50.
func RollingPercentile(values []float64, window, minPeriods int) float64 {
	if window <= 0 {
		window = DefaultPercentileWindow
	}
	if minPeriods <= 0 {
		minPeriods = DefaultPercentileMinPeriods
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}
	if len(values) == 0 || len(values) < minPeriods {
		return 50
	}

	last := values[len(values)-1]
	less, equal := 0, 0
	for _, v := range values {
		switch {
		case v < last:
			less++
		case v == last:
			equal++
		}
	}
	rank := float64(less) + float64(equal+1)/2
	return round(rank/float64(len(values))*100, 2)
}

// RollingPercentiles returns RollingPercentile for every prefix of values
func RollingPercentiles(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = RollingPercentile(values[:i+1], window, minPeriods)
	}
	return out
}

// Positioning labels a percentile
func Positioning(p float64) string {
	switch {
	case p > 85:
		return PositionOvercrowded
	case p < 15:
		return PositionClearing
	default:
		return PositionNeutral
	}
}
