package models

import (
	"math"
	"time"
)

// ReturnPoint is the daily return observed on Date.
// Return is NaN when it cannot be computed (first record, gap, zero prior close).
type ReturnPoint struct {
	Date   time.Time
	Return float64
}

// ReturnsSeries keeps one point per price record; the point of the first stored record is NaN.
type ReturnsSeries []ReturnPoint

// Values returns the raw return values in order.
func (r ReturnsSeries) Values() []float64 {
	out := make([]float64, len(r))
	for i, p := range r {
		out[i] = p.Return
	}
	return out
}

// Defined counts the entries with a usable return.
func (r ReturnsSeries) Defined() int {
	n := 0
	for _, p := range r {
		if !math.IsNaN(p.Return) {
			n++
		}
	}
	return n
}

// ReturnsMatrix holds per-ticker returns aligned on a shared date index.
// Columns[t][i] is the return of ticker t on Dates[i].
type ReturnsMatrix struct {
	Tickers []string
	Dates   []time.Time
	Columns map[string][]float64
}

// Rows returns the number of aligned observations.
func (m ReturnsMatrix) Rows() int { return len(m.Dates) }

// CorrelationMatrix maps ticker pairs to their Pearson coefficient.
type CorrelationMatrix struct {
	Tickers []string
	Values  map[string]map[string]float64
}

// Get returns the coefficient for (a, b), NaN when either ticker is unknown.
func (c CorrelationMatrix) Get(a, b string) float64 {
	row, ok := c.Values[a]
	if !ok {
		return math.NaN()
	}
	v, ok := row[b]
	if !ok {
		return math.NaN()
	}
	return v
}

// FeatureRow is one model-ready observation.
type FeatureRow struct {
	Date          time.Time
	Close         float64
	DailyReturn   float64
	MovingAverage float64
	PreviousClose float64
}

// FeatureTable is the engineered dataset of one ticker. Rows are densely indexed.
type FeatureTable struct {
	Ticker string
	Window int
	Rows   []FeatureRow
}

// Len returns the number of model-ready rows.
func (t FeatureTable) Len() int { return len(t.Rows) }

// Last returns the most recent row.
func (t FeatureTable) Last() (FeatureRow, bool) {
	if len(t.Rows) == 0 {
		return FeatureRow{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// MovingAveragePoint pairs a close with its trailing average. Average is NaN
// until the window is filled.
type MovingAveragePoint struct {
	Date    time.Time
	Close   float64
	Average float64
}
