package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/internal/services/features"
)

// AlignReturns computes each ticker's daily returns and joins them on the dates
// where every ticker has a defined return. Dates missing from any one ticker
// are dropped for all of them.
func AlignReturns(series map[string]models.PriceSeries) (models.ReturnsMatrix, error) {
	if len(series) == 0 {
		return models.ReturnsMatrix{}, fmt.Errorf("align returns: %w", models.ErrMissingData)
	}

	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	byTicker := make(map[string]map[time.Time]float64, len(tickers))
	counts := make(map[time.Time]int)
	for _, t := range tickers {
		s := series[t]
		if s.Empty() {
			return models.ReturnsMatrix{}, fmt.Errorf("align returns %s: %w", t, models.ErrMissingData)
		}
		rets := features.DailyReturns(s.Sorted())
		m := make(map[time.Time]float64, len(rets))
		for _, p := range rets {
			if math.IsNaN(p.Return) {
				continue
			}
			d := models.TruncateDay(p.Date)
			if _, dup := m[d]; dup {
				continue
			}
			m[d] = p.Return
			counts[d]++
		}
		byTicker[t] = m
	}

	dates := make([]time.Time, 0, len(counts))
	for d, n := range counts {
		if n == len(tickers) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := models.ReturnsMatrix{
		Tickers: tickers,
		Dates:   dates,
		Columns: make(map[string][]float64, len(tickers)),
	}
	for _, t := range tickers {
		col := make([]float64, len(dates))
		for i, d := range dates {
			col[i] = byTicker[t][d]
		}
		out.Columns[t] = col
	}
	return out, nil
}

// Pearson returns the correlation coefficient of two equally long samples.
// NaN when there are fewer than 2 observations or either sample is constant.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return math.NaN()
	}
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	r := sxy / math.Sqrt(sxx*syy)
	// rounding can push |r| a hair past 1
	return math.Max(-1, math.Min(1, r))
}

// SampleStdev is the standard deviation with denominator n-1.
func SampleStdev(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return math.NaN()
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Correlation computes the pairwise Pearson matrix of an aligned returns matrix.
func Correlation(m models.ReturnsMatrix) models.CorrelationMatrix {
	out := models.CorrelationMatrix{
		Tickers: append([]string(nil), m.Tickers...),
		Values:  make(map[string]map[string]float64, len(m.Tickers)),
	}
	for _, a := range m.Tickers {
		out.Values[a] = make(map[string]float64, len(m.Tickers))
	}
	for i, a := range m.Tickers {
		for j := i; j < len(m.Tickers); j++ {
			b := m.Tickers[j]
			r := Pearson(m.Columns[a], m.Columns[b])
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			out.Values[a][b] = r
			out.Values[b][a] = r
		}
	}
	return out
}

// Stdev computes the sample standard deviation of every column.
func Stdev(m models.ReturnsMatrix) map[string]float64 {
	out := make(map[string]float64, len(m.Tickers))
	for _, t := range m.Tickers {
		out[t] = SampleStdev(m.Columns[t])
	}
	return out
}

// CalcCorrelation aligns the tickers' returns and correlates them.
func CalcCorrelation(series map[string]models.PriceSeries) (models.CorrelationMatrix, error) {
	m, err := AlignReturns(series)
	if err != nil {
		return models.CorrelationMatrix{}, err
	}
	return Correlation(m), nil
}

// CalcStdev aligns the tickers' returns and measures their dispersion.
func CalcStdev(series map[string]models.PriceSeries) (map[string]float64, error) {
	m, err := AlignReturns(series)
	if err != nil {
		return nil, err
	}
	return Stdev(m), nil
}

func mean(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}
