package features

import (
	"fmt"
	"math"

	"BankStats/internal/domain/models"

	"github.com/markcheno/go-talib"
)

// DefaultWindow is the moving-average length used by the regression features.
const DefaultWindow = 20

// MovingAverage computes the trailing simple moving average of closes.
// Positions without a full window of defined closes are NaN. The average is
// computed with talib over each NaN-free run so a gap never leaks into later windows.
func MovingAverage(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	start := 0
	for start < len(closes) {
		if math.IsNaN(closes[start]) {
			start++
			continue
		}
		end := start
		for end < len(closes) && !math.IsNaN(closes[end]) {
			end++
		}
		if end-start >= window {
			sma := talib.Sma(closes[start:end], window)
			for i := window - 1; i < len(sma); i++ {
				out[start+i] = sma[i]
			}
		}
		start = end
	}
	return out
}

// BuildFeatureTable engineers the regression dataset for one ticker: daily
// return, trailing moving average of the close and the previous close. Rows
// with any undefined field are dropped and the rest are re-indexed from 0.
//
// The first record carries no return and takes no part in the averages, so the
// first usable row is record number window+1.
//
// The input is copied and sorted by date; the caller's series is not modified.
// A series with fewer than window+1 records yields an empty table.
func BuildFeatureTable(series models.PriceSeries, window int) (models.FeatureTable, error) {
	if series.Empty() {
		return models.FeatureTable{}, fmt.Errorf("build features %s: %w", series.Ticker, models.ErrMissingData)
	}
	if window <= 0 {
		window = DefaultWindow
	}

	sorted := series.Sorted()
	closes := sorted.Closes()
	rets := PctChange(closes)
	// ma[k] belongs to record k+1
	ma := MovingAverage(closes[1:], window)

	table := models.FeatureTable{Ticker: series.Ticker, Window: window, Rows: []models.FeatureRow{}}
	for i := 1; i < len(closes); i++ {
		row := models.FeatureRow{
			Date:          sorted.Records[i].Date,
			Close:         closes[i],
			DailyReturn:   rets[i],
			MovingAverage: ma[i-1],
			PreviousClose: closes[i-1],
		}
		if !rowDefined(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func rowDefined(r models.FeatureRow) bool {
	for _, v := range []float64{r.Close, r.DailyReturn, r.MovingAverage, r.PreviousClose} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
