package features

import (
	"math"

	"BankStats/internal/domain/models"
)

// PctChange computes simple returns r_i = c_i / c_{i-1} - 1.
// The output has the same length as closes; index 0 is NaN, and so is any
// position whose previous close is zero or whose inputs are NaN.
func PctChange(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 || math.IsNaN(prev) {
			out[i] = math.NaN()
			continue
		}
		out[i] = closes[i]/prev - 1
	}
	return out
}

// DailyReturns computes the returns series of a price series, keeping one point
// per record so that it stays aligned with the source dates.
func DailyReturns(series models.PriceSeries) models.ReturnsSeries {
	rets := PctChange(series.Closes())
	out := make(models.ReturnsSeries, len(rets))
	for i, r := range rets {
		out[i] = models.ReturnPoint{Date: series.Records[i].Date, Return: r}
	}
	return out
}
