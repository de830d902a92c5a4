package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"BankStats/internal/domain/models"
)

func priceSeries(ticker string, start time.Time, closes []float64) models.PriceSeries {
	s := models.PriceSeries{Ticker: ticker}
	for i, c := range closes {
		s.Records = append(s.Records, models.PriceRecord{Date: start.AddDate(0, 0, i), Close: c})
	}
	return s
}

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestPearsonIdenticalAndInverse(t *testing.T) {
	x := []float64{0.01, 0.02, -0.01}
	y := []float64{-0.01, -0.02, 0.01}
	if got := Pearson(x, x); got != 1 {
		t.Fatalf("expected exactly 1, got %v", got)
	}
	if got := Pearson(x, y); got != -1 {
		t.Fatalf("expected exactly -1, got %v", got)
	}
}

func TestPearsonDegenerate(t *testing.T) {
	if !math.IsNaN(Pearson([]float64{0.1}, []float64{0.2})) {
		t.Fatalf("expected NaN for a single observation")
	}
	if !math.IsNaN(Pearson([]float64{0.1, 0.1, 0.1}, []float64{0.1, 0.2, 0.3})) {
		t.Fatalf("expected NaN for zero variance")
	}
	if !math.IsNaN(Pearson([]float64{0.1, 0.2}, []float64{0.1})) {
		t.Fatalf("expected NaN for unequal lengths")
	}
}

func TestSampleStdev(t *testing.T) {
	got := SampleStdev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	// population stdev is 2; sample uses n-1
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v want %v", got, want)
	}
	if !math.IsNaN(SampleStdev([]float64{1})) {
		t.Fatalf("expected NaN for one observation")
	}
	if SampleStdev([]float64{3, 3, 3}) != 0 {
		t.Fatalf("expected 0 for constant input")
	}
}

func TestCalcCorrelationIdenticalSeries(t *testing.T) {
	closes := []float64{100, 101, 99, 102, 104, 103}
	series := map[string]models.PriceSeries{
		"JPM": priceSeries("JPM", day0, closes),
		"GS":  priceSeries("GS", day0, closes),
	}
	corr, err := CalcCorrelation(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corr.Get("JPM", "GS") != 1 || corr.Get("GS", "JPM") != 1 {
		t.Fatalf("expected exactly 1, got %v", corr.Values)
	}
	if corr.Get("JPM", "JPM") != 1 {
		t.Fatalf("expected unit diagonal")
	}
	if len(corr.Tickers) != 2 || corr.Tickers[0] != "GS" || corr.Tickers[1] != "JPM" {
		t.Fatalf("expected sorted tickers, got %v", corr.Tickers)
	}
}

func TestCorrelationInverseColumns(t *testing.T) {
	m := models.ReturnsMatrix{
		Tickers: []string{"BAC", "C"},
		Dates:   []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2)},
		Columns: map[string][]float64{
			"BAC": {0.01, 0.02, -0.01},
			"C":   {-0.01, -0.02, 0.01},
		},
	}
	corr := Correlation(m)
	if corr.Get("BAC", "C") != -1 || corr.Get("C", "BAC") != -1 {
		t.Fatalf("expected exactly -1, got %v", corr.Values)
	}
}

func TestAlignReturnsDropsUnsharedDates(t *testing.T) {
	jpm := priceSeries("JPM", day0, []float64{10, 11, 12, 13, 14})
	gs := priceSeries("GS", day0, []float64{20, 21, 22, 23, 24})
	// GS is missing day 2, so its return on day 3 spans two sessions
	gs.Records = append(gs.Records[:2], gs.Records[3:]...)

	m, err := AlignReturns(map[string]models.PriceSeries{"JPM": jpm, "GS": gs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Rows() != 3 {
		t.Fatalf("expected 3 aligned dates, got %d (%v)", m.Rows(), m.Dates)
	}
	for _, d := range m.Dates {
		if d.Equal(day0.AddDate(0, 0, 2)) {
			t.Fatalf("date missing from GS survived alignment")
		}
	}
	if m.Columns["GS"][1] != 23.0/21.0-1 {
		t.Fatalf("unexpected GS return %v", m.Columns["GS"][1])
	}
}

func TestAlignReturnsMissingData(t *testing.T) {
	if _, err := AlignReturns(nil); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData for no tickers, got %v", err)
	}
	series := map[string]models.PriceSeries{
		"JPM": priceSeries("JPM", day0, []float64{1, 2, 3}),
		"C":   {Ticker: "C"},
	}
	if _, err := CalcStdev(series); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData for an empty series, got %v", err)
	}
}

func TestCalcStdevTooFewObservations(t *testing.T) {
	series := map[string]models.PriceSeries{
		"JPM": priceSeries("JPM", day0, []float64{100, 101}),
	}
	sd, err := CalcStdev(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(sd["JPM"]) {
		t.Fatalf("expected NaN from a single return, got %v", sd["JPM"])
	}
	corr, err := CalcCorrelation(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(corr.Get("JPM", "JPM")) {
		t.Fatalf("expected NaN diagonal, got %v", corr.Get("JPM", "JPM"))
	}
}

func TestCalcCorrelationIndependentOfMapOrder(t *testing.T) {
	series := map[string]models.PriceSeries{
		"JPM": priceSeries("JPM", day0, []float64{100, 102, 101, 105, 103, 104}),
		"GS":  priceSeries("GS", day0, []float64{300, 301, 305, 302, 299, 310}),
		"BAC": priceSeries("BAC", day0, []float64{30, 29, 31, 32, 30, 33}),
		"C":   priceSeries("C", day0, []float64{50, 51, 50, 52, 53, 51}),
	}
	first, err := CalcCorrelation(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := CalcCorrelation(series)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, a := range first.Tickers {
			for _, b := range first.Tickers {
				if first.Get(a, b) != again.Get(a, b) {
					t.Fatalf("%s/%s differs between runs", a, b)
				}
			}
		}
	}
	for _, a := range first.Tickers {
		for _, b := range first.Tickers {
			if first.Get(a, b) != first.Get(b, a) {
				t.Fatalf("matrix not symmetric at %s/%s", a, b)
			}
			if v := first.Get(a, b); v < -1 || v > 1 {
				t.Fatalf("coefficient out of range: %v", v)
			}
		}
	}
}
