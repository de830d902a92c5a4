package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"BankStats/internal/domain/models"
)

func makeSeries(ticker string, closes []float64) models.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := models.PriceSeries{Ticker: ticker}
	for i, c := range closes {
		s.Records = append(s.Records, models.PriceRecord{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		})
	}
	return s
}

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestPctChangeKnownValues(t *testing.T) {
	got := PctChange([]float64{100, 101, 99, 102})
	if len(got) != 4 {
		t.Fatalf("expected 4 positions, got %d", len(got))
	}
	if !math.IsNaN(got[0]) {
		t.Fatalf("expected NaN at position 0, got %v", got[0])
	}
	want := []float64{0.01, 99.0/101.0 - 1, 102.0/99.0 - 1}
	for i, w := range want {
		if !almostEqual(got[i+1], w, 1e-12) {
			t.Fatalf("return %d: got %v want %v", i+1, got[i+1], w)
		}
	}
	if !almostEqual(got[2], -0.0198, 1e-4) || !almostEqual(got[3], 0.0303, 1e-4) {
		t.Fatalf("unexpected returns %v", got)
	}
}

func TestPctChangeZeroAndGap(t *testing.T) {
	got := PctChange([]float64{10, 0, 5, math.NaN(), 7})
	if got[1] != -1 {
		t.Fatalf("expected -1 after drop to zero, got %v", got[1])
	}
	if !math.IsNaN(got[2]) {
		t.Fatalf("expected NaN after zero close, got %v", got[2])
	}
	if !math.IsNaN(got[3]) || !math.IsNaN(got[4]) {
		t.Fatalf("expected NaN around gap, got %v %v", got[3], got[4])
	}
}

func TestPctChangeEmpty(t *testing.T) {
	if got := PctChange(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestDailyReturnsLengthMatchesSeries(t *testing.T) {
	for n := 1; n <= 30; n++ {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 50 + float64(i%7)
		}
		rs := DailyReturns(makeSeries("JPM", closes))
		if len(rs) != n {
			t.Fatalf("n=%d: expected %d positions, got %d", n, n, len(rs))
		}
		if !math.IsNaN(rs[0].Return) {
			t.Fatalf("n=%d: expected NaN head", n)
		}
		if rs.Defined() != n-1 {
			t.Fatalf("n=%d: expected %d defined, got %d", n, n-1, rs.Defined())
		}
	}
}

func TestDailyReturnsConstantPrice(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 42.5
	}
	rs := DailyReturns(makeSeries("GS", closes))
	for i, p := range rs[1:] {
		if p.Return != 0 {
			t.Fatalf("position %d: expected 0, got %v", i+1, p.Return)
		}
	}
}

func TestMovingAverage(t *testing.T) {
	ma := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(ma[0]) || !math.IsNaN(ma[1]) {
		t.Fatalf("expected NaN warm-up, got %v", ma)
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(ma[i+2], w, 1e-12) {
			t.Fatalf("ma[%d]: got %v want %v", i+2, ma[i+2], w)
		}
	}
}

func TestMovingAverageRestartsAfterGap(t *testing.T) {
	ma := MovingAverage([]float64{1, 2, 3, math.NaN(), 10, 20, 30}, 2)
	if !almostEqual(ma[1], 1.5, 1e-12) || !almostEqual(ma[2], 2.5, 1e-12) {
		t.Fatalf("unexpected head averages %v", ma)
	}
	if !math.IsNaN(ma[3]) || !math.IsNaN(ma[4]) {
		t.Fatalf("expected NaN across gap, got %v", ma)
	}
	if !almostEqual(ma[5], 15, 1e-12) || !almostEqual(ma[6], 25, 1e-12) {
		t.Fatalf("unexpected tail averages %v", ma)
	}
}

func TestBuildFeatureTableBoundary(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	table, err := BuildFeatureTable(makeSeries("JPM", closes[:20]), DefaultWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("20 rows: expected empty table, got %d rows", table.Len())
	}

	table, err = BuildFeatureTable(makeSeries("JPM", closes), DefaultWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("21 rows: expected 1 row, got %d", table.Len())
	}
	row := table.Rows[0]
	if row.Close != 120 || row.PreviousClose != 119 {
		t.Fatalf("unexpected row %+v", row)
	}
	// mean of 101..120
	if !almostEqual(row.MovingAverage, 110.5, 1e-9) {
		t.Fatalf("unexpected moving average %v", row.MovingAverage)
	}
	if !almostEqual(row.DailyReturn, 120.0/119.0-1, 1e-12) {
		t.Fatalf("unexpected return %v", row.DailyReturn)
	}
}

func TestBuildFeatureTableSortsCopy(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 80 + float64(i)*0.5
	}
	series := makeSeries("BAC", closes)
	// reverse in place to simulate an unsorted input
	for i, j := 0, len(series.Records)-1; i < j; i, j = i+1, j-1 {
		series.Records[i], series.Records[j] = series.Records[j], series.Records[i]
	}
	firstDate := series.Records[0].Date

	table, err := BuildFeatureTable(series, DefaultWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 10 {
		t.Fatalf("expected 10 rows, got %d", table.Len())
	}
	for i := 1; i < table.Len(); i++ {
		if !table.Rows[i].Date.After(table.Rows[i-1].Date) {
			t.Fatalf("rows not ascending at %d", i)
		}
	}
	if !series.Records[0].Date.Equal(firstDate) {
		t.Fatalf("input series was mutated")
	}
}

func TestBuildFeatureTableIdempotent(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 30 + math.Sin(float64(i)/3)*2
	}
	series := makeSeries("C", closes)
	a, err := BuildFeatureTable(series, DefaultWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := BuildFeatureTable(series, DefaultWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Len() != b.Len() {
		t.Fatalf("row counts differ: %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Rows {
		if a.Rows[i] != b.Rows[i] {
			t.Fatalf("row %d differs: %+v vs %+v", i, a.Rows[i], b.Rows[i])
		}
	}
}

func TestBuildFeatureTableDropsGapRows(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 60 + float64(i)
	}
	closes[30] = math.NaN()
	table, err := BuildFeatureTable(makeSeries("JPM", closes), DefaultWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range table.Rows {
		if math.IsNaN(r.Close) || math.IsNaN(r.MovingAverage) || math.IsNaN(r.DailyReturn) || math.IsNaN(r.PreviousClose) {
			t.Fatalf("row with undefined field survived: %+v", r)
		}
	}
	// records 20..29 survive; the gap at 30 blanks every window through record 49
	if table.Len() != 10 {
		t.Fatalf("expected 10 rows, got %d", table.Len())
	}
}

func TestBuildFeatureTableEmptySeries(t *testing.T) {
	_, err := BuildFeatureTable(models.PriceSeries{Ticker: "GS"}, DefaultWindow)
	if !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
}
