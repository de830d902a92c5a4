package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"BankStats/internal/domain/models"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestCSVStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCSVPriceStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	in := models.PriceSeries{Ticker: "jpm", Records: []models.PriceRecord{
		{Date: day(5), Open: 101, High: 103, Low: 100.5, Close: 102.25, Volume: 900},
		{Date: day(4), Open: 100, High: 101.5, Low: 99, Close: 100.1, Volume: 1000},
	}}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stock_data_JPM")); err != nil {
		t.Fatalf("expected stock_data_JPM file: %v", err)
	}

	out, err := store.Load(ctx, "JPM")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Len() != 2 || !out.Records[0].Date.Equal(day(4)) || out.Records[1].Close != 102.25 {
		t.Fatalf("unexpected series %+v", out)
	}

	ranged, err := store.LoadRange(ctx, "JPM", day(5), time.Time{})
	if err != nil || ranged.Len() != 1 {
		t.Fatalf("expected one record from day 5, got %+v %v", ranged, err)
	}
	if _, err := store.LoadRange(ctx, "JPM", day(10), day(12)); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData for empty range, got %v", err)
	}

	tickers, err := store.Tickers(ctx)
	if err != nil || len(tickers) != 1 || tickers[0] != "JPM" {
		t.Fatalf("unexpected tickers %v %v", tickers, err)
	}
}

func TestCSVStoreMissingTicker(t *testing.T) {
	store, _ := NewCSVPriceStore(t.TempDir(), nil)
	if _, err := store.Load(context.Background(), "GS"); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
	if err := store.Save(context.Background(), models.PriceSeries{Ticker: "GS"}); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData when saving empty series, got %v", err)
	}
	if _, err := store.Load(context.Background(), "../etc"); err == nil {
		t.Fatalf("expected invalid ticker error")
	}
}

func TestCSVStoreReadsPandasLayout(t *testing.T) {
	dir := t.TempDir()
	body := ",open,high,low,close,volume\n" +
		"2024-03-05,101.0,103.0,100.5,102.0,900.0\n" +
		"2024-03-04,100.0,101.5,99.0,100.0,1000.0\n"
	if err := os.WriteFile(filepath.Join(dir, "stock_data_BAC"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewCSVPriceStore(dir, nil)
	s, err := store.Load(context.Background(), "BAC")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 2 || s.Records[0].Close != 100 || s.Records[1].Volume != 900 {
		t.Fatalf("unexpected series %+v", s)
	}
}

func TestCSVStoreReadsEmptyCellsAsGaps(t *testing.T) {
	dir := t.TempDir()
	body := ",open,high,low,close,volume\n" +
		"2024-03-04,100.0,101.5,99.0,100.0,1000.0\n" +
		"2024-03-05,101.0,103.0,100.5,,\n" +
		"2024-03-06,102.0,104.0,101.0,103.0,800.0\n"
	if err := os.WriteFile(filepath.Join(dir, "stock_data_WFC"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewCSVPriceStore(dir, nil)
	ctx := context.Background()
	s, err := store.Load(ctx, "WFC")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 3 || !math.IsNaN(s.Records[1].Close) || s.Records[1].Volume != 0 || s.Records[2].Close != 103 {
		t.Fatalf("unexpected series %+v", s)
	}

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := store.Load(ctx, "WFC")
	if err != nil || !math.IsNaN(again.Records[1].Close) {
		t.Fatalf("expected gap to survive a save, got %+v %v", again, err)
	}
}

func TestCSVStoreRejectsBadRows(t *testing.T) {
	dir := t.TempDir()
	body := "date,open,high,low,close,volume\n2024-03-04,1,1,1,abc,1\n"
	_ = os.WriteFile(filepath.Join(dir, "stock_data_C"), []byte(body), 0o644)
	store, _ := NewCSVPriceStore(dir, nil)
	if _, err := store.Load(context.Background(), "C"); err == nil {
		t.Fatalf("expected parse error")
	}
}

type captureProducer struct {
	topic string
	key   []byte
	value []byte
}

func (p *captureProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value.([]byte)
	return nil
}

func (p *captureProducer) Close() error { return nil }

func TestKafkaReportPublisherNullsUndefined(t *testing.T) {
	prod := &captureProducer{}
	pub := NewKafkaReportPublisher(prod, "reports")
	report := &models.AnalyticsReport{
		ID:          "r-1",
		GeneratedAt: day(5),
		Tickers:     []string{"GS", "JPM"},
		Correlation: models.CorrelationMatrix{
			Tickers: []string{"GS", "JPM"},
			Values: map[string]map[string]float64{
				"GS":  {"GS": 1, "JPM": math.NaN()},
				"JPM": {"GS": math.NaN(), "JPM": 1},
			},
		},
		Stdev:      map[string]float64{"GS": 0.0123456789, "JPM": math.NaN()},
		Regression: &models.RegressionResult{Ticker: "JPM", Score: math.NaN(), PredictedReturn: 0.001, LastDate: day(5)},
	}
	if err := pub.PublishReport(context.Background(), report); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if prod.topic != "reports" || string(prod.key) != "r-1" {
		t.Fatalf("unexpected topic/key %q %q", prod.topic, prod.key)
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(prod.value, &msg); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	corr := msg["correlation"].(map[string]interface{})["GS"].(map[string]interface{})
	if corr["JPM"] != nil || corr["GS"].(float64) != 1 {
		t.Fatalf("unexpected correlation row %v", corr)
	}
	stdev := msg["stdev"].(map[string]interface{})
	if stdev["JPM"] != nil || stdev["GS"].(float64) != 0.012346 {
		t.Fatalf("unexpected stdev %v", stdev)
	}
	reg := msg["regression"].(map[string]interface{})
	if reg["score"] != nil || reg["last_date"] != "2024-03-05" {
		t.Fatalf("unexpected regression %v", reg)
	}
}
