package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/pkg/cache"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]models.PriceSeries
}

func newMemStore() *memStore { return &memStore{data: map[string]models.PriceSeries{}} }

func (s *memStore) Load(ctx context.Context, ticker string) (models.PriceSeries, error) {
	return s.LoadRange(ctx, ticker, time.Time{}, time.Time{})
}

func (s *memStore) LoadRange(_ context.Context, ticker string, from, to time.Time) (models.PriceSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.data[ticker]
	if !ok {
		return models.PriceSeries{}, models.ErrMissingData
	}
	out := models.PriceSeries{Ticker: ticker}
	for _, r := range src.Records {
		if (!from.IsZero() && r.Date.Before(from)) || (!to.IsZero() && r.Date.After(to)) {
			continue
		}
		out.Records = append(out.Records, r)
	}
	if out.Empty() {
		return out, models.ErrMissingData
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, series models.PriceSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[series.Ticker] = series.Clone()
	return nil
}

func (s *memStore) Tickers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for t := range s.data {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

type fakeFetcher struct {
	mu     sync.Mutex
	series map[string]models.PriceSeries
	budget int
	calls  []string
}

func (f *fakeFetcher) FetchDaily(_ context.Context, ticker string) (models.PriceSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ticker)
	if len(f.calls) > f.budget {
		return models.PriceSeries{}, models.ErrBudgetExhausted
	}
	s, ok := f.series[ticker]
	if !ok {
		return models.PriceSeries{}, errors.New("unknown symbol")
	}
	return s, nil
}

type recordingPublisher struct {
	reports []*models.AnalyticsReport
}

func (p *recordingPublisher) PublishReport(_ context.Context, r *models.AnalyticsReport) error {
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func series(ticker string, n int, f func(i int) float64) models.PriceSeries {
	s := models.PriceSeries{Ticker: ticker}
	for i := 0; i < n; i++ {
		c := f(i)
		s.Records = append(s.Records, models.PriceRecord{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000})
	}
	return s
}

func wave(base, amp float64) func(int) float64 {
	return func(i int) float64 { return base + amp*math.Sin(float64(i)/3) + float64(i%7)*0.1 }
}

func TestReturnsAndMovingAverage(t *testing.T) {
	store := newMemStore()
	_ = store.Save(context.Background(), models.PriceSeries{Ticker: "JPM", Records: []models.PriceRecord{
		{Date: start, Close: 100},
		{Date: start.AddDate(0, 0, 1), Close: 101},
		{Date: start.AddDate(0, 0, 2), Close: 99},
		{Date: start.AddDate(0, 0, 3), Close: 102},
	}})
	svc := NewAnalyticsService(store, nil)

	rets, err := svc.Returns(context.Background(), "jpm", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("returns: %v", err)
	}
	if len(rets) != 4 || !math.IsNaN(rets[0].Return) || math.Abs(rets[1].Return-0.01) > 1e-12 {
		t.Fatalf("unexpected returns %+v", rets)
	}

	ma, err := svc.MovingAverage(context.Background(), "JPM", 2)
	if err != nil {
		t.Fatalf("moving average: %v", err)
	}
	if !math.IsNaN(ma[0].Average) || ma[1].Average != 100.5 || ma[3].Average != 100.5 {
		t.Fatalf("unexpected moving average %+v", ma)
	}

	if _, err := svc.Returns(context.Background(), "GS", time.Time{}, time.Time{}); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
}

func TestReturnsRangeUsesPriorClose(t *testing.T) {
	store := newMemStore()
	_ = store.Save(context.Background(), models.PriceSeries{Ticker: "JPM", Records: []models.PriceRecord{
		{Date: start, Close: 100},
		{Date: start.AddDate(0, 0, 1), Close: 101},
		{Date: start.AddDate(0, 0, 2), Close: 99},
		{Date: start.AddDate(0, 0, 3), Close: 102},
	}})
	svc := NewAnalyticsService(store, nil)
	ctx := context.Background()

	rets, err := svc.Returns(ctx, "JPM", start.AddDate(0, 0, 2), start.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("returns: %v", err)
	}
	if len(rets) != 1 || !rets[0].Date.Equal(start.AddDate(0, 0, 2)) || math.Abs(rets[0].Return-(99.0/101-1)) > 1e-12 {
		t.Fatalf("expected the first in-range return to use the prior close, got %+v", rets)
	}

	if _, err := svc.Returns(ctx, "JPM", start.AddDate(0, 0, 10), time.Time{}); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData for a range after the data, got %v", err)
	}
}

func TestCrossSectionReportsMissing(t *testing.T) {
	store := newMemStore()
	_ = store.Save(context.Background(), series("JPM", 30, wave(150, 3)))
	_ = store.Save(context.Background(), series("GS", 30, wave(380, 8)))
	svc := NewAnalyticsService(store, nil)

	cs, err := svc.CrossSection(context.Background(), []string{"JPM", "GS", "C"})
	if err != nil {
		t.Fatalf("cross section: %v", err)
	}
	if len(cs.Missing) != 1 || cs.Missing[0] != "C" {
		t.Fatalf("expected C missing, got %v", cs.Missing)
	}
	if cs.Observations != 29 || cs.Correlation.Get("GS", "GS") != 1 {
		t.Fatalf("unexpected cross section %+v", cs)
	}
	if _, err := svc.CrossSection(context.Background(), []string{"BAC"}); !errors.Is(err, models.ErrMissingData) {
		t.Fatalf("expected ErrMissingData when nothing is stored, got %v", err)
	}
}

func TestLinRegRoundsAndRequiresHistory(t *testing.T) {
	store := newMemStore()
	_ = store.Save(context.Background(), series("JPM", 80, wave(150, 3)))
	_ = store.Save(context.Background(), series("C", 22, wave(60, 1)))
	svc := NewAnalyticsService(store, nil, WithSplit(0.25, 7))

	res, err := svc.LinReg(context.Background(), "JPM", nil)
	if err != nil {
		t.Fatalf("linreg: %v", err)
	}
	if res.TrainRows+res.TestRows != 60 || res.TestRows != 15 {
		t.Fatalf("unexpected split %d/%d", res.TrainRows, res.TestRows)
	}
	if res.PredictedReturn != math.Round(res.PredictedReturn*1e4)/1e4 {
		t.Fatalf("predicted return not rounded: %v", res.PredictedReturn)
	}
	if !res.LastDate.Equal(start.AddDate(0, 0, 79)) {
		t.Fatalf("unexpected last date %v", res.LastDate)
	}

	// 22 records give 2 feature rows
	if _, err := svc.LinReg(context.Background(), "C", nil); !errors.Is(err, models.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestLoadFetchesOnFirstUse(t *testing.T) {
	store := newMemStore()
	f := &fakeFetcher{budget: 1, series: map[string]models.PriceSeries{"BAC": series("BAC", 5, wave(30, 1))}}
	svc := NewAnalyticsService(store, nil, WithFetcher(f))

	if _, err := svc.Returns(context.Background(), "BAC", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("returns: %v", err)
	}
	if _, err := svc.Returns(context.Background(), "BAC", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("returns: %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("expected one fetch, got %v", f.calls)
	}

	_, err := svc.Returns(context.Background(), "GS", time.Time{}, time.Time{})
	if !errors.Is(err, models.ErrMissingData) || !errors.Is(err, models.ErrBudgetExhausted) {
		t.Fatalf("expected missing data caused by budget, got %v", err)
	}
}

func TestRefreshFetchesPublishesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	f := &fakeFetcher{budget: 3, series: map[string]models.PriceSeries{
		"JPM": series("JPM", 40, wave(150, 3)),
		"GS":  series("GS", 40, wave(380, 8)),
		"BAC": series("BAC", 40, wave(30, 1)),
		"C":   series("C", 40, wave(60, 2)),
	}}
	mc := cache.NewMemoryCache()
	defer mc.Close()
	rc := NewResponseCache(mc, time.Minute, nil)
	rc.Set(ctx, rc.Key("stdev", "JPM"), map[string]float64{"JPM": 1})
	_ = mc.Set(ctx, "other", "keep", time.Minute)

	pub := &recordingPublisher{}
	svc := NewAnalyticsService(store, nil, WithTickers([]string{"JPM", "GS", "BAC", "C"}))
	refresh := NewRefreshService(f, store, svc, pub, mc, nil)

	res, err := refresh.Refresh(ctx, nil)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(res.Fetched) != 3 || len(res.Failed) != 1 {
		t.Fatalf("expected 3 fetched and 1 failed, got %v %v", res.Fetched, res.Failed)
	}
	if len(f.calls) != 4 {
		t.Fatalf("expected the 4th call to be refused by the budget, got %v", f.calls)
	}
	if res.Failed["C"] == "" {
		t.Fatalf("expected C to fail on budget, got %v", res.Failed)
	}
	if len(pub.reports) != 1 || pub.reports[0].ID != res.ReportID {
		t.Fatalf("expected published report %s", res.ReportID)
	}
	if rep := pub.reports[0]; len(rep.Missing) != 1 || rep.Regression == nil || rep.Regression.Ticker != "JPM" {
		t.Fatalf("unexpected report %+v", rep)
	}

	var cached map[string]float64
	if rc.Get(ctx, rc.Key("stdev", "JPM"), &cached) {
		t.Fatalf("expected cached responses to be dropped")
	}
	var keep string
	if err := mc.Get(ctx, "other", &keep); err != nil {
		t.Fatalf("unrelated key was removed: %v", err)
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	ok, _ := mc.TryLock(ctx, refreshLockKey, time.Minute)
	if !ok {
		t.Fatalf("expected to take the lock")
	}
	svc := NewAnalyticsService(newMemStore(), nil)
	refresh := NewRefreshService(&fakeFetcher{}, newMemStore(), svc, nil, mc, nil)
	if _, err := refresh.Refresh(ctx, nil); !errors.Is(err, models.ErrRefreshInProgress) {
		t.Fatalf("expected ErrRefreshInProgress, got %v", err)
	}
}

func TestRefreshCommandHandler(t *testing.T) {
	store := newMemStore()
	f := &fakeFetcher{budget: 10, series: map[string]models.PriceSeries{"JPM": series("JPM", 30, wave(150, 3))}}
	svc := NewAnalyticsService(store, nil, WithTickers([]string{"JPM"}))
	h := NewRefreshCommandHandler("refresh", NewRefreshService(f, store, svc, nil, nil, nil), nil)

	if h.Topic() != "refresh" {
		t.Fatalf("unexpected topic %q", h.Topic())
	}
	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	payload, _ := json.Marshal(models.RefreshCommand{ID: "cmd-1", Tickers: []string{"jpm"}})
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.calls) != 1 || f.calls[0] != "JPM" {
		t.Fatalf("expected one JPM fetch, got %v", f.calls)
	}
}
