package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"BankStats/internal/domain/models"
	domrepo "BankStats/internal/domain/repository"
	"BankStats/internal/domain/service"
	"BankStats/internal/services/analytics"
	"BankStats/internal/services/features"
	applogger "BankStats/pkg/logger"
	xutil "BankStats/pkg/util"
)

// scorePlaces is the precision of R² and predicted returns handed to clients.
const scorePlaces = 4

// AnalyticsOption configures AnalyticsService.
type AnalyticsOption func(*AnalyticsService)

// AnalyticsService answers analytics queries from stored price history.
// With a fetcher set, a ticker that has never been stored is fetched and
// saved on first use.
type AnalyticsService struct {
	store     domrepo.PriceStore
	fetcher   service.PriceFetcher
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	tickers   []string
	predict   string
	window    int
	testRatio float64
	seed      int64
	timeout   time.Duration
}

func NewAnalyticsService(store domrepo.PriceStore, logger *applogger.Logger, opts ...AnalyticsOption) *AnalyticsService {
	s := &AnalyticsService{
		store:     store,
		logger:    logger,
		tickers:   domrepo.DefaultTickers,
		predict:   "JPM",
		window:    features.DefaultWindow,
		testRatio: analytics.DefaultTestRatio,
		timeout:   30 * time.Second,
	}
	if s.logger == nil {
		s.logger = applogger.Nop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithFetcher(f service.PriceFetcher) AnalyticsOption {
	return func(s *AnalyticsService) { s.fetcher = f }
}

func WithMetrics(m domrepo.Metrics) AnalyticsOption {
	return func(s *AnalyticsService) { s.metrics = m }
}

// WithTickers sets the tickers used when a query names none.
func WithTickers(t []string) AnalyticsOption {
	return func(s *AnalyticsService) {
		if n := domrepo.NormalizeTickers(t); len(n) > 0 {
			s.tickers = n
		}
	}
}

// WithPredictTicker sets the ticker modelled in refresh reports.
func WithPredictTicker(t string) AnalyticsOption {
	return func(s *AnalyticsService) { s.predict = domrepo.NormalizeTicker(t) }
}

func WithWindow(w int) AnalyticsOption {
	return func(s *AnalyticsService) {
		if w > 0 {
			s.window = w
		}
	}
}

// WithSplit sets the held-out share and the default shuffle seed.
func WithSplit(testRatio float64, seed int64) AnalyticsOption {
	return func(s *AnalyticsService) {
		s.testRatio = testRatio
		s.seed = seed
	}
}

func WithQueryTimeout(d time.Duration) AnalyticsOption {
	return func(s *AnalyticsService) { s.timeout = d }
}

// DefaultTickers returns the configured ticker set.
func (s *AnalyticsService) DefaultTickers() []string {
	return append([]string(nil), s.tickers...)
}

// Tickers lists tickers with stored data.
func (s *AnalyticsService) Tickers(ctx context.Context) ([]string, error) {
	return s.store.Tickers(ctx)
}

// Returns computes the daily returns of a ticker, optionally limited to [from, to].
// Returns are computed on the history before the range is cut, so only the
// first stored record of the ticker is NaN.
func (s *AnalyticsService) Returns(ctx context.Context, ticker string, from, to time.Time) (models.ReturnsSeries, error) {
	defer s.observe("returns", time.Now())
	series, err := s.loadRange(ctx, ticker, time.Time{}, to)
	if err != nil {
		return nil, err
	}
	rets := features.DailyReturns(series)
	if from.IsZero() {
		return rets, nil
	}
	cut := sort.Search(len(rets), func(i int) bool { return !rets[i].Date.Before(from) })
	if cut == len(rets) {
		return nil, fmt.Errorf("returns %s from %s: %w", series.Ticker, from.Format(xutil.DateLayout), models.ErrMissingData)
	}
	return rets[cut:], nil
}

// MovingAverage returns the trailing average of the close over window days.
func (s *AnalyticsService) MovingAverage(ctx context.Context, ticker string, window int) ([]models.MovingAveragePoint, error) {
	defer s.observe("moving_average", time.Now())
	if window <= 0 {
		window = s.window
	}
	series, err := s.load(ctx, ticker)
	if err != nil {
		return nil, err
	}
	closes := series.Closes()
	avg := features.MovingAverage(closes, window)
	out := make([]models.MovingAveragePoint, len(closes))
	for i, r := range series.Records {
		out[i] = models.MovingAveragePoint{Date: r.Date, Close: r.Close, Average: avg[i]}
	}
	return out, nil
}

// Features builds the regression feature table of a ticker.
func (s *AnalyticsService) Features(ctx context.Context, ticker string) (models.FeatureTable, error) {
	defer s.observe("features", time.Now())
	series, err := s.load(ctx, ticker)
	if err != nil {
		return models.FeatureTable{}, err
	}
	return features.BuildFeatureTable(series, s.window)
}

// CrossSection is the correlation and volatility of a ticker set.
type CrossSection struct {
	Tickers      []string
	Missing      []string
	Observations int
	Correlation  models.CorrelationMatrix
	Stdev        map[string]float64
}

// CrossSection aligns the returns of tickers (the configured set when empty)
// and computes their correlation and standard deviation. Tickers without
// stored data are reported in Missing; ErrMissingData only when none has data.
func (s *AnalyticsService) CrossSection(ctx context.Context, tickers []string) (*CrossSection, error) {
	defer s.observe("cross_section", time.Now())
	if len(tickers) == 0 {
		tickers = s.tickers
	}
	series, missing, err := s.loadAll(ctx, tickers)
	if err != nil {
		return nil, err
	}
	m, err := analytics.AlignReturns(series)
	if err != nil {
		return nil, err
	}
	return &CrossSection{
		Tickers:      m.Tickers,
		Missing:      missing,
		Observations: m.Rows(),
		Correlation:  analytics.Correlation(m),
		Stdev:        analytics.Stdev(m),
	}, nil
}

// LinReg trains the moving-average/close model on ticker and predicts the
// next daily return from the most recent row. A nil seed uses the configured one.
func (s *AnalyticsService) LinReg(ctx context.Context, ticker string, seed *int64) (*models.RegressionResult, error) {
	defer s.observe("linreg", time.Now())
	table, err := s.Features(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return s.regress(table, seed)
}

func (s *AnalyticsService) regress(table models.FeatureTable, seed *int64) (*models.RegressionResult, error) {
	opts := analytics.TrainOptions{TestRatio: s.testRatio, Seed: s.seed}
	if seed != nil {
		opts.Seed = *seed
	}
	model, r2, err := analytics.Train(table, opts)
	if err != nil {
		return nil, err
	}
	last, _ := table.Last()
	wMA, wClose, intercept := model.Coefficients()

	res := &models.RegressionResult{
		Ticker:          table.Ticker,
		Score:           xutil.Round(r2, scorePlaces),
		PredictedReturn: xutil.Round(model.PredictRow(last), scorePlaces),
		Intercept:       intercept,
		MovingAvgCoef:   wMA,
		CloseCoef:       wClose,
		TrainRows:       model.TrainRows(),
		TestRows:        model.TestRows(),
		LastDate:        last.Date,
		LastClose:       last.Close,
		LastMovingAvg:   last.MovingAverage,
	}
	if s.metrics != nil {
		s.metrics.RecordModelScore(table.Ticker, r2)
	}
	return res, nil
}

// Report computes the full analytics report over tickers. A regression that
// cannot be trained leaves Regression nil and is logged, not returned.
func (s *AnalyticsService) Report(ctx context.Context, id string, tickers []string) (*models.AnalyticsReport, error) {
	cs, err := s.CrossSection(ctx, tickers)
	if err != nil {
		return nil, err
	}
	report := &models.AnalyticsReport{
		ID:           id,
		GeneratedAt:  time.Now().UTC(),
		Tickers:      cs.Tickers,
		Missing:      cs.Missing,
		Observations: cs.Observations,
		Correlation:  cs.Correlation,
		Stdev:        cs.Stdev,
	}
	if s.predict != "" {
		reg, err := s.LinReg(ctx, s.predict, nil)
		if err != nil {
			s.logger.Warn("report regression skipped", applogger.String("ticker", s.predict), applogger.Error(err))
		} else {
			report.Regression = reg
		}
	}
	return report, nil
}

func (s *AnalyticsService) load(ctx context.Context, ticker string) (models.PriceSeries, error) {
	return s.loadRange(ctx, ticker, time.Time{}, time.Time{})
}

func (s *AnalyticsService) loadRange(ctx context.Context, ticker string, from, to time.Time) (models.PriceSeries, error) {
	ticker = domrepo.NormalizeTicker(ticker)
	if !domrepo.IsValidTicker(ticker) {
		return models.PriceSeries{}, fmt.Errorf("invalid ticker %q", ticker)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	series, err := s.store.LoadRange(ctx, ticker, from, to)
	if err == nil {
		return series.Sorted(), nil
	}
	if !errors.Is(err, models.ErrMissingData) || s.fetcher == nil {
		return series, err
	}
	if _, lerr := s.store.Load(ctx, ticker); lerr == nil {
		// stored, just nothing in range
		return series, err
	}

	fetched, ferr := s.fetcher.FetchDaily(ctx, ticker)
	if ferr != nil {
		return models.PriceSeries{}, fmt.Errorf("%w: fetch: %w", err, ferr)
	}
	if serr := s.store.Save(ctx, fetched); serr != nil {
		s.logger.Warn("save fetched series", applogger.String("ticker", ticker), applogger.Error(serr))
	}
	s.logger.Info("series fetched on demand", applogger.String("ticker", ticker), applogger.Int("records", fetched.Len()))
	series, err = s.store.LoadRange(ctx, ticker, from, to)
	if err != nil {
		return series, err
	}
	return series.Sorted(), nil
}

// loadAll loads tickers concurrently. Tickers without data are returned in missing.
func (s *AnalyticsService) loadAll(ctx context.Context, tickers []string) (map[string]models.PriceSeries, []string, error) {
	tickers = domrepo.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, nil, fmt.Errorf("no valid tickers: %w", models.ErrMissingData)
	}

	type item struct {
		ticker string
		series models.PriceSeries
		err    error
	}
	ch := make(chan item, len(tickers))
	var wg sync.WaitGroup
	for _, t := range tickers {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			series, err := s.load(ctx, t)
			ch <- item{ticker: t, series: series, err: err}
		}(t)
	}
	wg.Wait()
	close(ch)

	out := make(map[string]models.PriceSeries, len(tickers))
	var missing []string
	for it := range ch {
		switch {
		case it.err == nil:
			out[it.ticker] = it.series
		case errors.Is(it.err, models.ErrMissingData):
			missing = append(missing, it.ticker)
		default:
			return nil, nil, it.err
		}
	}
	sort.Strings(missing)
	if len(out) == 0 {
		return nil, missing, fmt.Errorf("no stored data for %v: %w", missing, models.ErrMissingData)
	}
	return out, missing, nil
}

func (s *AnalyticsService) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}
