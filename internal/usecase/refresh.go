package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BankStats/internal/domain/models"
	domrepo "BankStats/internal/domain/repository"
	"BankStats/internal/domain/service"
	"BankStats/pkg/cache"
	applogger "BankStats/pkg/logger"

	"github.com/google/uuid"
)

const (
	refreshLockKey = "refresh:lock"
	refreshLockTTL = 10 * time.Minute
)

// RefreshResult summarises one refresh run.
type RefreshResult struct {
	ReportID string
	Fetched  []string
	Failed   map[string]string
	Report   *models.AnalyticsReport
}

// RefreshService fetches fresh history, stores it, drops cached responses
// and publishes a new analytics report. One refresh runs at a time across
// every instance sharing the cache.
type RefreshService struct {
	fetcher    service.PriceFetcher
	store      domrepo.PriceStore
	analytics  *AnalyticsService
	publisher  domrepo.ReportPublisher
	cache      cache.Service
	logger     *applogger.Logger
	invalidate string
}

// NewRefreshService builds the service. publisher and c may be nil.
func NewRefreshService(
	fetcher service.PriceFetcher,
	store domrepo.PriceStore,
	analytics *AnalyticsService,
	publisher domrepo.ReportPublisher,
	c cache.Service,
	logger *applogger.Logger,
) *RefreshService {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &RefreshService{
		fetcher:    fetcher,
		store:      store,
		analytics:  analytics,
		publisher:  publisher,
		cache:      c,
		logger:     logger,
		invalidate: cache.BuildPattern(ResponseCachePrefix + ":"),
	}
}

// Refresh runs a refresh over tickers, or the configured set when empty.
// Fetch failures are collected per ticker; the report is built from whatever
// is stored afterwards. Once the call budget runs out the remaining tickers
// are skipped without calling the provider.
func (r *RefreshService) Refresh(ctx context.Context, tickers []string) (*RefreshResult, error) {
	tickers = domrepo.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		tickers = r.analytics.DefaultTickers()
	}

	if r.cache != nil {
		ok, err := r.cache.TryLock(ctx, refreshLockKey, refreshLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !ok {
			return nil, models.ErrRefreshInProgress
		}
		defer func() {
			if err := r.cache.Unlock(context.WithoutCancel(ctx), refreshLockKey); err != nil {
				r.logger.Warn("release refresh lock", applogger.Error(err))
			}
		}()
	}

	start := time.Now()
	res := &RefreshResult{ReportID: uuid.NewString(), Failed: map[string]string{}}
	budgetOut := false
	for _, t := range tickers {
		if budgetOut {
			res.Failed[t] = models.ErrBudgetExhausted.Error()
			continue
		}
		if err := r.refreshTicker(ctx, t); err != nil {
			if errors.Is(err, models.ErrBudgetExhausted) {
				budgetOut = true
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Failed[t] = err.Error()
			r.logger.Warn("ticker refresh failed", applogger.String("ticker", t), applogger.Error(err))
			continue
		}
		res.Fetched = append(res.Fetched, t)
	}

	if r.cache != nil && len(res.Fetched) > 0 {
		if err := r.cache.DeleteByPattern(ctx, r.invalidate); err != nil {
			r.logger.Warn("invalidate response cache", applogger.Error(err))
		}
	}

	report, err := r.analytics.Report(ctx, res.ReportID, tickers)
	if err != nil {
		return res, fmt.Errorf("build report: %w", err)
	}
	res.Report = report

	if r.publisher != nil {
		if err := r.publisher.PublishReport(ctx, report); err != nil {
			r.logger.Error("publish report", applogger.String("report_id", report.ID), applogger.Error(err))
		}
	}

	r.logger.Info("refresh complete",
		applogger.String("report_id", res.ReportID),
		applogger.Strings("fetched", res.Fetched),
		applogger.Int("failed", len(res.Failed)),
		applogger.Int("observations", report.Observations),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return res, nil
}

func (r *RefreshService) refreshTicker(ctx context.Context, ticker string) error {
	series, err := r.fetcher.FetchDaily(ctx, ticker)
	if err != nil {
		return err
	}
	series.Ticker = ticker
	return r.store.Save(ctx, series)
}
