package api

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"BankStats/internal/domain/models"
	domrepo "BankStats/internal/domain/repository"
	"BankStats/internal/domain/service"
	"BankStats/internal/service/metrics"
	"BankStats/internal/service/ratelimit"
	"BankStats/internal/usecase"
	xhttp "BankStats/pkg/http"
	xlogger "BankStats/pkg/logger"
	xutil "BankStats/pkg/util"

	"github.com/guregu/null/v6"
	"github.com/labstack/echo/v4"
)

const (
	pruneEvery     = 1024
	refreshTimeout = 15 * time.Minute
)

var registerOnce sync.Once

// AnalyticsHandler serves the analytics endpoints.
type AnalyticsHandler struct {
	logger    *xlogger.Logger
	analytics *usecase.AnalyticsService
	refresh   *usecase.RefreshService
	cache     *usecase.ResponseCache
	limiter   *ratelimit.Limiter
	budget    service.CallBudget
	requests  atomic.Uint64
}

// HandlerOption configures optional collaborators.
type HandlerOption func(*AnalyticsHandler)

// WithResponseCache memoises GET responses.
func WithResponseCache(rc *usecase.ResponseCache) HandlerOption {
	return func(h *AnalyticsHandler) { h.cache = rc }
}

// WithRateLimit throttles /api per client address.
func WithRateLimit(l *ratelimit.Limiter) HandlerOption {
	return func(h *AnalyticsHandler) { h.limiter = l }
}

// WithBudget exposes the remaining provider calls on /healthz.
func WithBudget(b service.CallBudget) HandlerOption {
	return func(h *AnalyticsHandler) { h.budget = b }
}

func NewAnalyticsHandler(logger *xlogger.Logger, analytics *usecase.AnalyticsService, refresh *usecase.RefreshService, opts ...HandlerOption) *AnalyticsHandler {
	registerOnce.Do(func() {
		// query values are normalized after binding, so accept any case here
		_ = xhttp.RegisterValidation("ticker", func(s string) bool {
			return domrepo.IsValidTicker(domrepo.NormalizeTicker(s))
		})
		metrics.Register()
	})
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &AnalyticsHandler{logger: logger, analytics: analytics, refresh: refresh}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(h.rateLimit)
	}
	g.GET("/tickers", h.Tickers)
	g.GET("/returns", h.Returns)
	g.GET("/moving-average", h.MovingAverage)
	g.GET("/correlation", h.Correlation)
	g.GET("/stdev", h.Stdev)
	g.GET("/features", h.Features)
	g.GET("/linreg", h.LinReg)
	g.POST("/refresh", h.Refresh)
}

func (h *AnalyticsHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.requests.Add(1)%pruneEvery == 0 {
			h.limiter.Prune()
		}
		if !h.limiter.Allow(c.RealIP()) {
			metrics.AnalyticsErrors.WithLabelValues(c.Path(), "rate_limited").Inc()
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests, slow down"))
		}
		return next(c)
	}
}

func (h *AnalyticsHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	res := healthResponse{Status: "ok", Stored: []string{}}
	if stored, err := h.analytics.Tickers(ctx); err == nil {
		res.Stored = stored
	} else {
		res.Status = "degraded"
		h.logger.Warn("health: list tickers", xlogger.Error(err))
	}
	if h.budget != nil {
		if n, err := h.budget.Remaining(ctx); err == nil {
			res.BudgetRemaining = null.IntFrom(int64(n))
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) Tickers(c echo.Context) error {
	stored, err := h.analytics.Tickers(c.Request().Context())
	if err != nil {
		return h.fail(c, "tickers", err)
	}
	return xhttp.SuccessResponse(c, tickersResponse{Stored: stored, Configured: h.analytics.DefaultTickers()})
}

func (h *AnalyticsHandler) Returns(c echo.Context) error {
	const endpoint = "returns"
	req := &models.ReturnsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := xutil.ParseDateRange(req.From, req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	ticker := domrepo.NormalizeTicker(req.Ticker)

	return h.cached(c, endpoint, []interface{}{ticker, req.From, req.To}, &returnsResponse{}, func(ctx context.Context) (interface{}, error) {
		rs, err := h.analytics.Returns(ctx, ticker, from, to)
		if err != nil {
			return nil, err
		}
		return newReturnsResponse(ticker, rs), nil
	})
}

func (h *AnalyticsHandler) MovingAverage(c echo.Context) error {
	const endpoint = "moving_average"
	req := &models.MovingAverageRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker := domrepo.NormalizeTicker(req.Ticker)

	return h.cached(c, endpoint, []interface{}{ticker, req.Window, req.Limit}, &movingAverageResponse{}, func(ctx context.Context) (interface{}, error) {
		pts, err := h.analytics.MovingAverage(ctx, ticker, req.Window)
		if err != nil {
			return nil, err
		}
		return newMovingAverageResponse(ticker, req.Window, req.Limit, pts), nil
	})
}

func (h *AnalyticsHandler) Correlation(c echo.Context) error {
	const endpoint = "correlation"
	tickers, ok, err := h.crossSectionTickers(c)
	if !ok {
		return err
	}
	return h.cached(c, endpoint, []interface{}{strings.Join(tickers, ",")}, &correlationResponse{}, func(ctx context.Context) (interface{}, error) {
		cs, err := h.analytics.CrossSection(ctx, tickers)
		if err != nil {
			return nil, err
		}
		return newCorrelationResponse(cs), nil
	})
}

func (h *AnalyticsHandler) Stdev(c echo.Context) error {
	const endpoint = "stdev"
	tickers, ok, err := h.crossSectionTickers(c)
	if !ok {
		return err
	}
	return h.cached(c, endpoint, []interface{}{strings.Join(tickers, ",")}, &stdevResponse{}, func(ctx context.Context) (interface{}, error) {
		cs, err := h.analytics.CrossSection(ctx, tickers)
		if err != nil {
			return nil, err
		}
		return newStdevResponse(cs), nil
	})
}

// crossSectionTickers parses the comma separated list. When ok is false the
// error response has already been written and err must be returned as is.
func (h *AnalyticsHandler) crossSectionTickers(c echo.Context) ([]string, bool, error) {
	req := &models.CrossSectionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return nil, false, xhttp.BadRequestResponse(c, verr)
	}
	if strings.TrimSpace(req.Tickers) == "" {
		return h.analytics.DefaultTickers(), true, nil
	}
	raw := strings.Split(req.Tickers, ",")
	for _, t := range raw {
		if !domrepo.IsValidTicker(domrepo.NormalizeTicker(t)) {
			appErr := xhttp.BadRequestErrorf("invalid ticker %q", strings.TrimSpace(t)).WithParam("field", "tickers")
			return nil, false, xhttp.AppErrorResponse(c, appErr)
		}
	}
	tickers := domrepo.NormalizeTickers(raw)
	if len(tickers) < 2 {
		return nil, false, xhttp.AppErrorResponse(c, xhttp.BadRequestError("at least two distinct tickers are required"))
	}
	return tickers, true, nil
}

func (h *AnalyticsHandler) Features(c echo.Context) error {
	const endpoint = "features"
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker := domrepo.NormalizeTicker(req.Ticker)

	return h.cached(c, endpoint, []interface{}{ticker, req.Limit}, &featuresResponse{}, func(ctx context.Context) (interface{}, error) {
		table, err := h.analytics.Features(ctx, ticker)
		if err != nil {
			return nil, err
		}
		return newFeaturesResponse(table, req.Limit), nil
	})
}

func (h *AnalyticsHandler) LinReg(c echo.Context) error {
	const endpoint = "linreg"
	req := &models.LinRegRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ticker := domrepo.NormalizeTicker(req.Ticker)

	var seed *int64
	if req.Seed != "" {
		v, err := strconv.ParseInt(req.Seed, 10, 64)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("seed must be an integer").WithParam("field", "seed"))
		}
		seed = &v
	}

	return h.cached(c, endpoint, []interface{}{ticker, req.Seed}, &linregResponse{}, func(ctx context.Context) (interface{}, error) {
		res, err := h.analytics.LinReg(ctx, ticker, seed)
		if err != nil {
			return nil, err
		}
		return newLinregResponse(res), nil
	})
}

// Refresh runs a refresh synchronously, or in the background with ?async=true.
func (h *AnalyticsHandler) Refresh(c echo.Context) error {
	const endpoint = "refresh"
	if h.refresh == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("refresh is disabled"))
	}
	req := &models.RefreshRequest{}
	if c.Request().ContentLength != 0 {
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			return xhttp.BadRequestResponse(c, verr)
		}
	}

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		go func(tickers []string) {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if _, err := h.refresh.Refresh(ctx, tickers); err != nil {
				h.logger.Warn("background refresh", xlogger.Error(err))
			}
		}(req.Tickers)
		return xhttp.AcceptedResponse(c, map[string]string{"status": "refresh started"})
	}

	start := time.Now()
	res, err := h.refresh.Refresh(c.Request().Context(), req.Tickers)
	metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, newRefreshResponse(res))
}

// cached serves dest from the response cache or computes, stores and writes it.
func (h *AnalyticsHandler) cached(
	c echo.Context,
	endpoint string,
	params []interface{},
	dest interface{},
	compute func(ctx context.Context) (interface{}, error),
) error {
	ctx := c.Request().Context()
	key := h.cache.Key(endpoint, params...)
	if h.cache.Get(ctx, key, dest) {
		metrics.CacheLookups.WithLabelValues(endpoint, "hit").Inc()
		return xhttp.SuccessResponse(c, dest)
	}
	metrics.CacheLookups.WithLabelValues(endpoint, "miss").Inc()

	start := time.Now()
	res, err := compute(ctx)
	metrics.AnalyticsLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	h.cache.Set(ctx, key, res)
	return xhttp.SuccessResponse(c, res)
}

// fail maps domain errors onto HTTP errors. The budget check comes first
// because a refused load-through wraps ErrMissingData as well.
func (h *AnalyticsHandler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	kind := "internal"
	switch {
	case errors.Is(err, models.ErrBudgetExhausted):
		kind = "budget"
		appErr = xhttp.TooManyRequestsError("daily market data budget is exhausted")
	case errors.Is(err, models.ErrRefreshInProgress):
		kind = "conflict"
		appErr = xhttp.ConflictError("a refresh is already running")
	case errors.Is(err, models.ErrMissingData):
		kind = "missing_data"
		appErr = xhttp.NotFoundError("no price data")
	case errors.Is(err, models.ErrInsufficientHistory):
		kind = "insufficient_history"
		appErr = xhttp.UnprocessableError("not enough history to train a model")
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
		appErr = xhttp.InternalError("analytics timed out")
	default:
		appErr = xhttp.InternalError("analytics failed")
	}
	metrics.AnalyticsErrors.WithLabelValues(endpoint, kind).Inc()
	if kind == "internal" || kind == "timeout" {
		h.logger.Error("analytics request failed", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	} else {
		h.logger.Debug("analytics request rejected", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}
