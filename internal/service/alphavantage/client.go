package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/internal/domain/repository"
	"BankStats/internal/domain/service"
	xhttp "BankStats/pkg/http"
	applogger "BankStats/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	DefaultEndpoint = "https://www.alphavantage.co/query"
	seriesKey       = "Time Series (Daily)"
	dateLayout      = "2006-01-02"
)

// ErrAPI wraps messages the provider returns in place of data
// (rate-limit notes, invalid symbols, bad keys).
var ErrAPI = errors.New("alphavantage api error")

// Option configures Client.
type Option func(*Client)

// Client fetches TIME_SERIES_DAILY history. Every request first draws from
// the daily call budget; an exhausted budget means no request is made.
type Client struct {
	http       *xhttp.Client
	endpoint   string
	apiKey     string
	outputSize string
	budget     service.CallBudget
	metrics    repository.Metrics
	logger     *applogger.Logger
}

// New creates a client. budget may be nil for unmetered use.
func New(apiKey string, budget service.CallBudget, opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		outputSize: "full",
		budget:     budget,
		logger:     applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(30 * time.Second))
	}
	return c
}

// WithEndpoint overrides the query URL.
func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

// WithOutputSize selects "compact" (100 days) or "full" (20+ years).
func WithOutputSize(s string) Option {
	return func(c *Client) { c.outputSize = s }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// WithMetrics records fetch outcomes.
func WithMetrics(m repository.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// FetchDaily downloads the daily history of ticker sorted ascending by date.
func (c *Client) FetchDaily(ctx context.Context, ticker string) (models.PriceSeries, error) {
	if c.budget != nil {
		if err := c.budget.Acquire(ctx); err != nil {
			c.logger.Warn("api call refused", applogger.String("ticker", ticker), applogger.Error(err))
			c.record(ticker, "refused")
			return models.PriceSeries{}, fmt.Errorf("fetch %s: %w", ticker, err)
		}
	}

	start := time.Now()
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.endpoint,
		QueryParams: map[string][]string{
			"function":   {"TIME_SERIES_DAILY"},
			"symbol":     {ticker},
			"outputsize": {c.outputSize},
			"apikey":     {c.apiKey},
		},
	}, &body)
	if err != nil {
		c.record(ticker, "error")
		return models.PriceSeries{}, fmt.Errorf("fetch %s: %w", ticker, err)
	}

	series, err := ParseDaily(ticker, body)
	if err != nil {
		c.record(ticker, "error")
		return models.PriceSeries{}, fmt.Errorf("fetch %s: %w", ticker, err)
	}
	c.record(ticker, "ok")
	if c.metrics != nil {
		c.metrics.RecordLatency("fetch_daily", time.Since(start).Seconds())
		if last, ok := series.Last(); ok {
			c.metrics.RecordLastClose(ticker, last.Close)
		}
	}
	c.logger.Debug("daily series fetched",
		applogger.String("ticker", ticker),
		applogger.Int("records", series.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return series, nil
}

// ParseDaily decodes a TIME_SERIES_DAILY payload. Prices are parsed as exact
// decimals before conversion so "191.0500" does not pick up binary noise twice.
func ParseDaily(ticker string, body []byte) (models.PriceSeries, error) {
	if !gjson.ValidBytes(body) {
		return models.PriceSeries{}, fmt.Errorf("invalid json payload")
	}
	root := gjson.ParseBytes(body)
	for _, k := range []string{"Error Message", "Note", "Information"} {
		if msg := root.Get(k); msg.Exists() {
			return models.PriceSeries{}, fmt.Errorf("%w: %s", ErrAPI, strings.TrimSpace(msg.String()))
		}
	}

	// the key contains parentheses and a space, so walk the object instead of using a path
	var daily gjson.Result
	root.ForEach(func(key, value gjson.Result) bool {
		if key.String() == seriesKey {
			daily = value
			return false
		}
		return true
	})
	if !daily.Exists() || !daily.IsObject() {
		return models.PriceSeries{}, fmt.Errorf("%w: no %q object", models.ErrMissingData, seriesKey)
	}

	series := models.PriceSeries{Ticker: ticker}
	var perr error
	daily.ForEach(func(key, value gjson.Result) bool {
		rec, err := parseRecord(key.String(), value)
		if err != nil {
			perr = err
			return false
		}
		series.Records = append(series.Records, rec)
		return true
	})
	if perr != nil {
		return models.PriceSeries{}, perr
	}
	if series.Empty() {
		return models.PriceSeries{}, fmt.Errorf("%w: empty %q object", models.ErrMissingData, seriesKey)
	}

	sort.Slice(series.Records, func(i, j int) bool {
		return series.Records[i].Date.Before(series.Records[j].Date)
	})
	return series, nil
}

func (c *Client) record(ticker, result string) {
	if c.metrics != nil {
		c.metrics.RecordFetch(ticker, result)
	}
}

func parseRecord(day string, v gjson.Result) (models.PriceRecord, error) {
	date, err := time.Parse(dateLayout, day)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("bad date %q: %w", day, err)
	}
	var px [4]float64
	for i, field := range []string{`1\. open`, `2\. high`, `3\. low`, `4\. close`} {
		d, err := decimal.NewFromString(v.Get(field).String())
		if err != nil {
			return models.PriceRecord{}, fmt.Errorf("%s %s: %w", day, strings.ReplaceAll(field, `\`, ""), err)
		}
		px[i] = d.InexactFloat64()
	}
	vol, err := decimal.NewFromString(v.Get(`5\. volume`).String())
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("%s volume: %w", day, err)
	}
	return models.PriceRecord{
		Date:   date,
		Open:   px[0],
		High:   px[1],
		Low:    px[2],
		Close:  px[3],
		Volume: vol.IntPart(),
	}, nil
}

var _ service.PriceFetcher = (*Client)(nil)
