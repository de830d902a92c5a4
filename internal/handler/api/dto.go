package api

import (
	"math"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/internal/usecase"
	xutil "BankStats/pkg/util"

	"github.com/guregu/null/v6"
)

// undefined statistics (NaN) are rendered as JSON null
func nullFloat(v float64) null.Float {
	return null.NewFloat(v, !math.IsNaN(v) && !math.IsInf(v, 0))
}

func day(t time.Time) string { return t.Format(xutil.DateLayout) }

type tickersResponse struct {
	Stored     []string `json:"stored"`
	Configured []string `json:"configured"`
}

type returnPoint struct {
	Date   string     `json:"date"`
	Return null.Float `json:"return"`
}

type returnsResponse struct {
	Ticker  string        `json:"ticker"`
	Defined int           `json:"defined"`
	Points  []returnPoint `json:"points"`
}

func newReturnsResponse(ticker string, rs models.ReturnsSeries) returnsResponse {
	out := returnsResponse{Ticker: ticker, Defined: rs.Defined(), Points: make([]returnPoint, len(rs))}
	for i, p := range rs {
		out.Points[i] = returnPoint{Date: day(p.Date), Return: nullFloat(p.Return)}
	}
	return out
}

type movingAveragePoint struct {
	Date    string     `json:"date"`
	Close   float64    `json:"close"`
	Average null.Float `json:"average"`
}

type movingAverageResponse struct {
	Ticker string               `json:"ticker"`
	Window int                  `json:"window"`
	Total  int                  `json:"total"`
	Points []movingAveragePoint `json:"points"`
}

// newMovingAverageResponse keeps the most recent limit points.
func newMovingAverageResponse(ticker string, window, limit int, pts []models.MovingAveragePoint) movingAverageResponse {
	out := movingAverageResponse{Ticker: ticker, Window: window, Total: len(pts)}
	if limit > 0 && len(pts) > limit {
		pts = pts[len(pts)-limit:]
	}
	out.Points = make([]movingAveragePoint, len(pts))
	for i, p := range pts {
		out.Points[i] = movingAveragePoint{Date: day(p.Date), Close: p.Close, Average: nullFloat(p.Average)}
	}
	return out
}

type correlationResponse struct {
	Tickers      []string                         `json:"tickers"`
	Missing      []string                         `json:"missing,omitempty"`
	Observations int                              `json:"observations"`
	Matrix       map[string]map[string]null.Float `json:"matrix"`
}

func newCorrelationResponse(cs *usecase.CrossSection) correlationResponse {
	out := correlationResponse{
		Tickers:      cs.Tickers,
		Missing:      cs.Missing,
		Observations: cs.Observations,
		Matrix:       make(map[string]map[string]null.Float, len(cs.Tickers)),
	}
	for _, a := range cs.Tickers {
		row := make(map[string]null.Float, len(cs.Tickers))
		for _, b := range cs.Tickers {
			row[b] = nullFloat(cs.Correlation.Get(a, b))
		}
		out.Matrix[a] = row
	}
	return out
}

type stdevResponse struct {
	Tickers      []string              `json:"tickers"`
	Missing      []string              `json:"missing,omitempty"`
	Observations int                   `json:"observations"`
	Stdev        map[string]null.Float `json:"stdev"`
}

func newStdevResponse(cs *usecase.CrossSection) stdevResponse {
	out := stdevResponse{
		Tickers:      cs.Tickers,
		Missing:      cs.Missing,
		Observations: cs.Observations,
		Stdev:        make(map[string]null.Float, len(cs.Stdev)),
	}
	for t, v := range cs.Stdev {
		out.Stdev[t] = nullFloat(v)
	}
	return out
}

type featureRow struct {
	Date          string  `json:"date"`
	Close         float64 `json:"close"`
	DailyReturn   float64 `json:"daily_return"`
	MovingAverage float64 `json:"moving_average"`
	PreviousClose float64 `json:"previous_close"`
}

type featuresResponse struct {
	Ticker string       `json:"ticker"`
	Window int          `json:"window"`
	Total  int          `json:"total"`
	Rows   []featureRow `json:"rows"`
}

func newFeaturesResponse(t models.FeatureTable, limit int) featuresResponse {
	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := featuresResponse{Ticker: t.Ticker, Window: t.Window, Total: t.Len(), Rows: make([]featureRow, len(rows))}
	for i, r := range rows {
		out.Rows[i] = featureRow{
			Date:          day(r.Date),
			Close:         r.Close,
			DailyReturn:   r.DailyReturn,
			MovingAverage: r.MovingAverage,
			PreviousClose: r.PreviousClose,
		}
	}
	return out
}

type coefficients struct {
	MovingAverage float64 `json:"moving_average"`
	Close         float64 `json:"close"`
	Intercept     float64 `json:"intercept"`
}

type linregResponse struct {
	Ticker            string       `json:"ticker"`
	Score             null.Float   `json:"score"`
	PredictedReturn   null.Float   `json:"predicted_return"`
	Coefficients      coefficients `json:"coefficients"`
	TrainRows         int          `json:"train_rows"`
	TestRows          int          `json:"test_rows"`
	LastDate          string       `json:"last_date"`
	LastClose         float64      `json:"last_close"`
	LastMovingAverage float64      `json:"last_moving_average"`
}

func newLinregResponse(r *models.RegressionResult) linregResponse {
	return linregResponse{
		Ticker:          r.Ticker,
		Score:           nullFloat(r.Score),
		PredictedReturn: nullFloat(r.PredictedReturn),
		Coefficients: coefficients{
			MovingAverage: r.MovingAvgCoef,
			Close:         r.CloseCoef,
			Intercept:     r.Intercept,
		},
		TrainRows:         r.TrainRows,
		TestRows:          r.TestRows,
		LastDate:          day(r.LastDate),
		LastClose:         r.LastClose,
		LastMovingAverage: r.LastMovingAvg,
	}
}

type refreshResponse struct {
	ReportID     string            `json:"report_id"`
	Fetched      []string          `json:"fetched"`
	Failed       map[string]string `json:"failed,omitempty"`
	Missing      []string          `json:"missing,omitempty"`
	Observations int               `json:"observations"`
}

func newRefreshResponse(r *usecase.RefreshResult) refreshResponse {
	out := refreshResponse{ReportID: r.ReportID, Fetched: r.Fetched, Failed: r.Failed}
	if r.Report != nil {
		out.Missing = r.Report.Missing
		out.Observations = r.Report.Observations
	}
	return out
}

type healthResponse struct {
	Status          string   `json:"status"`
	Stored          []string `json:"stored"`
	BudgetRemaining null.Int `json:"budget_remaining"`
}
