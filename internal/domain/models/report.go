package models

import "time"

// RegressionResult is the outcome of one train/predict run for a ticker.
type RegressionResult struct {
	Ticker          string
	Score           float64 // R² on held-out rows, NaN when undefined
	PredictedReturn float64
	Intercept       float64
	MovingAvgCoef   float64
	CloseCoef       float64
	TrainRows       int
	TestRows        int
	LastDate        time.Time
	LastClose       float64
	LastMovingAvg   float64
}

// AnalyticsReport is produced by every data refresh and published to subscribers.
type AnalyticsReport struct {
	ID           string
	GeneratedAt  time.Time
	Tickers      []string
	Missing      []string // tickers that had no data for this run
	Observations int
	Correlation  CorrelationMatrix
	Stdev        map[string]float64
	Regression   *RegressionResult
}

// RefreshCommand asks the service to refetch price data.
type RefreshCommand struct {
	ID      string    `json:"id"`
	Tickers []string  `json:"tickers"`
	Issued  time.Time `json:"issued_at"`
}
