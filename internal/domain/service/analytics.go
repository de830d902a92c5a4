package service

import (
	"context"

	"BankStats/internal/domain/models"
)

// PriceFetcher downloads the full daily history of a ticker from a market data provider.
type PriceFetcher interface {
	FetchDaily(ctx context.Context, ticker string) (models.PriceSeries, error)
}

// CallBudget caps the number of provider calls per calendar day.
// Acquire returns models.ErrBudgetExhausted once the cap is reached.
type CallBudget interface {
	Acquire(ctx context.Context) error
	Remaining(ctx context.Context) (int, error)
}
