package repository

import (
	"context"
	"time"

	"BankStats/internal/domain/models"
)

// PriceStore keeps the daily history of each ticker.
type PriceStore interface {
	// Load returns the stored series; models.ErrMissingData when nothing is stored.
	Load(ctx context.Context, ticker string) (models.PriceSeries, error)
	// LoadRange returns the records with from <= date <= to. Zero bounds are open.
	LoadRange(ctx context.Context, ticker string, from, to time.Time) (models.PriceSeries, error)
	// Save replaces the stored series of the ticker.
	Save(ctx context.Context, series models.PriceSeries) error
	// Tickers lists the tickers that have stored data, sorted.
	Tickers(ctx context.Context) ([]string, error)
}
