package repository

import (
	"context"

	"BankStats/internal/domain/models"
)

// ReportPublisher delivers analytics reports to downstream consumers.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r *models.AnalyticsReport) error
	Close() error
}

type Metrics interface {
	RecordFetch(ticker, result string)
	RecordError(kind string)
	RecordLastClose(ticker string, price float64)
	RecordModelScore(ticker string, score float64)
	RecordLatency(op string, seconds float64)
}
