package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/internal/domain/repository"
	xutil "BankStats/pkg/util"
)

// MessagePublisher is the producer side the report publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaReportPublisher sends analytics reports keyed by report ID.
type KafkaReportPublisher struct {
	producer MessagePublisher
	topic    string
}

func NewKafkaReportPublisher(p MessagePublisher, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: p, topic: topic}
}

func (p *KafkaReportPublisher) PublishReport(ctx context.Context, r *models.AnalyticsReport) error {
	if r == nil {
		return nil
	}
	payload, err := json.Marshal(newReportMessage(r))
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	return p.producer.Publish(ctx, p.topic, []byte(r.ID), payload)
}

func (p *KafkaReportPublisher) Close() error {
	return p.producer.Close()
}

// NopReportPublisher drops reports. Used when Kafka is disabled.
type NopReportPublisher struct{}

func (NopReportPublisher) PublishReport(context.Context, *models.AnalyticsReport) error { return nil }

func (NopReportPublisher) Close() error { return nil }

// reportMessage is the wire form of a report. Undefined statistics become null.
type reportMessage struct {
	ID           string                         `json:"id"`
	GeneratedAt  time.Time                      `json:"generated_at"`
	Tickers      []string                       `json:"tickers"`
	Missing      []string                       `json:"missing,omitempty"`
	Observations int                            `json:"observations"`
	Correlation  map[string]map[string]*float64 `json:"correlation"`
	Stdev        map[string]*float64            `json:"stdev"`
	Regression   *regressionMessage             `json:"regression,omitempty"`
}

type regressionMessage struct {
	Ticker          string   `json:"ticker"`
	Score           *float64 `json:"score"`
	PredictedReturn *float64 `json:"predicted_return"`
	TrainRows       int      `json:"train_rows"`
	TestRows        int      `json:"test_rows"`
	LastDate        string   `json:"last_date"`
}

func newReportMessage(r *models.AnalyticsReport) reportMessage {
	m := reportMessage{
		ID:           r.ID,
		GeneratedAt:  r.GeneratedAt.UTC(),
		Tickers:      r.Tickers,
		Missing:      r.Missing,
		Observations: r.Observations,
		Correlation:  make(map[string]map[string]*float64, len(r.Correlation.Tickers)),
		Stdev:        make(map[string]*float64, len(r.Stdev)),
	}
	for _, a := range r.Correlation.Tickers {
		row := make(map[string]*float64, len(r.Correlation.Tickers))
		for _, b := range r.Correlation.Tickers {
			row[b] = nullable(r.Correlation.Get(a, b))
		}
		m.Correlation[a] = row
	}
	for t, v := range r.Stdev {
		m.Stdev[t] = nullable(v)
	}
	if g := r.Regression; g != nil {
		m.Regression = &regressionMessage{
			Ticker:          g.Ticker,
			Score:           nullable(g.Score),
			PredictedReturn: nullable(g.PredictedReturn),
			TrainRows:       g.TrainRows,
			TestRows:        g.TestRows,
			LastDate:        g.LastDate.Format(xutil.DateLayout),
		}
	}
	return m
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := xutil.Round(v, 6)
	return &r
}

var (
	_ repository.ReportPublisher = (*KafkaReportPublisher)(nil)
	_ repository.ReportPublisher = NopReportPublisher{}
)
