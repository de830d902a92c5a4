package models

import (
	"sort"
	"time"
)

// PriceRecord is one trading day of OHLCV data for a single ticker.
type PriceRecord struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// PriceSeries is the daily history of one ticker, ascending by date.
type PriceSeries struct {
	Ticker  string
	Records []PriceRecord
}

// Len returns the number of records.
func (s PriceSeries) Len() int { return len(s.Records) }

// Empty reports whether the series carries no data.
func (s PriceSeries) Empty() bool { return len(s.Records) == 0 }

// Clone returns an independent copy of the series.
func (s PriceSeries) Clone() PriceSeries {
	out := PriceSeries{Ticker: s.Ticker}
	if s.Records != nil {
		out.Records = make([]PriceRecord, len(s.Records))
		copy(out.Records, s.Records)
	}
	return out
}

// Sorted returns a copy ordered ascending by date. The receiver is left untouched.
func (s PriceSeries) Sorted() PriceSeries {
	out := s.Clone()
	sort.SliceStable(out.Records, func(i, j int) bool {
		return out.Records[i].Date.Before(out.Records[j].Date)
	})
	return out
}

// Closes extracts the close prices in record order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Records))
	for i, r := range s.Records {
		closes[i] = r.Close
	}
	return closes
}

// Dates extracts the record dates in order.
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Records))
	for i, r := range s.Records {
		dates[i] = r.Date
	}
	return dates
}

// Last returns the most recent record.
func (s PriceSeries) Last() (PriceRecord, bool) {
	if len(s.Records) == 0 {
		return PriceRecord{}, false
	}
	return s.Records[len(s.Records)-1], true
}

// TruncateDay strips the time component, keeping the calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
