package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordFetch("JPM", "ok")
	r.RecordFetch("JPM", "ok")
	r.RecordFetch("GS", "budget")
	r.RecordLastClose("JPM", 198.5)
	r.RecordModelScore("JPM", 0.12)
	r.RecordModelScore("JPM", math.NaN())
	r.RecordLatency("refresh", 0.3)

	if got := testutil.ToFloat64(r.fetchesTotal.WithLabelValues("JPM", "ok")); got != 2 {
		t.Fatalf("expected 2 fetches, got %v", got)
	}
	if got := testutil.ToFloat64(r.lastClose.WithLabelValues("JPM")); got != 198.5 {
		t.Fatalf("unexpected last close %v", got)
	}
	if got := testutil.ToFloat64(r.modelScore.WithLabelValues("JPM")); got != 0.12 {
		t.Fatalf("NaN score should not overwrite, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("expected gathered metrics, got %d %v", n, err)
	}
}
