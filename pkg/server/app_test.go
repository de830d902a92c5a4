package server

import (
	"context"
	"errors"
	"testing"
	"time"

	xhttp "BankStats/pkg/http"
)

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestRunContextClosesInReverseOrder(t *testing.T) {
	var order []string
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics("", nil))
	app := New(nil, srv,
		WithCloser("store", closeRecorder{name: "store", order: &order}),
		WithCloser("cache", closeRecorder{name: "cache", order: &order, err: errors.New("already closed")}),
		WithCloser("producer", closeRecorder{name: "producer", order: &order}),
		WithShutdownTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("app did not stop")
	}
	if len(order) != 3 || order[0] != "producer" || order[2] != "store" {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestWithCloserIgnoresNil(t *testing.T) {
	app := New(nil, nil, WithCloser("none", nil))
	if len(app.closers) != 0 {
		t.Fatalf("expected nil closer to be skipped")
	}
}
