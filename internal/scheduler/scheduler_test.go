package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"BankStats/internal/usecase"
)

type countingRefresher struct {
	calls int32
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context, tickers []string) (*usecase.RefreshResult, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.err != nil {
		return nil, r.err
	}
	return &usecase.RefreshResult{ReportID: "r"}, nil
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New(&countingRefresher{}, nil)
	if err := s.Register("every day"); err == nil {
		t.Fatalf("expected invalid spec error")
	}
	if err := s.Register("0 30 22 * * 1-5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunNowCallsRefresher(t *testing.T) {
	r := &countingRefresher{}
	s := New(r, nil)
	s.RunNow()
	r.err = errors.New("provider down")
	s.RunNow()
	if atomic.LoadInt32(&r.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", r.calls)
	}
}

func TestStartSchedulesNextRun(t *testing.T) {
	r := &countingRefresher{}
	s := New(r, nil)
	if err := s.Register("* * * * * *"); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	if s.Next().IsZero() {
		t.Fatalf("expected next run time")
	}
	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&r.calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if atomic.LoadInt32(&r.calls) == 0 {
		t.Fatalf("expected the every-second job to run")
	}
}
