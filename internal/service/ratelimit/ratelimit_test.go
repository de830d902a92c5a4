package ratelimit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/pkg/cache"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("expected burst of 2")
	}
	if l.Allow("a") {
		t.Fatalf("expected third call to be refused")
	}
	if !l.Allow("b") {
		t.Fatalf("keys must not share buckets")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("expected a token after one second")
	}
	now = now.Add(time.Hour)
	if removed := l.Prune(); removed != 2 {
		t.Fatalf("expected both idle buckets pruned, got %d", removed)
	}
}

func fixedBudget(limit int, c Counter, day time.Time) *DailyBudget {
	b := NewDailyBudget(limit, c)
	b.now = func() time.Time { return day }
	return b
}

func TestDailyBudgetFileCounter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "api_tracker.txt")
	day := time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local)
	b := fixedBudget(3, NewFileCounter(path), day)

	for i := 0; i < 3; i++ {
		if err := b.Acquire(ctx); err != nil {
			t.Fatalf("call %d: unexpected error %v", i+1, err)
		}
	}
	if err := b.Acquire(ctx); !errors.Is(err, models.ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if left, _ := b.Remaining(ctx); left != 0 {
		t.Fatalf("expected 0 remaining, got %d", left)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read tracker: %v", err)
	}
	if got := string(raw); got != "2024-03-05, 4" {
		t.Fatalf("unexpected tracker content %q", got)
	}

	next := fixedBudget(3, NewFileCounter(path), day.AddDate(0, 0, 1))
	if left, _ := next.Remaining(ctx); left != 3 {
		t.Fatalf("expected full budget on a new day, got %d", left)
	}
	if err := next.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error on new day: %v", err)
	}
}

func TestFileCounterMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_tracker.txt")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewFileCounter(path).Incr(context.Background(), "2024-03-05")
	if err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestDailyBudgetCacheCounter(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	day := time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local)
	b := fixedBudget(2, NewCacheCounter(mc, "budget"), day)

	if left, _ := b.Remaining(ctx); left != 2 {
		t.Fatalf("expected 2 remaining, got %d", left)
	}
	_ = b.Acquire(ctx)
	if left, _ := b.Remaining(ctx); left != 1 {
		t.Fatalf("expected 1 remaining, got %d", left)
	}
	_ = b.Acquire(ctx)
	if err := b.Acquire(ctx); !errors.Is(err, models.ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
}
