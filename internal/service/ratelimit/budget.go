package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"BankStats/internal/domain/models"
	"BankStats/pkg/cache"
)

const dayLayout = "2006-01-02"

// Counter counts provider calls per calendar day.
type Counter interface {
	// Incr adds one call to day and returns the new total.
	Incr(ctx context.Context, day string) (int64, error)
	// Count returns the calls recorded for day.
	Count(ctx context.Context, day string) (int64, error)
}

// DailyBudget allows at most limit provider calls per calendar day.
type DailyBudget struct {
	limit   int
	counter Counter
	now     func() time.Time
}

// NewDailyBudget creates a budget over counter. The day rolls over at local midnight.
func NewDailyBudget(limit int, counter Counter) *DailyBudget {
	return &DailyBudget{limit: limit, counter: counter, now: time.Now}
}

// Acquire consumes one call from today's budget.
// The call is recorded even when it is refused, matching a provider that counts attempts.
func (b *DailyBudget) Acquire(ctx context.Context) error {
	day := b.now().Format(dayLayout)
	n, err := b.counter.Incr(ctx, day)
	if err != nil {
		return fmt.Errorf("count api call: %w", err)
	}
	if n > int64(b.limit) {
		return fmt.Errorf("%d calls on %s, limit %d: %w", n, day, b.limit, models.ErrBudgetExhausted)
	}
	return nil
}

// Remaining returns the calls left today, never negative.
func (b *DailyBudget) Remaining(ctx context.Context) (int, error) {
	n, err := b.counter.Count(ctx, b.now().Format(dayLayout))
	if err != nil {
		return 0, fmt.Errorf("read api call count: %w", err)
	}
	left := int64(b.limit) - n
	if left < 0 {
		left = 0
	}
	return int(left), nil
}

// FileCounter persists "<date>, <count>" in a single flat file; only the
// current day is kept.
type FileCounter struct {
	mu   sync.Mutex
	path string
}

func NewFileCounter(path string) *FileCounter {
	return &FileCounter{path: path}
}

func (f *FileCounter) Incr(_ context.Context, day string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	last, n, err := f.read()
	if err != nil {
		return 0, err
	}
	if last != day {
		n = 0
	}
	n++
	if err := f.write(day, n); err != nil {
		return 0, err
	}
	return n, nil
}

func (f *FileCounter) Count(_ context.Context, day string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	last, n, err := f.read()
	if err != nil {
		return 0, err
	}
	if last != day {
		return 0, nil
	}
	return n, nil
}

func (f *FileCounter) read() (string, int64, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", f.path, err)
	}
	day, count, ok := strings.Cut(strings.TrimSpace(string(b)), ",")
	if !ok {
		return "", 0, fmt.Errorf("malformed tracker file %s", f.path)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(count), 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed count in %s: %w", f.path, err)
	}
	return strings.TrimSpace(day), n, nil
}

func (f *FileCounter) write(day string, n int64) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%s, %d", day, n)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

// CacheCounter keeps one counter key per day in a shared cache so several
// instances draw from the same budget.
type CacheCounter struct {
	c      cache.Service
	prefix string
	ttl    time.Duration
}

func NewCacheCounter(c cache.Service, prefix string) *CacheCounter {
	return &CacheCounter{c: c, prefix: prefix, ttl: 48 * time.Hour}
}

func (cc *CacheCounter) key(day string) string {
	return cache.GenerateKey(cc.prefix, day)
}

func (cc *CacheCounter) Incr(ctx context.Context, day string) (int64, error) {
	n, err := cc.c.Increment(ctx, cc.key(day))
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if _, err := cc.c.Expire(ctx, cc.key(day), cc.ttl); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (cc *CacheCounter) Count(ctx context.Context, day string) (int64, error) {
	var n int64
	err := cc.c.Get(ctx, cc.key(day), &n)
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
