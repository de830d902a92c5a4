package scheduler

import (
	"context"
	"fmt"
	"time"

	"BankStats/internal/usecase"
	applogger "BankStats/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Refresher is the refresh use case as seen by the scheduler.
type Refresher interface {
	Refresh(ctx context.Context, tickers []string) (*usecase.RefreshResult, error)
}

// Scheduler runs the daily refresh on a cron spec with a seconds field.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logger    *applogger.Logger
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(refresher Refresher, logger *applogger.Logger) *Scheduler {
	if logger == nil {
		logger = applogger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		refresher: refresher,
		logger:    logger,
		timeout:   15 * time.Minute,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register adds the refresh job at spec (e.g. "0 30 22 * * 1-5").
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register refresh %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", applogger.Int("jobs", len(s.cron.Entries())))
}

// Stop stops new runs, cancels a running one and waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Next reports when the refresh runs next; zero when nothing is registered.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow runs one refresh over the configured tickers.
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	s.logger.Info("scheduled refresh starting")
	res, err := s.refresher.Refresh(ctx, nil)
	if err != nil {
		s.logger.Error("scheduled refresh failed", applogger.Error(err))
		return
	}
	s.logger.Info("scheduled refresh done",
		applogger.String("report_id", res.ReportID),
		applogger.Int("fetched", len(res.Fetched)),
		applogger.Int("failed", len(res.Failed)),
	)
}
