package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BankStats/internal/scheduler"
	xhttp "BankStats/pkg/http"
	pkgkafka "BankStats/pkg/kafka"
	applogger "BankStats/pkg/logger"
)

// App owns the long running parts of the service and their shutdown order.
type App struct {
	logger          *applogger.Logger
	httpServer      *xhttp.Server
	scheduler       *scheduler.Scheduler
	refreshSpec     string
	refreshOnStart  bool
	consumer        *pkgkafka.Consumer
	handlers        []pkgkafka.MessageHandler
	closers         []namedCloser
	shutdownTimeout time.Duration
}

type namedCloser struct {
	name string
	c    io.Closer
}

type Option func(*App)

// WithScheduler runs refreshes on spec, and once at startup when onStart is set.
func WithScheduler(s *scheduler.Scheduler, spec string, onStart bool) Option {
	return func(a *App) {
		a.scheduler = s
		a.refreshSpec = spec
		a.refreshOnStart = onStart
	}
}

// WithConsumer starts c with the given handlers.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = handlers
	}
}

// WithCloser registers a resource closed on shutdown, in reverse order of registration.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

func New(logger *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if logger == nil {
		logger = applogger.Nop()
	}
	a := &App{logger: logger, httpServer: httpServer, shutdownTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done or the
// HTTP server fails, then shuts everything down.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}

	a.shutdown()
	return runErr
}

func (a *App) start(ctx context.Context) error {
	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Register(a.refreshSpec); err != nil {
			return err
		}
		a.scheduler.Start()
		a.logger.Info("next refresh scheduled", applogger.Time("at", a.scheduler.Next()))
		if a.refreshOnStart {
			go a.scheduler.RunNow()
		}
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

// shutdown stops intake first (HTTP, consumer, scheduler) and closes
// infrastructure last so in-flight work can still publish.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil && len(a.handlers) > 0 {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.logger.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	a.logger.RemoveCollector()

	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
