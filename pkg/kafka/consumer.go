package kafka

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	applogger "BankStats/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, payload []byte) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads registered topics and hands messages to a worker pool.
// Offsets are committed after success, or after the message reached the DLQ.
// Each partition is pinned to one worker queue, so its messages are handled in offset order.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]messageReader
	dlq      messageWriter
	hook     ConsumerHook
	metrics  *Metrics
	logger   *applogger.Logger

	newReader func(topic string) messageReader
	queues    []chan kafka.Message

	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a consumer. metrics may be nil.
func NewConsumer(logger *applogger.Logger, metrics *Metrics, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "bankstats",
		Workers:    1,
		BufferSize: 16,
		RetryMax:   3,
		BackoffMin: 100 * time.Millisecond,
		BackoffMax: 5 * time.Second,
		MinBytes:   1,
		MaxBytes:   1 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if logger == nil {
		logger = applogger.Nop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	c := &Consumer{
		cfg:       cfg,
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]messageReader),
		hook:      NoopHook{},
		metrics:   metrics,
		logger:    logger,
		queues:    make([]chan kafka.Message, cfg.Workers),
	}
	for i := range c.queues {
		c.queues[i] = make(chan kafka.Message, cfg.BufferSize)
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
			MaxWait:  time.Second,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
	}
	return c, nil
}

// RegisterHandler adds a handler. A second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.logger.Warn("kafka handler already registered", applogger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// SetHook replaces the lifecycle hook.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for _, q := range c.queues {
		c.workWG.Add(1)
		go c.work(ctx, q)
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.fetchWG.Add(1)
		go c.fetch(ctx, topic, r)
	}
	c.logger.Info("kafka consumer started",
		applogger.Int("workers", c.cfg.Workers),
		applogger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop cancels fetching, lets workers finish, and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.fetchWG.Wait()
		for _, q := range c.queues {
			close(q)
		}

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer workers: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.logger.Warn("close kafka reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.logger.Warn("close dlq writer", applogger.Error(err))
			}
		}
		c.logger.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader) {
	defer c.fetchWG.Done()
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		select {
		case c.queueFor(km.Topic, km.Partition) <- km:
			c.metrics.setQueueDepth(c.queued())
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, queue <-chan kafka.Message) {
	defer c.workWG.Done()
	for km := range queue {
		c.metrics.setQueueDepth(c.queued())
		c.process(ctx, km)
	}
}

// queueFor maps a topic partition to a fixed worker queue.
func (c *Consumer) queueFor(topic string, partition int) chan kafka.Message {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	idx := (uint64(h.Sum32()) + uint64(uint32(partition))) % uint64(len(c.queues))
	return c.queues[idx]
}

func (c *Consumer) queued() int {
	n := 0
	for _, q := range c.queues {
		n += len(q)
	}
	return n
}

// process runs one message to completion: retries, DLQ and commit.
func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	if ctx.Err() != nil {
		return
	}
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}

	start := time.Now()
	attempts, err := c.handleWithRetry(ctx, h, km)
	if err != nil && ctx.Err() != nil {
		c.metrics.observeHandle(km.Topic, "canceled", time.Since(start))
		return
	}

	result := "ok"
	commit := err == nil
	if err != nil {
		result = "failed"
		c.logger.Error("kafka message failed",
			applogger.String("topic", km.Topic),
			applogger.Int64("offset", km.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if c.dlq != nil {
			if derr := c.deadLetter(ctx, km, err); derr != nil {
				c.logger.Error("dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(derr))
			} else {
				result, commit = "dead_lettered", true
			}
		}
	}
	c.metrics.observeHandle(km.Topic, result, time.Since(start))

	if commit {
		if r := c.readers[km.Topic]; r != nil {
			if cerr := c.commitWithRetry(ctx, r, km, 3); cerr != nil {
				c.logger.Error("kafka commit failed", applogger.String("topic", km.Topic), applogger.Error(cerr))
			}
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, h MessageHandler, km kafka.Message) (int, error) {
	var err error
	attempt := 0
	for {
		attempt++
		err = c.attempt(ctx, h, km)
		if err == nil || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, err
		}
	}
}

func (c *Consumer) attempt(ctx context.Context, h MessageHandler, km kafka.Message) (err error) {
	hctx, err := c.hook.BeforeHandle(ctx, km)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		c.hook.AfterHandle(hctx, km, err)
	}()
	return h.Handle(hctx, km.Value)
}

func (c *Consumer) deadLetter(ctx context.Context, km kafka.Message, cause error) error {
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(km.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
}

func (c *Consumer) commitWithRetry(ctx context.Context, r messageReader, km kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, km)
		cancel()
		if err == nil {
			return nil
		}
		if !sleepCtx(ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)) {
			break
		}
	}
	return err
}

// backoffWithJitter doubles from min per attempt, caps at max, and subtracts up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
