package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is reported for triggers submitted after Shutdown.
var ErrClosed = errors.New("dispatcher closed")

// Config sizes the dispatcher.
type Config struct {
	// Workers is the number of concurrent invocations. Defaults to 4.
	Workers int
	// QueueSize bounds the number of triggers waiting for a worker. Defaults to 64.
	QueueSize int
	// EnqueueTimeout is how long FireAndForget may wait for a free slot before the
	// trigger is dropped. Defaults to 1s.
	EnqueueTimeout time.Duration
	// Timeout bounds a single invocation. Defaults to 30s.
	Timeout time.Duration
	// Requeue re-enqueues a failed dispatch once.
	Requeue bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger. Failed dispatches are only visible here.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLifecycleHooks registers the OnDispatch hook.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

type job struct {
	id      string
	ctx     context.Context
	req     domain.TriggerRequest
	attempt int
}

// Dispatcher submits triggers asynchronously through an Invoker.
// Safe for concurrent use.
type Dispatcher struct {
	invoker ports.Invoker
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	hooks   domain.LifecycleHooks

	queue chan job
	group errgroup.Group

	pendingMu sync.Mutex
	pending   int
	idle      chan struct{}

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
	drained  chan struct{}
	err      error
}

// New creates a dispatcher and starts its workers.
func New(invoker ports.Invoker, cfg Config, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		invoker: invoker,
		cfg:     cfg,
		logger:  logging.NewNop(),
		queue:   make(chan job, cfg.QueueSize),
		drained: make(chan struct{}),
		idle:    make(chan struct{}),
	}
	close(d.idle)
	for _, opt := range opts {
		opt(d)
	}
	for i := 0; i < cfg.Workers; i++ {
		d.group.Go(func() error {
			for j := range d.queue {
				d.metrics.queued(-1)
				d.handle(j)
			}
			return nil
		})
	}
	return d
}

// FireAndForget queues req and returns without waiting for the invocation.
// Failures never reach the caller; they are logged and counted.
//
// The invocation runs on a context detached from ctx's cancellation, so the
// caller finishing its request does not abort the trigger.
func (d *Dispatcher) FireAndForget(ctx context.Context, req domain.TriggerRequest) {
	logger := d.logger.With("next_stage", req.NextStage)
	if req.CurrentStage != "" {
		logger = logger.With("current_stage", req.CurrentStage)
	}

	if err := req.Validate(); err != nil {
		d.metrics.count(req.NextStage, OutcomeRejected)
		logger.Error("trigger rejected", "error", fmt.Errorf("%w: %w", domain.ErrDispatch, err))
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.count(req.NextStage, OutcomeRejected)
		logger.Error("trigger rejected", "error", fmt.Errorf("%w: %w", domain.ErrDispatch, ErrClosed))
		return
	}

	j := job{
		id:      uuid.NewString(),
		ctx:     context.WithoutCancel(ctx),
		req:     req,
		attempt: 1,
	}
	d.track()
	if d.enqueue(j, d.cfg.EnqueueTimeout) {
		logger.Debug("trigger queued", "dispatch_id", j.id)
		return
	}
	d.untrack()
	d.metrics.count(req.NextStage, OutcomeDropped)
	logger.Error("trigger dropped", "dispatch_id", j.id,
		"error", fmt.Errorf("%w: queue full after %s", domain.ErrDispatch, d.cfg.EnqueueTimeout))
}

func (d *Dispatcher) enqueue(j job, wait time.Duration) bool {
	select {
	case d.queue <- j:
		d.metrics.queued(1)
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case d.queue <- j:
		d.metrics.queued(1)
		return true
	case <-timer.C:
		return false
	}
}

func (d *Dispatcher) handle(j job) {
	defer d.untrack()

	logger := d.logger.With("dispatch_id", j.id, "next_stage", j.req.NextStage, "attempt", j.attempt)
	ctx, cancel := context.WithTimeout(j.ctx, d.cfg.Timeout)
	started := time.Now()
	err := d.invoke(ctx, j.req)
	cancel()
	elapsed := time.Since(started)

	d.metrics.observe(j.req.NextStage, elapsed.Seconds())
	if d.hooks.OnDispatch != nil {
		d.hooks.OnDispatch(j.ctx, &domain.DispatchEvent{
			Timestamp: time.Now(),
			Request:   j.req,
			Attempt:   j.attempt,
			Duration:  elapsed,
			Err:       err,
		})
	}

	if err == nil {
		d.metrics.count(j.req.NextStage, OutcomeOK)
		logger.Info("trigger dispatched", "duration", elapsed)
		return
	}

	if d.cfg.Requeue && j.attempt == 1 {
		retry := j
		retry.attempt++
		d.track()
		if d.enqueue(retry, 0) {
			d.metrics.count(j.req.NextStage, OutcomeRequeued)
			logger.Warn("trigger failed, requeued", "error", err)
			return
		}
		d.untrack()
	}

	d.metrics.count(j.req.NextStage, OutcomeError)
	logger.Error("trigger failed", "duration", elapsed, "error", fmt.Errorf("%w: %w", domain.ErrDispatch, err))
}

func (d *Dispatcher) invoke(ctx context.Context, req domain.TriggerRequest) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("invoker panicked: %v", p)
		}
	}()
	return d.invoker.Invoke(ctx, req)
}

// track counts a queued or running dispatch.
func (d *Dispatcher) track() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending++
}

func (d *Dispatcher) untrack() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
}

func (d *Dispatcher) idleCh() <-chan struct{} {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return d.idle
}

// Pending returns the number of queued and running dispatches.
func (d *Dispatcher) Pending() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return d.pending
}

// Flush waits until no dispatch is queued or running, without closing the
// dispatcher. Triggers fired by the dispatches themselves (an in-process chain)
// are waited for too.
func (d *Dispatcher) Flush(ctx context.Context) error {
	select {
	case <-d.idleCh():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush dispatch queue: %w", ctx.Err())
	}
}

// Shutdown stops accepting triggers and waits until every queued and in-flight
// dispatch has finished. If ctx ends first, Shutdown returns its error while the
// drain continues in the background.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		go func() {
			<-d.idleCh()
			close(d.queue)
			d.err = d.group.Wait()
			close(d.drained)
		}()
	})

	select {
	case <-d.drained:
		return d.err
	case <-ctx.Done():
		return fmt.Errorf("drain dispatch queue: %w", ctx.Err())
	}
}
