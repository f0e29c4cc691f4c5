package cartsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	metricNamespace        = "github.com/hanko-field/storefront/internal/cartsync"
	defaultDispatchTimeout = 15 * time.Second
)

// ErrDispatcherClosed is returned when work is submitted after Close.
var ErrDispatcherClosed = errors.New("cartsync: dispatcher closed")

// RemoteStore is the server-side cart API the engine mirrors into.
type RemoteStore interface {
	FetchCart(ctx context.Context, userID string) ([]Line, error)
	PushCart(ctx context.Context, userID string, lines []Line) error
	ClearCart(ctx context.Context, userID string) error
}

type taskKind string

const (
	taskPush  taskKind = "push"
	taskClear taskKind = "clear"
)

type task struct {
	kind   taskKind
	userID string
	lines  []Line
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	logger  *zap.Logger
	meter   metric.Meter
	timeout time.Duration
}

// WithDispatcherLogger sets the logger used for failed writes.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithDispatcherMeter injects a custom OpenTelemetry meter.
func WithDispatcherMeter(m metric.Meter) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		cfg.meter = m
	}
}

// WithDispatchTimeout bounds each remote call.
func WithDispatchTimeout(d time.Duration) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// Dispatcher delivers cart writes to the remote store in the background. Writes for the same user
// coalesce: only the most recent pending write is delivered, and writes for one user are never
// reordered. Failures are logged and counted, never retried.
type Dispatcher struct {
	remote  RemoteStore
	logger  *zap.Logger
	timeout time.Duration

	failures  metric.Int64Counter
	delivered metric.Int64Counter

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	pending map[string]task
	order   []string
	running bool
	closed  bool
	idle    []chan struct{}

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewDispatcher starts the background worker for remote.
func NewDispatcher(remote RemoteStore, opts ...DispatcherOption) (*Dispatcher, error) {
	if remote == nil {
		return nil, errors.New("cartsync: remote store is required")
	}
	cfg := dispatcherConfig{
		logger:  zap.NewNop(),
		timeout: defaultDispatchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	failures, err := meter.Int64Counter(
		"cartsync.remote.failures",
		metric.WithDescription("Count of remote cart writes that failed"),
	)
	if err != nil {
		cfg.logger.Warn("cartsync: unable to register failure metric", zap.Error(err))
	}
	delivered, err := meter.Int64Counter(
		"cartsync.remote.delivered",
		metric.WithDescription("Count of remote cart writes delivered"),
	)
	if err != nil {
		cfg.logger.Warn("cartsync: unable to register delivery metric", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		remote:    remote,
		logger:    cfg.logger,
		timeout:   cfg.timeout,
		failures:  failures,
		delivered: delivered,
		baseCtx:   ctx,
		cancel:    cancel,
		pending:   make(map[string]task),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go d.loop()
	return d, nil
}

// Push schedules a full replacement of the user's remote cart.
func (d *Dispatcher) Push(userID string, lines []Line) error {
	return d.enqueue(task{kind: taskPush, userID: userID, lines: cloneLines(lines)})
}

// Clear schedules removal of the user's remote cart.
func (d *Dispatcher) Clear(userID string) error {
	return d.enqueue(task{kind: taskClear, userID: userID})
}

func (d *Dispatcher) enqueue(t task) error {
	if t.userID == "" {
		return errors.New("cartsync: user id is required for remote writes")
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if _, ok := d.pending[t.userID]; !ok {
		d.order = append(d.order, t.userID)
	}
	d.pending[t.userID] = t
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush blocks until every write queued so far has been attempted or ctx is done.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	if len(d.pending) == 0 && !d.running {
		d.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	d.idle = append(d.idle, ch)
	d.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes, then stops the worker. Writes submitted afterwards are rejected.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	flushErr := d.Flush(ctx)
	d.stopOnce.Do(func() {
		d.cancel()
		close(d.stop)
	})
	select {
	case <-d.done:
	case <-ctx.Done():
		if flushErr == nil {
			flushErr = ctx.Err()
		}
	}
	return flushErr
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		t, ok := d.next()
		if ok {
			d.deliver(t)
			d.finish()
			continue
		}
		select {
		case <-d.wake:
		case <-d.stop:
			return
		}
	}
}

func (d *Dispatcher) next() (task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.order) == 0 {
		return task{}, false
	}
	userID := d.order[0]
	d.order = d.order[1:]
	t := d.pending[userID]
	delete(d.pending, userID)
	d.running = true
	return t, true
}

func (d *Dispatcher) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	if len(d.pending) > 0 {
		return
	}
	for _, ch := range d.idle {
		close(ch)
	}
	d.idle = nil
}

func (d *Dispatcher) deliver(t task) {
	ctx, cancel := context.WithTimeout(d.baseCtx, d.timeout)
	defer cancel()

	var err error
	switch t.kind {
	case taskPush:
		err = d.remote.PushCart(ctx, t.userID, t.lines)
	case taskClear:
		err = d.remote.ClearCart(ctx, t.userID)
	}

	attrs := metric.WithAttributes(attribute.String("kind", string(t.kind)))
	if err != nil {
		d.logger.Warn("remote cart write failed",
			zap.String("kind", string(t.kind)),
			userField(t.userID),
			errorField(err),
		)
		if d.failures != nil {
			d.failures.Add(context.Background(), 1, attrs)
		}
		return
	}
	if d.delivered != nil {
		d.delivered.Add(context.Background(), 1, attrs)
	}
}

func userField(userID string) zap.Field {
	return zap.String("userId", userID)
}

func errorField(err error) zap.Field {
	return zap.Error(err)
}
