package ledgerbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRetryBackoff = 10 * time.Second

// Invoker drives one operation against the ledger. *ChainSubmitter is the
// production implementation.
type Invoker interface {
	Invoke(ctx context.Context, op *Operation) error
}

// DeadLetterFunc receives operations the queue has given up on: malformed
// ones immediately, retryable ones once the attempt cap (if any) is spent.
type DeadLetterFunc func(op *Operation, err error)

// InvocationQueue is the single-writer FIFO that owns ordering and retry of
// write operations. Many callers enqueue concurrently; exactly one worker
// drains it, so at most one submission is ever unconfirmed.
//
// A failed operation goes back to the tail, not the head: a systemically
// broken operation costs one attempt per full rotation instead of
// livelocking the queue, at the price of losing total order across retries.
type InvocationQueue struct {
	invoker     Invoker
	logger      *slog.Logger
	metrics     *Metrics
	backoff     time.Duration
	maxAttempt  int
	deadLetters []DeadLetterFunc

	mu    sync.Mutex
	items []*queuedOperation
	// keys guards against duplicate submission for the process lifetime: a
	// correlation key is accepted exactly once, even after its operation
	// completed.
	keys map[uuid.UUID]struct{}
	wake chan struct{}
}

type queuedOperation struct {
	op       *Operation
	attempts int
}

// QueueOption configures the queue.
type QueueOption func(*InvocationQueue)

// WithRetryBackoff overrides the wait before a failed operation rejoins the
// tail.
func WithRetryBackoff(backoff time.Duration) QueueOption {
	return func(q *InvocationQueue) {
		q.backoff = backoff
	}
}

// WithMaxAttempts caps attempts per operation; the cap exhausted, the
// operation goes to the dead-letter sink. Zero means retry forever.
func WithMaxAttempts(n int) QueueOption {
	return func(q *InvocationQueue) {
		q.maxAttempt = n
	}
}

// WithDeadLetter adds a sink for abandoned operations. Sinks run in
// registration order.
func WithDeadLetter(fn DeadLetterFunc) QueueOption {
	return func(q *InvocationQueue) {
		q.deadLetters = append(q.deadLetters, fn)
	}
}

// WithQueueMetrics attaches Prometheus collectors.
func WithQueueMetrics(m *Metrics) QueueOption {
	return func(q *InvocationQueue) {
		q.metrics = m
	}
}

func NewInvocationQueue(invoker Invoker, logger *slog.Logger, opts ...QueueOption) *InvocationQueue {
	q := &InvocationQueue{
		invoker: invoker,
		logger:  logger,
		backoff: defaultRetryBackoff,
		keys:    make(map[uuid.UUID]struct{}),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends an operation to the tail. Non-blocking; fails only on a
// duplicate correlation key.
func (q *InvocationQueue) Enqueue(op *Operation) error {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}

	q.mu.Lock()
	if _, dup := q.keys[op.CorrelationKey]; dup {
		q.mu.Unlock()
		return ErrDuplicateCorrelationKey
	}
	q.keys[op.CorrelationKey] = struct{}{}
	q.items = append(q.items, &queuedOperation{op: op})
	depth := len(q.items)
	q.mu.Unlock()

	q.logger.Info("enqueued operation", "operation", op.Name, "correlationKey", op.CorrelationKey, "queueDepth", depth)
	q.setDepth(depth)
	q.signal()
	return nil
}

// Len returns the number of waiting operations.
func (q *InvocationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run drains the queue until ctx is cancelled. It is the sole owner of
// write ordering; no per-operation error ever terminates it.
func (q *InvocationQueue) Run(ctx context.Context) error {
	for {
		item, err := q.take(ctx)
		if err != nil {
			return err
		}
		q.process(ctx, item)
	}
}

func (q *InvocationQueue) take(ctx context.Context) (*queuedOperation, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			q.setDepth(depth)
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *InvocationQueue) process(ctx context.Context, item *queuedOperation) {
	op := item.op
	item.attempts++
	if q.metrics != nil {
		q.metrics.Attempts.Inc()
	}

	err := q.invoker.Invoke(ctx, op)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the attempt; nothing more to do.
		return
	}

	logger := q.logger.With("operation", op.Name, "correlationKey", op.CorrelationKey, "args", op.Args, "attempts", item.attempts)

	if !Retryable(err) {
		logger.Error("operation is malformed, dead-lettering", "error", err)
		q.abandon(op, err)
		return
	}
	if q.maxAttempt > 0 && item.attempts >= q.maxAttempt {
		logger.Error("attempt cap spent, dead-lettering", "error", err)
		q.abandon(op, err)
		return
	}

	logger.Error("invoke failed, re-queueing after backoff", "error", err, "backoff", q.backoff)
	select {
	case <-ctx.Done():
		return
	case <-time.After(q.backoff):
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()
	q.setDepth(depth)
	q.signal()
	if q.metrics != nil {
		q.metrics.Retries.Inc()
	}
}

func (q *InvocationQueue) abandon(op *Operation, err error) {
	if q.metrics != nil {
		q.metrics.DeadLetters.Inc()
	}
	for _, sink := range q.deadLetters {
		sink(op, err)
	}
}

func (q *InvocationQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *InvocationQueue) setDepth(depth int) {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(depth))
	}
}
