package ledgerbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedInvoker pops one result per attempt from the per-key script;
// keys with no script succeed. Every attempt lands on the attempts
// channel for the test to observe.
type scriptedInvoker struct {
	mu       sync.Mutex
	scripts  map[uuid.UUID][]error
	attempts chan *Operation
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		scripts:  make(map[uuid.UUID][]error),
		attempts: make(chan *Operation, 32),
	}
}

func (s *scriptedInvoker) script(key uuid.UUID, results ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[key] = results
}

func (s *scriptedInvoker) Invoke(_ context.Context, op *Operation) error {
	s.mu.Lock()
	var err error
	if script := s.scripts[op.CorrelationKey]; len(script) > 0 {
		err = script[0]
		s.scripts[op.CorrelationKey] = script[1:]
	}
	s.mu.Unlock()
	s.attempts <- op
	return err
}

func (s *scriptedInvoker) waitAttempts(t *testing.T, n int) []*Operation {
	t.Helper()
	ops := make([]*Operation, 0, n)
	for len(ops) < n {
		select {
		case op := <-s.attempts:
			ops = append(ops, op)
		case <-time.After(2 * time.Second):
			t.Fatalf("saw %d of %d expected attempts", len(ops), n)
		}
	}
	return ops
}

func testOp(name OperationName, args ...any) *Operation {
	return &Operation{
		Name:           name,
		CorrelationKey: uuid.New(),
		Marketplace:    "LootMarket",
		Args:           args,
	}
}

func runQueue(t *testing.T, q *InvocationQueue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestQueueFIFO(t *testing.T) {
	invoker := newScriptedInvoker()
	q := NewInvocationQueue(invoker, testLogger(t))

	a := testOp(OpGiveItems, "alice", uint64(1))
	b := testOp(OpPutOffer, "bob", uint64(2), uint64(100))
	c := testOp(OpRemoveItem, "carol", uint64(3))
	require.NoError(t, q.Enqueue(a))
	require.NoError(t, q.Enqueue(b))
	require.NoError(t, q.Enqueue(c))
	assert.Equal(t, 3, q.Len())

	runQueue(t, q)

	seen := invoker.waitAttempts(t, 3)
	assert.Equal(t, a.CorrelationKey, seen[0].CorrelationKey)
	assert.Equal(t, b.CorrelationKey, seen[1].CorrelationKey)
	assert.Equal(t, c.CorrelationKey, seen[2].CorrelationKey)

	// The correlation key stays spent even after completion.
	err := q.Enqueue(&Operation{Name: a.Name, CorrelationKey: a.CorrelationKey, Marketplace: a.Marketplace})
	assert.ErrorIs(t, err, ErrDuplicateCorrelationKey)
}

func TestQueueDuplicateKeyRejected(t *testing.T) {
	q := NewInvocationQueue(newScriptedInvoker(), testLogger(t))

	op := testOp(OpGiveItems, "alice", uint64(1))
	require.NoError(t, q.Enqueue(op))

	dup := testOp(OpBuyOffer, "bob", "offer1")
	dup.CorrelationKey = op.CorrelationKey
	assert.ErrorIs(t, q.Enqueue(dup), ErrDuplicateCorrelationKey)
	assert.Equal(t, 1, q.Len())
}

// A failed operation rejoins at the tail: everything enqueued behind it
// runs before its retry.
func TestQueueRetryGoesToTail(t *testing.T) {
	invoker := newScriptedInvoker()
	q := NewInvocationQueue(invoker, testLogger(t), WithRetryBackoff(time.Millisecond))

	a := testOp(OpBuyOffer, "alice", "offer1")
	b := testOp(OpGiveItems, "bob", uint64(1))
	c := testOp(OpGiveItems, "carol", uint64(2))
	invoker.script(a.CorrelationKey, NewSubmissionError(ErrCodeDryRunRejected, "no", nil))

	require.NoError(t, q.Enqueue(a))
	require.NoError(t, q.Enqueue(b))
	require.NoError(t, q.Enqueue(c))
	runQueue(t, q)

	seen := invoker.waitAttempts(t, 4)
	keys := []uuid.UUID{
		seen[0].CorrelationKey, seen[1].CorrelationKey,
		seen[2].CorrelationKey, seen[3].CorrelationKey,
	}
	assert.Equal(t, []uuid.UUID{a.CorrelationKey, b.CorrelationKey, c.CorrelationKey, a.CorrelationKey}, keys)
}

func TestQueueDeadLettersProtocolErrors(t *testing.T) {
	invoker := newScriptedInvoker()

	var mu sync.Mutex
	var dead []*Operation
	q := NewInvocationQueue(invoker, testLogger(t),
		WithRetryBackoff(time.Millisecond),
		WithDeadLetter(func(op *Operation, err error) {
			mu.Lock()
			dead = append(dead, op)
			mu.Unlock()
		}))

	bad := testOp(OpGiveItems, 3.14)
	invoker.script(bad.CorrelationKey,
		&ProtocolError{Message: "unsupported type"},
		&ProtocolError{Message: "unsupported type"})
	after := testOp(OpGiveItems, "alice", uint64(1))

	require.NoError(t, q.Enqueue(bad))
	require.NoError(t, q.Enqueue(after))
	runQueue(t, q)

	// One attempt for the malformed op, no retry, queue keeps draining.
	seen := invoker.waitAttempts(t, 2)
	assert.Equal(t, bad.CorrelationKey, seen[0].CorrelationKey)
	assert.Equal(t, after.CorrelationKey, seen[1].CorrelationKey)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dead, 1)
	assert.Equal(t, bad.CorrelationKey, dead[0].CorrelationKey)
}

func TestQueueDeadLetterSinksRunInOrder(t *testing.T) {
	invoker := newScriptedInvoker()

	order := make(chan string, 2)
	q := NewInvocationQueue(invoker, testLogger(t),
		WithRetryBackoff(time.Millisecond),
		WithDeadLetter(func(*Operation, error) { order <- "first" }),
		WithDeadLetter(func(*Operation, error) { order <- "second" }))

	op := testOp(OpGiveItems, 3.14)
	invoker.script(op.CorrelationKey, &ProtocolError{Message: "unsupported type"})

	require.NoError(t, q.Enqueue(op))
	runQueue(t, q)
	invoker.waitAttempts(t, 1)

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-order:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s dead-letter sink never ran", want)
		}
	}
}

func TestQueueAttemptCap(t *testing.T) {
	invoker := newScriptedInvoker()

	deadLettered := make(chan *Operation, 1)
	q := NewInvocationQueue(invoker, testLogger(t),
		WithRetryBackoff(time.Millisecond),
		WithMaxAttempts(2),
		WithDeadLetter(func(op *Operation, err error) {
			deadLettered <- op
		}))

	op := testOp(OpBuyOffer, "alice", "offer1")
	invoker.script(op.CorrelationKey,
		NewGateError(ErrCodeInsufficientFunds, "broke", nil),
		NewGateError(ErrCodeInsufficientFunds, "broke", nil),
		NewGateError(ErrCodeInsufficientFunds, "broke", nil))

	require.NoError(t, q.Enqueue(op))
	runQueue(t, q)

	invoker.waitAttempts(t, 2)
	select {
	case got := <-deadLettered:
		assert.Equal(t, op.CorrelationKey, got.CorrelationKey)
	case <-time.After(2 * time.Second):
		t.Fatal("operation never dead-lettered")
	}

	// No third attempt follows.
	select {
	case <-invoker.attempts:
		t.Fatal("operation retried past the attempt cap")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	invoker := newScriptedInvoker()
	q := NewInvocationQueue(invoker, testLogger(t),
		WithRetryBackoff(time.Millisecond),
		WithQueueMetrics(metrics))

	op := testOp(OpGiveItems, "alice", uint64(1))
	invoker.script(op.CorrelationKey, NewGateError(ErrCodeInsufficientFunds, "broke", nil))
	require.NoError(t, q.Enqueue(op))
	runQueue(t, q)

	invoker.waitAttempts(t, 2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.Attempts), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.Retries), 1.0)
	assert.Zero(t, testutil.ToFloat64(metrics.DeadLetters))
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	q := NewInvocationQueue(newScriptedInvoker(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- q.Run(ctx) }()

	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestQueueEnqueueWakesIdleWorker(t *testing.T) {
	invoker := newScriptedInvoker()
	q := NewInvocationQueue(invoker, testLogger(t))
	runQueue(t, q)

	// Worker is already parked on an empty queue.
	time.Sleep(10 * time.Millisecond)
	op := testOp(OpGiveItems, "alice", uint64(1))
	require.NoError(t, q.Enqueue(op))

	seen := invoker.waitAttempts(t, 1)
	assert.Equal(t, op.CorrelationKey, seen[0].CorrelationKey)
}
