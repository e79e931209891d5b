package ledgerbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lootmarkets/ledgerbridge/cache"
)

// Deps are the external collaborators a Bridge is built from. Everything is
// constructed once at process start and passed down explicitly; no
// component reaches for ambient state.
type Deps struct {
	Ledger LedgerClient
	Wallet WalletClient
	Bus    NotificationBus
	Store  cache.Store
	Logger *slog.Logger

	Contract    string
	Marketplace string
	WalletPath  string
	WalletPass  string
}

// Bridge wires the queue, submitter, gate, projector, read path, and status
// lookup into one service.
type Bridge struct {
	marketplace  string
	queue        *InvocationQueue
	submitter    *ChainSubmitter
	gate         *WalletSyncGate
	projector    *EventProjector
	readPath     *ReadQueryPath
	status       *StatusLookup
	store        *ProjectionStore
	reservations *ReservationSet
	logger       *slog.Logger
}

// BridgeOption configures the bridge and its components.
type BridgeOption func(*bridgeOptions)

type bridgeOptions struct {
	metrics      *Metrics
	queueOpts    []QueueOption
	gateOpts     []GateOption
	submitOpts   []SubmitterOption
	projOpts     []ProjectorOption
	reservations *ReservationSet
}

// WithMetrics attaches Prometheus collectors to the queue and submitter.
func WithMetrics(m *Metrics) BridgeOption {
	return func(o *bridgeOptions) {
		o.metrics = m
	}
}

// WithQueueOptions forwards options to the invocation queue.
func WithQueueOptions(opts ...QueueOption) BridgeOption {
	return func(o *bridgeOptions) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// WithGateOptions forwards options to the wallet sync gate.
func WithGateOptions(opts ...GateOption) BridgeOption {
	return func(o *bridgeOptions) {
		o.gateOpts = append(o.gateOpts, opts...)
	}
}

// WithSubmitterOptions forwards options to the chain submitter.
func WithSubmitterOptions(opts ...SubmitterOption) BridgeOption {
	return func(o *bridgeOptions) {
		o.submitOpts = append(o.submitOpts, opts...)
	}
}

// WithProjectorOptions forwards options to the event projector.
func WithProjectorOptions(opts ...ProjectorOption) BridgeOption {
	return func(o *bridgeOptions) {
		o.projOpts = append(o.projOpts, opts...)
	}
}

// NewBridge builds the full pipeline and registers the projector on the
// notification bus.
func NewBridge(deps Deps, opts ...BridgeOption) (*Bridge, error) {
	if deps.Ledger == nil || deps.Wallet == nil || deps.Bus == nil || deps.Store == nil {
		return nil, fmt.Errorf("ledger, wallet, bus, and store are all required")
	}
	if deps.Contract == "" || deps.Marketplace == "" {
		return nil, fmt.Errorf("contract and marketplace are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	options := &bridgeOptions{reservations: NewReservationSet()}
	for _, opt := range opts {
		opt(options)
	}

	store := NewProjectionStore(deps.Store)
	reservations := options.reservations

	projector := NewEventProjector(deps.Marketplace, store, reservations, deps.Logger.With("component", "projector"), options.projOpts...)
	projector.Register(deps.Bus)

	gate := NewWalletSyncGate(deps.Wallet, deps.Ledger, deps.WalletPath, deps.WalletPass,
		deps.Logger.With("component", "gate"), options.gateOpts...)

	submitOpts := options.submitOpts
	if options.metrics != nil {
		submitOpts = append(submitOpts, WithSubmitterMetrics(options.metrics))
	}
	submitter := NewChainSubmitter(deps.Contract, gate, deps.Ledger, store, reservations,
		deps.Logger.With("component", "submitter"), submitOpts...)

	// An abandoned buy or cancel is finished as far as the read model is
	// concerned; its offer must not stay hidden until restart. The release
	// runs before any operator-supplied sink.
	queueOpts := append([]QueueOption{WithDeadLetter(func(op *Operation, err error) {
		reservations.ReleaseFor(op)
	})}, options.queueOpts...)
	if options.metrics != nil {
		queueOpts = append(queueOpts, WithQueueMetrics(options.metrics))
	}
	queue := NewInvocationQueue(submitter, deps.Logger.With("component", "queue"), queueOpts...)

	readPath := NewReadQueryPath(deps.Contract, deps.Marketplace, deps.Ledger, store, reservations,
		deps.Logger.With("component", "readpath"))

	status := NewStatusLookup(deps.Ledger, store, deps.Logger.With("component", "status"))

	return &Bridge{
		marketplace:  deps.Marketplace,
		queue:        queue,
		submitter:    submitter,
		gate:         gate,
		projector:    projector,
		readPath:     readPath,
		status:       status,
		store:        store,
		reservations: reservations,
		logger:       deps.Logger,
	}, nil
}

// Run drives the queue worker until ctx is cancelled, then closes the
// wallet gate.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("bridge worker starting", "marketplace", b.marketplace)
	err := b.queue.Run(ctx)
	b.gate.Close()
	b.logger.Info("bridge worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Enqueue accepts one write operation for the queue. The correlation key
// must be fresh; a duplicate is rejected before it can reach the ledger
// twice.
func (b *Bridge) Enqueue(name OperationName, key uuid.UUID, args ...any) error {
	if !name.Valid() {
		return &ProtocolError{Message: fmt.Sprintf("unknown operation %q", name)}
	}
	if key == uuid.Nil {
		return &ProtocolError{Message: "missing correlation key"}
	}
	op := &Operation{
		Name:           name,
		CorrelationKey: key,
		Marketplace:    b.marketplace,
		Args:           args,
		EnqueuedAt:     time.Now().UTC(),
	}
	return b.queue.Enqueue(op)
}

// Search resolves a correlation key to its operation status.
func (b *Bridge) Search(ctx context.Context, key uuid.UUID, address string, op OperationName) (Status, error) {
	return b.status.Search(ctx, key, address, op)
}

// ClaimGas claims accumulated network fees into the operator wallet. The
// gate holds the shared wallet handle for the duration, so it is safe to
// run while the queue is working.
func (b *Bridge) ClaimGas(ctx context.Context) error {
	return b.gate.ClaimFees(ctx)
}

// Reads delegate to the dry-run read path.

func (b *Bridge) Balance(ctx context.Context, address string) (uint64, error) {
	return b.readPath.Balance(ctx, address)
}

func (b *Bridge) Inventory(ctx context.Context, address string) ([]uint64, error) {
	return b.readPath.Inventory(ctx, address)
}

func (b *Bridge) Offers(ctx context.Context) ([]string, time.Time, error) {
	return b.readPath.Offers(ctx)
}

func (b *Bridge) Offer(ctx context.Context, offerID string) (Offer, error) {
	return b.readPath.Offer(ctx, offerID)
}

func (b *Bridge) Owner(ctx context.Context) (string, error) {
	return b.readPath.Owner(ctx)
}

// ReserveBuy and ReserveCancel pair with Enqueue: dry-run the operation,
// hide the offer, then enqueue the matching write.

func (b *Bridge) ReserveBuy(ctx context.Context, address, offerID string) error {
	return b.readPath.ReserveBuy(ctx, address, offerID)
}

func (b *Bridge) ReserveCancel(ctx context.Context, address, offerID string) error {
	return b.readPath.ReserveCancel(ctx, address, offerID)
}

// Marketplace returns the marketplace this deployment serves.
func (b *Bridge) Marketplace() string { return b.marketplace }

// QueueDepth returns the number of waiting operations.
func (b *Bridge) QueueDepth() int { return b.queue.Len() }
