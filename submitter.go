package ledgerbridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultConfirmPoll    = 5 * time.Second
	defaultConfirmCeiling = 300 * time.Second
)

// Submission lifecycle hooks.
type (
	BeforeSubmitHook func(op *Operation)
	AfterConfirmHook func(op *Operation, txID string, confirmed bool)
	OnFailureHook    func(op *Operation, err error)
)

// ChainSubmitter drives one operation through the gate, the dry run, the
// real submission, and the confirmation poll. It is meant to be called by
// exactly one worker at a time; the in-flight guard re-asserts that
// structurally enforced invariant against future multi-worker changes.
type ChainSubmitter struct {
	contract     string
	gate         *WalletSyncGate
	ledger       LedgerClient
	store        *ProjectionStore
	reservations *ReservationSet
	logger       *slog.Logger
	metrics      *Metrics

	confirmPoll    time.Duration
	confirmCeiling time.Duration

	mu         sync.Mutex
	inFlightTx string

	beforeSubmitHooks []BeforeSubmitHook
	afterConfirmHooks []AfterConfirmHook
	onFailureHooks    []OnFailureHook
}

// SubmitterOption configures the submitter.
type SubmitterOption func(*ChainSubmitter)

// WithConfirmationWindow overrides the confirmation poll interval and
// ceiling.
func WithConfirmationWindow(poll, ceiling time.Duration) SubmitterOption {
	return func(s *ChainSubmitter) {
		s.confirmPoll = poll
		s.confirmCeiling = ceiling
	}
}

// WithSubmitterMetrics attaches Prometheus collectors.
func WithSubmitterMetrics(m *Metrics) SubmitterOption {
	return func(s *ChainSubmitter) {
		s.metrics = m
	}
}

func NewChainSubmitter(contract string, gate *WalletSyncGate, ledger LedgerClient, store *ProjectionStore, reservations *ReservationSet, logger *slog.Logger, opts ...SubmitterOption) *ChainSubmitter {
	s := &ChainSubmitter{
		contract:       contract,
		gate:           gate,
		ledger:         ledger,
		store:          store,
		reservations:   reservations,
		logger:         logger,
		confirmPoll:    defaultConfirmPoll,
		confirmCeiling: defaultConfirmCeiling,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnBeforeSubmit registers a hook fired just before the real submission.
func (s *ChainSubmitter) OnBeforeSubmit(hook BeforeSubmitHook) *ChainSubmitter {
	s.beforeSubmitHooks = append(s.beforeSubmitHooks, hook)
	return s
}

// OnAfterConfirm registers a hook fired after the confirmation poll ends,
// confirmed or timed out.
func (s *ChainSubmitter) OnAfterConfirm(hook AfterConfirmHook) *ChainSubmitter {
	s.afterConfirmHooks = append(s.afterConfirmHooks, hook)
	return s
}

// OnFailure registers a hook fired when an invoke attempt fails.
func (s *ChainSubmitter) OnFailure(hook OnFailureHook) *ChainSubmitter {
	s.onFailureHooks = append(s.onFailureHooks, hook)
	return s
}

// Invoke runs one operation end to end. Gate and submission failures come
// back as retryable errors for the queue; a confirmation timeout does not:
// the network accepted the write, only its inclusion observation timed out,
// and resubmitting would double-spend.
func (s *ChainSubmitter) Invoke(ctx context.Context, op *Operation) error {
	err := s.invoke(ctx, op)
	if err != nil {
		for _, hook := range s.onFailureHooks {
			hook(op, err)
		}
	}
	return err
}

func (s *ChainSubmitter) invoke(ctx context.Context, op *Operation) error {
	logger := s.logger.With("operation", op.Name, "correlationKey", op.CorrelationKey)

	if err := s.gate.Open(); err != nil {
		return err
	}
	defer s.gate.Close()

	if err := s.gate.WaitUntilSynced(ctx); err != nil {
		return err
	}

	funded, err := s.gate.HasFunds(ctx)
	if err != nil {
		return err
	}
	if !funded {
		// Rebuild was already kicked off as a side effect; fail and let the
		// queue come back to this operation.
		return NewGateError(ErrCodeInsufficientFunds, "wallet holds no fee asset", nil)
	}

	if tx := s.currentInFlight(); tx != "" {
		return NewSubmissionError(ErrCodeTransactionInFlight, "previous submission still unconfirmed: "+tx, nil)
	}

	params, err := EncodeArgs(op)
	if err != nil {
		return err
	}
	call := ContractCall{Contract: s.contract, Operation: string(op.Name), Params: params}

	logger.Info("dry-running invoke", "args", op.Args)
	result, err := s.ledger.TestInvoke(ctx, call)
	if err != nil {
		return NewSubmissionError(ErrCodeDryRunRejected, "dry run produced no transaction", err)
	}

	for _, hook := range s.beforeSubmitHooks {
		hook(op)
	}

	txID, err := s.ledger.Submit(ctx, result)
	if err != nil {
		return NewSubmissionError(ErrCodeSubmissionRejected, "ledger rejected transaction", err)
	}
	s.setInFlight(txID)
	defer s.setInFlight("")

	logger.Info("transaction underway", "txID", txID, "fee", result.Fee)
	if s.metrics != nil {
		s.metrics.Submissions.Inc()
	}

	record := TransactionRecord{
		CorrelationKey: op.CorrelationKey,
		LedgerTxID:     txID,
		LastCheckedAt:  time.Now().UTC(),
	}
	if err := s.store.SetTransactionRecord(record); err != nil {
		logger.Error("storing transaction record failed", "txID", txID, "error", err)
	}

	confirmed := s.waitForConfirmation(ctx, logger, txID)
	if confirmed {
		record.Confirmed = true
		record.LastCheckedAt = time.Now().UTC()
		if err := s.store.SetTransactionRecord(record); err != nil {
			logger.Error("updating transaction record failed", "txID", txID, "error", err)
		}
		if err := s.store.SetTxFound(op.CorrelationKey, true); err != nil {
			logger.Error("caching tx-found flag failed", "txID", txID, "error", err)
		}
	}

	for _, hook := range s.afterConfirmHooks {
		hook(op, txID, confirmed)
	}

	// The write is settled one way or the other; the offer no longer needs
	// to hide from queries.
	s.reservations.ReleaseFor(op)
	return nil
}

// waitForConfirmation polls the ledger until the transaction shows up or
// the window closes. A timeout is logged, never escalated.
func (s *ChainSubmitter) waitForConfirmation(ctx context.Context, logger *slog.Logger, txID string) bool {
	start := time.Now()
	for time.Since(start) < s.confirmCeiling {
		found, height, err := s.ledger.GetTransaction(ctx, txID)
		if err != nil {
			logger.Warn("confirmation poll failed", "txID", txID, "error", err)
		} else if found {
			logger.Info("transaction confirmed", "txID", txID, "blockHeight", height)
			if s.metrics != nil {
				s.metrics.ConfirmationSeconds.Observe(time.Since(start).Seconds())
			}
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.confirmPoll):
		}
	}
	logger.Error("transaction relayed but not observed in window", "txID", txID, "window", s.confirmCeiling, "error", ErrConfirmationTimeout)
	if s.metrics != nil {
		s.metrics.ConfirmationTimeouts.Inc()
	}
	return false
}

func (s *ChainSubmitter) currentInFlight() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightTx
}

func (s *ChainSubmitter) setInFlight(txID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlightTx = txID
}
