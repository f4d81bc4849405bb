// Package withdraw implements the withdrawal pipeline: verifies the
// requested payout type against configured payout methods, drafts a
// negative pending delta in the ledger, forwards the request to the
// payment system, and tracks the result until a terminal commit is
// issued.
package withdraw

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wireskip-contract/internal/contract/ledger"
	"wireskip-contract/internal/contract/metrics"
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/paysys"
	"wireskip-contract/internal/contract/tracker"
)

// ErrNoPayoutMethod is returned when no configured payout method's type
// matches a withdrawal request.
var ErrNoPayoutMethod = errors.New("no payout methods fits withdrawal")

// Record is a pending-withdrawal record tracked until the payment
// system reports a terminal state.
type Record struct {
	ID           string
	RelayPK      string
	State        model.WithdrawalState
	StateChanged int64
	Request      model.WithdrawalRequest
	Receipt      string
	Endpoint     string
}

// Pipeline accepts withdrawal requests, drafts ledger changes, and
// forwards them to the payment system. Its payment-system client is
// immutable and shared (read-only) with its watcher (RunWatcher).
type Pipeline struct {
	ledger  *ledger.Ledger
	tracker *tracker.Tracker
	client  *paysys.Client
	payout  map[string]model.PayoutCfg // keyed by Type
	logger  *logrus.Logger

	mu      sync.Mutex
	pending map[string]*Record
	watch   chan *Record
}

// NewPipeline builds a withdrawal pipeline over the given ledger and
// tracker, configured with the given payout methods.
func NewPipeline(l *ledger.Ledger, tr *tracker.Tracker, client *paysys.Client, payout []model.PayoutCfg, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	byType := make(map[string]model.PayoutCfg, len(payout))
	for _, p := range payout {
		byType[p.Type] = p
	}
	return &Pipeline{
		ledger:  l,
		tracker: tr,
		client:  client,
		payout:  byType,
		logger:  logger,
		pending: make(map[string]*Record),
		watch:   make(chan *Record, 100),
	}
}

// Submit runs the full withdrawal procedure: verify payout type, draft
// the ledger, forward to the payment system, dispatch on the result.
// relayPK is the header-verified relay public key; req is the
// already-decoded withdrawal request body.
func (p *Pipeline) Submit(ctx context.Context, now int64, relayPK string, req model.WithdrawalRequest) (*model.Withdrawal, error) {
	cfg, ok := p.payout[req.Type]
	if !ok {
		return nil, ErrNoPayoutMethod
	}

	if err := p.ledger.Draft(relayPK, req.Amount.Neg()); err != nil {
		return nil, err
	}
	p.tracker.LogWithdrawalPending(now, relayPK, req.Amount.Neg())

	w, err := p.client.Submit(ctx, cfg.Endpoint, req)
	if err != nil {
		// the draft stays open; an operator must reconcile manually.
		// payment-system unreachability is a recoverable external-system
		// failure, not an invariant violation.
		return nil, err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	rec := &Record{
		ID:           w.ID,
		RelayPK:      relayPK,
		State:        w.StateData.State,
		StateChanged: w.StateData.StateChanged,
		Request:      req,
		Receipt:      w.Receipt,
		Endpoint:     cfg.Endpoint,
	}

	switch w.StateData.State {
	case model.WithdrawalPending:
		p.mu.Lock()
		p.pending[rec.ID] = rec
		p.mu.Unlock()
		p.watch <- rec
	case model.WithdrawalComplete:
		p.tracker.Updates() <- tracker.BalanceUpdate{RelayPK: relayPK, Action: ledger.Apply}
		metrics.WithdrawalOutcomes.WithLabelValues("complete").Inc()
	default: // model.WithdrawalError or anything else
		p.tracker.Updates() <- tracker.BalanceUpdate{RelayPK: relayPK, Action: ledger.Abort}
		metrics.WithdrawalOutcomes.WithLabelValues("error").Inc()
	}

	return w, nil
}

// PendingCount reports the number of withdrawals still awaiting a
// terminal state (used by tests and /info-style introspection).
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// RunWatcher polls every pending withdrawal at checkPeriod until ctx is
// canceled, moving terminal results onto the tracker's BalanceUpdate
// channel. It runs as its own goroutine; its only interaction with
// shared ledger state is through that channel, preserving the tracker
// as the single writer over ledger commits.
func (p *Pipeline) RunWatcher(ctx context.Context, checkPeriod time.Duration) {
	ticker := time.NewTicker(checkPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-p.watch:
			p.pollOnce(ctx, rec)
		case <-ticker.C:
			p.pollAllPending(ctx)
		}
	}
}

func (p *Pipeline) pollAllPending(ctx context.Context) {
	p.mu.Lock()
	recs := make([]*Record, 0, len(p.pending))
	for _, r := range p.pending {
		recs = append(recs, r)
	}
	p.mu.Unlock()
	for _, r := range recs {
		p.pollOnce(ctx, r)
	}
}

func (p *Pipeline) pollOnce(ctx context.Context, rec *Record) {
	sd, err := p.client.Poll(ctx, rec.Endpoint)
	if err != nil {
		p.logger.WithError(err).WithField("withdrawal_id", rec.ID).Warn("withdraw: poll failed, will retry")
		return
	}
	if sd.State == model.WithdrawalPending {
		return
	}
	p.mu.Lock()
	delete(p.pending, rec.ID)
	p.mu.Unlock()

	action := ledger.Abort
	outcome := "error"
	if sd.State == model.WithdrawalComplete {
		action = ledger.Apply
		outcome = "complete"
	}
	p.tracker.Updates() <- tracker.BalanceUpdate{RelayPK: rec.RelayPK, Action: action}
	metrics.WithdrawalOutcomes.WithLabelValues(outcome).Inc()
}
