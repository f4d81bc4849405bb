// Package tracker implements the settlement tracker: a priority queue
// of share tokens ordered by settlement_close, a periodic tick that
// drains due tokens and distributes rewards into the balance ledger,
// and the archival/shutdown recovery paths.
package tracker

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"wireskip-contract/internal/contract/ledger"
	"wireskip-contract/internal/contract/metrics"
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/store"
)

// BalanceUpdate is sent by the withdrawal pipeline to request a terminal
// commit on a pending draft.
type BalanceUpdate struct {
	RelayPK string
	Action  ledger.Action
}

type tokenKey struct {
	skPK    string
	relayPK string
}

// Tracker is the single writer over the share-token heap, the
// settlement aggregates, and the archive queue. The balance ledger
// itself supports many concurrent writers (one per relay key) but the
// tracker only ever drives it from this one goroutine's tick/txnTick
// calls.
type Tracker struct {
	mu       sync.Mutex
	heap     stHeap
	totals   map[string]int64
	tokens   map[tokenKey]int64
	archiveQ []*model.Sharetoken

	calc     ShareCalc
	interval int64

	ledger *ledger.Ledger
	store  *store.Store
	log    *store.Log

	updates chan BalanceUpdate

	logger *logrus.Logger
}

// Config bundles the tracker's fixed dependencies.
type Config struct {
	Calc     ShareCalc
	Interval int64 // tick floor, seconds
	Ledger   *ledger.Ledger
	Store    *store.Store
	Log      *store.Log
	Logger   *logrus.Logger
}

// New builds an empty tracker. A prior ledger snapshot is restored
// separately (Store.LoadBalances, then Ledger.LoadFrom) before serving
// traffic.
func New(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{
		totals:   make(map[string]int64),
		tokens:   make(map[tokenKey]int64),
		calc:     cfg.Calc,
		interval: cfg.Interval,
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		log:      cfg.Log,
		updates:  make(chan BalanceUpdate, 100),
		logger:   logger,
	}
}

// Updates returns the channel the withdrawal pipeline sends
// BalanceUpdates on. Sends block when the buffer (capacity 100) is
// full.
func (t *Tracker) Updates() chan<- BalanceUpdate { return t.updates }

// Push enqueues a verified share token for settlement and logs its
// submission.
func (t *Tracker) Push(now int64, st *model.Sharetoken) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Append(now, "submission", map[string]string{
		"sk_pubkey":    st.PublicKey.String(),
		"relay_pubkey": st.RelayPubkey.String(),
	})
	heap.Push(&t.heap, st)
	metrics.TrackerHeapSize.Set(float64(len(t.heap)))
}

// Tick drains every share token whose settlement_close has arrived,
// distributes rewards, archives settled tokens, and returns the next
// tick time: the settlement_close of the earliest token still queued,
// or now+interval when the queue is empty.
func (t *Tracker) Tick(now int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := now + t.interval

	for {
		if len(t.heap) == 0 {
			break
		}
		top := t.heap[0]
		if top.Contract.SettlementClose > now {
			next = top.Contract.SettlementClose
			break
		}
		popped := heap.Pop(&t.heap).(*model.Sharetoken)
		skPK := popped.PublicKey.String()
		relayPK := popped.RelayPubkey.String()
		t.totals[skPK]++
		t.tokens[tokenKey{skPK: skPK, relayPK: relayPK}]++
		t.archiveQ = append(t.archiveQ, popped)
	}

	t.distribute(now)
	t.archive()
	metrics.TrackerHeapSize.Set(float64(len(t.heap)))

	if err := t.log.Flush(); err != nil {
		t.logger.WithError(err).Error("tracker: failed to flush event log")
	}

	return next
}

func (t *Tracker) distribute(now int64) {
	if len(t.tokens) == 0 {
		return
	}
	settled := make(map[string]bool)
	for key, count := range t.tokens {
		total := t.totals[key.skPK]
		if total == 0 {
			continue
		}
		share := decimal.NewFromInt(count).Div(decimal.NewFromInt(total))
		reward := t.calc.Reward(share)
		if reward.IsNegative() {
			panic(fmt.Sprintf("tracker: negative reward computed for sk=%s relay=%s", key.skPK, key.relayPK))
		}
		if err := t.ledger.Draft(key.relayPK, reward); err != nil {
			panic(fmt.Sprintf("tracker: reward draft for relay %s failed: %v", key.relayPK, err))
		}
		t.ledger.Commit(key.relayPK, ledger.Apply)
		t.log.Append(now, "distribution", map[string]string{
			"sk_pubkey":    key.skPK,
			"relay_pubkey": key.relayPK,
			"delta":        reward.String(),
		})
		settled[key.skPK] = true
	}
	for skPK := range settled {
		t.log.Append(now, "settlement", map[string]string{"sk_pubkey": skPK})
		metrics.SettlementsProcessed.WithLabelValues(t.ledger.Currency()).Inc()
	}
	t.totals = make(map[string]int64)
	t.tokens = make(map[tokenKey]int64)
}

func (t *Tracker) archive() {
	remaining := t.archiveQ[:0]
	for _, st := range t.archiveQ {
		if err := t.store.ArchiveST(st); err != nil {
			t.logger.WithError(err).Warn("tracker: archive write failed, will retry next tick")
			remaining = append(remaining, st)
		}
	}
	t.archiveQ = remaining
}

// TxnTick non-blockingly drains the BalanceUpdate channel and commits
// each terminal disposition to the ledger. It never blocks the
// scheduler.
func (t *Tracker) TxnTick(now int64) {
	for {
		select {
		case upd := <-t.updates:
			t.ledger.Commit(upd.RelayPK, upd.Action)
			action := "apply"
			if upd.Action == ledger.Abort {
				action = "abort"
			}
			t.log.Append(now, "withdrawal_final", map[string]string{
				"relay_pubkey": upd.RelayPK,
				"action":       action,
			})
		default:
			return
		}
	}
}

// LogWithdrawalPending records that a withdrawal draft has been opened
// against the ledger, for relays tracked outside this package (the
// withdrawal pipeline calls this right after a successful Ledger.Draft).
func (t *Tracker) LogWithdrawalPending(now int64, relayPK string, delta decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Append(now, "withdrawal_pending", map[string]string{
		"relay_pubkey": relayPK,
		"delta":        delta.String(),
	})
}

// Shutdown flushes every in-flight share token to the unsettled/archive
// directories and snapshots the balance ledger. It is best-effort: all
// errors are logged and swallowed so shutdown always completes.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, st := range t.heap {
		if err := t.store.UnsettledST(st); err != nil {
			t.logger.WithError(err).Error("tracker: failed to persist unsettled share token")
		}
	}
	for _, st := range t.archiveQ {
		if err := t.store.ArchiveST(st); err != nil {
			t.logger.WithError(err).Error("tracker: failed to archive share token on shutdown")
		}
	}
	snap, err := t.ledger.Export()
	if err != nil {
		t.logger.WithError(err).Error("tracker: failed to export balances on shutdown")
		return
	}
	if err := t.store.SaveBalances(snap); err != nil {
		t.logger.WithError(err).Error("tracker: failed to write balances snapshot on shutdown")
	}
	if err := t.log.Flush(); err != nil {
		t.logger.WithError(err).Error("tracker: failed to flush event log on shutdown")
	}
}

// HeapLen reports how many share tokens are currently queued (tests
// only need this to assert drain behavior without reaching into
// internals).
func (t *Tracker) HeapLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.heap)
}
