package withdraw

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wireskip-contract/internal/contract/ledger"
	"wireskip-contract/internal/contract/model"
	"wireskip-contract/internal/contract/paysys"
	"wireskip-contract/internal/contract/store"
	"wireskip-contract/internal/contract/tracker"
)

func newTestTracker(t *testing.T) (*tracker.Tracker, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(dir)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	l := ledger.New("USD")
	trk := tracker.New(tracker.Config{
		Calc:     tracker.NewDefaultShareCalc(decimal.NewFromInt(100), decimal.NewFromFloat(0.05)),
		Interval: 30,
		Ledger:   l,
		Store:    st,
		Log:      st.NewLog(1),
	})
	return trk, l
}

func fundRelay(l *ledger.Ledger, relayPK string, amount decimal.Decimal) {
	l.Draft(relayPK, amount)
	l.Commit(relayPK, ledger.Apply)
}

func TestSubmitRejectsUnknownPayoutType(t *testing.T) {
	trk, l := newTestTracker(t)
	p := NewPipeline(l, trk, paysys.New(time.Second), nil, nil)
	_, err := p.Submit(context.Background(), 1000, "relay-a", model.WithdrawalRequest{Type: "bank", Amount: decimal.NewFromInt(10)})
	if err != ErrNoPayoutMethod {
		t.Fatalf("expected ErrNoPayoutMethod, got %v", err)
	}
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	trk, l := newTestTracker(t)
	payout := []model.PayoutCfg{{Type: "bank", Endpoint: "http://unused"}}
	p := NewPipeline(l, trk, paysys.New(time.Second), payout, nil)
	_, err := p.Submit(context.Background(), 1000, "relay-a", model.WithdrawalRequest{Type: "bank", Amount: decimal.NewFromInt(10)})
	if err != ledger.ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestSubmitCompleteAppliesImmediately(t *testing.T) {
	trk, l := newTestTracker(t)
	fundRelay(l, "relay-a", decimal.NewFromInt(100))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.WithdrawalRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(model.Withdrawal{
			ID:        "w1",
			StateData: model.WithdrawalStateData{State: model.WithdrawalComplete, StateChanged: 1000},
			Request:   req,
			Receipt:   "rcpt-1",
		})
	}))
	defer srv.Close()

	payout := []model.PayoutCfg{{Type: "bank", Endpoint: srv.URL}}
	p := NewPipeline(l, trk, paysys.New(time.Second), payout, nil)

	_, err := p.Submit(context.Background(), 1000, "relay-a", model.WithdrawalRequest{Type: "bank", Amount: decimal.NewFromInt(40)})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	trk.TxnTick(1001)

	_, available, pending := l.Get("relay-a")
	if available != 60 {
		t.Fatalf("expected available=60 after a complete withdrawal of 40, got %d", available)
	}
	if pending != 0 {
		t.Fatalf("expected pending=0 after commit, got %d", pending)
	}
}

func TestSubmitErrorAbortsDraft(t *testing.T) {
	trk, l := newTestTracker(t)
	fundRelay(l, "relay-a", decimal.NewFromInt(100))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.WithdrawalRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(model.Withdrawal{
			ID:        "w2",
			StateData: model.WithdrawalStateData{State: model.WithdrawalError, StateChanged: 1000},
			Request:   req,
		})
	}))
	defer srv.Close()

	payout := []model.PayoutCfg{{Type: "bank", Endpoint: srv.URL}}
	p := NewPipeline(l, trk, paysys.New(time.Second), payout, nil)

	_, err := p.Submit(context.Background(), 1000, "relay-a", model.WithdrawalRequest{Type: "bank", Amount: decimal.NewFromInt(40)})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	trk.TxnTick(1001)

	_, available, pending := l.Get("relay-a")
	if available != 100 {
		t.Fatalf("expected available unchanged at 100 after an errored withdrawal, got %d", available)
	}
	if pending != 0 {
		t.Fatalf("expected pending=0 after abort, got %d", pending)
	}
}

func TestPendingWithdrawalResolvesViaWatcher(t *testing.T) {
	trk, l := newTestTracker(t)
	fundRelay(l, "relay-a", decimal.NewFromInt(100))

	var mu sync.Mutex
	state := model.WithdrawalPending
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req model.WithdrawalRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(model.Withdrawal{
				ID:        "w3",
				StateData: model.WithdrawalStateData{State: model.WithdrawalPending, StateChanged: 1000},
				Request:   req,
			})
			return
		}
		mu.Lock()
		s := state
		mu.Unlock()
		json.NewEncoder(w).Encode(model.WithdrawalStateData{State: s, StateChanged: 1001})
	}))
	defer srv.Close()

	payout := []model.PayoutCfg{{Type: "bank", Endpoint: srv.URL}}
	p := NewPipeline(l, trk, paysys.New(time.Second), payout, nil)

	if _, err := p.Submit(context.Background(), 1000, "relay-a", model.WithdrawalRequest{Type: "bank", Amount: decimal.NewFromInt(40)}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if p.PendingCount() != 1 {
		t.Fatalf("expected 1 pending withdrawal, got %d", p.PendingCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunWatcher(ctx, 10*time.Millisecond)

	mu.Lock()
	state = model.WithdrawalComplete
	mu.Unlock()
	deadline := time.After(2 * time.Second)
	for {
		trk.TxnTick(1002)
		if _, available, _ := l.Get("relay-a"); available == 60 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never resolved the pending withdrawal")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
