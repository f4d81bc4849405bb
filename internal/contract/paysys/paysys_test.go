package paysys

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wireskip-contract/internal/contract/model"
)

func TestSubmitParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("want POST, got %s", r.Method)
		}
		var req model.WithdrawalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(model.Withdrawal{
			ID:        "w1",
			StateData: model.WithdrawalStateData{State: model.WithdrawalPending, StateChanged: 100},
			Request:   req,
		})
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	req := model.WithdrawalRequest{Type: "bank", Amount: decimal.NewFromInt(40), Destination: "acct-1"}
	w, err := c.Submit(context.Background(), srv.URL, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if w.ID != "w1" || w.StateData.State != model.WithdrawalPending {
		t.Fatalf("unexpected withdrawal: %+v", w)
	}
}

func TestPollParsesStateData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("want GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(model.WithdrawalStateData{State: model.WithdrawalComplete, StateChanged: 200})
	}))
	defer srv.Close()

	c := New(5 * time.Second)
	sd, err := c.Poll(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if sd.State != model.WithdrawalComplete {
		t.Fatalf("want complete, got %v", sd.State)
	}
}

func TestSubmitWrapsTransportError(t *testing.T) {
	c := New(50 * time.Millisecond)
	_, err := c.Submit(context.Background(), "http://127.0.0.1:0", model.WithdrawalRequest{})
	if err == nil {
		t.Fatalf("want error submitting to unreachable endpoint")
	}
	if errors.Unwrap(err) == nil {
		t.Fatalf("want transport error wrapped, got unwrapped %v", err)
	}
}
