// Package paysys is the HTTP client for the external payment system
// that withdrawals are forwarded to. It is immutable once built and
// shared (read-only) between the withdrawal pipeline and its watcher.
// A withdrawal is submitted once, then polled until it reaches a
// terminal state.
package paysys

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"wireskip-contract/internal/contract/model"
)

// Client talks to one payment-system endpoint over HTTP.
type Client struct {
	httpClient *http.Client
}

// New builds a Client with the given request timeout.
func New(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Submit POSTs a withdrawal request to endpoint and parses the
// resulting Withdrawal.
func (c *Client) Submit(ctx context.Context, endpoint string, req model.WithdrawalRequest) (*model.Withdrawal, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("paysys: marshal withdrawal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("paysys: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not perform payment system request: %w", err)
	}
	defer resp.Body.Close()

	var w model.Withdrawal
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, fmt.Errorf("could not parse payment system response: %w", err)
	}
	return &w, nil
}

// Poll fetches the current state of a pending withdrawal from
// endpoint.
func (c *Client) Poll(ctx context.Context, endpoint string) (*model.WithdrawalStateData, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("paysys: build poll request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not poll payment system: %w", err)
	}
	defer resp.Body.Close()

	var sd model.WithdrawalStateData
	if err := json.NewDecoder(resp.Body).Decode(&sd); err != nil {
		return nil, fmt.Errorf("could not parse payment system poll response: %w", err)
	}
	return &sd, nil
}
