package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrementAndAreRegistered(t *testing.T) {
	before := testutil.ToFloat64(SharetokensSubmitted)
	SharetokensSubmitted.Inc()
	after := testutil.ToFloat64(SharetokensSubmitted)
	if after != before+1 {
		t.Fatalf("want SharetokensSubmitted to increment by 1, got %v -> %v", before, after)
	}

	SettlementsProcessed.WithLabelValues("USD").Inc()
	if got := testutil.ToFloat64(SettlementsProcessed.WithLabelValues("USD")); got < 1 {
		t.Fatalf("want SettlementsProcessed{USD} >= 1, got %v", got)
	}

	WithdrawalsSubmitted.WithLabelValues("bank").Inc()
	if got := testutil.ToFloat64(WithdrawalsSubmitted.WithLabelValues("bank")); got < 1 {
		t.Fatalf("want WithdrawalsSubmitted{bank} >= 1, got %v", got)
	}

	WithdrawalOutcomes.WithLabelValues("complete").Inc()
	if got := testutil.ToFloat64(WithdrawalOutcomes.WithLabelValues("complete")); got < 1 {
		t.Fatalf("want WithdrawalOutcomes{complete} >= 1, got %v", got)
	}
}

func TestGaugesCanBeSet(t *testing.T) {
	TrackerHeapSize.Set(3)
	if got := testutil.ToFloat64(TrackerHeapSize); got != 3 {
		t.Fatalf("want TrackerHeapSize 3, got %v", got)
	}
	LedgerEntries.Set(7)
	if got := testutil.ToFloat64(LedgerEntries); got != 7 {
		t.Fatalf("want LedgerEntries 7, got %v", got)
	}
}
