// Package metrics exposes the contract server's prometheus counters and
// gauges: share-token submissions, settlements, withdrawal outcomes and
// current ledger size.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SharetokensSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wireskip_contract_sharetokens_submitted_total",
		Help: "Share tokens accepted via POST /submit.",
	})

	SettlementsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wireskip_contract_settlements_total",
		Help: "Servicekey contracts settled by the tracker's tick loop.",
	}, []string{"currency"})

	WithdrawalsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wireskip_contract_withdrawals_submitted_total",
		Help: "Withdrawal requests accepted by POST /withdraw, by payout type.",
	}, []string{"type"})

	WithdrawalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wireskip_contract_withdrawal_outcomes_total",
		Help: "Terminal withdrawal dispositions, by outcome.",
	}, []string{"outcome"})

	TrackerHeapSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wireskip_contract_tracker_heap_size",
		Help: "Share tokens currently queued awaiting settlement.",
	})

	LedgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wireskip_contract_ledger_entries",
		Help: "Distinct relay keys tracked by the balance ledger.",
	})
)
