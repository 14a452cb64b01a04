package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanCyclesTotal counts scan cycles by outcome
	ScanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_scan_cycles_total",
			Help: "Total number of scan cycles by outcome",
		},
		[]string{"outcome"},
	)

	// TransferLogsObserved counts transfer logs picked up by the scanner
	TransferLogsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_transfer_logs_observed_total",
			Help: "Total number of transfer logs observed",
		},
		[]string{"token"},
	)

	// DepositsConfirmed counts deposits that crossed the confirmation threshold
	DepositsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_deposits_confirmed_total",
			Help: "Total number of deposits confirmed",
		},
		[]string{"token"},
	)

	// LastScannedBlock tracks the chain head seen by the last cycle
	LastScannedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watcher_last_scanned_block",
			Help: "Head block number observed by the most recent scan cycle",
		},
		[]string{"network"},
	)

	// CreditGrantsTotal counts credit grants by reason
	CreditGrantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_credit_grants_total",
			Help: "Total number of credit ledger grants",
		},
		[]string{"reason"},
	)

	// WebhooksTotal counts inbound payment webhooks by provider and outcome
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_webhooks_total",
			Help: "Total number of payment webhooks received",
		},
		[]string{"provider", "outcome"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
