package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts transfers by direction and status
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transfers_total",
			Help: "Total number of bridge transfers",
		},
		[]string{"direction", "status"},
	)

	// TransferDuration tracks how long a message waits between dispatch and delivery
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transfer_duration_seconds",
			Help:    "Transfer delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// TransferAmount tracks the amount of tokens transferred, in whole tokens
	TransferAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transfer_amount",
			Help:    "Amount of tokens transferred",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000, 10000, 100000},
		},
		[]string{"direction", "token"},
	)

	// RejectionsTotal counts refused transfers by reason
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rejections_total",
			Help: "Total number of rejected transfers",
		},
		[]string{"bridge", "reason"},
	)

	// DailyUsed tracks the daily volume consumed per token, in whole tokens
	DailyUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_daily_used",
			Help: "Daily transfer volume used by bridge and token",
		},
		[]string{"bridge", "token"},
	)

	// MessagesDetected counts outbound messages seen on each relay path
	MessagesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_detected_total",
			Help: "Total number of outbound messages detected",
		},
		[]string{"path"},
	)

	// LastProcessedOffset tracks the outbound stream offset of each relay path
	LastProcessedOffset = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_last_processed_offset",
			Help: "Last processed outbound offset by path",
		},
		[]string{"path"},
	)

	// PendingTransfers tracks number of pending transfers
	PendingTransfers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_pending_transfers",
			Help: "Number of pending transfers by path",
		},
		[]string{"path"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Paused is 1 while a bridge instance is paused
	Paused = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_paused",
			Help: "Whether the bridge is paused",
		},
		[]string{"bridge"},
	)

	// AdminOpsTotal counts successful owner operations
	AdminOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_admin_ops_total",
			Help: "Total number of admin operations",
		},
		[]string{"bridge", "op"},
	)
)
