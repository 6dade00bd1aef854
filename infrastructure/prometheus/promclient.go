package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lighter_cpty"

var LiveOrderBookGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_order_books",
		Help:      "order books that are initialized and published",
	},
)

var SequenceGapCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "book_sequence_gaps_total",
		Help:      "book deltas rejected for a sequence gap",
	},
	[]string{"market"},
)

var OutdatedDeltaCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "book_outdated_deltas_total",
		Help:      "duplicate or stale book deltas dropped",
	},
	[]string{"market"},
)

var BookPublishCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "book_snapshots_published_total",
		Help:      "book snapshots handed to sinks",
	},
)

var StreamMessageCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_messages_total",
		Help:      "inbound stream messages by type",
	},
	[]string{"type"},
)

var StreamReconnectCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_reconnects_total",
		Help:      "stream connections re-established",
	},
)

var StreamResyncCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_resyncs_total",
		Help:      "per-market resubscriptions requested after a sequence gap",
	},
)

var OrderTransitionCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "order status transitions by target status",
	},
	[]string{"status"},
)

var UnmatchedTradeCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unmatched_trades_total",
		Help:      "trade events discarded without a matching order",
	},
)

var CancelAllDivergenceCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancel_all_divergences_total",
		Help:      "orders marked cancelled by cancel-all that the exchange still reports open",
	},
)

var SubmissionLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "submission_seconds",
		Help:      "latency of exchange submissions",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op", "result"},
)

var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		LiveOrderBookGauge,
		SequenceGapCounter,
		OutdatedDeltaCounter,
		BookPublishCounter,
		StreamMessageCounter,
		StreamReconnectCounter,
		StreamResyncCounter,
		OrderTransitionCounter,
		UnmatchedTradeCounter,
		CancelAllDivergenceCounter,
		SubmissionLatency,
		collectors.NewGoCollector(),
	)
	return reg
}

// NewPromClientServer returns an http server exposing /metrics on addr.
func NewPromClientServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
