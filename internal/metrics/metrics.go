package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors.
type Metrics struct {
	rpcCalls        *prometheus.HistogramVec
	blockDuration   *prometheus.HistogramVec
	balanceDuration prometheus.Histogram
	txDuration      prometheus.Histogram
	blocksProcessed prometheus.Counter
	deliveries      *prometheus.CounterVec
	errors          prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

var durationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			rpcCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "block_fetcher_rpc_call_duration_seconds",
				Help:    "Duration of node calls including retries",
				Buckets: durationBuckets,
			}, []string{"function", "status"}),
			blockDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "block_fetcher_block_processing_duration_seconds",
				Help:    "Duration of fetching one block's data",
				Buckets: durationBuckets,
			}, []string{"status"}),
			balanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "block_fetcher_balances_processing_duration_seconds",
				Help:    "Duration of resolving a block's changed balances",
				Buckets: durationBuckets,
			}),
			txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "block_fetcher_transaction_processing_duration_seconds",
				Help:    "Duration of fetching one transaction's data",
				Buckets: durationBuckets,
			}),
			blocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "block_fetcher_blocks_processed_total",
				Help: "Total number of blocks processed",
			}),
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "block_fetcher_deliveries_total",
				Help: "Block deliveries to sinks",
			}, []string{"sink", "status"}),
			errors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "block_fetcher_errors_total",
				Help: "Total number of errors encountered",
			}),
		}
		prometheus.MustRegister(
			metrics.rpcCalls,
			metrics.blockDuration,
			metrics.balanceDuration,
			metrics.txDuration,
			metrics.blocksProcessed,
			metrics.deliveries,
			metrics.errors,
		)
	})
	return metrics
}

// ObserveRPCCall records the final outcome of a retried node call.
func (m *Metrics) ObserveRPCCall(function, status string, d time.Duration) {
	if m != nil {
		m.rpcCalls.WithLabelValues(function, status).Observe(d.Seconds())
	}
}

// ObserveBlock records one block fetch.
func (m *Metrics) ObserveBlock(status string, d time.Duration) {
	if m != nil {
		m.blockDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

// ObserveBalances records one balance resolution pass.
func (m *Metrics) ObserveBalances(d time.Duration) {
	if m != nil {
		m.balanceDuration.Observe(d.Seconds())
	}
}

// ObserveTransaction records one transaction fetch.
func (m *Metrics) ObserveTransaction(d time.Duration) {
	if m != nil {
		m.txDuration.Observe(d.Seconds())
	}
}

// BlocksProcessed increments the blocks processed counter.
func (m *Metrics) BlocksProcessed() {
	if m != nil {
		m.blocksProcessed.Inc()
	}
}

// Delivered counts a delivery attempt to a sink.
func (m *Metrics) Delivered(sink, status string) {
	if m != nil {
		m.deliveries.WithLabelValues(sink, status).Inc()
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
