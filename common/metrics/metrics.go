package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics contains HTTP-related Prometheus metrics.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// SagaMetrics tracks the coordination protocols' outcomes: invoice FSM
// terminal transitions, deletion decisions, and compensation activity.
type SagaMetrics struct {
	InvoicesCreated      prometheus.Counter
	InvoicesCompleted    prometheus.Counter
	InvoicesFailed       prometheus.Counter
	InvoicesCancelled    prometheus.Counter
	DeletionsCommitted   prometheus.Counter
	DeletionsCancelled   prometheus.Counter
	DeletionsBySilence   prometheus.Counter
	CompensationsApplied prometheus.Counter
	PaymentAPIDuration   prometheus.Histogram
}

// NewHTTPMetrics creates HTTP metrics for a service.
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	return &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// NewSagaMetrics creates the saga-specific counters for a service.
func NewSagaMetrics(serviceName string) *SagaMetrics {
	return &SagaMetrics{
		InvoicesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_invoices_created_total",
			Help: "Total number of invoices created",
		}),
		InvoicesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_invoices_completed_total",
			Help: "Total number of invoices reaching COMPLETED",
		}),
		InvoicesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_invoices_failed_total",
			Help: "Total number of invoices reaching FAILED",
		}),
		InvoicesCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_invoices_cancelled_total",
			Help: "Total number of invoices reaching CANCELLED",
		}),
		DeletionsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_deletions_committed_total",
			Help: "Total number of customer deletions committed",
		}),
		DeletionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_deletions_cancelled_total",
			Help: "Total number of customer deletions vetoed",
		}),
		DeletionsBySilence: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_deletions_by_silence_total",
			Help: "Total number of deletions committed via silence timeout",
		}),
		CompensationsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_compensations_applied_total",
			Help: "Total number of inventory compensations applied",
		}),
		PaymentAPIDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    serviceName + "_payment_api_duration_seconds",
			Help:    "Payment processor API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *HTTPMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
