package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	batchesSubmitted    *prometheus.CounterVec
	batchesCompleted    *prometheus.CounterVec
	messagesDelivered   *prometheus.CounterVec
	permissionDenials   *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
	activeBatches       prometheus.Gauge
	pendingCorrelations prometheus.Gauge
	batchDuration       *prometheus.HistogramVec
	messageDuration     *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *Collector {
	return &Collector{
		batchesSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bago_batches_submitted_total",
				Help: "Total number of batches submitted",
			},
			[]string{"status"},
		),
		batchesCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bago_batches_completed_total",
				Help: "Total number of batches completed",
			},
			[]string{"status"},
		),
		messagesDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bago_messages_delivered_total",
				Help: "Total number of batch messages that reached a terminal state",
			},
			[]string{"status"},
		),
		permissionDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bago_permission_denials_total",
				Help: "Total number of cross-project deliveries denied",
			},
			[]string{"source_project", "target_project"},
		),
		rateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bago_rate_limited_total",
				Help: "Total number of batches rejected by rate limiting",
			},
			[]string{"agent"},
		),
		activeBatches: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bago_active_batches",
				Help: "Number of currently executing batches",
			},
		),
		pendingCorrelations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bago_pending_correlations",
				Help: "Number of open correlation tickets",
			},
		),
		batchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bago_batch_duration_seconds",
				Help:    "Batch execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		messageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bago_message_duration_seconds",
				Help:    "Per-message delivery duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
	}
}

// RecordBatchSubmitted records a batch submission
func (c *Collector) RecordBatchSubmitted(status string) {
	c.batchesSubmitted.WithLabelValues(status).Inc()
}

// RecordBatchCompleted records a batch reaching a terminal state
func (c *Collector) RecordBatchCompleted(status string, duration time.Duration) {
	c.batchesCompleted.WithLabelValues(status).Inc()
	c.batchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordMessageDelivered records a message reaching a terminal state
func (c *Collector) RecordMessageDelivered(status string, duration time.Duration) {
	c.messagesDelivered.WithLabelValues(status).Inc()
	c.messageDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPermissionDenied records a blocked cross-project delivery
func (c *Collector) RecordPermissionDenied(sourceProject, targetProject string) {
	c.permissionDenials.WithLabelValues(sourceProject, targetProject).Inc()
}

// RecordRateLimited records a rate-limited batch submission
func (c *Collector) RecordRateLimited(agentID string) {
	c.rateLimited.WithLabelValues(agentID).Inc()
}

// SetActiveBatches sets the active batch gauge
func (c *Collector) SetActiveBatches(n int) {
	c.activeBatches.Set(float64(n))
}

// SetPendingCorrelations sets the open correlation ticket gauge
func (c *Collector) SetPendingCorrelations(n int) {
	c.pendingCorrelations.Set(float64(n))
}
