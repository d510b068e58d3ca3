package cloudmetrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CloudMetrics aggregates accounting metrics for one install and pushes them
// to the configured collection endpoint. Every method is safe on a nil
// receiver so callers can treat the feature as absent.
type CloudMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	logger   *zap.Logger

	memoryBytes       prometheus.Gauge
	creatorsTotal     prometheus.Gauge
	requestsByStatus  *prometheus.GaugeVec
	payoutTransfers   *prometheus.CounterVec
	claimsAccepted    prometheus.Counter
	invoicesGenerated prometheus.Counter
}

// New registers the accounting metrics on registry. A nil registry gets a
// private one, which keeps these series off the local /metrics endpoint.
func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, logger *zap.Logger) *CloudMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	constLabels := prometheus.Labels{}
	if v := strings.TrimSpace(instanceID); v != "" {
		constLabels["instance"] = v
	}
	if v := strings.TrimSpace(version); v != "" {
		constLabels["version"] = v
	}

	c := &CloudMetrics{
		registry: registry,
		pusher:   pusher,
		logger:   logger,
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "creatorpay_memory_bytes",
			Help:        "Memory obtained from the OS by the running process.",
			ConstLabels: constLabels,
		}),
		creatorsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "creatorpay_creators_total",
			Help:        "Creators registered on this install.",
			ConstLabels: constLabels,
		}),
		requestsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "creatorpay_payment_requests",
			Help:        "Payment requests on this install by lifecycle status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		payoutTransfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "creatorpay_payout_transfers_total",
			Help:        "Payout transfer attempts since process start by provider and outcome.",
			ConstLabels: constLabels,
		}, []string{"provider", "outcome"}),
		claimsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "creatorpay_claims_accepted_total",
			Help:        "Claim links accepted since process start.",
			ConstLabels: constLabels,
		}),
		invoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "creatorpay_invoices_generated_total",
			Help:        "Invoices generated since process start.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		c.memoryBytes,
		c.creatorsTotal,
		c.requestsByStatus,
		c.payoutTransfers,
		c.claimsAccepted,
		c.invoicesGenerated,
	)
	return c
}

// Push sends the current snapshot through the configured pusher.
func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}

func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil {
		return
	}
	c.memoryBytes.Set(float64(bytes))
}

func (c *CloudMetrics) SetCreatorsTotal(count int64) {
	if c == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	c.creatorsTotal.Set(float64(count))
}

// SetPaymentRequests replaces the per-status snapshot. Resetting first keeps
// statuses that emptied out since the last poll from reporting stale counts.
func (c *CloudMetrics) SetPaymentRequests(counts map[string]int64) {
	if c == nil {
		return
	}
	c.requestsByStatus.Reset()
	for status, count := range counts {
		if count < 0 {
			count = 0
		}
		c.requestsByStatus.WithLabelValues(normalizeLabel(status)).Set(float64(count))
	}
}

func (c *CloudMetrics) IncPayoutTransfer(provider, outcome string) {
	if c == nil {
		return
	}
	c.payoutTransfers.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (c *CloudMetrics) IncClaimAccepted() {
	if c == nil {
		return
	}
	c.claimsAccepted.Inc()
}

func (c *CloudMetrics) IncInvoiceGenerated() {
	if c == nil {
		return
	}
	c.invoicesGenerated.Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
