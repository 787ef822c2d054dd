package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks order creation, reconciliation and gateway traffic.
type PaymentMetrics struct {
	created   *prometheus.CounterVec
	reconcile *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	gateway   *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orders_created_total",
		Help: "Payment orders created, by flow and gateway outcome.",
	}, []string{"flow", "outcome"})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_total",
		Help: "Reconciliation attempts, by observation source and result.",
	}, []string{"source", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Inbound gateway webhooks, by handling result.",
	}, []string{"result"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of outbound gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	reg.MustRegister(created, reconcile, webhooks, gateway)
	return &PaymentMetrics{
		created:   created,
		reconcile: reconcile,
		webhooks:  webhooks,
		gateway:   gateway,
	}
}

func (p *PaymentMetrics) IncCreated(flow, outcome string) {
	if p == nil || p.created == nil {
		return
	}
	p.created.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncReconcile(source, outcome string) {
	if p == nil || p.reconcile == nil {
		return
	}
	p.reconcile.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncWebhook(result string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveGatewayCall satisfies cashfree.LatencyObserver.
func (p *PaymentMetrics) ObserveGatewayCall(operation, outcome string, duration time.Duration) {
	if p == nil || p.gateway == nil {
		return
	}
	p.gateway.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}
