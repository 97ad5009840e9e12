package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation flows.
const (
	FlowStandalone   = "standalone"
	FlowSubscription = "subscription"
)

// PaymentMetrics records payment reconciliation and processor activity.
type PaymentMetrics struct {
	reconciliations  *prometheus.CounterVec
	licenseChecks    *prometheus.CounterVec
	processorLatency *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Payment success reconciliations by flow and outcome.",
	}, []string{"flow", "outcome"})
	licenseChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_validations_total",
		Help: "License key validation attempts by outcome.",
	}, []string{"outcome"})
	processorLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_processor_request_duration_seconds",
		Help:    "Duration of payment processor calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})
	reg.MustRegister(reconciliations, licenseChecks, processorLatency)
	return &PaymentMetrics{
		reconciliations:  reconciliations,
		licenseChecks:    licenseChecks,
		processorLatency: processorLatency,
	}
}

// IncReconciliation counts one reconciliation outcome for the flow.
func (p *PaymentMetrics) IncReconciliation(flow, outcome string) {
	if p == nil || p.reconciliations == nil {
		return
	}
	p.reconciliations.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

// IncLicenseValidation counts one license validation outcome.
func (p *PaymentMetrics) IncLicenseValidation(outcome string) {
	if p == nil || p.licenseChecks == nil {
		return
	}
	p.licenseChecks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProcessorCall records how long a processor call took and whether it failed.
func (p *PaymentMetrics) ObserveProcessorCall(operation string, duration time.Duration, err error) {
	if p == nil || p.processorLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.processorLatency.WithLabelValues(normalizeLabel(operation), result).Observe(duration.Seconds())
}

// HTTPMetrics records request latency per routed pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the request histogram on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// ObserveRequest records one completed request.
func (h *HTTPMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(normalizeLabel(method), normalizeLabel(route), strconv.Itoa(status)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
