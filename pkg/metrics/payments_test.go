package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPaymentMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPaymentMetrics(reg)

	metrics.IncReconciliation(FlowStandalone, "completed")
	metrics.IncReconciliation(FlowStandalone, "completed")
	metrics.IncReconciliation(FlowSubscription, "duplicate")
	metrics.IncLicenseValidation("")
	metrics.ObserveProcessorCall("capture_order", 150*time.Millisecond, nil)
	metrics.ObserveProcessorCall("capture_order", 50*time.Millisecond, errors.New("boom"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "payment_reconciliations_total", map[string]string{"flow": FlowStandalone, "outcome": "completed"}); err != nil {
		t.Fatalf("fetch reconciliations: %v", err)
	} else if got != 2 {
		t.Fatalf("expected completed=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_reconciliations_total", map[string]string{"flow": FlowSubscription, "outcome": "duplicate"}); err != nil {
		t.Fatalf("fetch duplicate: %v", err)
	} else if got != 1 {
		t.Fatalf("expected duplicate=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "license_validations_total", map[string]string{"outcome": "unknown"}); err != nil {
		t.Fatalf("fetch license validations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected empty outcome normalized to unknown, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "payment_processor_request_duration_seconds", map[string]string{"operation": "capture_order", "result": "error"}); err != nil {
		t.Fatalf("fetch processor duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected error duration sum > 0, got %f", got)
	}
}

func TestHTTPMetricsObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics(reg)
	metrics.ObserveRequest("GET", "/api/releases", 200, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "http_request_duration_seconds", map[string]string{"method": "GET", "route": "/api/releases", "status": "200"}); err != nil {
		t.Fatalf("fetch request duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var payments *PaymentMetrics
	payments.IncReconciliation(FlowStandalone, "completed")
	payments.IncLicenseValidation("valid")
	payments.ObserveProcessorCall("create_order", time.Second, nil)

	unregistered := NewPaymentMetrics(nil)
	unregistered.IncReconciliation(FlowStandalone, "completed")

	var httpMetrics *HTTPMetrics
	httpMetrics.ObserveRequest("GET", "/health", 200, time.Millisecond)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if value, ok := want[pair.GetName()]; ok {
			if value != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
