package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.ObserveReconcile("created", 20*time.Millisecond)
	m.ObserveReconcile("duplicate", 5*time.Millisecond)
	m.ObserveReconcile("duplicate", 5*time.Millisecond)
	m.IncDegradation("placeholder_address")
	m.IncDeduction("failed")
	m.IncNotification("low_stock", "created")
	m.IncWebhook("payment_intent.succeeded", "2xx")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_reconcile_events_total", "outcome", "duplicate"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 2 {
		t.Fatalf("expected duplicate=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "storefront_reconcile_degradations_total", "reason", "placeholder_address"); err != nil || got != 1 {
		t.Fatalf("expected one degradation, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_inventory_deductions_total", "result", "failed"); err != nil || got != 1 {
		t.Fatalf("expected one failed deduction, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_webhook_requests_total", "status", "2xx"); err != nil || got != 1 {
		t.Fatalf("expected one webhook request, got %f err=%v", got, err)
	}
}
