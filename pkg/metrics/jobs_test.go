package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilRegistererIsNoop(t *testing.T) {
	jobs := NewJobMetrics(nil)
	jobs.ObserveDuration("fraud_scan", time.Second)
	jobs.IncSuccess("fraud_scan")
	jobs.IncFailure("fraud_scan")

	hooks := NewWebhookMetrics(nil)
	hooks.Inc("woocommerce", "processed")
}

func TestRegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	jobs := NewJobMetrics(reg)
	jobs.IncSuccess("recalculate")
	jobs.ObserveDuration("recalculate", 50*time.Millisecond)

	hooks := NewWebhookMetrics(reg)
	hooks.Inc("tipalti", "dropped")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	for _, expected := range []string{"job_duration_seconds", "job_success", "webhook_deliveries_total"} {
		if !names[expected] {
			t.Fatalf("expected metric family %s, got %v", expected, names)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	if normalizeLabel("") != "unknown" {
		t.Fatal("expected unknown for empty label")
	}
	if normalizeLabel("fraud_scan") != "fraud_scan" {
		t.Fatal("expected label passthrough")
	}
}
