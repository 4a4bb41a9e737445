package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilReceiversAreSafe(t *testing.T) {
	var cron *CronJobMetrics
	cron.ObserveDuration("job", time.Second)
	cron.IncSuccess("job")
	cron.IncFailure("job")

	var access *AccessMetrics
	access.IncAllowed("recipe_generation")
	access.IncDenied("recipe_generation")
	access.IncWebhook("STRIPE", "processed")
}

func TestAccessMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	access := NewAccessMetrics(reg)

	access.IncAllowed("recipe_generation")
	access.IncAllowed("recipe_generation")
	access.IncDenied("video_generation")
	access.IncWebhook("MOMO", "duplicate")

	if got := testutil.ToFloat64(access.allowed.WithLabelValues("recipe_generation")); got != 2 {
		t.Fatalf("expected 2 allows, got %v", got)
	}
	if got := testutil.ToFloat64(access.denied.WithLabelValues("video_generation")); got != 1 {
		t.Fatalf("expected 1 deny, got %v", got)
	}
	if got := testutil.ToFloat64(access.webhooks.WithLabelValues("MOMO", "duplicate")); got != 1 {
		t.Fatalf("expected 1 webhook, got %v", got)
	}
}

func TestCronMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	cron := NewCronJobMetrics(reg)
	cron.IncSuccess("billing_rollover")
	cron.IncFailure("")
	if got := testutil.ToFloat64(cron.success.WithLabelValues("billing_rollover")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(cron.failure.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("empty job names normalize to unknown, got %v", got)
	}
}
