package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/neotracker/neotracker/internal/jobs"
)

func TestIngestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	const job = "neo:ingest_close_approaches"

	// Scheduled batches: small and fast.
	for i := 0; i < 40; i++ {
		tracker := metrics.Track(job)
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
		metrics.AddRecords("saved", 50)
	}

	// A source outage fails a few batches.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track(job)
		if err := tracker.End(errors.New("source unavailable")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}
	metrics.AddRecords("rejected", 3)
	metrics.AddRecords("rejected", 0)

	metrics.ObserveRefresh("refresh_success", 1500*time.Millisecond)
	metrics.ObserveRefresh("refresh_success", 2500*time.Millisecond)
	metrics.ObserveRefresh("refresh_failure", 120*time.Second)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "neotracker_jobs_total", map[string]string{"job": job, "status": "success"})
	failure := metricValue(t, families, "neotracker_jobs_total", map[string]string{"job": job, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("ingest success ratio too low: %f", ratio)
	}
	if got := metricValue(t, families, "neotracker_jobs_failures_total", map[string]string{"job": job}); got != 2 {
		t.Fatalf("expected 2 failures, got %f", got)
	}
	if got := metricValue(t, families, "neotracker_ingested_records_total", map[string]string{"result": "saved"}); got != 2000 {
		t.Fatalf("expected 2000 saved records, got %f", got)
	}
	if got := metricValue(t, families, "neotracker_ingested_records_total", map[string]string{"result": "rejected"}); got != 3 {
		t.Fatalf("expected 3 rejected records, got %f", got)
	}

	if mean := histogramMean(t, families, "neotracker_job_duration_seconds", map[string]string{"job": job}); mean > 0.5 {
		t.Fatalf("ingest duration above budget: %f", mean)
	}
	if mean := histogramMean(t, families, "neotracker_catalog_refresh_duration_seconds", map[string]string{"outcome": "refresh_success"}); mean != 2 {
		t.Fatalf("expected mean refresh duration of 2s, got %f", mean)
	}
	if got := metricValue(t, families, "neotracker_catalog_refreshes_total", map[string]string{"outcome": "refresh_failure"}); got != 1 {
		t.Fatalf("expected one failed refresh, got %f", got)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
