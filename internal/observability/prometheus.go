// Package observability provides the MetricsRecorder and Tracer
// implementations the host wires into the automation engine.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"microerp/internal/automation"
)

const namespace = "microerp"

var (
	_ automation.MetricsRecorder = (*PrometheusRecorder)(nil)
	_ automation.PassObserver    = (*PrometheusRecorder)(nil)
)

// PrometheusRecorder exports stage timings and pass totals as Prometheus
// collectors.
type PrometheusRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
	records   *prometheus.CounterVec
	lastPass  prometheus.Gauge
}

// NewPrometheusRecorder registers the automation collectors with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "stage_duration_seconds",
			Help:      "Duration of automation stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "stage_total",
			Help:      "Automation stage outcomes.",
		}, []string{"operation", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "records_total",
			Help:      "Records changed by automation passes.",
		}, []string{"kind"}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last automation pass finished.",
		}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.results, r.records, r.lastPass} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register automation collector: %w", err)
		}
	}
	return r, nil
}

// Observe implements automation.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, resultLabel(success)).Inc()
}

// ObservePass implements automation.PassObserver.
func (r *PrometheusRecorder) ObservePass(_ context.Context, report automation.PassReport) {
	r.records.WithLabelValues("invoice_generated").Add(float64(report.Generate.Created))
	r.records.WithLabelValues("invoice_overdue").Add(float64(report.Sweep.Updated))
	r.records.WithLabelValues("notification_inserted").Add(float64(report.Sync.Inserted))
	r.records.WithLabelValues("notification_resolved").Add(float64(report.Sync.Resolved))
	if !report.FinishedAt.IsZero() {
		r.lastPass.Set(float64(report.FinishedAt.Unix()))
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
