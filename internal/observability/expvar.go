package observability

import (
	"context"
	"expvar"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"microerp/internal/automation"
)

var expvarSeq uint64

var (
	_ automation.MetricsRecorder = (*ExpvarRecorder)(nil)
	_ automation.PassObserver    = (*ExpvarRecorder)(nil)
)

// ExpvarRecorder keeps per-operation totals and publishes them via expvar for
// deployments that do not scrape Prometheus.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
	records   map[string]int64
}

// ExpvarSnapshot is a read-only copy of the recorded totals.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	Records     map[string]int64            `json:"records_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder publishes a recorder under name, generating a unique name
// when empty. expvar names are process-global, so reusing a name panics.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		name = fmt.Sprintf("microerp_automation_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	r := &ExpvarRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
		records:   make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any { return r.Snapshot() }))
	return r
}

// Name returns the expvar name.
func (r *ExpvarRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make(map[string]map[string]int64, len(r.results))
	for op, counts := range r.results {
		results[op] = maps.Clone(counts)
	}
	return ExpvarSnapshot{
		DurationsMS: maps.Clone(r.durations),
		Results:     results,
		Records:     maps.Clone(r.records),
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe implements automation.MetricsRecorder.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[operation] += float64(duration) / float64(time.Millisecond)
	if r.results[operation] == nil {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][resultLabel(success)]++
}

// ObservePass implements automation.PassObserver.
func (r *ExpvarRecorder) ObservePass(_ context.Context, report automation.PassReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records["invoice_generated"] += int64(report.Generate.Created)
	r.records["invoice_overdue"] += report.Sweep.Updated
	r.records["notification_inserted"] += int64(report.Sync.Inserted)
	r.records["notification_resolved"] += report.Sync.Resolved
}
