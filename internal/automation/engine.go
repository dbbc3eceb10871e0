package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"microerp/pkg/domain"
)

// Stage operation names reported to metrics and tracing.
const (
	OpPass     = "automation_pass"
	OpGenerate = "generate_invoices"
	OpSweep    = "sweep_overdue"
	OpSync     = "sync_notifications"
)

// PassReport is the outcome of one automation pass.
type PassReport struct {
	Today      string         `json:"today"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Locked     bool           `json:"store_locked"`
	Generate   GenerateReport `json:"generate"`
	Sweep      SweepReport    `json:"sweep"`
	Sync       SyncReport     `json:"sync"`
	ArchiveKey string         `json:"archive_key,omitempty"`
}

// Failures returns the number of failed units of work across all stages.
func (r PassReport) Failures() int {
	n := r.Generate.Failed + r.Sync.Failed
	if r.Sweep.Error != "" {
		n++
	}
	return n
}

// Engine runs automation passes: generate, then sweep, then sync.
type Engine struct {
	store     domain.RecordStore
	opts      options
	generator *Generator
	sweeper   *Sweeper
	syncer    *Syncer

	mu sync.Mutex
}

// NewEngine wires the three routines over store with shared options.
func NewEngine(store domain.RecordStore, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{
		store:     store,
		opts:      o,
		generator: &Generator{store: store, opts: o},
		sweeper:   &Sweeper{store: store, opts: o},
		syncer:    &Syncer{store: store, opts: o},
	}
}

// RunPass executes one pass. Passes within a process are serialised; when the
// store implements domain.Locker its lock is held as well. RunPass never
// fails: errors are logged and counted in the report.
func (e *Engine) RunPass(ctx context.Context) PassReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := e.opts.logger
	started := e.opts.clock.Now()
	ctx, span := e.opts.tracer.Start(ctx, OpPass)

	report := PassReport{
		Today:     domain.FormatDate(e.opts.today()),
		StartedAt: started.UTC(),
	}
	if locker, ok := e.store.(domain.Locker); ok {
		unlock, err := locker.Lock(ctx, e.opts.lockKey)
		if err != nil {
			log.Warn("store lock unavailable, continuing with process lock", "key", e.opts.lockKey, "error", err)
		} else {
			report.Locked = true
			defer unlock()
		}
	}

	report.Generate = stage(ctx, e.opts, OpGenerate, e.generator.Run, func(r GenerateReport) error {
		return failure(r.Failed, "invoice generation had failures")
	})
	report.Sweep = stage(ctx, e.opts, OpSweep, e.sweeper.Run, func(r SweepReport) error {
		if r.Error != "" {
			return errors.New(r.Error)
		}
		return nil
	})
	report.Sync = stage(ctx, e.opts, OpSync, e.syncer.Run, func(r SyncReport) error {
		return failure(r.Failed, "notification sync had failures")
	})

	finished := e.opts.clock.Now()
	report.FinishedAt = finished.UTC()
	passErr := failure(report.Failures(), "automation pass had failures")
	e.opts.metrics.Observe(ctx, OpPass, passErr == nil, finished.Sub(started))
	if observer, ok := e.opts.metrics.(PassObserver); ok {
		observer.ObservePass(ctx, report)
	}
	span.End(passErr)

	if e.opts.archive != nil {
		key, err := e.opts.archive.Archive(ctx, report)
		if err != nil {
			log.Error("archive pass report", "error", err)
		} else {
			report.ArchiveKey = key
		}
	}
	log.Info("automation pass finished",
		"today", report.Today,
		"invoices_created", report.Generate.Created,
		"invoices_overdue", report.Sweep.Updated,
		"notifications_inserted", report.Sync.Inserted,
		"notifications_resolved", report.Sync.Resolved,
		"failures", report.Failures(),
		"duration", finished.Sub(started))
	return report
}

func stage[R any](ctx context.Context, o options, op string, run func(context.Context) R, outcome func(R) error) R {
	started := o.clock.Now()
	ctx, span := o.tracer.Start(ctx, op)
	result := run(ctx)
	err := outcome(result)
	o.metrics.Observe(ctx, op, err == nil, o.clock.Now().Sub(started))
	span.End(err)
	return result
}

func failure(count int, msg string) error {
	if count == 0 {
		return nil
	}
	return errors.New(msg)
}
