// Package automation implements the microerp automation pass: recurring
// invoice generation, the overdue sweep and the notification feed sync. The
// routines depend only on domain.RecordStore and keep no state between passes.
package automation

import (
	"context"
	"time"

	"microerp/pkg/domain"
)

// Logger is the structured logging surface used by the automation routines.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives the outcome and duration of each pass stage.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// PassObserver is implemented by recorders that also track pass totals.
type PassObserver interface {
	ObservePass(ctx context.Context, report PassReport)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan ends a traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around pass stages.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// ReportArchive persists pass reports. Implementations return the key the
// report was stored under.
type ReportArchive interface {
	Archive(ctx context.Context, report PassReport) (string, error)
}

// Option configures the automation routines.
type Option func(*options)

type options struct {
	clock    Clock
	location *time.Location
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	archive  ReportArchive
	lockKey  string
}

// DefaultLockKey names the store lock held for the duration of a pass.
const DefaultLockKey = "microerp.automation.pass"

func newOptions(opts []Option) options {
	o := options{
		clock:    ClockFunc(time.Now),
		location: time.UTC,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		lockKey:  DefaultLockKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// today returns the calendar date of the clock in the configured location.
func (o options) today() time.Time {
	return domain.DateOf(o.clock.Now().In(o.location))
}

// WithClock overrides the clock used to compute "today".
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets the time zone that defines the calendar day.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger installs a logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithArchive stores every pass report in archive.
func WithArchive(archive ReportArchive) Option {
	return func(o *options) {
		o.archive = archive
	}
}

// WithLockKey overrides the store lock key.
func WithLockKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.lockKey = key
		}
	}
}
