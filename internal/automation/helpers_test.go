package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"microerp/internal/infra/persistence/memory"
	"microerp/pkg/domain"
)

var errInjected = errors.New("injected failure")

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu      sync.Mutex
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureArchive struct {
	reports []PassReport
	err     error
}

func (a *captureArchive) Archive(_ context.Context, report PassReport) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.reports = append(a.reports, report)
	return fmt.Sprintf("passes/%d.json", len(a.reports)), nil
}

// mutableClock is a clock tests can move between passes.
type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(year int, month time.Month, day int) *mutableClock {
	return &mutableClock{now: time.Date(year, month, day, 9, 30, 0, 0, time.UTC)}
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) set(year int, month time.Month, day int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Date(year, month, day, 9, 30, 0, 0, time.UTC)
}

func newMemoryStore(clock Clock) *memory.Store {
	var (
		mu  sync.Mutex
		seq int
	)
	return memory.NewStore(
		memory.WithClock(clock.Now),
		memory.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("%08d-0000-4000-8000-000000000000", seq)
		}),
	)
}

// faultyStore wraps a RecordStore and fails selected operations.
type faultyStore struct {
	domain.RecordStore
	failInsert     func(table domain.Table, row domain.Row) error
	failInsertMany func(table domain.Table) error
	failUpdate     func(table domain.Table) error
	failSelect     func(table domain.Table) error
	rewriteRows    func(table domain.Table, rows []domain.Row)
}

func (f *faultyStore) Select(ctx context.Context, table domain.Table, q domain.Query) ([]domain.Row, error) {
	if f.failSelect != nil {
		if err := f.failSelect(table); err != nil {
			return nil, err
		}
	}
	rows, err := f.RecordStore.Select(ctx, table, q)
	if err == nil && f.rewriteRows != nil {
		f.rewriteRows(table, rows)
	}
	return rows, err
}

func (f *faultyStore) Insert(ctx context.Context, table domain.Table, row domain.Row) (domain.Row, error) {
	if f.failInsert != nil {
		if err := f.failInsert(table, row); err != nil {
			return nil, err
		}
	}
	return f.RecordStore.Insert(ctx, table, row)
}

func (f *faultyStore) InsertMany(ctx context.Context, table domain.Table, rows []domain.Row) error {
	if f.failInsertMany != nil {
		if err := f.failInsertMany(table); err != nil {
			return err
		}
	}
	return f.RecordStore.InsertMany(ctx, table, rows)
}

func (f *faultyStore) Update(ctx context.Context, table domain.Table, filters []domain.Filter, patch domain.Row) (int64, error) {
	if f.failUpdate != nil {
		if err := f.failUpdate(table); err != nil {
			return 0, err
		}
	}
	return f.RecordStore.Update(ctx, table, filters, patch)
}

// lockingStore adds a domain.Locker to a store.
type lockingStore struct {
	domain.RecordStore
	mu      sync.Mutex
	locks   int
	unlocks int
	keys    []string
	lockErr error
}

func (l *lockingStore) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockErr != nil {
		return nil, l.lockErr
	}
	l.locks++
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocks++
	}, nil
}

func insertTemplate(t *testing.T, store domain.RecordStore, tpl domain.InvoiceTemplate) string {
	t.Helper()
	row, err := store.Insert(context.Background(), domain.TableInvoiceTemplates, tpl.Row())
	if err != nil {
		t.Fatalf("insert template: %v", err)
	}
	return row.String(domain.ColID)
}

func insertInvoice(t *testing.T, store domain.RecordStore, number, due string, status domain.InvoiceStatus) string {
	t.Helper()
	row, err := store.Insert(context.Background(), domain.TableInvoices, domain.Row{
		"invoice_number": number,
		"client_name":    "Acme",
		"issue_date":     "2024-04-01",
		"due_date":       due,
		"amount":         "250",
		"status":         status,
	})
	if err != nil {
		t.Fatalf("insert invoice %s: %v", number, err)
	}
	return row.String(domain.ColID)
}

func insertTask(t *testing.T, store domain.RecordStore, title string, deadline *string, status domain.TaskStatus) string {
	t.Helper()
	row := domain.Row{"title": title, "status": status, "priority": domain.PriorityMedium, "is_urgent": false}
	if deadline != nil {
		row["deadline"] = *deadline
	}
	created, err := store.Insert(context.Background(), domain.TableTasks, row)
	if err != nil {
		t.Fatalf("insert task %s: %v", title, err)
	}
	return created.String(domain.ColID)
}

func selectAll(t *testing.T, store domain.RecordStore, table domain.Table, filters ...domain.Filter) []domain.Row {
	t.Helper()
	rows, err := store.Select(context.Background(), table, domain.Query{Filters: filters, OrderBy: domain.ColCreatedAt})
	if err != nil {
		t.Fatalf("select %s: %v", table, err)
	}
	return rows
}

func ptr[T any](v T) *T { return &v }

func date(year int, month time.Month, day int) time.Time {
	return domain.NewDate(year, month, day)
}
