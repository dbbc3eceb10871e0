package automation

import (
	"context"
	"fmt"
	"testing"

	"microerp/pkg/domain"
)

func notificationsByKey(t *testing.T, store domain.RecordStore) map[domain.NotificationKey]domain.Notification {
	t.Helper()
	out := make(map[domain.NotificationKey]domain.Notification)
	for _, row := range selectAll(t, store, domain.TableNotifications) {
		n, err := domain.NotificationFromRow(row)
		if err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		if _, dup := out[n.Key()]; dup {
			t.Fatalf("duplicate notification for %s", n.Key())
		}
		out[n.Key()] = n
	}
	return out
}

func TestSyncerInsertsInvoiceAndTaskNotifications(t *testing.T) {
	clock := newClock(2024, 6, 10)
	store := newMemoryStore(clock)
	unpaid := insertInvoice(t, store, "INV-7", "2024-06-20", domain.InvoiceSent)
	insertInvoice(t, store, "INV-8", "2024-06-20", domain.InvoicePaid)
	late := insertTask(t, store, "File taxes", ptr("2024-06-09"), domain.TaskTodo)
	soon := insertTask(t, store, "Renew domain", ptr("2024-06-17"), domain.TaskInProgress)
	insertTask(t, store, "Far away", ptr("2024-06-18"), domain.TaskTodo)
	insertTask(t, store, "No deadline", nil, domain.TaskTodo)
	insertTask(t, store, "Finished", ptr("2024-06-11"), domain.TaskDone)

	report := NewSyncer(store, WithClock(clock)).Run(context.Background())
	if report.Inserted != 3 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	got := notificationsByKey(t, store)
	if len(got) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(got))
	}

	inv := got[domain.NotificationKey{Type: domain.NotificationInvoice, RelatedID: unpaid}]
	if inv.Message != "Invoice INV-7 (Acme) — unpaid" || domain.FormatDate(inv.Date) != "2024-06-20" || inv.Read {
		t.Fatalf("unexpected invoice notification %+v", inv)
	}
	overdue := got[domain.NotificationKey{Type: domain.NotificationTask, RelatedID: late}]
	if overdue.Message != "Task «File taxes» — overdue" || domain.FormatDate(overdue.Date) != "2024-06-09" {
		t.Fatalf("unexpected overdue task notification %+v", overdue)
	}
	upcoming := got[domain.NotificationKey{Type: domain.NotificationTask, RelatedID: soon}]
	if upcoming.Message != "Task «Renew domain» — due 2024-06-17" {
		t.Fatalf("unexpected upcoming task notification %+v", upcoming)
	}
}

func TestSyncerNeverDuplicatesAcrossDays(t *testing.T) {
	clock := newClock(2024, 6, 10)
	store := newMemoryStore(clock)
	insertInvoice(t, store, "INV-1", "2024-06-01", domain.InvoiceOverdue)
	insertTask(t, store, "Call bank", ptr("2024-06-12"), domain.TaskTodo)
	syncer := NewSyncer(store, WithClock(clock))

	if got := syncer.Run(context.Background()); got.Inserted != 2 {
		t.Fatalf("first day: %+v", got)
	}
	for _, day := range []int{11, 13, 20} {
		clock.set(2024, 6, day)
		if got := syncer.Run(context.Background()); got.Inserted != 0 || got.Candidates != 0 {
			t.Fatalf("day %d: expected no inserts, got %+v", day, got)
		}
	}
	got := notificationsByKey(t, store)
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	// messages are not refreshed once stored
	for _, n := range got {
		if n.Type == domain.NotificationTask && n.Message != "Task «Call bank» — due 2024-06-12" {
			t.Fatalf("expected original message to be kept, got %q", n.Message)
		}
	}
}

func TestSyncerResolvesDoneAndPaidSources(t *testing.T) {
	clock := newClock(2024, 6, 10)
	store := newMemoryStore(clock)
	invoiceID := insertInvoice(t, store, "INV-1", "2024-06-15", domain.InvoiceSent)
	taskID := insertTask(t, store, "Ship order", ptr("2024-06-11"), domain.TaskTodo)
	otherTask := insertTask(t, store, "Write report", ptr("2024-06-12"), domain.TaskTodo)
	syncer := NewSyncer(store, WithClock(clock))
	syncer.Run(context.Background())

	ctx := context.Background()
	if _, err := store.Update(ctx, domain.TableTasks, []domain.Filter{domain.Eq(domain.ColID, taskID)}, domain.Row{"status": domain.TaskDone}); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if _, err := store.Update(ctx, domain.TableInvoices, []domain.Filter{domain.Eq(domain.ColID, invoiceID)}, domain.Row{"status": domain.InvoicePaid}); err != nil {
		t.Fatalf("pay invoice: %v", err)
	}

	report := syncer.Run(ctx)
	if report.Resolved != 2 {
		t.Fatalf("expected two resolved notifications, got %+v", report)
	}
	got := notificationsByKey(t, store)
	if !got[domain.NotificationKey{Type: domain.NotificationTask, RelatedID: taskID}].Read {
		t.Fatalf("expected done task notification read")
	}
	if !got[domain.NotificationKey{Type: domain.NotificationInvoice, RelatedID: invoiceID}].Read {
		t.Fatalf("expected paid invoice notification read")
	}
	if got[domain.NotificationKey{Type: domain.NotificationTask, RelatedID: otherTask}].Read {
		t.Fatalf("expected open task notification unread")
	}

	// reopening the task does not revert or re-insert
	if _, err := store.Update(ctx, domain.TableTasks, []domain.Filter{domain.Eq(domain.ColID, taskID)}, domain.Row{"status": domain.TaskTodo}); err != nil {
		t.Fatalf("reopen task: %v", err)
	}
	if again := syncer.Run(ctx); again.Inserted != 0 || again.Resolved != 0 {
		t.Fatalf("expected no changes after reopen, got %+v", again)
	}
	if !notificationsByKey(t, store)[domain.NotificationKey{Type: domain.NotificationTask, RelatedID: taskID}].Read {
		t.Fatalf("expected read flag never reverted")
	}
}

func TestSyncerResolvesInBatches(t *testing.T) {
	clock := newClock(2024, 6, 10)
	base := newMemoryStore(clock)
	total := resolveBatch + 20
	for i := range total {
		insertInvoice(t, base, fmt.Sprintf("INV-%04d", i), "2024-06-15", domain.InvoiceSent)
	}
	store := &resolveRecordingStore{RecordStore: base}
	syncer := NewSyncer(store, WithClock(clock))
	if first := syncer.Run(context.Background()); first.Inserted != total {
		t.Fatalf("seed sync: %+v", first)
	}
	if _, err := base.Update(context.Background(), domain.TableInvoices, nil, domain.Row{"status": domain.InvoicePaid}); err != nil {
		t.Fatalf("pay invoices: %v", err)
	}

	report := syncer.Run(context.Background())
	if report.Resolved != int64(total) || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.batches) != 2 {
		t.Fatalf("expected two resolution updates, got %v", store.batches)
	}
	for _, n := range store.batches {
		if n > resolveBatch {
			t.Fatalf("batch of %d ids exceeds %d", n, resolveBatch)
		}
	}
}

// resolveRecordingStore records the id count of each notification update.
type resolveRecordingStore struct {
	domain.RecordStore
	batches []int
}

func (s *resolveRecordingStore) Update(ctx context.Context, table domain.Table, filters []domain.Filter, patch domain.Row) (int64, error) {
	if table == domain.TableNotifications {
		for _, f := range filters {
			if f.Column == "related_id" && f.Op == domain.OpIn {
				s.batches = append(s.batches, len(f.Value.([]any)))
			}
		}
	}
	return s.RecordStore.Update(ctx, table, filters, patch)
}

func TestSyncerResolutionDoesNotCrossTypes(t *testing.T) {
	clock := newClock(2024, 6, 10)
	store := newMemoryStore(clock)
	taskID := insertTask(t, store, "Open", ptr("2024-06-11"), domain.TaskTodo)
	// a paid invoice sharing the task's id must not resolve the task notification
	if _, err := store.Insert(context.Background(), domain.TableInvoices, domain.Row{
		domain.ColID: taskID, "invoice_number": "INV-X", "client_name": "Acme",
		"issue_date": "2024-06-01", "due_date": "2024-06-30", "amount": "1", "status": domain.InvoicePaid,
	}); err != nil {
		t.Fatalf("insert invoice: %v", err)
	}
	report := NewSyncer(store, WithClock(clock)).Run(context.Background())
	if report.Inserted != 1 || report.Resolved != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSyncerFallsBackToSingleInsertsOnConflict(t *testing.T) {
	clock := newClock(2024, 6, 10)
	base := newMemoryStore(clock)
	first := insertInvoice(t, base, "INV-1", "2024-06-15", domain.InvoiceSent)
	insertInvoice(t, base, "INV-2", "2024-06-16", domain.InvoiceSent)

	// simulate a concurrent pass inserting one key between our read and write
	store := &faultyStore{RecordStore: base, failInsertMany: func(domain.Table) error {
		if _, err := base.Insert(context.Background(), domain.TableNotifications, domain.Notification{
			Type: domain.NotificationInvoice, RelatedID: first, Message: "concurrent", Date: date(2024, 6, 15),
		}.Row()); err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
		return base.InsertMany(context.Background(), domain.TableNotifications, []domain.Row{
			domain.Notification{Type: domain.NotificationInvoice, RelatedID: first, Message: "dup", Date: date(2024, 6, 15)}.Row(),
		})
	}}
	log := &captureLogger{}
	report := NewSyncer(store, WithClock(clock), WithLogger(log)).Run(context.Background())
	if report.Candidates != 2 || report.Inserted != 1 || report.Conflicts != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !log.has("warn", "notification batch conflicted, inserting individually") {
		t.Fatalf("expected fallback to be logged")
	}
	if n := len(notificationsByKey(t, base)); n != 2 {
		t.Fatalf("expected 2 notifications, got %d", n)
	}
}

func TestSyncerContinuesWhenSourceQueryFails(t *testing.T) {
	clock := newClock(2024, 6, 10)
	base := newMemoryStore(clock)
	insertInvoice(t, base, "INV-1", "2024-06-15", domain.InvoiceSent)
	insertTask(t, base, "Broken source", ptr("2024-06-11"), domain.TaskTodo)
	store := &faultyStore{RecordStore: base, failSelect: func(table domain.Table) error {
		if table == domain.TableTasks {
			return errInjected
		}
		return nil
	}}
	report := NewSyncer(store, WithClock(clock)).Run(context.Background())
	if report.Inserted != 1 {
		t.Fatalf("expected invoice notification despite task failure, got %+v", report)
	}
	// tasks are read twice: once for insertion and once for resolution
	if report.Failed != 2 {
		t.Fatalf("expected two failures, got %+v", report)
	}
}

func TestSyncerSkipsWhenKeysUnavailable(t *testing.T) {
	base := newMemoryStore(newClock(2024, 6, 10))
	insertInvoice(t, base, "INV-1", "2024-06-15", domain.InvoiceSent)
	store := &faultyStore{RecordStore: base, failSelect: func(table domain.Table) error {
		if table == domain.TableNotifications {
			return errInjected
		}
		return nil
	}}
	report := NewSyncer(store).Run(context.Background())
	if report.Inserted != 0 || report.Failed != 1 {
		t.Fatalf("expected insertion skipped without existing keys, got %+v", report)
	}
	if n, err := base.Count(context.Background(), domain.TableNotifications, nil); err != nil || n != 0 {
		t.Fatalf("expected no notifications, got %d (%v)", n, err)
	}
}
