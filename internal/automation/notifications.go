package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microerp/pkg/domain"
)

// TaskLookaheadDays is how far ahead task deadlines produce notifications.
const TaskLookaheadDays = 7

// resolveBatch caps the ids in one resolution update; postgres
// limits a statement to 65535 parameters.
const resolveBatch = 500

// SyncReport summarises one notification sync.
type SyncReport struct {
	Candidates int   `json:"candidates"`
	Inserted   int   `json:"inserted"`
	Conflicts  int   `json:"conflicts"`
	Resolved   int64 `json:"resolved"`
	Failed     int   `json:"failed"`
}

// Syncer keeps the notification feed in step with invoices and tasks.
type Syncer struct {
	store domain.RecordStore
	opts  options
}

// NewSyncer constructs a syncer over store.
func NewSyncer(store domain.RecordStore, opts ...Option) *Syncer {
	return &Syncer{store: store, opts: newOptions(opts)}
}

// InvoiceMessage renders the notification text for an unpaid invoice.
func InvoiceMessage(number, client string) string {
	return fmt.Sprintf("Invoice %s (%s) — unpaid", number, client)
}

// TaskMessage renders the notification text for a task due on deadline.
func TaskMessage(title string, deadline, today time.Time) string {
	if deadline.Before(today) {
		return fmt.Sprintf("Task «%s» — overdue", title)
	}
	return fmt.Sprintf("Task «%s» — due %s", title, domain.FormatDate(deadline))
}

// Run inserts missing notifications, then marks resolved ones read.
func (s *Syncer) Run(ctx context.Context) SyncReport {
	var report SyncReport
	today := s.opts.today()
	s.insertMissing(ctx, today, &report)
	s.resolve(ctx, &report)
	return report
}

func (s *Syncer) insertMissing(ctx context.Context, today time.Time, report *SyncReport) {
	log := s.opts.logger
	existing, err := s.existingKeys(ctx)
	if err != nil {
		log.Error("load notification keys", "error", err)
		report.Failed++
		return
	}

	var pending []domain.Row
	add := func(n domain.Notification) {
		key := n.Key()
		if _, seen := existing[key]; seen {
			return
		}
		existing[key] = struct{}{}
		pending = append(pending, n.Row())
	}

	invoices, err := s.store.Select(ctx, domain.TableInvoices, domain.Query{
		Filters: []domain.Filter{domain.In("status", domain.InvoiceDraft, domain.InvoiceSent, domain.InvoiceOverdue)},
		OrderBy: "due_date",
	})
	if err != nil {
		log.Error("list unpaid invoices", "error", err)
		report.Failed++
	}
	for _, row := range invoices {
		inv, err := domain.InvoiceFromRow(row)
		if err != nil {
			log.Warn("skip malformed invoice", "invoice_id", row.String(domain.ColID), "error", err)
			continue
		}
		add(domain.Notification{
			Type:      domain.NotificationInvoice,
			RelatedID: inv.ID,
			Message:   InvoiceMessage(inv.InvoiceNumber, inv.ClientName),
			Date:      inv.DueDate,
		})
	}

	tasks, err := s.store.Select(ctx, domain.TableTasks, domain.Query{
		Filters: []domain.Filter{
			domain.In("status", domain.TaskTodo, domain.TaskInProgress),
			domain.NotNull("deadline"),
			domain.Lte("deadline", domain.FormatDate(domain.AddDays(today, TaskLookaheadDays))),
		},
		OrderBy: "deadline",
	})
	if err != nil {
		log.Error("list due tasks", "error", err)
		report.Failed++
	}
	for _, row := range tasks {
		task, err := domain.TaskFromRow(row)
		if err != nil || task.Deadline == nil {
			log.Warn("skip malformed task", "task_id", row.String(domain.ColID), "error", err)
			continue
		}
		add(domain.Notification{
			Type:      domain.NotificationTask,
			RelatedID: task.ID,
			Message:   TaskMessage(task.Title, *task.Deadline, today),
			Date:      *task.Deadline,
		})
	}

	report.Candidates = len(pending)
	if len(pending) == 0 {
		return
	}
	err = s.store.InsertMany(ctx, domain.TableNotifications, pending)
	switch {
	case err == nil:
		report.Inserted += len(pending)
		log.Info("notifications inserted", "count", len(pending))
	case errors.Is(err, domain.ErrConflict):
		log.Warn("notification batch conflicted, inserting individually", "error", err)
		s.insertEach(ctx, pending, report)
	default:
		log.Error("insert notifications", "error", err)
		report.Failed++
	}
}

// insertEach inserts rows one at a time, skipping keys a concurrent pass
// already inserted.
func (s *Syncer) insertEach(ctx context.Context, rows []domain.Row, report *SyncReport) {
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		_, err := s.store.Insert(ctx, domain.TableNotifications, row)
		switch {
		case err == nil:
			report.Inserted++
		case errors.Is(err, domain.ErrConflict):
			report.Conflicts++
		default:
			s.opts.logger.Error("insert notification", "type", row.String("type"), "related_id", row.String("related_id"), "error", err)
			report.Failed++
		}
	}
}

func (s *Syncer) existingKeys(ctx context.Context) (map[domain.NotificationKey]struct{}, error) {
	rows, err := s.store.Select(ctx, domain.TableNotifications, domain.Query{})
	if err != nil {
		return nil, err
	}
	keys := make(map[domain.NotificationKey]struct{}, len(rows))
	for _, row := range rows {
		keys[domain.NotificationKey{
			Type:      domain.NotificationType(row.String("type")),
			RelatedID: row.String("related_id"),
		}] = struct{}{}
	}
	return keys, nil
}

func (s *Syncer) resolve(ctx context.Context, report *SyncReport) {
	sources := []struct {
		kind   domain.NotificationType
		table  domain.Table
		status any
	}{
		{domain.NotificationInvoice, domain.TableInvoices, domain.InvoicePaid},
		{domain.NotificationTask, domain.TableTasks, domain.TaskDone},
	}
	for _, src := range sources {
		ids, err := s.ids(ctx, src.table, domain.Eq("status", src.status))
		if err != nil {
			s.opts.logger.Error("list resolved sources", "table", src.table, "error", err)
			report.Failed++
			continue
		}
		if len(ids) == 0 {
			continue
		}
		for start := 0; start < len(ids); start += resolveBatch {
			end := min(start+resolveBatch, len(ids))
			n, err := s.store.Update(ctx, domain.TableNotifications,
				[]domain.Filter{
					domain.Eq("type", src.kind),
					domain.In("related_id", ids[start:end]...),
					domain.Eq("read", false),
				},
				domain.Row{"read": true})
			if err != nil {
				s.opts.logger.Error("mark notifications read", "type", src.kind, "error", err)
				report.Failed++
				break
			}
			report.Resolved += n
		}
	}
}

func (s *Syncer) ids(ctx context.Context, table domain.Table, filter domain.Filter) ([]string, error) {
	rows, err := s.store.Select(ctx, table, domain.Query{Filters: []domain.Filter{filter}})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.String(domain.ColID))
	}
	return ids, nil
}
