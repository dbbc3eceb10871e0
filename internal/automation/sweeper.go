package automation

import (
	"context"

	"microerp/pkg/domain"
)

// SweepReport summarises one overdue sweep.
type SweepReport struct {
	Updated int64  `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// Sweeper moves unpaid invoices past their due date to overdue.
type Sweeper struct {
	store domain.RecordStore
	opts  options
}

// NewSweeper constructs a sweeper over store.
func NewSweeper(store domain.RecordStore, opts ...Option) *Sweeper {
	return &Sweeper{store: store, opts: newOptions(opts)}
}

// Run issues a single bulk update. Only draft and sent invoices with a due
// date strictly before today change.
func (s *Sweeper) Run(ctx context.Context) SweepReport {
	today := domain.FormatDate(s.opts.today())
	n, err := s.store.Update(ctx, domain.TableInvoices,
		[]domain.Filter{
			domain.Lt("due_date", today),
			domain.In("status", domain.InvoiceDraft, domain.InvoiceSent),
		},
		domain.Row{"status": domain.InvoiceOverdue})
	if err != nil {
		s.opts.logger.Error("sweep overdue invoices", "error", err)
		return SweepReport{Error: err.Error()}
	}
	if n > 0 {
		s.opts.logger.Info("invoices marked overdue", "count", n, "today", today)
	}
	return SweepReport{Updated: n}
}
