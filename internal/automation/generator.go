package automation

import (
	"context"
	"errors"
	"strings"
	"time"

	"microerp/pkg/domain"
)

// InvoiceDueDays is the payment term of generated invoices.
const InvoiceDueDays = 30

// GenerateReport summarises one generator run.
type GenerateReport struct {
	Templates int      `json:"templates"`
	Due       int      `json:"due"`
	Created   int      `json:"created"`
	Conflicts int      `json:"conflicts"`
	Failed    int      `json:"failed"`
	Invoices  []string `json:"invoices,omitempty"`
	Stopped   bool     `json:"stopped,omitempty"`
}

// Generator turns due invoice templates into draft invoices.
type Generator struct {
	store domain.RecordStore
	opts  options
}

// NewGenerator constructs a generator over store.
func NewGenerator(store domain.RecordStore, opts ...Option) *Generator {
	return &Generator{store: store, opts: newOptions(opts)}
}

// InvoiceNumber derives the number of the invoice generated from templateID
// on date.
func InvoiceNumber(templateID string, date time.Time) string {
	prefix := templateID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "AUTO-" + prefix + "-" + strings.ReplaceAll(domain.FormatDate(date), "-", "")
}

// Run processes every template once. Failures are logged and counted; they
// never stop the remaining templates.
func (g *Generator) Run(ctx context.Context) GenerateReport {
	var report GenerateReport
	log := g.opts.logger
	today := g.opts.today()

	rows, err := g.store.Select(ctx, domain.TableInvoiceTemplates, domain.Query{OrderBy: domain.ColCreatedAt})
	if err != nil {
		log.Error("list invoice templates", "error", err)
		report.Failed++
		return report
	}
	report.Templates = len(rows)

	for _, row := range rows {
		if ctx.Err() != nil {
			report.Stopped = true
			break
		}
		tpl, ok := g.decode(row)
		if !ok {
			report.Failed++
			continue
		}
		next := NextGenerationDate(tpl.LastGeneratedAt, tpl.Period, tpl.DayOfMonth, today)
		if !IsDue(next, today) {
			log.Debug("template not due", "template_id", tpl.ID, "next", domain.FormatDate(next))
			continue
		}
		report.Due++

		created, err := g.store.Insert(ctx, domain.TableInvoices, g.invoiceFor(tpl, next, today).Row())
		switch {
		case errors.Is(err, domain.ErrConflict):
			if !g.periodGenerated(ctx, tpl.ID, next) {
				// the number is taken by another invoice; retry on the next pass
				log.Error("invoice number already in use", "template_id", tpl.ID,
					"invoice_number", InvoiceNumber(tpl.ID, today), "error", err)
				report.Failed++
				continue
			}
			log.Info("invoice already generated", "template_id", tpl.ID, "period_start", domain.FormatDate(next))
			report.Conflicts++
		case err != nil:
			log.Error("generate invoice", "template_id", tpl.ID, "error", err)
			report.Failed++
			continue
		default:
			id := created.String(domain.ColID)
			log.Info("invoice generated", "template_id", tpl.ID, "invoice_id", id,
				"invoice_number", created.String("invoice_number"))
			report.Created++
			report.Invoices = append(report.Invoices, id)
		}

		if _, err := g.store.Update(ctx, domain.TableInvoiceTemplates,
			[]domain.Filter{domain.Eq(domain.ColID, tpl.ID)},
			domain.Row{"last_generated_at": domain.FormatDate(today)}); err != nil {
			log.Error("advance template", "template_id", tpl.ID, "error", err)
			report.Failed++
		}
	}
	return report
}

// periodGenerated reports whether an invoice for templateID and periodStart
// is already stored.
func (g *Generator) periodGenerated(ctx context.Context, templateID string, periodStart time.Time) bool {
	n, err := g.store.Count(ctx, domain.TableInvoices, []domain.Filter{
		domain.Eq("template_id", templateID),
		domain.Eq("period_start", domain.FormatDate(periodStart)),
	})
	if err != nil {
		g.opts.logger.Error("check generated period", "template_id", templateID, "error", err)
		return false
	}
	return n > 0
}

func (g *Generator) invoiceFor(tpl domain.InvoiceTemplate, next, today time.Time) domain.Invoice {
	templateID := tpl.ID
	periodStart := next
	return domain.Invoice{
		InvoiceNumber: InvoiceNumber(tpl.ID, today),
		ClientName:    tpl.ClientName,
		IssueDate:     today,
		DueDate:       domain.AddDays(today, InvoiceDueDays),
		Amount:        tpl.Amount,
		Status:        domain.InvoiceDraft,
		TemplateID:    &templateID,
		PeriodStart:   &periodStart,
	}
}

// decode reads a template row. A malformed last_generated_at is treated as
// absent.
func (g *Generator) decode(row domain.Row) (domain.InvoiceTemplate, bool) {
	tpl, err := domain.InvoiceTemplateFromRow(row)
	if err != nil {
		if _, dateErr := row.OptDate("last_generated_at"); dateErr != nil {
			g.opts.logger.Warn("ignoring malformed last_generated_at", "template_id", row.String(domain.ColID), "error", dateErr)
			patched := row.Clone()
			patched["last_generated_at"] = nil
			tpl, err = domain.InvoiceTemplateFromRow(patched)
		}
	}
	if err != nil {
		g.opts.logger.Error("decode invoice template", "template_id", row.String(domain.ColID), "error", err)
		return domain.InvoiceTemplate{}, false
	}
	return tpl.Normalize(), true
}
