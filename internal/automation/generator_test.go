package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"microerp/pkg/domain"
)

func acmeTemplate() domain.InvoiceTemplate {
	return domain.InvoiceTemplate{
		ClientName: "Acme",
		Amount:     decimal.RequireFromString("1200.00"),
		Period:     domain.PeriodMonthly,
		DayOfMonth: 1,
	}
}

func TestGeneratorCreatesDraftInvoice(t *testing.T) {
	clock := newClock(2024, 6, 1)
	store := newMemoryStore(clock)
	tplID := insertTemplate(t, store, acmeTemplate())

	report := NewGenerator(store, WithClock(clock)).Run(context.Background())
	if report.Templates != 1 || report.Due != 1 || report.Created != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	rows := selectAll(t, store, domain.TableInvoices)
	if len(rows) != 1 {
		t.Fatalf("expected one invoice, got %d", len(rows))
	}
	inv, err := domain.InvoiceFromRow(rows[0])
	if err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if inv.InvoiceNumber != InvoiceNumber(tplID, date(2024, 6, 1)) {
		t.Fatalf("unexpected number %s", inv.InvoiceNumber)
	}
	if inv.Status != domain.InvoiceDraft || inv.ClientName != "Acme" || !inv.Amount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected invoice %+v", inv)
	}
	if domain.FormatDate(inv.IssueDate) != "2024-06-01" || domain.FormatDate(inv.DueDate) != "2024-07-01" {
		t.Fatalf("unexpected dates issue=%s due=%s", domain.FormatDate(inv.IssueDate), domain.FormatDate(inv.DueDate))
	}
	if inv.Comment != nil || inv.TemplateID == nil || *inv.TemplateID != tplID {
		t.Fatalf("unexpected template linkage %+v", inv)
	}
	if inv.PeriodStart == nil || domain.FormatDate(*inv.PeriodStart) != "2024-06-01" {
		t.Fatalf("unexpected period start %v", inv.PeriodStart)
	}
	if report.Invoices[0] != inv.ID {
		t.Fatalf("report does not reference invoice %s: %v", inv.ID, report.Invoices)
	}

	tpl, err := domain.InvoiceTemplateFromRow(selectAll(t, store, domain.TableInvoiceTemplates)[0])
	if err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if tpl.LastGeneratedAt == nil || domain.FormatDate(*tpl.LastGeneratedAt) != "2024-06-01" {
		t.Fatalf("expected last_generated_at advanced, got %v", tpl.LastGeneratedAt)
	}
}

func TestGeneratorTwiceSameDayCreatesOneInvoice(t *testing.T) {
	clock := newClock(2024, 6, 1)
	store := newMemoryStore(clock)
	insertTemplate(t, store, acmeTemplate())
	gen := NewGenerator(store, WithClock(clock))

	first := gen.Run(context.Background())
	second := gen.Run(context.Background())
	if first.Created != 1 || second.Due != 0 || second.Created != 0 {
		t.Fatalf("unexpected reports first=%+v second=%+v", first, second)
	}
	if n := len(selectAll(t, store, domain.TableInvoices)); n != 1 {
		t.Fatalf("expected one invoice, got %d", n)
	}
}

func TestGeneratorConflictAdvancesMarker(t *testing.T) {
	clock := newClock(2024, 6, 1)
	store := newMemoryStore(clock)
	insertTemplate(t, store, acmeTemplate())

	// a concurrent pass generated the invoice but never advanced the template
	if got := NewGenerator(store, WithClock(clock)).Run(context.Background()); got.Created != 1 {
		t.Fatalf("seed run: %+v", got)
	}
	if _, err := store.Update(context.Background(), domain.TableInvoiceTemplates, nil, domain.Row{"last_generated_at": nil}); err != nil {
		t.Fatalf("reset marker: %v", err)
	}

	log := &captureLogger{}
	report := NewGenerator(store, WithClock(clock), WithLogger(log)).Run(context.Background())
	if report.Due != 1 || report.Conflicts != 1 || report.Created != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !log.has("info", "invoice already generated") {
		t.Fatalf("expected conflict to be logged")
	}
	if n := len(selectAll(t, store, domain.TableInvoices)); n != 1 {
		t.Fatalf("expected one invoice, got %d", n)
	}
	if rows := selectAll(t, store, domain.TableInvoiceTemplates, domain.Eq("last_generated_at", "2024-06-01")); len(rows) != 1 {
		t.Fatalf("expected marker advanced after conflict")
	}
}

func TestGeneratorForeignNumberConflictLeavesTemplateDue(t *testing.T) {
	clock := newClock(2024, 6, 1)
	store := newMemoryStore(clock)
	tplID := insertTemplate(t, store, acmeTemplate())
	// a manual invoice already carries the number this template would derive
	insertInvoice(t, store, InvoiceNumber(tplID, date(2024, 6, 1)), "2024-06-30", domain.InvoiceSent)

	log := &captureLogger{}
	report := NewGenerator(store, WithClock(clock), WithLogger(log)).Run(context.Background())
	if report.Due != 1 || report.Created != 0 || report.Conflicts != 0 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !log.has("error", "invoice number already in use") {
		t.Fatalf("expected number collision to be logged")
	}
	rows := selectAll(t, store, domain.TableInvoiceTemplates, domain.Eq(domain.ColID, tplID))
	if len(rows) != 1 || rows[0]["last_generated_at"] != nil {
		t.Fatalf("expected template left due, got %v", rows)
	}

	// the next day derives a fresh number and the template catches up
	clock.set(2024, 6, 2)
	if got := NewGenerator(store, WithClock(clock)).Run(context.Background()); got.Created != 1 || got.Failed != 0 {
		t.Fatalf("expected catch-up invoice, got %+v", got)
	}
}

func TestGeneratorSharedIDPrefixDoesNotLoseInvoice(t *testing.T) {
	clock := newClock(2024, 6, 1)
	store := newMemoryStore(clock)
	for _, id := range []string{"template-a", "template-b"} {
		tpl := acmeTemplate()
		tpl.ID = id
		insertTemplate(t, store, tpl)
	}

	report := NewGenerator(store, WithClock(clock)).Run(context.Background())
	if report.Due != 2 || report.Created != 1 || report.Conflicts != 0 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	advanced := selectAll(t, store, domain.TableInvoiceTemplates, domain.Eq("last_generated_at", "2024-06-01"))
	if len(advanced) != 1 || advanced[0].String(domain.ColID) != "template-a" {
		t.Fatalf("expected only the generating template advanced, got %v", advanced)
	}
	pending := selectAll(t, store, domain.TableInvoiceTemplates, domain.IsNull("last_generated_at"))
	if len(pending) != 1 || pending[0].String(domain.ColID) != "template-b" {
		t.Fatalf("expected template-b still due, got %v", pending)
	}
}

func TestGeneratorConflictCheckFailureLeavesTemplateDue(t *testing.T) {
	clock := newClock(2024, 6, 1)
	base := newMemoryStore(clock)
	tplID := insertTemplate(t, base, acmeTemplate())
	insertInvoice(t, base, InvoiceNumber(tplID, date(2024, 6, 1)), "2024-06-30", domain.InvoiceSent)
	store := &countFailingStore{RecordStore: base}

	log := &captureLogger{}
	report := NewGenerator(store, WithClock(clock), WithLogger(log)).Run(context.Background())
	if report.Failed != 1 || report.Conflicts != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !log.has("error", "check generated period") {
		t.Fatalf("expected count failure to be logged")
	}
	if rows := selectAll(t, base, domain.TableInvoiceTemplates, domain.IsNull("last_generated_at")); len(rows) != 1 {
		t.Fatalf("expected template untouched")
	}
}

type countFailingStore struct {
	domain.RecordStore
}

func (countFailingStore) Count(context.Context, domain.Table, []domain.Filter) (int64, error) {
	return 0, errInjected
}

func TestGeneratorInsertFailureLeavesTemplateUntouched(t *testing.T) {
	clock := newClock(2024, 6, 1)
	base := newMemoryStore(clock)
	failing := insertTemplate(t, base, domain.InvoiceTemplate{ClientName: "Broken", Amount: decimal.NewFromInt(10), Period: domain.PeriodMonthly, DayOfMonth: 1})
	insertTemplate(t, base, acmeTemplate())

	store := &faultyStore{RecordStore: base, failInsert: func(table domain.Table, row domain.Row) error {
		if table == domain.TableInvoices && row.String("client_name") == "Broken" {
			return errInjected
		}
		return nil
	}}
	log := &captureLogger{}
	report := NewGenerator(store, WithClock(clock), WithLogger(log)).Run(context.Background())
	if report.Due != 2 || report.Created != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !log.has("error", "generate invoice") {
		t.Fatalf("expected insert failure to be logged")
	}
	rows := selectAll(t, base, domain.TableInvoiceTemplates, domain.Eq(domain.ColID, failing))
	if len(rows) != 1 || rows[0]["last_generated_at"] != nil {
		t.Fatalf("expected failing template untouched, got %v", rows)
	}
}

func TestGeneratorFollowsPeriodAcrossMonths(t *testing.T) {
	clock := newClock(2024, 1, 31)
	store := newMemoryStore(clock)
	insertTemplate(t, store, domain.InvoiceTemplate{ClientName: "Globex", Amount: decimal.NewFromInt(99), Period: domain.PeriodMonthly, DayOfMonth: 31})
	gen := NewGenerator(store, WithClock(clock))

	// day 31 clamps to 28, so January 31 is already past the candidate
	if got := gen.Run(context.Background()); got.Created != 0 {
		t.Fatalf("expected nothing on jan 31, got %+v", got)
	}
	clock.set(2024, 2, 28)
	if got := gen.Run(context.Background()); got.Created != 1 {
		t.Fatalf("expected invoice on feb 28, got %+v", got)
	}
	clock.set(2024, 3, 27)
	if got := gen.Run(context.Background()); got.Due != 0 {
		t.Fatalf("expected template not due on mar 27, got %+v", got)
	}
	clock.set(2024, 3, 28)
	if got := gen.Run(context.Background()); got.Created != 1 {
		t.Fatalf("expected invoice on mar 28, got %+v", got)
	}
	if n := len(selectAll(t, store, domain.TableInvoices)); n != 2 {
		t.Fatalf("expected two invoices, got %d", n)
	}
}

func TestGeneratorNormalisesStoredData(t *testing.T) {
	clock := newClock(2024, 6, 1)
	base := newMemoryStore(clock)
	if _, err := base.Insert(context.Background(), domain.TableInvoiceTemplates, domain.Row{
		"client_name":  "Initech",
		"amount":       "-5",
		"period":       "fortnightly",
		"day_of_month": int64(0),
	}); err != nil {
		t.Fatalf("insert template: %v", err)
	}
	// legacy rows may carry dates the schema would reject today
	store := &faultyStore{RecordStore: base, rewriteRows: func(table domain.Table, rows []domain.Row) {
		if table == domain.TableInvoiceTemplates {
			for _, r := range rows {
				r["last_generated_at"] = "not-a-date"
			}
		}
	}}
	log := &captureLogger{}
	report := NewGenerator(store, WithClock(clock), WithLogger(log)).Run(context.Background())
	if report.Created != 1 {
		t.Fatalf("expected invoice from normalised template, got %+v", report)
	}
	if !log.has("warn", "ignoring malformed last_generated_at") {
		t.Fatalf("expected malformed date warning")
	}
	inv, err := domain.InvoiceFromRow(selectAll(t, base, domain.TableInvoices)[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !inv.Amount.IsZero() {
		t.Fatalf("expected negative amount treated as zero, got %s", inv.Amount)
	}
	if inv.PeriodStart == nil || domain.FormatDate(*inv.PeriodStart) != "2024-06-01" {
		t.Fatalf("expected day 0 clamped to the 1st, got %v", inv.PeriodStart)
	}
}

func TestGeneratorListFailure(t *testing.T) {
	store := &faultyStore{RecordStore: newMemoryStore(newClock(2024, 6, 1)), failSelect: func(domain.Table) error { return errInjected }}
	log := &captureLogger{}
	report := NewGenerator(store, WithLogger(log)).Run(context.Background())
	if report.Failed != 1 || report.Templates != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !log.has("error", "list invoice templates") {
		t.Fatalf("expected list failure logged")
	}
}

func TestGeneratorStopsOnCancel(t *testing.T) {
	clock := newClock(2024, 6, 1)
	base := newMemoryStore(clock)
	insertTemplate(t, base, acmeTemplate())
	insertTemplate(t, base, domain.InvoiceTemplate{ClientName: "Globex", Amount: decimal.NewFromInt(1), Period: domain.PeriodMonthly, DayOfMonth: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &faultyStore{RecordStore: base, failInsert: func(domain.Table, domain.Row) error {
		cancel()
		return nil
	}}
	report := NewGenerator(store, WithClock(clock)).Run(ctx)
	if !report.Stopped {
		t.Fatalf("expected generator to stop, got %+v", report)
	}
	if report.Due != 1 {
		t.Fatalf("expected second template left for the next pass, got %+v", report)
	}
	if n, err := base.Count(context.Background(), domain.TableInvoices, nil); err != nil || n != 0 {
		t.Fatalf("cancelled insert should not persist, got %d (%v)", n, err)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("expected cancelled context")
	}
}
