package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Row is a single record keyed by column name. Values are the canonical
// per-Kind values produced by Coerce.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the string value of column, or "" when absent.
func (r Row) String(column string) string {
	if s, ok := r[column].(string); ok {
		return s
	}
	return ""
}

// OptString returns a pointer to the string value, nil when absent.
func (r Row) OptString(column string) *string {
	s, ok := r[column].(string)
	if !ok {
		return nil
	}
	return &s
}

// Bool returns the bool value of column.
func (r Row) Bool(column string) bool {
	b, _ := r[column].(bool)
	return b
}

// Int returns the int value of column.
func (r Row) Int(column string) int {
	switch v := r[column].(type) {
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Date parses the date value of column.
func (r Row) Date(column string) (time.Time, error) {
	s, ok := r[column].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("column %s: missing date", column)
	}
	return ParseDate(s)
}

// OptDate parses the date value of column, nil when absent.
func (r Row) OptDate(column string) (*time.Time, error) {
	if r[column] == nil {
		return nil, nil
	}
	t, err := r.Date(column)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Decimal parses the decimal value of column; absent reads as zero.
func (r Row) Decimal(column string) (decimal.Decimal, error) {
	s, ok := r[column].(string)
	if !ok || s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %w", column, err)
	}
	return d, nil
}

func (r Row) base() Base {
	b := Base{ID: r.String(ColID)}
	if ts := r.String(ColCreatedAt); ts != "" {
		if t, err := ParseTimestamp(ts); err == nil {
			b.CreatedAt = t
		}
	}
	return b
}

func (b Base) fill(r Row) Row {
	if b.ID != "" {
		r[ColID] = b.ID
	}
	if !b.CreatedAt.IsZero() {
		r[ColCreatedAt] = FormatTimestamp(b.CreatedAt)
	}
	return r
}

func optDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatDate(*t)
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// NormalizeRow validates row against schema and coerces every value into its
// canonical form. Unknown columns are rejected.
func NormalizeRow(schema TableSchema, row Row) (Row, error) {
	out := make(Row, len(row))
	for name, v := range row {
		col, ok := schema.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, schema.Table, name)
		}
		cv, err := Coerce(col.Kind, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.Table, name, err)
		}
		out[name] = cv
	}
	return out, nil
}

// Row encodes the template for storage.
func (t InvoiceTemplate) Row() Row {
	return t.Base.fill(Row{
		"client_name":       t.ClientName,
		"amount":            t.Amount.String(),
		"period":            string(t.Period),
		"day_of_month":      int64(t.DayOfMonth),
		"last_generated_at": optDate(t.LastGeneratedAt),
	})
}

// InvoiceTemplateFromRow decodes a stored template. The result is not
// normalised; callers clamp via Normalize.
func InvoiceTemplateFromRow(r Row) (InvoiceTemplate, error) {
	amount, err := r.Decimal("amount")
	if err != nil {
		return InvoiceTemplate{}, err
	}
	last, err := r.OptDate("last_generated_at")
	if err != nil {
		return InvoiceTemplate{}, err
	}
	return InvoiceTemplate{
		Base:            r.base(),
		ClientName:      r.String("client_name"),
		Amount:          amount,
		Period:          Period(r.String("period")),
		DayOfMonth:      r.Int("day_of_month"),
		LastGeneratedAt: last,
	}, nil
}

// Row encodes the invoice for storage.
func (i Invoice) Row() Row {
	return i.Base.fill(Row{
		"invoice_number": i.InvoiceNumber,
		"client_name":    i.ClientName,
		"issue_date":     FormatDate(i.IssueDate),
		"due_date":       FormatDate(i.DueDate),
		"amount":         i.Amount.String(),
		"status":         string(i.Status),
		"comment":        optString(i.Comment),
		"template_id":    optString(i.TemplateID),
		"period_start":   optDate(i.PeriodStart),
	})
}

// InvoiceFromRow decodes a stored invoice.
func InvoiceFromRow(r Row) (Invoice, error) {
	issue, err := r.Date("issue_date")
	if err != nil {
		return Invoice{}, err
	}
	due, err := r.Date("due_date")
	if err != nil {
		return Invoice{}, err
	}
	amount, err := r.Decimal("amount")
	if err != nil {
		return Invoice{}, err
	}
	periodStart, err := r.OptDate("period_start")
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Base:          r.base(),
		InvoiceNumber: r.String("invoice_number"),
		ClientName:    r.String("client_name"),
		IssueDate:     issue,
		DueDate:       due,
		Amount:        amount,
		Status:        InvoiceStatus(r.String("status")),
		Comment:       r.OptString("comment"),
		TemplateID:    r.OptString("template_id"),
		PeriodStart:   periodStart,
	}, nil
}

// Row encodes the task for storage.
func (t Task) Row() Row {
	return t.Base.fill(Row{
		"title":       t.Title,
		"description": optString(t.Description),
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"deadline":    optDate(t.Deadline),
		"is_urgent":   t.IsUrgent,
	})
}

// TaskFromRow decodes a stored task.
func TaskFromRow(r Row) (Task, error) {
	deadline, err := r.OptDate("deadline")
	if err != nil {
		return Task{}, err
	}
	return Task{
		Base:        r.base(),
		Title:       r.String("title"),
		Description: r.OptString("description"),
		Status:      TaskStatus(r.String("status")),
		Priority:    TaskPriority(r.String("priority")),
		Deadline:    deadline,
		IsUrgent:    r.Bool("is_urgent"),
	}, nil
}

// Row encodes the notification for storage.
func (n Notification) Row() Row {
	return n.Base.fill(Row{
		"type":       string(n.Type),
		"related_id": n.RelatedID,
		"message":    n.Message,
		"date":       FormatDate(n.Date),
		"read":       n.Read,
	})
}

// NotificationFromRow decodes a stored notification.
func NotificationFromRow(r Row) (Notification, error) {
	date, err := r.Date("date")
	if err != nil {
		return Notification{}, err
	}
	return Notification{
		Base:      r.base(),
		Type:      NotificationType(r.String("type")),
		RelatedID: r.String("related_id"),
		Message:   r.String("message"),
		Date:      date,
		Read:      r.Bool("read"),
	}, nil
}
