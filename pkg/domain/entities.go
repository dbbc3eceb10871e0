// Package domain defines the persistent records, value types and store
// contract shared by the microerp automation engine and its backends.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period identifies how often an invoice template produces an invoice.
type Period string

// Supported template periods.
const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
)

// Months returns how many calendar months separate two generations.
// Unknown periods behave as monthly.
func (p Period) Months() int {
	switch p {
	case PeriodQuarterly:
		return 3
	case PeriodYearly:
		return 12
	default:
		return 1
	}
}

// Valid reports whether p is one of the supported periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// InvoiceStatus enumerates the invoice lifecycle states.
type InvoiceStatus string

// Invoice statuses. Only draft/sent -> overdue is automatic.
const (
	InvoiceDraft    InvoiceStatus = "draft"
	InvoiceSent     InvoiceStatus = "sent"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceOverdue  InvoiceStatus = "overdue"
	InvoiceCanceled InvoiceStatus = "canceled"
)

// TaskStatus enumerates task workflow states.
type TaskStatus string

// Task statuses.
const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// TaskPriority ranks tasks for display.
type TaskPriority string

// Task priorities.
const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// NotificationType names the kind of record a notification points at.
type NotificationType string

// Notification source types.
const (
	NotificationInvoice NotificationType = "invoice"
	NotificationTask    NotificationType = "task"
)

// MinDayOfMonth and MaxDayOfMonth bound template generation days. Capping at
// 28 keeps every month able to hold the target day.
const (
	MinDayOfMonth = 1
	MaxDayOfMonth = 28
)

// ClampDayOfMonth forces day into [MinDayOfMonth, MaxDayOfMonth].
func ClampDayOfMonth(day int) int {
	if day < MinDayOfMonth {
		return MinDayOfMonth
	}
	if day > MaxDayOfMonth {
		return MaxDayOfMonth
	}
	return day
}

// Base contains fields common to every stored record.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// InvoiceTemplate is a recurring billing rule.
type InvoiceTemplate struct {
	Base
	ClientName      string          `json:"client_name"`
	Amount          decimal.Decimal `json:"amount"`
	Period          Period          `json:"period"`
	DayOfMonth      int             `json:"day_of_month"`
	LastGeneratedAt *time.Time      `json:"last_generated_at"`
}

// Normalize clamps out-of-range values that may already exist in stored data.
func (t InvoiceTemplate) Normalize() InvoiceTemplate {
	t.DayOfMonth = ClampDayOfMonth(t.DayOfMonth)
	if t.Amount.IsNegative() {
		t.Amount = decimal.Zero
	}
	if !t.Period.Valid() {
		t.Period = PeriodMonthly
	}
	return t
}

// Invoice is a billable document issued to a client.
type Invoice struct {
	Base
	InvoiceNumber string          `json:"invoice_number"`
	ClientName    string          `json:"client_name"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	Comment       *string         `json:"comment"`
	// TemplateID and PeriodStart are set on invoices produced by a template.
	TemplateID  *string    `json:"template_id,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
}

// Unpaid reports whether the invoice still awaits payment.
func (i Invoice) Unpaid() bool {
	switch i.Status {
	case InvoiceDraft, InvoiceSent, InvoiceOverdue:
		return true
	}
	return false
}

// Task is a to-do item with an optional deadline.
type Task struct {
	Base
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	Deadline    *time.Time   `json:"deadline"`
	IsUrgent    bool         `json:"is_urgent"`
}

// Notification is a feed entry derived from an invoice or task.
type Notification struct {
	Base
	Type      NotificationType `json:"type"`
	RelatedID string           `json:"related_id"`
	Message   string           `json:"message"`
	Date      time.Time        `json:"date"`
	Read      bool             `json:"read"`
}

// Key returns the (type, related_id) natural key of the notification.
func (n Notification) Key() NotificationKey {
	return NotificationKey{Type: n.Type, RelatedID: n.RelatedID}
}

// NotificationKey identifies the source a notification was derived from.
type NotificationKey struct {
	Type      NotificationType
	RelatedID string
}

func (k NotificationKey) String() string {
	return string(k.Type) + ":" + k.RelatedID
}
