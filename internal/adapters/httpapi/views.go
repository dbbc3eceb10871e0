package httpapi

import (
	"microerp/pkg/domain"
)

type invoiceView struct {
	ID            string  `json:"id"`
	InvoiceNumber string  `json:"invoice_number"`
	ClientName    string  `json:"client_name"`
	IssueDate     string  `json:"issue_date"`
	DueDate       string  `json:"due_date"`
	Amount        string  `json:"amount"`
	Status        string  `json:"status"`
	Comment       *string `json:"comment"`
	TemplateID    *string `json:"template_id,omitempty"`
	PeriodStart   *string `json:"period_start,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func newInvoiceView(inv domain.Invoice) invoiceView {
	v := invoiceView{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		ClientName:    inv.ClientName,
		IssueDate:     domain.FormatDate(inv.IssueDate),
		DueDate:       domain.FormatDate(inv.DueDate),
		Amount:        inv.Amount.StringFixed(2),
		Status:        string(inv.Status),
		Comment:       inv.Comment,
		TemplateID:    inv.TemplateID,
		CreatedAt:     domain.FormatTimestamp(inv.CreatedAt),
	}
	if inv.PeriodStart != nil {
		s := domain.FormatDate(*inv.PeriodStart)
		v.PeriodStart = &s
	}
	return v
}

type notificationView struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	RelatedID string `json:"related_id"`
	Message   string `json:"message"`
	Date      string `json:"date"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func newNotificationView(n domain.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Type:      string(n.Type),
		RelatedID: n.RelatedID,
		Message:   n.Message,
		Date:      domain.FormatDate(n.Date),
		Read:      n.Read,
		CreatedAt: domain.FormatTimestamp(n.CreatedAt),
	}
}
