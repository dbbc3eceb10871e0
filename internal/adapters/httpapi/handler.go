// Package httpapi exposes invoices, the notification feed and the automation
// pass over HTTP. Reads under /api trigger a throttled pass first so the data
// they return reflects today's automation.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"microerp/docs/schema/openapi"
	"microerp/internal/automation"
	"microerp/internal/blob"
	"microerp/pkg/domain"
)

// Trigger runs an automation pass unless one ran recently.
type Trigger interface {
	Trigger(ctx context.Context) (automation.PassReport, bool)
}

// PassArchive reads archived pass reports.
type PassArchive interface {
	List(ctx context.Context, day string) ([]blob.Info, error)
	Load(ctx context.Context, key string) (automation.PassReport, error)
}

// Handler serves the microerp HTTP API.
type Handler struct {
	Store domain.RecordStore
	// OnAccess runs before invoice and notification reads; nil disables it.
	OnAccess Trigger
	// Runner serves POST /api/automation/run; nil disables the endpoint.
	Runner automation.Runner
	// Passes serves archived reports; nil disables the endpoint.
	Passes PassArchive
	Logger automation.Logger
}

// NewHandler constructs a handler over store.
func NewHandler(store domain.RecordStore) *Handler {
	return &Handler{Store: store}
}

const (
	pathInvoices      = "/api/invoices"
	pathNotifications = "/api/notifications"
	pathRun           = "/api/automation/run"
	pathPasses        = "/api/automation/passes"
	pathOpenAPI       = "/api/openapi.yaml"
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusInternalServerError, "record store not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		h.handleHealth(w, r)
	case path == pathInvoices:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleListInvoices(w, r)
	case path == pathNotifications:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleListNotifications(w, r)
	case strings.HasPrefix(path, pathNotifications+"/"):
		h.handleNotification(w, r, strings.TrimPrefix(path, pathNotifications+"/"))
	case path == pathRun:
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handleRun(w, r)
	case path == pathPasses:
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handlePasses(w, r)
	case path == pathOpenAPI:
		if !allow(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openapi.Document())
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) logger() automation.Logger {
	if h.Logger == nil {
		return discard{}
	}
	return h.Logger
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Store.Count(r.Context(), domain.TableInvoiceTemplates, nil); err != nil {
		h.logger().Error("health check", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) beforeRead(ctx context.Context) {
	if h.OnAccess == nil {
		return
	}
	if report, ran := h.OnAccess.Trigger(ctx); ran && report.Failures() > 0 {
		h.logger().Warn("on-access automation pass had failures", "failures", report.Failures())
	}
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	var filters []domain.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses := strings.Split(raw, ",")
		for _, s := range statuses {
			if !validInvoiceStatus(domain.InvoiceStatus(s)) {
				writeError(w, http.StatusBadRequest, "unknown invoice status "+strconv.Quote(s))
				return
			}
		}
		filters = append(filters, domain.In("status", statuses...))
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	h.beforeRead(r.Context())
	rows, err := h.Store.Select(r.Context(), domain.TableInvoices, domain.Query{
		Filters: filters, OrderBy: "due_date", Limit: page.limit, Offset: page.offset,
	})
	if err != nil {
		h.storeError(w, "list invoices", err)
		return
	}
	out := make([]invoiceView, 0, len(rows))
	for _, row := range rows {
		inv, err := domain.InvoiceFromRow(row)
		if err != nil {
			h.logger().Warn("skipping undecodable invoice", "id", row.String(domain.ColID), "error", err)
			continue
		}
		out = append(out, newInvoiceView(inv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	var filters []domain.Filter
	if raw := r.URL.Query().Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		if unread {
			filters = append(filters, domain.Eq("read", false))
		}
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	h.beforeRead(r.Context())
	rows, err := h.Store.Select(r.Context(), domain.TableNotifications, domain.Query{
		Filters: filters, OrderBy: "date", Descending: true, Limit: page.limit, Offset: page.offset,
	})
	if err != nil {
		h.storeError(w, "list notifications", err)
		return
	}
	out := make([]notificationView, 0, len(rows))
	for _, row := range rows {
		n, err := domain.NotificationFromRow(row)
		if err != nil {
			h.logger().Warn("skipping undecodable notification", "id", row.String(domain.ColID), "error", err)
			continue
		}
		out = append(out, newNotificationView(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (h *Handler) handleNotification(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] != "read" {
		writeError(w, http.StatusNotFound, "notification endpoint not found")
		return
	}
	if !allow(w, r, http.MethodPost) {
		return
	}
	id := segments[0]
	n, err := h.Store.Update(r.Context(), domain.TableNotifications,
		[]domain.Filter{domain.Eq(domain.ColID, id)}, domain.Row{"read": true})
	if err != nil {
		h.storeError(w, "mark notification read", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "read": true})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	if h.Runner == nil {
		http.NotFound(w, r)
		return
	}
	report := h.Runner.RunPass(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (h *Handler) handlePasses(w http.ResponseWriter, r *http.Request) {
	if h.Passes == nil {
		http.NotFound(w, r)
		return
	}
	if key := r.URL.Query().Get("key"); key != "" {
		report, err := h.Passes.Load(r.Context(), key)
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pass report not found")
			return
		}
		if err != nil {
			h.logger().Error("load pass report", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load pass report")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"report": report})
		return
	}

	day := r.URL.Query().Get("date")
	if day != "" {
		if _, err := domain.ParseDate(day); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	infos, err := h.Passes.List(r.Context(), day)
	if err != nil {
		h.logger().Error("list pass reports", "date", day, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pass reports")
		return
	}
	if infos == nil {
		infos = []blob.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": infos})
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, domain.ErrInvalidFilter), errors.Is(err, domain.ErrUnknownColumn):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger().Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type page struct {
	limit  int
	offset int
}

func parsePage(w http.ResponseWriter, r *http.Request) (page, bool) {
	var p page
	for name, dst := range map[string]*int{"limit": &p.limit, "offset": &p.offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return page{}, false
		}
		*dst = n
	}
	return p, true
}

func validInvoiceStatus(s domain.InvoiceStatus) bool {
	switch s {
	case domain.InvoiceDraft, domain.InvoiceSent, domain.InvoicePaid, domain.InvoiceOverdue, domain.InvoiceCanceled:
		return true
	}
	return false
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
