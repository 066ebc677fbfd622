package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/export"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/recurrence"
)

type AdminHandler struct {
	svc      *booking.Service
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdminHandler(svc *booking.Service, notifier Notifier, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, notifier: notifier, logger: logger, now: time.Now}
}

type createSlotRequest struct {
	StartAt    string `json:"startAt"`
	EndAt      string `json:"endAt"`
	IsPaidSlot bool   `json:"isPaidSlot"`
}

// CreateSlot answers POST /api/admin/slots.
func (h *AdminHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	loc := h.svc.Location()
	start, err1 := parseInstant(req.StartAt, loc, false)
	end, err2 := parseInstant(req.EndAt, loc, false)
	if err1 != nil || err2 != nil {
		writeServiceError(w, r, h.logger, booking.ErrInvalidRange.With("日時の形式が不正です。"))
		return
	}

	slot, err := h.svc.CreateSlot(r.Context(), booking.SlotInput{StartAt: start, EndAt: end, IsPaidSlot: req.IsPaidSlot})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "slot": toSlotJSON(slot)})
}

type bulkCreateRequest struct {
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	SlotMinutes int    `json:"slotMinutes"`
	Weekdays    []int  `json:"weekdays"`
	IsPaidSlot  bool   `json:"isPaidSlot"`
}

type bulkCreateResponse struct {
	OK           bool     `json:"ok"`
	CreatedCount int      `json:"createdCount"`
	Conflicts    []string `json:"conflicts"`
}

// BulkCreate answers POST /api/admin/slots/bulk.
func (h *AdminHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var req bulkCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	candidates, err := h.svc.PlanSlots(recurrence.Params{
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SlotMinutes: req.SlotMinutes,
		Weekdays:    req.Weekdays,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.BulkCreateSlots(r.Context(), candidates, req.IsPaidSlot)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bulkCreateResponse{OK: true, CreatedCount: res.Created, Conflicts: res.Conflicts})
}

type bulkDeleteRequest struct {
	SlotIDs []string `json:"slotIds"`
	Force   bool     `json:"force"`
}

type bulkDeleteResponse struct {
	OK         bool              `json:"ok"`
	DeletedIDs []string          `json:"deletedIds"`
	Skipped    []booking.Skipped `json:"skipped"`
}

// BulkDelete answers POST /api/admin/slots/bulk-delete.
func (h *AdminHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	res, err := h.svc.BulkDeleteSlots(r.Context(), req.SlotIDs, req.Force)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := bulkDeleteResponse{OK: true, DeletedIDs: res.Deleted, Skipped: res.Skipped}
	if resp.DeletedIDs == nil {
		resp.DeletedIDs = []string{}
	}
	if resp.Skipped == nil {
		resp.Skipped = []booking.Skipped{}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// DeleteSlot answers DELETE /api/admin/slots/{id}?force=.
func (h *AdminHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.DeleteSlot(r.Context(), r.PathValue("id"), parseBool(r.URL.Query().Get("force")))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true, "deleted": deleted})
}

type setStatusRequest struct {
	SlotID string `json:"slotId"`
	Status string `json:"status"`
}

// SetStatus answers PATCH /api/admin/slots/status.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	var blocked bool
	switch model.SlotStatus(strings.ToLower(strings.TrimSpace(req.Status))) {
	case model.SlotBlocked:
		blocked = true
	case model.SlotAvailable:
	default:
		writeServiceError(w, r, h.logger, booking.ErrInvalidPayload.With("status must be blocked or available"))
		return
	}

	slot, err := h.svc.SetBlocked(r.Context(), req.SlotID, blocked)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "slot": toSlotJSON(slot)})
}

func (h *AdminHandler) filter(r *http.Request) booking.BookingFilter {
	loc := h.svc.Location()
	q := r.URL.Query()
	// Unparseable bounds fall back to the defaults.
	from, _ := parseInstant(q.Get("from"), loc, false)
	to, _ := parseInstant(q.Get("to"), loc, true)
	return booking.BookingFilter{
		Range:    booking.Range{From: from, To: to},
		PaidOnly: parseBool(q.Get("paidOnly")),
	}
}

type adminSlotsResponse struct {
	OK    bool       `json:"ok"`
	Slots []slotJSON `json:"slots"`
}

// ListBookings answers GET /api/admin/bookings?from&to&paidOnly.
func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	slots, err := h.svc.AdminSlots(r.Context(), h.filter(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := adminSlotsResponse{OK: true, Slots: make([]slotJSON, 0, len(slots))}
	for _, s := range slots {
		item := toSlotJSON(s.Slot)
		if s.Booking != nil {
			item.Booking = toBookingJSON(*s.Booking, true)
		}
		resp.Slots = append(resp.Slots, item)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type confirmPaymentRequest struct {
	BookingID string `json:"bookingId"`
}

type confirmPaymentResponse struct {
	OK      bool          `json:"ok"`
	Booking *bookingJSON  `json:"booking"`
	Slot    slotJSON      `json:"slot"`
	Webhook notify.Result `json:"webhook"`
}

// ConfirmPayment answers POST /api/admin/bookings/confirm-payment.
func (h *AdminHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	b, err := h.svc.ConfirmPayment(r.Context(), req.BookingID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, confirmPaymentResponse{
		OK:      true,
		Booking: toBookingJSON(b.Booking, true),
		Slot:    toSlotJSON(b.Slot),
		Webhook: h.notifier.Notify(r.Context(), notify.ActionPaymentConfirmed, b),
	})
}

func (h *AdminHandler) exportRows(w http.ResponseWriter, r *http.Request) ([]export.Row, bool) {
	slots, err := h.svc.AdminSlots(r.Context(), h.filter(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, false
	}
	return export.Rows(slots), true
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

// ExportCSV answers GET /api/admin/export.csv.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows, h.svc.Location()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", "slotbook-bookings.csv", buf.Bytes())
}

// ExportICS answers GET /api/admin/export.ics with one event per active
// booking.
func (h *AdminHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	events := export.Events(rows, func(row export.Row) string {
		return model.BookingType(row.BookingType).Label() + " / " + row.PlayerName
	})
	var buf bytes.Buffer
	if err := export.WriteICS(&buf, events, h.now()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeAttachment(w, "text/calendar; charset=utf-8", "slotbook-bookings.ics", buf.Bytes())
}

// ExportXLSX answers GET /api/admin/export.xlsx.
func (h *AdminHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, rows, h.svc.Location()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "slotbook-bookings.xlsx", buf.Bytes())
}
