package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/export"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/notify"
)

// Notifier sends a best-effort notice after a committed change.
type Notifier interface {
	Notify(ctx context.Context, a notify.Action, b model.BookingWithSlot) notify.Result
}

type PublicConfig struct {
	PaidSlotPrice   int
	PublicRangeDays int
	BaseURL         string
	CalendarTitle   string
}

type PublicHandler struct {
	svc      *booking.Service
	notifier Notifier
	logger   *slog.Logger
	cfg      PublicConfig
}

func NewPublicHandler(svc *booking.Service, notifier Notifier, logger *slog.Logger, cfg PublicConfig) *PublicHandler {
	if cfg.CalendarTitle == "" {
		cfg.CalendarTitle = "Slotbook"
	}
	return &PublicHandler{svc: svc, notifier: notifier, logger: logger, cfg: cfg}
}

type publicSlot struct {
	ID         string `json:"id"`
	StartAt    string `json:"startAt"`
	EndAt      string `json:"endAt"`
	Status     string `json:"status"`
	IsPaidSlot bool   `json:"isPaidSlot"`
}

type listSlotsResponse struct {
	OK    bool         `json:"ok"`
	Slots []publicSlot `json:"slots"`
}

// ListSlots answers GET /api/slots?start&end.
func (h *PublicHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	loc := h.svc.Location()
	q := r.URL.Query()
	from, err := parseInstant(q.Get("start"), loc, false)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, booking.ErrInvalidRange.Code, "invalid start")
		return
	}
	to, err := parseInstant(q.Get("end"), loc, true)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, booking.ErrInvalidRange.Code, "invalid end")
		return
	}

	slots, err := h.svc.PublicSlots(r.Context(), booking.Range{From: from, To: to}, h.cfg.PublicRangeDays)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp := listSlotsResponse{OK: true, Slots: make([]publicSlot, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, publicSlot{
			ID:         s.ID,
			StartAt:    formatTime(s.StartAt),
			EndAt:      formatTime(s.EndAt),
			Status:     string(s.PublicStatus()),
			IsPaidSlot: s.IsPaidSlot,
		})
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type createBookingResponse struct {
	OK              bool          `json:"ok"`
	BookingID       string        `json:"bookingId"`
	CancelToken     string        `json:"cancelToken"`
	Status          string        `json:"status"`
	IsPaidSlot      bool          `json:"isPaidSlot"`
	RequiresPayment bool          `json:"requiresPayment"`
	PaidSlotPrice   *int          `json:"paidSlotPrice,omitempty"`
	Webhook         notify.Result `json:"webhook"`
}

// CreateBooking answers POST /api/bookings.
func (h *PublicHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var in booking.BookingInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		writeBadJSON(w)
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := createBookingResponse{
		OK:              true,
		BookingID:       b.ID,
		CancelToken:     b.CancelToken,
		Status:          string(b.Status),
		IsPaidSlot:      b.Slot.IsPaidSlot,
		RequiresPayment: b.Slot.IsPaidSlot && b.Status == model.BookingPendingPayment,
		Webhook:         h.notifier.Notify(r.Context(), notify.ActionBooked, b),
	}
	if b.Slot.IsPaidSlot && h.cfg.PaidSlotPrice > 0 {
		price := h.cfg.PaidSlotPrice
		resp.PaidSlotPrice = &price
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

type cancelRequest struct {
	Token string `json:"token"`
}

type cancelResponse struct {
	OK        bool           `json:"ok"`
	Status    string         `json:"status"`
	BookingID string         `json:"bookingId"`
	SlotID    string         `json:"slotId"`
	Webhook   *notify.Result `json:"webhook,omitempty"`
}

// Cancel answers POST /api/cancel.
func (h *PublicHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	res, err := h.svc.CancelByToken(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := cancelResponse{OK: true, Status: "already_canceled", BookingID: res.Booking.ID, SlotID: res.Booking.SlotID}
	if res.Changed {
		resp.Status = "ok"
		result := h.notifier.Notify(r.Context(), notify.ActionCancelled, res.Booking)
		resp.Webhook = &result
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type cancelPreviewResponse struct {
	OK      bool         `json:"ok"`
	Slot    slotJSON     `json:"slot"`
	Booking *bookingJSON `json:"booking"`
}

// CancelPreview answers GET /api/cancel?token= so the cancel page can show
// what is about to be cancelled.
func (h *PublicHandler) CancelPreview(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.BookingByToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelPreviewResponse{
		OK:      true,
		Slot:    toSlotJSON(b.Slot),
		Booking: toBookingJSON(b.Booking, false),
	})
}

// SlotCalendar answers GET /api/ics?slotId= with a one-event calendar file.
func (h *PublicHandler) SlotCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slot, err := h.svc.Slot(r.Context(), q.Get("slotId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	summary := h.cfg.CalendarTitle
	if t, ok := model.ParseBookingType(q.Get("bookingType")); ok {
		summary += " - " + t.Label()
	}
	evt := export.Event{
		UID:     slot.ID + "@slotbook",
		Start:   slot.StartAt,
		End:     slot.EndAt,
		Summary: summary,
	}
	if h.cfg.BaseURL != "" {
		evt.URL = h.cfg.BaseURL + "/book"
	}

	var buf bytes.Buffer
	if err := export.WriteICS(&buf, []export.Event{evt}, time.Now()); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="slotbook-booking.ics"`)
	_, _ = w.Write(buf.Bytes())
}
