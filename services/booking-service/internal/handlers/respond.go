package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

func statusFor(kind booking.Kind) int {
	switch kind {
	case booking.KindInvalidInput:
		return http.StatusBadRequest
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindRangeConflict, booking.KindDuplicateBooking, booking.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeServiceError answers with the domain error's code and message. Server
// errors are logged with their cause and reported without it.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var e *booking.Error
	if !errors.As(err, &e) || e.Kind == booking.KindServer {
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "サーバーでエラーが発生しました。")
		return
	}
	if fields := booking.Fields(err); len(fields) > 0 {
		httpx.WriteJSON(w, statusFor(e.Kind), fieldErrorBody{
			ErrorBody: httpx.ErrorBody{Error: e.Code, Message: e.Message},
			Fields:    fields,
		})
		return
	}
	httpx.WriteError(w, statusFor(e.Kind), e.Code, e.Message)
}

type fieldErrorBody struct {
	httpx.ErrorBody
	Fields []string `json:"fields"`
}

func writeBadJSON(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest, booking.ErrInvalidPayload.Code, "invalid json body")
}

type slotJSON struct {
	ID         string       `json:"id"`
	StartAt    string       `json:"startAt"`
	EndAt      string       `json:"endAt"`
	Status     string       `json:"status"`
	IsPaidSlot bool         `json:"isPaidSlot"`
	Booking    *bookingJSON `json:"booking,omitempty"`
}

type bookingJSON struct {
	ID          string `json:"id"`
	SlotID      string `json:"slotId"`
	BookingType string `json:"bookingType"`
	PlayerName  string `json:"playerName"`
	DiscordID   string `json:"discordId"`
	IdentityVID string `json:"identityVId"`
	Notes       string `json:"notes,omitempty"`
	Status      string `json:"status"`
	IsPaid      bool   `json:"isPaid"`
	CancelToken string `json:"cancelToken,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toSlotJSON(s model.Slot) slotJSON {
	return slotJSON{
		ID:         s.ID,
		StartAt:    formatTime(s.StartAt),
		EndAt:      formatTime(s.EndAt),
		Status:     string(s.Status),
		IsPaidSlot: s.IsPaidSlot,
	}
}

func toBookingJSON(b model.Booking, withToken bool) *bookingJSON {
	out := &bookingJSON{
		ID:          b.ID,
		SlotID:      b.SlotID,
		BookingType: string(b.BookingType),
		PlayerName:  b.PlayerName,
		DiscordID:   b.DiscordID,
		IdentityVID: b.IdentityVID,
		Notes:       b.Notes,
		Status:      string(b.Status),
		IsPaid:      b.IsPaid,
		CreatedAt:   formatTime(b.CreatedAt),
	}
	if withToken {
		out.CancelToken = b.CancelToken
	}
	return out
}

// parseInstant accepts RFC 3339, a local "2006-01-02T15:04" or a bare local
// date. A bare date means the start of that day, or its last second when
// endOfDay is set.
func parseInstant(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", raw, loc); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		y, m, day := d.Date()
		return time.Date(y, m, day, 23, 59, 59, 0, loc), nil
	}
	return d, nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
