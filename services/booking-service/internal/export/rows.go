// Package export renders booked slots as CSV, iCalendar and XLSX files.
package export

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var Header = []string{
	"Booking Type",
	"Player Name",
	"Discord ID",
	"Identity V ID",
	"Notes",
	"Start (JST)",
	"End (JST)",
	"Status",
	"Cancel Token",
}

const timeLayout = "2006-01-02 15:04"

type Row struct {
	BookingID   string
	BookingType string
	PlayerName  string
	DiscordID   string
	IdentityVID string
	Notes       string
	Start       time.Time
	End         time.Time
	Status      string
	CancelToken string
	Active      bool
}

// Rows keeps slots that carry a booking, in slot order.
func Rows(slots []model.SlotWithBooking) []Row {
	out := make([]Row, 0, len(slots))
	for _, s := range slots {
		if s.Booking == nil {
			continue
		}
		b := s.Booking
		out = append(out, Row{
			BookingID:   b.ID,
			BookingType: string(b.BookingType),
			PlayerName:  b.PlayerName,
			DiscordID:   b.DiscordID,
			IdentityVID: b.IdentityVID,
			Notes:       b.Notes,
			Start:       s.StartAt,
			End:         s.EndAt,
			Status:      string(b.Status),
			CancelToken: b.CancelToken,
			Active:      b.Active(),
		})
	}
	return out
}

func (r Row) values(loc *time.Location) []string {
	return []string{
		r.BookingType,
		r.PlayerName,
		r.DiscordID,
		r.IdentityVID,
		r.Notes,
		r.Start.In(loc).Format(timeLayout),
		r.End.In(loc).Format(timeLayout),
		r.Status,
		r.CancelToken,
	}
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
