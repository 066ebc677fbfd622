package outbox

import (
	"encoding/json"
	"time"
)

const (
	AggregateBooking = "booking"

	EventBookingCreated          = "booking.created"
	EventBookingCancelled        = "booking.cancelled"
	EventBookingPaymentConfirmed = "booking.payment_confirmed"
)

// Event is the envelope written to outbox_events in the same transaction as
// the state change it describes.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is a stored event waiting to be relayed.
type Record struct {
	ID          int64
	Event       Event
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
}

// BookingPayload is the JSON body of every booking event.
type BookingPayload struct {
	BookingID   string    `json:"booking_id"`
	SlotID      string    `json:"slot_id"`
	Status      string    `json:"status"`
	IsPaid      bool      `json:"is_paid"`
	BookingType string    `json:"booking_type,omitempty"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewBookingEvent marshals p into an event keyed by the booking id.
func NewBookingEvent(eventID, eventType string, p BookingPayload) (Event, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       eventID,
		AggregateType: AggregateBooking,
		AggregateID:   p.BookingID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}
