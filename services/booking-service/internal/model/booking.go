package model

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCancelled      BookingStatus = "CANCELLED"
)

// NormalizeBookingStatus maps legacy lowercase values onto the current set.
func NormalizeBookingStatus(raw string) BookingStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CONFIRMED":
		return BookingConfirmed
	case "CANCELLED", "CANCELED":
		return BookingCancelled
	case "PENDING_PAYMENT":
		return BookingPendingPayment
	}
	return BookingStatus(raw)
}

type BookingType string

const (
	BookingCoaching BookingType = "COACHING"
	BookingPractice BookingType = "PRACTICE"
)

// ParseBookingType accepts the English names in any case and the Japanese
// labels used by the booking form.
func ParseBookingType(raw string) (BookingType, bool) {
	v := strings.TrimSpace(raw)
	switch strings.ToUpper(v) {
	case "COACHING":
		return BookingCoaching, true
	case "PRACTICE":
		return BookingPractice, true
	}
	switch v {
	case "コーチング":
		return BookingCoaching, true
	case "練習":
		return BookingPractice, true
	}
	return "", false
}

// Label is the Japanese display name.
func (t BookingType) Label() string {
	switch t {
	case BookingCoaching:
		return "コーチング"
	case BookingPractice:
		return "練習"
	}
	return string(t)
}

type Booking struct {
	ID          string
	SlotID      string
	CancelToken string
	BookingType BookingType
	PlayerName  string
	DiscordID   string
	IdentityVID string
	Notes       string
	Status      BookingStatus
	IsPaid      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b Booking) Active() bool {
	return b.Status != BookingCancelled
}

// BookingWithSlot is a booking joined with the slot it references.
type BookingWithSlot struct {
	Booking
	Slot Slot
}
