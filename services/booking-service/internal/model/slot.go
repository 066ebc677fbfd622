package model

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotBlocked:
		return true
	}
	return false
}

type Slot struct {
	ID         string
	StartAt    time.Time
	EndAt      time.Time
	Status     SlotStatus
	IsPaidSlot bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.StartAt, End: s.EndAt}
}

// SlotWithBooking pairs a slot with its current booking. Booking is the
// active booking when there is one, otherwise the most recent cancelled one,
// otherwise nil.
type SlotWithBooking struct {
	Slot
	Booking *Booking
}

// PublicStatus is the status shown to visitors: a slot with an active booking
// always reads as booked.
func (s SlotWithBooking) PublicStatus() SlotStatus {
	if s.Booking != nil && s.Booking.Active() {
		return SlotBooked
	}
	return s.Status
}

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open intervals: [a,b) and [c,d) overlap iff a < d && c < b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}
