package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// CreateBooking reserves an available slot. The slot flips to booked through
// a conditional update in the same transaction that inserts the booking; of
// several concurrent callers for one slot exactly one succeeds and the others
// get ErrSlotNotAvailable.
func (s *Service) CreateBooking(ctx context.Context, in BookingInput) (model.BookingWithSlot, error) {
	ctx, span := otelx.Tracer("booking").Start(ctx, "booking.create",
		trace.WithAttributes(attribute.String("slot.id", in.SlotID)),
	)
	defer span.End()

	v, err := in.validate()
	if err != nil {
		s.rec.BookingRejected(codeOf(err))
		return model.BookingWithSlot{}, err
	}

	var out model.BookingWithSlot
	err = s.store.InTx(ctx, func(tx *storage.Tx) error {
		slot, err := tx.Slot(ctx, v.slotID)
		if storage.IsNotFound(err) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		if slot.Status != model.SlotAvailable {
			return ErrSlotNotAvailable
		}
		if _, err := tx.ActiveBooking(ctx, slot.ID); err == nil {
			return ErrDuplicateBooking
		} else if !storage.IsNotFound(err) {
			return err
		}

		now := s.clock()
		won, err := tx.TransitionSlot(ctx, slot.ID, model.SlotAvailable, model.SlotBooked, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrSlotNotAvailable
		}

		b := model.Booking{
			ID:          s.newID(),
			SlotID:      slot.ID,
			CancelToken: s.newID(),
			BookingType: v.bookingType,
			PlayerName:  v.playerName,
			DiscordID:   v.discordID,
			IdentityVID: v.identityVID,
			Notes:       v.notes,
			Status:      model.BookingConfirmed,
			IsPaid:      !slot.IsPaidSlot,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if slot.IsPaidSlot {
			b.Status = model.BookingPendingPayment
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			if storage.IsDuplicate(err) {
				return ErrDuplicateBooking
			}
			return err
		}

		slot.Status = model.SlotBooked
		slot.UpdatedAt = now
		out = model.BookingWithSlot{Booking: b, Slot: slot}
		return s.appendEvent(ctx, tx, outbox.EventBookingCreated, out, now)
	})
	if err != nil {
		span.RecordError(err)
		s.rec.BookingRejected(codeOf(err))
		return model.BookingWithSlot{}, storeErr(err)
	}
	span.SetAttributes(attribute.String("booking.id", out.ID))

	s.rec.BookingCreated(out.Status)
	s.logger.Info("booking created",
		"booking_id", out.ID,
		"slot_id", out.SlotID,
		"status", out.Status,
		"booking_type", out.BookingType,
	)
	return out, nil
}

// ConfirmPayment marks a paid booking as paid and confirmed. Confirming an
// already confirmed booking is a no-op success; cancelled bookings and
// bookings on free slots are rejected without changes.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID string) (model.BookingWithSlot, error) {
	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		return model.BookingWithSlot{}, ErrInvalidPayload.With("bookingId is required")
	}

	var out model.BookingWithSlot
	var changed bool
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		b, err := tx.Booking(ctx, bookingID)
		if storage.IsNotFound(err) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if b.Status == model.BookingCancelled {
			return ErrBookingCancelled
		}
		slot, err := tx.Slot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		if !slot.IsPaidSlot {
			return ErrNotPaidSlot
		}

		out = model.BookingWithSlot{Booking: b, Slot: slot}
		if b.IsPaid && b.Status == model.BookingConfirmed && slot.Status == model.SlotBooked {
			return nil
		}

		now := s.clock()
		won, err := tx.TransitionBooking(ctx, b.ID, model.BookingConfirmed, true, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrBookingCancelled
		}
		if err := tx.SetSlotStatus(ctx, slot.ID, model.SlotBooked, now); err != nil {
			return err
		}
		changed = true
		out.Status, out.IsPaid, out.UpdatedAt = model.BookingConfirmed, true, now
		out.Slot.Status, out.Slot.UpdatedAt = model.SlotBooked, now
		return s.appendEvent(ctx, tx, outbox.EventBookingPaymentConfirmed, out, now)
	})
	if err != nil {
		return model.BookingWithSlot{}, storeErr(err)
	}
	if changed {
		s.rec.PaymentConfirmed()
		s.logger.Info("payment confirmed", "booking_id", out.ID, "slot_id", out.SlotID)
	}
	return out, nil
}

// CancelResult reports the booking after cancellation and whether this call
// changed anything.
type CancelResult struct {
	Booking model.BookingWithSlot
	Changed bool
}

// CancelByToken cancels the booking holding token and releases its slot.
// Cancelling twice is not an error; the second call reports Changed=false.
func (s *Service) CancelByToken(ctx context.Context, token string) (CancelResult, error) {
	token = strings.TrimSpace(token)
	if !ValidToken(token) {
		return CancelResult{}, ErrInvalidPayload.With("キャンセル用トークンが不正です。")
	}

	var res CancelResult
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		b, err := tx.BookingByToken(ctx, token)
		if storage.IsNotFound(err) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		slot, err := tx.Slot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		res.Booking = model.BookingWithSlot{Booking: b, Slot: slot}
		if b.Status == model.BookingCancelled {
			return nil
		}

		now := s.clock()
		won, err := tx.TransitionBooking(ctx, b.ID, model.BookingCancelled, b.IsPaid, now)
		if err != nil {
			return err
		}
		if !won {
			// Another request cancelled it after our read.
			res.Booking.Status = model.BookingCancelled
			return nil
		}
		released, err := tx.TransitionSlot(ctx, slot.ID, model.SlotBooked, model.SlotAvailable, now)
		if err != nil {
			return err
		}
		res.Changed = true
		res.Booking.Status, res.Booking.UpdatedAt = model.BookingCancelled, now
		if released {
			res.Booking.Slot.Status, res.Booking.Slot.UpdatedAt = model.SlotAvailable, now
		}
		return s.appendEvent(ctx, tx, outbox.EventBookingCancelled, res.Booking, now)
	})
	if err != nil {
		return CancelResult{}, storeErr(err)
	}
	if res.Changed {
		s.rec.BookingCancelled()
		s.logger.Info("booking cancelled", "booking_id", res.Booking.ID, "slot_id", res.Booking.SlotID)
	}
	return res, nil
}

// BookingByToken loads a booking for the cancel page.
func (s *Service) BookingByToken(ctx context.Context, token string) (model.BookingWithSlot, error) {
	token = strings.TrimSpace(token)
	if !ValidToken(token) {
		return model.BookingWithSlot{}, ErrInvalidPayload.With("キャンセル用トークンが不正です。")
	}
	var out model.BookingWithSlot
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		b, err := tx.BookingByToken(ctx, token)
		if storage.IsNotFound(err) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		slot, err := tx.Slot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		out = model.BookingWithSlot{Booking: b, Slot: slot}
		return nil
	})
	return out, storeErr(err)
}

func (s *Service) appendEvent(ctx context.Context, tx *storage.Tx, eventType string, b model.BookingWithSlot, at time.Time) error {
	if !s.recordEvents {
		return nil
	}
	evt, err := outbox.NewBookingEvent(s.newID(), eventType, outbox.BookingPayload{
		BookingID:   b.ID,
		SlotID:      b.SlotID,
		Status:      string(b.Status),
		IsPaid:      b.IsPaid,
		BookingType: string(b.BookingType),
		StartAt:     b.Slot.StartAt,
		EndAt:       b.Slot.EndAt,
		OccurredAt:  at,
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, evt, at)
}

func codeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "server_error"
}
