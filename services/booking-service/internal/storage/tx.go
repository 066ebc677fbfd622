package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

const (
	slotColumns    = "id, start_at, end_at, status, is_paid_slot, created_at, updated_at"
	bookingColumns = "id, slot_id, cancel_token, booking_type, player_name, discord_id, identity_v_id, notes, status, is_paid, created_at, updated_at"

	insertChunk = 200
)

// Tx exposes the queries available inside Store.InTx.
type Tx struct {
	q       queryer
	dialect dialect
}

func scanSlot(r row) (model.Slot, error) {
	var s model.Slot
	var status string
	if err := r.Scan(&s.ID, &s.StartAt, &s.EndAt, &status, &s.IsPaidSlot, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Slot{}, err
	}
	s.Status = model.SlotStatus(status)
	if !s.Status.Valid() {
		return model.Slot{}, fmt.Errorf("slot %s: unknown status %q", s.ID, status)
	}
	s.StartAt, s.EndAt = s.StartAt.UTC(), s.EndAt.UTC()
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return s, nil
}

func scanBooking(r row) (model.Booking, error) {
	var b model.Booking
	var bookingType, status string
	var notes *string
	if err := r.Scan(&b.ID, &b.SlotID, &b.CancelToken, &bookingType, &b.PlayerName, &b.DiscordID,
		&b.IdentityVID, &notes, &status, &b.IsPaid, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Booking{}, err
	}
	b.BookingType = model.BookingType(bookingType)
	b.Status = model.NormalizeBookingStatus(status)
	if notes != nil {
		b.Notes = *notes
	}
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return b, nil
}

func (t *Tx) collectSlots(ctx context.Context, query string, args ...any) ([]model.Slot, error) {
	rs, err := t.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []model.Slot
	for rs.Next() {
		s, err := scanSlot(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rs.Err()
}

func (t *Tx) collectBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rs, err := t.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []model.Booking
	for rs.Next() {
		b, err := scanBooking(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rs.Err()
}

// Slot returns ErrNotFound when id is unknown.
func (t *Tx) Slot(ctx context.Context, id string) (model.Slot, error) {
	return scanSlot(t.q.queryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id))
}

func (t *Tx) SlotsByID(ctx context.Context, ids []string) ([]model.Slot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.collectSlots(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id IN (`+placeholders(len(ids))+`) ORDER BY start_at`,
		stringArgs(ids)...)
}

// OverlappingSlots returns slots sharing any instant with iv, using the
// half-open test start_at < iv.End AND end_at > iv.Start. limit <= 0 means
// no limit.
func (t *Tx) OverlappingSlots(ctx context.Context, iv model.Interval, limit int) ([]model.Slot, error) {
	q := `SELECT ` + slotColumns + ` FROM slots WHERE start_at < ? AND end_at > ? ORDER BY start_at`
	args := []any{iv.End, iv.Start}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return t.collectSlots(ctx, q, args...)
}

// SlotsStartingBetween returns slots whose start lies in [from, to].
func (t *Tx) SlotsStartingBetween(ctx context.Context, from, to time.Time, paidOnly bool) ([]model.Slot, error) {
	q := `SELECT ` + slotColumns + ` FROM slots WHERE start_at >= ? AND start_at <= ?`
	if paidOnly {
		q += ` AND is_paid_slot = ?`
		return t.collectSlots(ctx, q+` ORDER BY start_at`, from, to, true)
	}
	return t.collectSlots(ctx, q+` ORDER BY start_at`, from, to)
}

func (t *Tx) InsertSlot(ctx context.Context, s model.Slot) error {
	_, err := t.q.exec(ctx, `
		INSERT INTO slots (id, start_at, end_at, status, is_paid_slot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.StartAt, s.EndAt, string(s.Status), s.IsPaidSlot, s.CreatedAt, s.UpdatedAt)
	return err
}

// InsertSlots inserts in chunks and silently skips rows whose (start_at,
// end_at) pair already exists. It returns the number of rows written.
func (t *Tx) InsertSlots(ctx context.Context, slots []model.Slot) (int64, error) {
	var total int64
	for lo := 0; lo < len(slots); lo += insertChunk {
		hi := min(lo+insertChunk, len(slots))
		chunk := slots[lo:hi]

		var b strings.Builder
		b.WriteString(`INSERT INTO slots (id, start_at, end_at, status, is_paid_slot, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(chunk)*7)
		for i, s := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, s.ID, s.StartAt, s.EndAt, string(s.Status), s.IsPaidSlot, s.CreatedAt, s.UpdatedAt)
		}
		b.WriteString(` ON CONFLICT (start_at, end_at) DO NOTHING`)

		n, err := t.q.exec(ctx, b.String(), args...)
		if err != nil {
			return total, fmt.Errorf("insert slots: %w", err)
		}
		total += n
	}
	return total, nil
}

// TransitionSlot moves a slot from one status to another only if it still
// has the expected status. It reports whether a row changed; false means
// another transaction got there first or the slot does not exist.
func (t *Tx) TransitionSlot(ctx context.Context, id string, from, to model.SlotStatus, at time.Time) (bool, error) {
	n, err := t.q.exec(ctx,
		`UPDATE slots SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at, id, string(from))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetSlotStatus writes status unconditionally.
func (t *Tx) SetSlotStatus(ctx context.Context, id string, status model.SlotStatus, at time.Time) error {
	n, err := t.q.exec(ctx, `UPDATE slots SET status = ?, updated_at = ? WHERE id = ?`, string(status), at, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteSlots(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return t.q.exec(ctx, `DELETE FROM slots WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
}

// ActiveBooking returns the non-cancelled booking of a slot, or ErrNotFound.
func (t *Tx) ActiveBooking(ctx context.Context, slotID string) (model.Booking, error) {
	return scanBooking(t.q.queryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE slot_id = ? AND status NOT IN ('CANCELLED', 'canceled')`,
		slotID))
}

// BookingsForSlots returns, per slot id, its active booking or else its most
// recent cancelled one.
func (t *Tx) BookingsForSlots(ctx context.Context, slotIDs []string) (map[string]model.Booking, error) {
	out := map[string]model.Booking{}
	if len(slotIDs) == 0 {
		return out, nil
	}
	all, err := t.collectBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE slot_id IN (`+placeholders(len(slotIDs))+`)`,
		stringArgs(slotIDs)...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	for _, b := range all {
		cur, seen := out[b.SlotID]
		if seen && cur.Active() && !b.Active() {
			continue
		}
		out[b.SlotID] = b
	}
	return out, nil
}

func (t *Tx) Booking(ctx context.Context, id string) (model.Booking, error) {
	return scanBooking(t.q.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
}

func (t *Tx) BookingByToken(ctx context.Context, token string) (model.Booking, error) {
	return scanBooking(t.q.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE cancel_token = ?`, token))
}

func (t *Tx) InsertBooking(ctx context.Context, b model.Booking) error {
	var notes any
	if b.Notes != "" {
		notes = b.Notes
	}
	_, err := t.q.exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.SlotID, b.CancelToken, string(b.BookingType), b.PlayerName, b.DiscordID,
		b.IdentityVID, notes, string(b.Status), b.IsPaid, b.CreatedAt, b.UpdatedAt)
	return err
}

// TransitionBooking updates a booking that is not cancelled and reports
// whether a row changed. Cancelled bookings, including legacy 'canceled'
// rows, never match, so a concurrent cancel cannot be overwritten.
func (t *Tx) TransitionBooking(ctx context.Context, id string, to model.BookingStatus, isPaid bool, at time.Time) (bool, error) {
	n, err := t.q.exec(ctx, `
		UPDATE bookings SET status = ?, is_paid = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('CANCELLED', 'canceled')
	`, string(to), isPaid, at, id)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *Tx) DeleteBookingsForSlots(ctx context.Context, slotIDs []string) (int64, error) {
	if len(slotIDs) == 0 {
		return 0, nil
	}
	return t.q.exec(ctx,
		`DELETE FROM bookings WHERE slot_id IN (`+placeholders(len(slotIDs))+`)`, stringArgs(slotIDs)...)
}

// AppendEvent stores evt together with the trace context of ctx.
func (t *Tx) AppendEvent(ctx context.Context, evt outbox.Event, at time.Time) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := t.q.exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, string(evt.Payload), traceparent, tracestate, at)
	return err
}

func (t *Tx) unpublishedEvents(ctx context.Context, limit int) ([]outbox.Record, error) {
	q := `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT ?`
	if t.dialect == dialectPostgres {
		q += ` FOR UPDATE SKIP LOCKED`
	}
	rs, err := t.q.query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []outbox.Record
	for rs.Next() {
		var r outbox.Record
		var payload string
		if err := rs.Scan(&r.ID, &r.Event.EventID, &r.Event.AggregateType, &r.Event.AggregateID, &r.Event.EventType,
			&payload, &r.Traceparent, &r.Tracestate, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Event.Payload = []byte(payload)
		out = append(out, r)
	}
	return out, rs.Err()
}

func (t *Tx) markPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, at)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := t.q.exec(ctx,
		`UPDATE outbox_events SET published_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

// RelayOutbox hands up to limit unpublished events to publish and marks them
// published when it returns nil. On Postgres concurrent relays skip each
// other's rows.
func (s *Store) RelayOutbox(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	var n int
	err := s.InTx(ctx, func(tx *Tx) error {
		records, err := tx.unpublishedEvents(ctx, limit)
		if err != nil || len(records) == 0 {
			return err
		}
		if err := publish(ctx, records); err != nil {
			return err
		}
		ids := make([]int64, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		n = len(records)
		return tx.markPublished(ctx, ids, time.Now().UTC())
	})
	return n, err
}
