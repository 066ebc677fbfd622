package booking

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/recurrence"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const publicSlotLimit = 1000

type SlotInput struct {
	StartAt    time.Time
	EndAt      time.Time
	IsPaidSlot bool
}

// CreateSlot adds one slot. Both bounds must sit on the configured step in
// local time and the slot may not overlap any existing slot.
func (s *Service) CreateSlot(ctx context.Context, in SlotInput) (model.Slot, error) {
	iv := model.Interval{Start: in.StartAt.UTC(), End: in.EndAt.UTC()}
	if in.StartAt.IsZero() || in.EndAt.IsZero() || !iv.Valid() {
		return model.Slot{}, ErrInvalidRange
	}
	if !s.aligned(iv.Start) || !s.aligned(iv.End) {
		return model.Slot{}, ErrMisaligned.With(
			"開始・終了時刻は" + s.step.String() + "刻みにしてください。")
	}

	now := s.clock()
	slot := model.Slot{
		ID:         s.newID(),
		StartAt:    iv.Start,
		EndAt:      iv.End,
		Status:     model.SlotAvailable,
		IsPaidSlot: in.IsPaidSlot,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		overlapping, err := tx.OverlappingSlots(ctx, iv, 1)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrRangeConflict
		}
		if err := tx.InsertSlot(ctx, slot); err != nil {
			if storage.IsDuplicate(err) {
				return ErrRangeConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return model.Slot{}, storeErr(err)
	}
	s.rec.SlotsCreated(1)
	s.logger.Info("slot created", "slot_id", slot.ID, "start_at", slot.StartAt, "end_at", slot.EndAt, "paid", slot.IsPaidSlot)
	return slot, nil
}

func (s *Service) aligned(t time.Time) bool {
	local := t.In(s.loc)
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return sinceMidnight%s.step == 0
}

// BulkCreateResult counts inserted slots and lists, by local label, the
// candidates skipped because they overlap an existing slot. Exact duplicates
// are the common case.
type BulkCreateResult struct {
	Created   int
	Conflicts []string
}

// BulkCreateSlots inserts candidates, skipping any that overlap an existing
// slot or an earlier candidate. Running it twice with the same input creates
// nothing the second time.
func (s *Service) BulkCreateSlots(ctx context.Context, candidates []recurrence.Candidate, isPaidSlot bool) (BulkCreateResult, error) {
	res := BulkCreateResult{Conflicts: []string{}}
	if len(candidates) == 0 {
		return res, nil
	}
	candidates = slices.Clone(candidates)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Start.Before(candidates[j].Start) })

	span := candidates[0].Interval
	for _, c := range candidates[1:] {
		if c.Start.Before(span.Start) {
			span.Start = c.Start
		}
		if c.End.After(span.End) {
			span.End = c.End
		}
	}

	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		existing, err := tx.OverlappingSlots(ctx, span, 0)
		if err != nil {
			return err
		}
		taken := newOccupancy(existing)

		now := s.clock()
		// Candidates are ordered by start, so among those already accepted
		// only the one ending last can overlap the next.
		var last model.Interval
		toInsert := make([]model.Slot, 0, len(candidates))
		for _, c := range candidates {
			if taken.overlaps(c.Interval) || last.Overlaps(c.Interval) {
				res.Conflicts = append(res.Conflicts, s.label(c))
				continue
			}
			if c.End.After(last.End) {
				last = c.Interval
			}
			toInsert = append(toInsert, model.Slot{
				ID:         s.newID(),
				StartAt:    c.Start.UTC(),
				EndAt:      c.End.UTC(),
				Status:     model.SlotAvailable,
				IsPaidSlot: isPaidSlot,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}

		n, err := tx.InsertSlots(ctx, toInsert)
		if err != nil {
			return err
		}
		res.Created = int(n)
		return nil
	})
	if err != nil {
		return BulkCreateResult{}, storeErr(err)
	}
	s.rec.SlotsCreated(res.Created)
	s.logger.Info("bulk slots created", "candidates", len(candidates), "created", res.Created, "conflicts", len(res.Conflicts))
	return res, nil
}

func (s *Service) label(c recurrence.Candidate) string {
	if c.Label != "" {
		return c.Label
	}
	return recurrence.Label(c.Start, s.loc)
}

// PlanSlots validates a weekly pattern and expands it. Inverted date ranges
// and time windows are reported as input errors, and a plan that yields no
// slot is ErrNoSlots.
func (s *Service) PlanSlots(p recurrence.Params) ([]recurrence.Candidate, error) {
	if p.Location == nil {
		p.Location = s.loc
	}
	first, err := recurrence.ParseDate(p.StartDate, p.Location)
	if err != nil {
		return nil, ErrInvalidRange.wrap(err)
	}
	last, err := recurrence.ParseDate(p.EndDate, p.Location)
	if err != nil {
		return nil, ErrInvalidRange.wrap(err)
	}
	if first.After(last) {
		return nil, ErrInvalidRange.With("開始日が終了日より後です。")
	}
	if first.AddDate(0, 0, recurrence.MaxSpanDays).Before(last) {
		return nil, ErrInvalidRange.With(fmt.Sprintf("一度に作成できる期間は%d日までです。", recurrence.MaxSpanDays))
	}
	startMin, err := recurrence.ParseClock(p.StartTime)
	if err != nil {
		return nil, ErrInvalidTime.wrap(err)
	}
	endMin, err := recurrence.ParseClock(p.EndTime)
	if err != nil {
		return nil, ErrInvalidTime.wrap(err)
	}
	if startMin >= endMin {
		return nil, ErrInvalidTime
	}
	if p.SlotMinutes <= 0 || p.SlotMinutes > recurrence.MaxSlotMinutes {
		return nil, ErrInvalidPayload.With(fmt.Sprintf("slotMinutes must be between 1 and %d", recurrence.MaxSlotMinutes))
	}
	if len(p.Weekdays) == 0 {
		return nil, ErrInvalidPayload.With("weekdays is required")
	}
	for _, d := range p.Weekdays {
		if d < 0 || d > 6 {
			return nil, ErrInvalidPayload.With("weekdays must be between 0 and 6")
		}
	}

	candidates, err := recurrence.Expand(p)
	if err != nil {
		return nil, ErrInvalidPayload.wrap(err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoSlots
	}
	return candidates, nil
}

// SkipReason explains why a slot was left in place by BulkDeleteSlots.
type SkipReason string

const (
	SkipNotFound   SkipReason = "not_found"
	SkipHasBooking SkipReason = "has_booking"
)

type Skipped struct {
	ID     string     `json:"id"`
	Reason SkipReason `json:"reason"`
}

type BulkDeleteResult struct {
	Deleted []string
	Skipped []Skipped
}

// BulkDeleteSlots deletes every listed slot that exists. Slots with an active
// booking are skipped unless force is set, in which case the booking goes
// with them. All deletions share one transaction; one bad id never aborts
// the rest.
func (s *Service) BulkDeleteSlots(ctx context.Context, ids []string, force bool) (BulkDeleteResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return BulkDeleteResult{}, ErrEmptyIDs
	}

	res := BulkDeleteResult{Deleted: []string{}, Skipped: []Skipped{}}
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		slots, err := tx.SlotsByID(ctx, ids)
		if err != nil {
			return err
		}
		found := make(map[string]bool, len(slots))
		for _, sl := range slots {
			found[sl.ID] = true
		}
		bookings, err := tx.BookingsForSlots(ctx, ids)
		if err != nil {
			return err
		}

		var deletable []string
		for _, id := range ids {
			switch {
			case !found[id]:
				res.Skipped = append(res.Skipped, Skipped{ID: id, Reason: SkipNotFound})
			case !force && hasActive(bookings, id):
				res.Skipped = append(res.Skipped, Skipped{ID: id, Reason: SkipHasBooking})
			default:
				deletable = append(deletable, id)
			}
		}
		if len(deletable) == 0 {
			return nil
		}

		if _, err := tx.DeleteBookingsForSlots(ctx, deletable); err != nil {
			return err
		}
		if _, err := tx.DeleteSlots(ctx, deletable); err != nil {
			return err
		}
		res.Deleted = deletable
		return nil
	})
	if err != nil {
		return BulkDeleteResult{}, storeErr(err)
	}
	s.rec.SlotsDeleted(len(res.Deleted))
	s.logger.Info("slots deleted", "requested", len(ids), "deleted", len(res.Deleted), "skipped", len(res.Skipped), "force", force)
	return res, nil
}

// DeleteSlot deletes one slot and its booking. An unknown id is not an
// error; an active booking without force is ErrSlotHasBooking.
func (s *Service) DeleteSlot(ctx context.Context, id string, force bool) (deleted bool, err error) {
	res, err := s.BulkDeleteSlots(ctx, []string{id}, force)
	if err != nil {
		return false, err
	}
	for _, sk := range res.Skipped {
		if sk.Reason == SkipHasBooking {
			return false, ErrSlotHasBooking
		}
	}
	return len(res.Deleted) == 1, nil
}

func hasActive(bookings map[string]model.Booking, slotID string) bool {
	b, ok := bookings[slotID]
	return ok && b.Active()
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// SetBlocked toggles a slot between available and blocked. Slots holding an
// active booking are refused with ErrSlotHasBooking. Setting the status it
// already has is a no-op.
func (s *Service) SetBlocked(ctx context.Context, id string, blocked bool) (model.Slot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Slot{}, ErrInvalidPayload.With("slotId is required")
	}
	from, to := model.SlotBlocked, model.SlotAvailable
	if blocked {
		from, to = model.SlotAvailable, model.SlotBlocked
	}

	var out model.Slot
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		slot, err := tx.Slot(ctx, id)
		if storage.IsNotFound(err) {
			return ErrSlotNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ActiveBooking(ctx, id); err == nil {
			return ErrSlotHasBooking
		} else if !storage.IsNotFound(err) {
			return err
		}
		out = slot
		if slot.Status == to {
			return nil
		}
		if slot.Status != from {
			return ErrSlotHasBooking
		}

		now := s.clock()
		ok, err := tx.TransitionSlot(ctx, id, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSlotNotAvailable
		}
		out.Status, out.UpdatedAt = to, now
		return nil
	})
	if err != nil {
		return model.Slot{}, storeErr(err)
	}
	s.logger.Info("slot status changed", "slot_id", out.ID, "status", out.Status)
	return out, nil
}

// Range is an optional time window; zero values select the defaults of the
// calling operation.
type Range struct {
	From time.Time
	To   time.Time
}

// PublicSlots lists up to 1000 slots overlapping the range, with their
// bookings. The default range runs from local midnight today for the given
// number of days.
func (s *Service) PublicSlots(ctx context.Context, r Range, defaultDays int) ([]model.SlotWithBooking, error) {
	if defaultDays <= 0 {
		defaultDays = 60
	}
	now := s.now().In(s.loc)
	if r.From.IsZero() {
		y, m, d := now.Date()
		r.From = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	}
	if r.To.IsZero() || !r.To.After(r.From) {
		r.To = r.From.AddDate(0, 0, defaultDays)
	}

	var out []model.SlotWithBooking
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		slots, err := tx.OverlappingSlots(ctx, model.Interval{Start: r.From.UTC(), End: r.To.UTC()}, publicSlotLimit)
		if err != nil {
			return err
		}
		out, err = attachBookings(ctx, tx, slots)
		return err
	})
	return out, storeErr(err)
}

// BookingFilter selects slots for the admin list and exports.
type BookingFilter struct {
	Range
	PaidOnly bool
}

// AdminSlots lists slots starting inside the filter range. The defaults are
// the start of the day seven days ago through the end of the day ninety days
// ahead; an inverted range falls back to the defaults.
func (s *Service) AdminSlots(ctx context.Context, f BookingFilter) ([]model.SlotWithBooking, error) {
	f.Range = s.adminRange(f.Range)
	var out []model.SlotWithBooking
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		slots, err := tx.SlotsStartingBetween(ctx, f.From.UTC(), f.To.UTC(), f.PaidOnly)
		if err != nil {
			return err
		}
		out, err = attachBookings(ctx, tx, slots)
		return err
	})
	return out, storeErr(err)
}

func (s *Service) adminRange(r Range) Range {
	now := s.now().In(s.loc)
	y, m, d := now.AddDate(0, 0, -7).Date()
	defFrom := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	y, m, d = now.AddDate(0, 0, 90).Date()
	defTo := time.Date(y, m, d, 23, 59, 59, 0, s.loc)

	if r.From.IsZero() {
		r.From = defFrom
	}
	if r.To.IsZero() {
		r.To = defTo
	}
	if r.From.After(r.To) {
		return Range{From: defFrom, To: defTo}
	}
	return r
}

func attachBookings(ctx context.Context, tx *storage.Tx, slots []model.Slot) ([]model.SlotWithBooking, error) {
	ids := make([]string, len(slots))
	for i, sl := range slots {
		ids[i] = sl.ID
	}
	bookings, err := tx.BookingsForSlots(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.SlotWithBooking, len(slots))
	for i, sl := range slots {
		out[i] = model.SlotWithBooking{Slot: sl}
		if b, ok := bookings[sl.ID]; ok {
			out[i].Booking = &b
		}
	}
	return out, nil
}

// Slot loads one slot by id.
func (s *Service) Slot(ctx context.Context, id string) (model.Slot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Slot{}, ErrInvalidPayload.With("slotId is required")
	}
	var out model.Slot
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		sl, err := tx.Slot(ctx, id)
		if storage.IsNotFound(err) {
			return ErrSlotNotFound
		}
		out = sl
		return err
	})
	return out, storeErr(err)
}
