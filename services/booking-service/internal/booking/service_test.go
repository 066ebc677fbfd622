package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/recurrence"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *storage.Store
	loc   *time.Location
}

func newFixture(t *testing.T, record bool) fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	store := storage.NewSQLite(conn)
	require.NoError(t, store.Migrate(ctx))

	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	svc := NewService(store, Options{
		Location:     loc,
		RecordEvents: record,
		Now:          func() time.Time { return testNow },
	})
	return fixture{svc: svc, store: store, loc: loc}
}

func (f fixture) slot(t *testing.T, startLocal string, minutes int, paid bool) model.Slot {
	t.Helper()
	start, err := time.ParseInLocation("2006-01-02 15:04", startLocal, f.loc)
	require.NoError(t, err)
	s, err := f.svc.CreateSlot(context.Background(), SlotInput{
		StartAt:    start,
		EndAt:      start.Add(time.Duration(minutes) * time.Minute),
		IsPaidSlot: paid,
	})
	require.NoError(t, err)
	return s
}

func practice(slotID string) BookingInput {
	return BookingInput{
		SlotID:      slotID,
		BookingType: "PRACTICE",
		PlayerName:  "player",
		IdentityVID: "12345678",
	}
}

func TestCreateBookingStatusFollowsSlotPayment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	free := f.slot(t, "2024-01-10 10:00", 60, false)
	got, err := f.svc.CreateBooking(ctx, practice(free.ID))
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.True(t, got.IsPaid)
	assert.Equal(t, model.SlotBooked, got.Slot.Status)
	assert.True(t, ValidToken(got.CancelToken))

	paid := f.slot(t, "2024-01-10 11:00", 60, true)
	got, err = f.svc.CreateBooking(ctx, practice(paid.ID))
	require.NoError(t, err)
	assert.Equal(t, model.BookingPendingPayment, got.Status)
	assert.False(t, got.IsPaid)
}

func TestCreateBookingRejections(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, practice("missing"))
	assert.ErrorIs(t, err, ErrSlotNotFound)

	coaching := practice("whatever")
	coaching.BookingType = "コーチング"
	_, err = f.svc.CreateBooking(ctx, coaching)
	assert.ErrorIs(t, err, ErrDiscordRequired)

	bad := practice("")
	bad.PlayerName = "   "
	_, err = f.svc.CreateBooking(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidPayload)
	assert.Contains(t, Fields(err), "slotId is required")
	assert.Contains(t, Fields(err), "playerName is required")

	s := f.slot(t, "2024-01-10 10:00", 60, false)
	_, err = f.svc.SetBlocked(ctx, s.ID, true)
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, practice(s.ID))
	assert.ErrorIs(t, err, ErrSlotNotAvailable)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestConcurrentBookingsOnlyOneWins(t *testing.T) {
	f := newFixture(t, false)
	s := f.slot(t, "2024-01-10 10:00", 60, false)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateBooking(context.Background(), practice(s.ID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsConflict(err):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)

	slots, err := f.svc.AdminSlots(context.Background(), BookingFilter{})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.NotNil(t, slots[0].Booking)
	assert.Equal(t, model.SlotBooked, slots[0].Status)
}

func TestCancelByTokenIsIdempotentAndReleasesSlot(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	s := f.slot(t, "2024-01-10 10:00", 60, false)

	b, err := f.svc.CreateBooking(ctx, practice(s.ID))
	require.NoError(t, err)

	res, err := f.svc.CancelByToken(ctx, b.CancelToken)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, model.BookingCancelled, res.Booking.Status)
	assert.Equal(t, model.SlotAvailable, res.Booking.Slot.Status)

	res, err = f.svc.CancelByToken(ctx, b.CancelToken)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, model.SlotAvailable, res.Booking.Slot.Status)

	_, err = f.svc.CancelByToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = f.svc.CancelByToken(ctx, "6f1c1b7e-7c55-4a4e-9f39-2d7f4f3f4a10")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	again, err := f.svc.CreateBooking(ctx, practice(s.ID))
	require.NoError(t, err, "a released slot can be booked again")
	assert.NotEqual(t, b.ID, again.ID)

	list, err := f.svc.PublicSlots(ctx, Range{}, 60)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, again.ID, list[0].Booking.ID, "the active booking wins over the cancelled one")
	assert.Equal(t, model.SlotBooked, list[0].PublicStatus())
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	paid := f.slot(t, "2024-01-10 10:00", 60, true)
	b, err := f.svc.CreateBooking(ctx, practice(paid.ID))
	require.NoError(t, err)

	got, err := f.svc.ConfirmPayment(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.True(t, got.IsPaid)
	assert.Equal(t, model.SlotBooked, got.Slot.Status)

	_, err = f.svc.ConfirmPayment(ctx, b.ID)
	require.NoError(t, err, "confirming twice is not an error")

	_, err = f.svc.ConfirmPayment(ctx, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	_, err = f.svc.ConfirmPayment(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	free := f.slot(t, "2024-01-10 11:00", 60, false)
	fb, err := f.svc.CreateBooking(ctx, practice(free.ID))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, fb.ID)
	assert.ErrorIs(t, err, ErrNotPaidSlot)

	other := f.slot(t, "2024-01-10 12:00", 60, true)
	ob, err := f.svc.CreateBooking(ctx, practice(other.ID))
	require.NoError(t, err)
	_, err = f.svc.CancelByToken(ctx, ob.CancelToken)
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, ob.ID)
	assert.ErrorIs(t, err, ErrBookingCancelled)

	view, err := f.svc.BookingByToken(ctx, ob.CancelToken)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, view.Status)
	assert.False(t, view.IsPaid)
	assert.Equal(t, model.SlotAvailable, view.Slot.Status)
}

func TestCreateSlotValidation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	at := func(s string) time.Time {
		v, err := time.ParseInLocation("2006-01-02 15:04", s, f.loc)
		require.NoError(t, err)
		return v
	}

	_, err := f.svc.CreateSlot(ctx, SlotInput{StartAt: at("2024-01-10 10:00"), EndAt: at("2024-01-10 11:00")})
	require.NoError(t, err)

	_, err = f.svc.CreateSlot(ctx, SlotInput{StartAt: at("2024-01-10 10:30"), EndAt: at("2024-01-10 11:30")})
	assert.ErrorIs(t, err, ErrRangeConflict)
	assert.Equal(t, KindRangeConflict, KindOf(err))

	_, err = f.svc.CreateSlot(ctx, SlotInput{StartAt: at("2024-01-10 11:00"), EndAt: at("2024-01-10 12:00")})
	assert.NoError(t, err, "touching slots do not overlap")

	_, err = f.svc.CreateSlot(ctx, SlotInput{StartAt: at("2024-01-10 13:00"), EndAt: at("2024-01-10 13:00")})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.svc.CreateSlot(ctx, SlotInput{StartAt: at("2024-01-10 13:05"), EndAt: at("2024-01-10 14:00")})
	assert.ErrorIs(t, err, ErrMisaligned)
}

func bulkParams() recurrence.Params {
	return recurrence.Params{
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-07",
		StartTime:   "10:00",
		EndTime:     "12:00",
		SlotMinutes: 60,
		Weekdays:    []int{1, 3},
	}
}

func TestBulkCreateIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	candidates, err := f.svc.PlanSlots(bulkParams())
	require.NoError(t, err)
	require.Len(t, candidates, 4)

	first, err := f.svc.BulkCreateSlots(ctx, candidates, true)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Created)
	assert.Empty(t, first.Conflicts)

	second, err := f.svc.BulkCreateSlots(ctx, candidates, true)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, []string{"2024-01-01 10:00", "2024-01-01 11:00", "2024-01-03 10:00", "2024-01-03 11:00"}, second.Conflicts)

	slots, err := f.svc.AdminSlots(ctx, BookingFilter{PaidOnly: true})
	require.NoError(t, err)
	require.Len(t, slots, 4)
	assert.Equal(t, "2024-01-01T01:00:00Z", slots[0].StartAt.Format(time.RFC3339))
	assert.True(t, slots[0].IsPaidSlot)
}

func TestBulkCreateReportsPartialOverlaps(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	hourly, err := f.svc.PlanSlots(bulkParams())
	require.NoError(t, err)
	_, err = f.svc.BulkCreateSlots(ctx, hourly, false)
	require.NoError(t, err)

	p := bulkParams()
	p.SlotMinutes = 30
	p.EndTime = "13:00"
	halves, err := f.svc.PlanSlots(p)
	require.NoError(t, err)
	require.Len(t, halves, 12)

	res, err := f.svc.BulkCreateSlots(ctx, halves, false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Len(t, res.Conflicts, 8)
	assert.Equal(t, "2024-01-01 10:00", res.Conflicts[0])
	assert.NotContains(t, res.Conflicts, "2024-01-01 12:00")

	slots, err := f.svc.AdminSlots(ctx, BookingFilter{})
	require.NoError(t, err)
	require.Len(t, slots, 8)
	for i := 1; i < len(slots); i++ {
		assert.False(t, slots[i-1].Interval().Overlaps(slots[i].Interval()), "slots %d and %d overlap", i-1, i)
	}
}

func TestPlanSlotsErrors(t *testing.T) {
	f := newFixture(t, false)

	p := bulkParams()
	p.StartDate, p.EndDate = "2024-01-07", "2024-01-01"
	_, err := f.svc.PlanSlots(p)
	assert.ErrorIs(t, err, ErrInvalidRange)

	p = bulkParams()
	p.StartTime = "12:00"
	_, err = f.svc.PlanSlots(p)
	assert.ErrorIs(t, err, ErrInvalidTime)

	p = bulkParams()
	p.StartDate = "yesterday"
	_, err = f.svc.PlanSlots(p)
	assert.ErrorIs(t, err, ErrInvalidRange)

	p = bulkParams()
	p.Weekdays = []int{0}
	p.StartDate, p.EndDate = "2024-01-01", "2024-01-02"
	_, err = f.svc.PlanSlots(p)
	assert.ErrorIs(t, err, ErrNoSlots)
}

func TestPlanSlotsLimits(t *testing.T) {
	f := newFixture(t, false)

	cases := []struct {
		name   string
		mutate func(p *recurrence.Params)
		want   *Error
	}{
		{"duration above cap", func(p *recurrence.Params) { p.SlotMinutes = recurrence.MaxSlotMinutes + 1 }, ErrInvalidPayload},
		{"zero duration", func(p *recurrence.Params) { p.SlotMinutes = 0 }, ErrInvalidPayload},
		{"weekday out of range", func(p *recurrence.Params) { p.Weekdays = []int{7, 9} }, ErrInvalidPayload},
		{"negative weekday", func(p *recurrence.Params) { p.Weekdays = []int{1, -1} }, ErrInvalidPayload},
		{"no weekdays", func(p *recurrence.Params) { p.Weekdays = nil }, ErrInvalidPayload},
		{"span too long", func(p *recurrence.Params) {
			p.StartDate, p.EndDate = "2024-01-01", "2043-12-31"
			p.StartTime, p.EndTime, p.SlotMinutes = "00:00", "24:00", 5
			p.Weekdays = []int{0, 1, 2, 3, 4, 5, 6}
		}, ErrInvalidRange},
		{"one day past the span", func(p *recurrence.Params) { p.StartDate, p.EndDate = "2024-01-01", "2025-01-02" }, ErrInvalidRange},
	}
	for _, tc := range cases {
		p := bulkParams()
		tc.mutate(&p)
		_, err := f.svc.PlanSlots(p)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}

	p := bulkParams()
	p.StartDate, p.EndDate = "2024-01-01", "2025-01-01"
	p.SlotMinutes = recurrence.MaxSlotMinutes
	p.StartTime, p.EndTime = "09:00", "14:00"
	got, err := f.svc.PlanSlots(p)
	require.NoError(t, err)
	assert.Len(t, got, 106, "one 300-minute slot on every Monday and Wednesday through 2025-01-01")
}

func TestBulkDeletePartitionsIDs(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	free := f.slot(t, "2024-01-10 10:00", 60, false)
	taken := f.slot(t, "2024-01-10 11:00", 60, false)
	_, err := f.svc.CreateBooking(ctx, practice(taken.ID))
	require.NoError(t, err)

	res, err := f.svc.BulkDeleteSlots(ctx, []string{free.ID, taken.ID, "ghost", free.ID, " "}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{free.ID}, res.Deleted)
	assert.ElementsMatch(t, []Skipped{
		{ID: taken.ID, Reason: SkipHasBooking},
		{ID: "ghost", Reason: SkipNotFound},
	}, res.Skipped)

	res, err = f.svc.BulkDeleteSlots(ctx, []string{taken.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{taken.ID}, res.Deleted)

	left, err := f.svc.AdminSlots(ctx, BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = f.svc.BulkDeleteSlots(ctx, []string{"", "  "}, false)
	assert.ErrorIs(t, err, ErrEmptyIDs)
}

func TestDeleteSlot(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	s := f.slot(t, "2024-01-10 10:00", 60, false)
	_, err := f.svc.CreateBooking(ctx, practice(s.ID))
	require.NoError(t, err)

	_, err = f.svc.DeleteSlot(ctx, s.ID, false)
	assert.ErrorIs(t, err, ErrSlotHasBooking)

	deleted, err := f.svc.DeleteSlot(ctx, s.ID, true)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = f.svc.DeleteSlot(ctx, s.ID, true)
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a missing slot is a no-op")
}

func TestSetBlocked(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	s := f.slot(t, "2024-01-10 10:00", 60, false)

	got, err := f.svc.SetBlocked(ctx, s.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.SlotBlocked, got.Status)

	got, err = f.svc.SetBlocked(ctx, s.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.SlotBlocked, got.Status)

	got, err = f.svc.SetBlocked(ctx, s.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.SlotAvailable, got.Status)

	_, err = f.svc.CreateBooking(ctx, practice(s.ID))
	require.NoError(t, err)
	_, err = f.svc.SetBlocked(ctx, s.ID, true)
	assert.ErrorIs(t, err, ErrSlotHasBooking)

	_, err = f.svc.SetBlocked(ctx, "ghost", true)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestAdminRangeDefaults(t *testing.T) {
	f := newFixture(t, false)
	r := f.svc.adminRange(Range{From: testNow.Add(time.Hour), To: testNow})
	assert.Equal(t, "2023-12-25 00:00", r.From.In(f.loc).Format("2006-01-02 15:04"))
	assert.Equal(t, "2024-03-31 23:59", r.To.In(f.loc).Format("2006-01-02 15:04"))
}

func TestLifecycleRecordsOutboxEvents(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	s := f.slot(t, "2024-01-10 10:00", 60, true)

	b, err := f.svc.CreateBooking(ctx, practice(s.ID))
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.CancelByToken(ctx, b.CancelToken)
	require.NoError(t, err)

	var types []string
	n, err := f.store.RelayOutbox(ctx, 10, func(_ context.Context, recs []outbox.Record) error {
		for _, r := range recs {
			types = append(types, r.Event.EventType)
			assert.Equal(t, b.ID, r.Event.AggregateID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{outbox.EventBookingCreated, outbox.EventBookingPaymentConfirmed, outbox.EventBookingCancelled}, types)

	n, err = f.store.RelayOutbox(ctx, 10, func(context.Context, []outbox.Record) error {
		return errors.New("should not be called")
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}
