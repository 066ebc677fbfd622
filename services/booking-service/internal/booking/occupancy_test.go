package booking

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

func TestOccupancyOverlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }
	slot := func(sh, sm, eh, em int) model.Slot {
		return model.Slot{StartAt: at(sh, sm), EndAt: at(eh, em)}
	}
	// A long legacy slot that contains a shorter one, plus a later slot.
	o := newOccupancy([]model.Slot{
		slot(14, 0, 15, 0),
		slot(9, 0, 12, 0),
		slot(10, 0, 10, 30),
	})

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"before everything", at(8, 0), at(9, 0), false},
		{"inside the long slot after the short one ends", at(11, 0), at(11, 30), true},
		{"touching the long slot end", at(12, 0), at(13, 0), false},
		{"gap between slots", at(13, 0), at(14, 0), false},
		{"straddling the late slot start", at(13, 30), at(14, 30), true},
		{"after everything", at(15, 0), at(16, 0), false},
	}
	for _, tc := range cases {
		if got := o.overlaps(model.Interval{Start: tc.start, End: tc.end}); got != tc.want {
			t.Fatalf("%s: overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}

	if newOccupancy(nil).overlaps(model.Interval{Start: at(9, 0), End: at(10, 0)}) {
		t.Fatal("empty occupancy must not overlap")
	}
}
