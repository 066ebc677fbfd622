package booking

import (
	"sort"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// occupancy answers overlap queries against a fixed set of slots in
// O(log n). Slots are sorted by start; widest[i] is the index of the slot
// with the latest end among slots[0..i].
type occupancy struct {
	slots  []model.Interval
	widest []int
}

func newOccupancy(slots []model.Slot) occupancy {
	o := occupancy{slots: make([]model.Interval, len(slots)), widest: make([]int, len(slots))}
	for i, sl := range slots {
		o.slots[i] = sl.Interval()
	}
	sort.Slice(o.slots, func(i, j int) bool { return o.slots[i].Start.Before(o.slots[j].Start) })
	for i := range o.slots {
		o.widest[i] = i
		if i > 0 && !o.slots[i].End.After(o.slots[o.widest[i-1]].End) {
			o.widest[i] = o.widest[i-1]
		}
	}
	return o
}

// overlaps reports whether iv overlaps any slot. Only slots starting before
// iv.End can overlap it, and of those the one ending last decides.
func (o occupancy) overlaps(iv model.Interval) bool {
	n := sort.Search(len(o.slots), func(i int) bool { return !o.slots[i].Start.Before(iv.End) })
	if n == 0 {
		return false
	}
	return o.slots[o.widest[n-1]].Overlaps(iv)
}
