// Package recurrence expands a weekly local-time pattern into concrete slot
// intervals.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// DefaultZone is used when Params.Location is nil.
const DefaultZone = "Asia/Tokyo"

// Limits applied to plans submitted by administrators.
const (
	MaxSlotMinutes = 300
	// MaxSpanDays is the furthest the end date may lie after the start date.
	MaxSpanDays = 366
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	// LabelLayout formats a slot start for operator-facing messages.
	LabelLayout = "2006-01-02 15:04"
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrInvalidTime = errors.New("invalid time of day")
)

// Params describes a weekly pattern. Dates are inclusive local calendar
// dates (YYYY-MM-DD, slashes accepted); times are local HH:MM; Weekdays uses
// 0=Sunday..6=Saturday.
type Params struct {
	StartDate   string
	EndDate     string
	StartTime   string
	EndTime     string
	SlotMinutes int
	Weekdays    []int
	Location    *time.Location
}

// Candidate is one generated interval plus its local label.
type Candidate struct {
	model.Interval
	Label string
}

// Step rounds minutes to the nearest multiple of five, never below five.
func Step(minutes int) time.Duration {
	rounded := ((minutes + 2) / 5) * 5
	if minutes < 0 {
		rounded = 0
	}
	if rounded < 5 {
		rounded = 5
	}
	return time.Duration(rounded) * time.Minute
}

// Expand returns every step-sized interval that fits inside
// [StartTime, EndTime) on each permitted local date, ordered by start and
// free of exact duplicates. Malformed dates or times are errors; an empty
// plan (inverted window, inverted range, no matching weekday) is not.
func Expand(p Params) ([]Candidate, error) {
	loc := p.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(DefaultZone); err != nil {
			return nil, err
		}
	}

	first, err := ParseDate(p.StartDate, loc)
	if err != nil {
		return nil, err
	}
	last, err := ParseDate(p.EndDate, loc)
	if err != nil {
		return nil, err
	}
	startMin, err := ParseClock(p.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := ParseClock(p.EndTime)
	if err != nil {
		return nil, err
	}
	if startMin >= endMin || first.After(last) {
		return nil, nil
	}

	mask := make(map[time.Weekday]bool, len(p.Weekdays))
	for _, d := range p.Weekdays {
		if d >= 0 && d <= 6 {
			mask[time.Weekday(d)] = true
		}
	}
	if len(mask) == 0 {
		return nil, nil
	}

	step := Step(p.SlotMinutes)
	seen := make(map[[2]int64]bool)
	var out []Candidate

	// Days are walked on the calendar, not by adding 24h, so zones with DST
	// still land on local midnight.
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !mask[day.Weekday()] {
			continue
		}
		y, m, d := day.Date()
		limit := time.Date(y, m, d, 0, endMin, 0, 0, loc)
		for cur := time.Date(y, m, d, 0, startMin, 0, 0, loc); cur.Before(limit); {
			next := cur.Add(step)
			if next.After(limit) {
				break
			}
			key := [2]int64{cur.Unix(), next.Unix()}
			if !seen[key] {
				seen[key] = true
				out = append(out, Candidate{
					Interval: model.Interval{Start: cur.UTC(), End: next.UTC()},
					Label:    cur.In(loc).Format(LabelLayout),
				})
			}
			cur = next
		}
	}
	return out, nil
}

// ParseDate reads YYYY-MM-DD (or YYYY/MM/DD) as local midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	v := strings.ReplaceAll(strings.TrimSpace(raw), "/", "-")
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}

// ParseClock reads HH:MM and returns minutes after midnight. 24:00 is
// accepted as the end of the day.
func ParseClock(raw string) (int, error) {
	v := strings.TrimSpace(raw)
	if v == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse(clockLayout, v)
	if err != nil || len(v) != len(clockLayout) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Label formats t in loc the way bulk results report it.
func Label(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(LabelLayout)
}
