// Package availability implements the date-range arithmetic behind
// booking conflict detection. All functions are pure: callers load the
// relevant confirmed reservations and pass their ranges in. Date ranges
// are half-open [start, end), so back-to-back stays do not conflict.
package availability

import (
	"sort"
	"time"
)

// Range is one booked interval, [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share at
// least one instant: a1 < b2 && b1 < a2.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// HasConflict reports whether the requested [start, end) overlaps any of
// the booked ranges. Only confirmed reservations should be passed in;
// pending reservations never block a new booking attempt.
func HasConflict(booked []Range, start, end time.Time) bool {
	for _, r := range booked {
		if Overlaps(r.Start, r.End, start, end) {
			return true
		}
	}
	return false
}

// NextAvailableStart returns the earliest start at or after reqStart
// where a contiguous free interval of the requested duration fits
// between the booked ranges. Ranges ending at or before reqStart are
// ignored; the remainder is walked in ascending start order with a
// cursor that jumps past each conflicting booking. When no gap fits,
// the cursor after the last conflicting booking is returned, so the
// result is always a usable "available from" suggestion.
func NextAvailableStart(booked []Range, reqStart, reqEnd time.Time) time.Time {
	duration := reqEnd.Sub(reqStart)

	relevant := make([]Range, 0, len(booked))
	for _, r := range booked {
		if r.End.After(reqStart) {
			relevant = append(relevant, r)
		}
	}
	if len(relevant) == 0 {
		return reqStart
	}
	sort.Slice(relevant, func(i, j int) bool { return relevant[i].Start.Before(relevant[j].Start) })

	cursor := reqStart
	for _, r := range relevant {
		if r.Start.After(cursor) {
			if r.Start.Sub(cursor) >= duration {
				return cursor
			}
		}
		// Booking starts at/before the cursor or the gap is too small:
		// advance past it.
		if r.End.After(cursor) {
			cursor = r.End
		}
	}
	return cursor
}
