package schedule

import (
	"fmt"
	"time"

	"github.com/brightgive/donor-engine/internal/domain"
)

// maxLookaheadDays bounds how far NextAllowedInstant scans for an allowed
// window. Two full weeks covers any combination of allowed weekdays; a scan
// that exhausts it means the policy's effective schedule is empty.
const maxLookaheadDays = 14

// NextAllowedInstant returns the earliest instant at or after from that
// falls inside an allowed sending window of the policy.
//
// All comparisons happen in the policy's timezone using calendar (wall
// clock) arithmetic, never fixed-offset math, so a window defined as
// "09:00-17:00" means local 9am-5pm on either side of a DST transition.
func NextAllowedInstant(p domain.SchedulePolicy, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidPolicy, p.Timezone)
	}
	local := from.In(loc)

	for day := 0; day <= maxLookaheadDays; day++ {
		date := local.AddDate(0, 0, day)
		win, ok := p.WindowFor(date.Weekday())
		if !ok {
			continue
		}
		start, end, err := windowBounds(win, date, loc)
		if err != nil {
			return time.Time{}, err
		}
		if day == 0 {
			switch {
			case local.Before(start):
				return start, nil
			case local.Before(end):
				// Already inside today's window.
				return local, nil
			default:
				// At or past the window end; try tomorrow.
				continue
			}
		}
		return start, nil
	}
	return time.Time{}, fmt.Errorf("%w: scanned %d days from %s", ErrNoAllowedWindow,
		maxLookaheadDays, local.Format("2006-01-02"))
}

// nextDayWindowStart advances past the rest of cursor's local day and
// returns the start of the next allowed window. Used when the daily send
// cap is reached mid-allocation.
func nextDayWindowStart(p domain.SchedulePolicy, cursor time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidPolicy, p.Timezone)
	}
	local := cursor.In(loc)
	nextMidnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return NextAllowedInstant(p, nextMidnight)
}

// windowBounds materializes a local time-of-day window on a concrete date.
func windowBounds(w domain.TimeWindow, date time.Time, loc *time.Location) (start, end time.Time, err error) {
	startMin, err := parseClock(w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window start %q", ErrInvalidPolicy, w.Start)
	}
	endMin, err := parseClock(w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window end %q", ErrInvalidPolicy, w.End)
	}
	start = time.Date(date.Year(), date.Month(), date.Day(), startMin/60, startMin%60, 0, 0, loc)
	end = time.Date(date.Year(), date.Month(), date.Day(), endMin/60, endMin%60, 0, 0, loc)
	return start, end, nil
}

// sameLocalDate reports whether two instants fall on the same calendar day
// in the given location.
func sameLocalDate(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	ay, am, ad := al.Date()
	by, bm, bd := bl.Date()
	return ay == by && am == bm && ad == bd
}
