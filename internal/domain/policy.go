package domain

import (
	"time"
)

// TimeWindow is a local time-of-day range within which sends are permitted,
// expressed as "HH:MM" strings in the policy's timezone. Start must be
// strictly before End; windows never cross midnight.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeekdayWindow overrides the default window for one weekday. A weekday
// with Enabled=false is treated as not allowed even if it appears in
// AllowedWeekdays.
type WeekdayWindow struct {
	TimeWindow
	Enabled bool `json:"enabled"`
}

// SchedulePolicy is the fully-resolved sending-volume policy for one
// campaign. It is a value object: resolved once per scheduleSend/resume
// call and never mutated afterwards, so later edits to organization
// defaults cannot retroactively change an in-flight schedule.
type SchedulePolicy struct {
	// DailyLimit caps emails dispatched per calendar day in Timezone.
	DailyLimit int `json:"daily_limit"`

	// MinGapSeconds/MaxGapSeconds bound the randomized spacing between
	// consecutive sends. 0 <= min <= max.
	MinGapSeconds int `json:"min_gap_seconds"`
	MaxGapSeconds int `json:"max_gap_seconds"`

	// Timezone is an IANA zone identifier, e.g. "America/New_York".
	Timezone string `json:"timezone"`

	// AllowedWeekdays lists the weekdays sending is permitted on
	// (time.Sunday..time.Saturday). Must be non-empty.
	AllowedWeekdays []time.Weekday `json:"allowed_weekdays"`

	// DefaultWindow applies to every allowed weekday without an entry in
	// PerWeekday.
	DefaultWindow TimeWindow `json:"default_window"`

	// PerWeekday optionally overrides DefaultWindow for specific weekdays.
	PerWeekday map[time.Weekday]WeekdayWindow `json:"per_weekday,omitempty"`
}

// AllowsWeekday reports whether the policy permits sending on the given
// weekday: it must be in AllowedWeekdays and not disabled by a PerWeekday
// entry.
func (p SchedulePolicy) AllowsWeekday(d time.Weekday) bool {
	if w, ok := p.PerWeekday[d]; ok && !w.Enabled {
		return false
	}
	for _, a := range p.AllowedWeekdays {
		if a == d {
			return true
		}
	}
	return false
}

// WindowFor returns the effective send window for the given weekday and
// whether sending is allowed on it at all.
func (p SchedulePolicy) WindowFor(d time.Weekday) (TimeWindow, bool) {
	if !p.AllowsWeekday(d) {
		return TimeWindow{}, false
	}
	if w, ok := p.PerWeekday[d]; ok && w.Enabled {
		return w.TimeWindow, true
	}
	return p.DefaultWindow, true
}

// Clone returns a deep copy of the policy. Resolved policies are copied
// into the allocator's working state so the caller can keep mutating its
// own maps/slices safely.
func (p SchedulePolicy) Clone() SchedulePolicy {
	out := p
	out.AllowedWeekdays = append([]time.Weekday(nil), p.AllowedWeekdays...)
	if p.PerWeekday != nil {
		out.PerWeekday = make(map[time.Weekday]WeekdayWindow, len(p.PerWeekday))
		for k, v := range p.PerWeekday {
			out.PerWeekday[k] = v
		}
	}
	return out
}

// PolicyOverride is a campaign-level partial SchedulePolicy. Every field is
// optional; a nil field means "inherit the organization default for this
// field". Merging is field-by-field, never all-or-nothing.
type PolicyOverride struct {
	DailyLimit      *int                           `json:"daily_limit,omitempty"`
	MinGapSeconds   *int                           `json:"min_gap_seconds,omitempty"`
	MaxGapSeconds   *int                           `json:"max_gap_seconds,omitempty"`
	Timezone        *string                        `json:"timezone,omitempty"`
	AllowedWeekdays []time.Weekday                 `json:"allowed_weekdays,omitempty"`
	DefaultWindow   *TimeWindow                    `json:"default_window,omitempty"`
	PerWeekday      map[time.Weekday]WeekdayWindow `json:"per_weekday,omitempty"`
}
