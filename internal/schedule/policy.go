package schedule

import (
	"fmt"
	"time"

	"github.com/brightgive/donor-engine/internal/domain"
)

// Resolve merges an organization's default schedule policy with an optional
// campaign-level override into one effective policy. The merge is
// field-by-field: an override field wins when present, otherwise the org
// default is used. The merged result is validated; Resolve never returns a
// partially-valid policy.
func Resolve(orgDefault domain.SchedulePolicy, override *domain.PolicyOverride) (domain.SchedulePolicy, error) {
	p := orgDefault.Clone()

	if override != nil {
		if override.DailyLimit != nil {
			p.DailyLimit = *override.DailyLimit
		}
		if override.MinGapSeconds != nil {
			p.MinGapSeconds = *override.MinGapSeconds
		}
		if override.MaxGapSeconds != nil {
			p.MaxGapSeconds = *override.MaxGapSeconds
		}
		if override.Timezone != nil {
			p.Timezone = *override.Timezone
		}
		if override.AllowedWeekdays != nil {
			p.AllowedWeekdays = append([]time.Weekday(nil), override.AllowedWeekdays...)
		}
		if override.DefaultWindow != nil {
			p.DefaultWindow = *override.DefaultWindow
		}
		if override.PerWeekday != nil {
			p.PerWeekday = make(map[time.Weekday]domain.WeekdayWindow, len(override.PerWeekday))
			for d, w := range override.PerWeekday {
				p.PerWeekday[d] = w
			}
		}
	}

	if err := Validate(p); err != nil {
		return domain.SchedulePolicy{}, err
	}
	return p, nil
}

// Validate checks the policy invariants. It is also called directly when an
// organization saves its schedule settings, so misconfiguration surfaces as
// a validation error at save time rather than at scheduling time.
func Validate(p domain.SchedulePolicy) error {
	if p.DailyLimit <= 0 {
		return fmt.Errorf("%w: daily limit must be positive, got %d", ErrInvalidPolicy, p.DailyLimit)
	}
	if p.MinGapSeconds < 0 {
		return fmt.Errorf("%w: min gap must be >= 0, got %d", ErrInvalidPolicy, p.MinGapSeconds)
	}
	if p.MinGapSeconds > p.MaxGapSeconds {
		return fmt.Errorf("%w: min gap %ds exceeds max gap %ds", ErrInvalidPolicy, p.MinGapSeconds, p.MaxGapSeconds)
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidPolicy, p.Timezone)
	}

	if err := validateWindow(p.DefaultWindow, "default window"); err != nil {
		return err
	}
	for d, w := range p.PerWeekday {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday override key %d out of range", ErrInvalidPolicy, d)
		}
		if !w.Enabled {
			continue
		}
		if err := validateWindow(w.TimeWindow, d.String()+" window"); err != nil {
			return err
		}
	}

	// The allowed-day set must survive per-weekday disables. A weekday
	// listed in AllowedWeekdays but disabled via PerWeekday does not count.
	effective := 0
	for _, d := range p.AllowedWeekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: allowed weekday %d out of range", ErrInvalidPolicy, d)
		}
		if w, ok := p.PerWeekday[d]; ok && !w.Enabled {
			continue
		}
		effective++
	}
	if effective == 0 {
		return fmt.Errorf("%w: no allowed weekdays after applying per-weekday overrides", ErrInvalidPolicy)
	}
	return nil
}

func validateWindow(w domain.TimeWindow, name string) error {
	start, err := parseClock(w.Start)
	if err != nil {
		return fmt.Errorf("%w: %s start %q: %v", ErrInvalidPolicy, name, w.Start, err)
	}
	end, err := parseClock(w.End)
	if err != nil {
		return fmt.Errorf("%w: %s end %q: %v", ErrInvalidPolicy, name, w.End, err)
	}
	if start >= end {
		return fmt.Errorf("%w: %s start %s must be before end %s", ErrInvalidPolicy, name, w.Start, w.End)
	}
	return nil
}

// parseClock parses an "HH:MM" local time-of-day into minutes after
// midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("expected HH:MM")
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("expected HH:MM in 00:00..23:59")
	}
	return h*60 + m, nil
}
