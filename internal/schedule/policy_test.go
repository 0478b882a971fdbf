package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/schedule"
)

func basePolicy() domain.SchedulePolicy {
	return domain.SchedulePolicy{
		DailyLimit:    100,
		MinGapSeconds: 60,
		MaxGapSeconds: 180,
		Timezone:      "America/New_York",
		AllowedWeekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		DefaultWindow: domain.TimeWindow{Start: "09:00", End: "17:00"},
	}
}

func TestResolveNoOverride(t *testing.T) {
	got, err := schedule.Resolve(basePolicy(), nil)
	require.NoError(t, err)
	assert.Equal(t, basePolicy(), got)
}

func TestResolvePartialOverride(t *testing.T) {
	limit := 25
	tz := "Europe/London"
	got, err := schedule.Resolve(basePolicy(), &domain.PolicyOverride{
		DailyLimit: &limit,
		Timezone:   &tz,
	})
	require.NoError(t, err)

	assert.Equal(t, 25, got.DailyLimit)
	assert.Equal(t, "Europe/London", got.Timezone)
	// Untouched fields keep the org default.
	assert.Equal(t, 60, got.MinGapSeconds)
	assert.Equal(t, basePolicy().DefaultWindow, got.DefaultWindow)
	assert.Equal(t, basePolicy().AllowedWeekdays, got.AllowedWeekdays)
}

func TestResolveOverrideWindowAndWeekdays(t *testing.T) {
	got, err := schedule.Resolve(basePolicy(), &domain.PolicyOverride{
		AllowedWeekdays: []time.Weekday{time.Saturday, time.Sunday},
		DefaultWindow:   &domain.TimeWindow{Start: "10:00", End: "12:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, got.AllowedWeekdays)
	assert.Equal(t, domain.TimeWindow{Start: "10:00", End: "12:00"}, got.DefaultWindow)
}

func TestResolveReturnsCopy(t *testing.T) {
	org := basePolicy()
	org.PerWeekday = map[time.Weekday]domain.WeekdayWindow{
		time.Friday: {TimeWindow: domain.TimeWindow{Start: "09:00", End: "12:00"}, Enabled: true},
	}
	got, err := schedule.Resolve(org, nil)
	require.NoError(t, err)

	// Mutating the org default afterwards must not leak into the resolved
	// snapshot.
	org.AllowedWeekdays[0] = time.Sunday
	org.PerWeekday[time.Friday] = domain.WeekdayWindow{Enabled: false}

	assert.Equal(t, time.Monday, got.AllowedWeekdays[0])
	assert.True(t, got.PerWeekday[time.Friday].Enabled)
}

func TestResolveInvalid(t *testing.T) {
	zero := 0
	minGap := 300
	maxGap := 60
	badTZ := "Mars/Olympus"

	cases := []struct {
		name     string
		override *domain.PolicyOverride
	}{
		{"zero daily limit", &domain.PolicyOverride{DailyLimit: &zero}},
		{"min gap above max gap", &domain.PolicyOverride{MinGapSeconds: &minGap, MaxGapSeconds: &maxGap}},
		{"unknown timezone", &domain.PolicyOverride{Timezone: &badTZ}},
		{"inverted window", &domain.PolicyOverride{DefaultWindow: &domain.TimeWindow{Start: "17:00", End: "09:00"}}},
		{"empty weekdays", &domain.PolicyOverride{AllowedWeekdays: []time.Weekday{}}},
		{"malformed clock", &domain.PolicyOverride{DefaultWindow: &domain.TimeWindow{Start: "nine", End: "17:00"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := schedule.Resolve(basePolicy(), tc.override)
			require.ErrorIs(t, err, schedule.ErrInvalidPolicy)
		})
	}
}

func TestResolveAllWeekdaysDisabledViaOverrides(t *testing.T) {
	org := basePolicy()
	org.AllowedWeekdays = []time.Weekday{time.Monday}
	org.PerWeekday = map[time.Weekday]domain.WeekdayWindow{
		time.Monday: {Enabled: false},
	}
	_, err := schedule.Resolve(org, nil)
	require.ErrorIs(t, err, schedule.ErrInvalidPolicy)
}

func TestValidateDisabledWeekdayWindowNotParsed(t *testing.T) {
	// A disabled per-weekday entry may carry an empty window; it must not
	// fail validation because it is never used.
	p := basePolicy()
	p.PerWeekday = map[time.Weekday]domain.WeekdayWindow{
		time.Wednesday: {Enabled: false},
	}
	require.NoError(t, schedule.Validate(p))
}
