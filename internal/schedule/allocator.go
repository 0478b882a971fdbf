package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brightgive/donor-engine/internal/domain"
)

// Slot is one assigned (emailID, scheduledTime) pair.
type Slot struct {
	EmailID       string
	ScheduledTime time.Time
}

// RandSource supplies the uniform random draw for send gaps. math/rand
// satisfies it; tests inject a fixed sequence (or use min=max) to get
// exact timestamps.
type RandSource interface {
	Intn(n int) int
}

// Allocator assigns send timestamps to pending emails under a resolved
// schedule policy. It is stateless between calls and safe to reuse; the
// caller owns persistence of the returned slots.
type Allocator struct {
	rand RandSource
}

// NewAllocator creates an allocator. A nil src falls back to a
// time-seeded math/rand source.
func NewAllocator(src RandSource) *Allocator {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Allocator{rand: src}
}

// Allocate assigns each email a send timestamp such that the daily cap and
// gap constraints hold, starting from startingFrom (or the next allowed
// window after it).
//
// Input order is preserved as send order; campaign creation order already
// encodes any desired priority, so the allocator never reorders by any
// other key. Timestamps are non-decreasing in input order, and strictly
// increasing when MinGapSeconds >= 1. The daily cap is checked before a
// slot is assigned, so it is a hard ceiling, never exceeded even by one.
//
// alreadySentTodayCount seeds the first day's counter when the allocation
// starts on the same local calendar day as startingFrom (the resume case);
// crossing into a new local day resets the counter to zero.
func (a *Allocator) Allocate(policy domain.SchedulePolicy, emailIDs []string, startingFrom time.Time, alreadySentTodayCount int) ([]Slot, error) {
	if err := Validate(policy); err != nil {
		return nil, err
	}
	if len(emailIDs) == 0 {
		return nil, nil
	}
	loc, err := time.LoadLocation(policy.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidPolicy, policy.Timezone)
	}

	cursor, err := NextAllowedInstant(policy, startingFrom)
	if err != nil {
		return nil, err
	}

	dayCount := 0
	if sameLocalDate(cursor, startingFrom, loc) {
		dayCount = alreadySentTodayCount
	}

	slots := make([]Slot, 0, len(emailIDs))
	for _, id := range emailIDs {
		if dayCount >= policy.DailyLimit {
			cursor, err = nextDayWindowStart(policy, cursor)
			if err != nil {
				return nil, err
			}
			dayCount = 0
		}

		slots = append(slots, Slot{EmailID: id, ScheduledTime: cursor})
		dayCount++

		next := cursor.Add(time.Duration(a.gapSeconds(policy)) * time.Second)
		moved, err := NextAllowedInstant(policy, next)
		if err != nil {
			return nil, err
		}
		// Snapping forward may cross into a new local day, which resets
		// the per-day counter.
		if !sameLocalDate(moved, cursor, loc) {
			dayCount = 0
		}
		cursor = moved
	}
	return slots, nil
}

// gapSeconds draws a uniform random gap in [MinGapSeconds, MaxGapSeconds].
func (a *Allocator) gapSeconds(p domain.SchedulePolicy) int {
	if p.MaxGapSeconds <= p.MinGapSeconds {
		return p.MinGapSeconds
	}
	return p.MinGapSeconds + a.rand.Intn(p.MaxGapSeconds-p.MinGapSeconds+1)
}
