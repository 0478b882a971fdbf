package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/pkg/distlock"
	"github.com/brightgive/donor-engine/internal/pkg/logger"
	"github.com/brightgive/donor-engine/internal/schedule"
)

// Service implements the campaign send lifecycle. All public methods are
// safe for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo    Repository
	alloc   *schedule.Allocator
	now     func() time.Time
	newLock func(key string) distlock.DistLock
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		alloc: schedule.NewAllocator(nil),
		now:   time.Now,
	}
}

// SetAllocator replaces the slot allocator. Tests inject one with a fixed
// random source to get exact timestamps.
func (s *Service) SetAllocator(a *schedule.Allocator) { s.alloc = a }

// SetClock replaces the "now" source. Tests pin it.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetLockFactory enables cross-instance serialization of control operations
// per campaign. If unset, operations rely on the repository's transactional
// compare-and-set alone.
func (s *Service) SetLockFactory(fn func(key string) distlock.DistLock) { s.newLock = fn }

// ScheduleResult reports what a scheduleSend or resume call committed.
type ScheduleResult struct {
	Scheduled         int `json:"scheduled"`
	ScheduledForToday int `json:"scheduled_for_today"`
}

// PauseResult reports how many send jobs a pause took off the clock.
type PauseResult struct {
	CancelledJobs int `json:"cancelled_jobs"`
}

// CancelResult reports how many emails a cancel terminally cancelled.
type CancelResult struct {
	CancelledEmails int `json:"cancelled_emails"`
}

// Launch transitions a draft campaign into generating. The actual email
// generation is driven by an external collaborator; this only opens the
// gate.
func (s *Service) Launch(ctx context.Context, orgID, campaignID string) error {
	return s.repo.SetCampaignStatus(ctx, orgID, campaignID,
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignGenerating)
}

// MarkReady transitions a generating campaign to ready_to_send once every
// member email has been approved.
func (s *Service) MarkReady(ctx context.Context, orgID, campaignID string) error {
	approved, pending, err := s.repo.ApprovalCounts(ctx, campaignID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d pending", ErrNotAllApproved, pending)
	}
	if approved == 0 {
		return ErrNoPendingEmails
	}
	return s.repo.SetCampaignStatus(ctx, orgID, campaignID,
		[]domain.CampaignStatus{domain.CampaignGenerating}, domain.CampaignReadyToSend)
}

// ScheduleSend resolves the effective policy, assigns a send timestamp to
// every approved unscheduled email, and moves the campaign to running.
// A non-nil override wins over the override stored on the campaign record.
func (s *Service) ScheduleSend(ctx context.Context, orgID, campaignID string, override *domain.PolicyOverride) (ScheduleResult, error) {
	var res ScheduleResult
	err := s.withCampaignLock(ctx, campaignID, func() error {
		var err error
		res, err = retryOnConflict(func() (ScheduleResult, error) {
			return s.scheduleSendOnce(ctx, orgID, campaignID, override)
		})
		return err
	})
	return res, err
}

func (s *Service) scheduleSendOnce(ctx context.Context, orgID, campaignID string, override *domain.PolicyOverride) (ScheduleResult, error) {
	c, err := s.repo.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return ScheduleResult{}, err
	}
	if c.Status != domain.CampaignReadyToSend {
		return ScheduleResult{}, fmt.Errorf("%w: cannot schedule a %s campaign", ErrInvalidTransition, c.Status)
	}

	if override == nil {
		override = c.ScheduleOverride
	}
	policy, err := s.effectivePolicy(ctx, orgID, override)
	if err != nil {
		return ScheduleResult{}, err
	}

	ids, err := s.repo.PendingEmailIDs(ctx, campaignID)
	if err != nil {
		return ScheduleResult{}, err
	}
	if len(ids) == 0 {
		return ScheduleResult{}, ErrNoPendingEmails
	}

	now := s.now()
	slots, err := s.alloc.Allocate(policy, ids, now, 0)
	if err != nil {
		return ScheduleResult{}, err
	}

	n, err := s.repo.ScheduleEmails(ctx, orgID, campaignID, slots, domain.SendUnscheduled,
		[]domain.CampaignStatus{domain.CampaignReadyToSend}, domain.CampaignRunning)
	if err != nil {
		return ScheduleResult{}, err
	}

	res := ScheduleResult{Scheduled: n, ScheduledForToday: countOnLocalDate(slots, policy.Timezone, now)}
	logger.Info("campaign scheduled",
		"campaign_id", campaignID, "scheduled", res.Scheduled, "today", res.ScheduledForToday)
	return res, nil
}

// Pause takes every scheduled email off the clock. Pausing an
// already-paused campaign is a no-op returning zero cancelled jobs, so a
// double-click on the UI never surfaces an error.
func (s *Service) Pause(ctx context.Context, orgID, campaignID string) (PauseResult, error) {
	var res PauseResult
	err := s.withCampaignLock(ctx, campaignID, func() error {
		var err error
		res, err = retryOnConflict(func() (PauseResult, error) {
			return s.pauseOnce(ctx, orgID, campaignID)
		})
		return err
	})
	return res, err
}

func (s *Service) pauseOnce(ctx context.Context, orgID, campaignID string) (PauseResult, error) {
	c, err := s.repo.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return PauseResult{}, err
	}
	switch c.Status {
	case domain.CampaignPaused:
		return PauseResult{}, nil
	case domain.CampaignRunning:
	default:
		return PauseResult{}, fmt.Errorf("%w: cannot pause a %s campaign", ErrInvalidTransition, c.Status)
	}

	n, err := s.repo.PauseScheduled(ctx, orgID, campaignID)
	if err != nil {
		return PauseResult{}, err
	}
	logger.Info("campaign paused", "campaign_id", campaignID, "cancelled_jobs", n)
	return PauseResult{CancelledJobs: n}, nil
}

// Resume reschedules every paused email from now, preserving the original
// relative order (prior scheduled_time ascending) and seeding the first
// day's counter with how many campaign emails were already sent today in
// the effective policy's timezone, so the daily cap holds across the
// pause/resume boundary. Gaps are drawn fresh; only ordering survives.
func (s *Service) Resume(ctx context.Context, orgID, campaignID string) (ScheduleResult, error) {
	var res ScheduleResult
	err := s.withCampaignLock(ctx, campaignID, func() error {
		var err error
		res, err = retryOnConflict(func() (ScheduleResult, error) {
			return s.resumeOnce(ctx, orgID, campaignID)
		})
		return err
	})
	return res, err
}

func (s *Service) resumeOnce(ctx context.Context, orgID, campaignID string) (ScheduleResult, error) {
	c, err := s.repo.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return ScheduleResult{}, err
	}
	switch c.Status {
	case domain.CampaignRunning:
		return ScheduleResult{}, nil
	case domain.CampaignPaused:
	default:
		return ScheduleResult{}, fmt.Errorf("%w: cannot resume a %s campaign", ErrInvalidTransition, c.Status)
	}

	policy, err := s.effectivePolicy(ctx, orgID, c.ScheduleOverride)
	if err != nil {
		return ScheduleResult{}, err
	}

	ids, err := s.repo.PausedEmailIDs(ctx, campaignID)
	if err != nil {
		return ScheduleResult{}, err
	}
	if len(ids) == 0 {
		// Nothing left to reschedule; just reopen the campaign.
		err := s.repo.SetCampaignStatus(ctx, orgID, campaignID,
			[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignRunning)
		return ScheduleResult{}, err
	}

	now := s.now()
	sentToday, err := s.sentTodayCount(ctx, campaignID, policy.Timezone, now)
	if err != nil {
		return ScheduleResult{}, err
	}

	slots, err := s.alloc.Allocate(policy, ids, now, sentToday)
	if err != nil {
		return ScheduleResult{}, err
	}

	n, err := s.repo.ScheduleEmails(ctx, orgID, campaignID, slots, domain.SendPaused,
		[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignRunning)
	if err != nil {
		return ScheduleResult{}, err
	}

	res := ScheduleResult{Scheduled: n, ScheduledForToday: countOnLocalDate(slots, policy.Timezone, now)}
	logger.Info("campaign resumed",
		"campaign_id", campaignID, "rescheduled", res.Scheduled, "today", res.ScheduledForToday,
		"already_sent_today", sentToday)
	return res, nil
}

// Cancel terminally cancels every scheduled or paused email and the
// campaign itself. Irreversible; cancelling an already-cancelled campaign
// is a no-op.
func (s *Service) Cancel(ctx context.Context, orgID, campaignID string) (CancelResult, error) {
	var res CancelResult
	err := s.withCampaignLock(ctx, campaignID, func() error {
		var err error
		res, err = retryOnConflict(func() (CancelResult, error) {
			return s.cancelOnce(ctx, orgID, campaignID)
		})
		return err
	})
	return res, err
}

func (s *Service) cancelOnce(ctx context.Context, orgID, campaignID string) (CancelResult, error) {
	c, err := s.repo.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return CancelResult{}, err
	}
	switch c.Status {
	case domain.CampaignCancelled:
		return CancelResult{}, nil
	case domain.CampaignRunning, domain.CampaignPaused:
	default:
		return CancelResult{}, fmt.Errorf("%w: cannot cancel a %s campaign", ErrInvalidTransition, c.Status)
	}

	n, err := s.repo.CancelPending(ctx, orgID, campaignID)
	if err != nil {
		return CancelResult{}, err
	}
	logger.Info("campaign cancelled", "campaign_id", campaignID, "cancelled_emails", n)
	return CancelResult{CancelledEmails: n}, nil
}

// OrgPolicy returns the organization's default schedule policy.
func (s *Service) OrgPolicy(ctx context.Context, orgID string) (domain.SchedulePolicy, error) {
	return s.repo.OrgPolicy(ctx, orgID)
}

// SaveOrgPolicy validates and persists the organization's default schedule
// policy. Validation happens here, at save time, so a contradictory
// configuration surfaces while the user is still on the settings screen.
func (s *Service) SaveOrgPolicy(ctx context.Context, orgID string, p domain.SchedulePolicy) error {
	if err := schedule.Validate(p); err != nil {
		return err
	}
	return s.repo.SaveOrgPolicy(ctx, orgID, p)
}

func (s *Service) effectivePolicy(ctx context.Context, orgID string, override *domain.PolicyOverride) (domain.SchedulePolicy, error) {
	orgDefault, err := s.repo.OrgPolicy(ctx, orgID)
	if err != nil {
		return domain.SchedulePolicy{}, err
	}
	return schedule.Resolve(orgDefault, override)
}

// sentTodayCount counts campaign emails whose sent_at falls on today's
// local date in the policy timezone.
func (s *Service) sentTodayCount(ctx context.Context, campaignID, timezone string, now time.Time) (int, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown timezone %q", schedule.ErrInvalidPolicy, timezone)
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return s.repo.CountSentSince(ctx, campaignID, midnight)
}

func countOnLocalDate(slots []schedule.Slot, timezone string, ref time.Time) int {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return 0
	}
	ry, rm, rd := ref.In(loc).Date()
	n := 0
	for _, sl := range slots {
		y, m, d := sl.ScheduledTime.In(loc).Date()
		if y == ry && m == rm && d == rd {
			n++
		}
	}
	return n
}

// retryOnConflict runs fn, retrying exactly once if it lost a race with a
// concurrent control operation.
func retryOnConflict[T any](fn func() (T, error)) (T, error) {
	res, err := fn()
	if errors.Is(err, ErrConcurrentModification) {
		logger.Warn("control operation raced, retrying once", "error", err.Error())
		res, err = fn()
	}
	return res, err
}

// withCampaignLock serializes control operations per campaign across
// instances when a lock factory is configured. Failing to win the lock is
// reported as a concurrent modification so the caller sees "please retry".
func (s *Service) withCampaignLock(ctx context.Context, campaignID string, fn func() error) error {
	if s.newLock == nil {
		return fn()
	}
	lock := s.newLock("campaign-control:" + campaignID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire campaign lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: another control operation is in progress", ErrConcurrentModification)
	}
	defer func() {
		if rerr := lock.Release(ctx); rerr != nil {
			logger.Warn("release campaign lock failed", "campaign_id", campaignID, "error", rerr.Error())
		}
	}()
	return fn()
}
