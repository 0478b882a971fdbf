package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/pkg/logger"
)

// ScheduleStatus is the read-only rollup the UI polls while a campaign
// sends. Safe to request repeatedly; it derives everything from current
// email states at query time and mutates nothing.
type ScheduleStatus struct {
	CampaignID     string                    `json:"campaign_id"`
	CampaignStatus domain.CampaignStatus     `json:"campaign_status"`
	Counts         map[domain.SendStatus]int `json:"counts"`
	TotalEmails    int                       `json:"total_emails"`

	// NextScheduledTime is the minimum scheduled_time among scheduled
	// emails, nil when nothing is on the clock.
	NextScheduledTime *time.Time `json:"next_scheduled_time"`
	LastSentTime      *time.Time `json:"last_sent_time"`

	// EstimatedCompletionTime projects when the last remaining email would
	// go out under the current effective policy. A best-effort projection
	// recomputed per request, not a commitment.
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time"`
}

// Status computes the schedule rollup for a campaign.
//
// The completion estimate re-runs the slot allocator hypothetically over
// the remaining scheduled/unscheduled count, without persisting anything,
// and takes the last assigned timestamp. If the policy has become invalid
// since scheduling, the estimate is omitted rather than failing the whole
// status read.
func (s *Service) Status(ctx context.Context, orgID, campaignID string) (*ScheduleStatus, error) {
	c, err := s.repo.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	rollup, err := s.repo.ScheduleRollup(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	st := &ScheduleStatus{
		CampaignID:        campaignID,
		CampaignStatus:    c.Status,
		Counts:            rollup.Counts,
		TotalEmails:       rollup.Total(),
		NextScheduledTime: rollup.NextScheduledTime,
		LastSentTime:      rollup.LastSentTime,
	}

	remaining := rollup.Counts[domain.SendScheduled] + rollup.Counts[domain.SendUnscheduled]
	if remaining > 0 && (c.Status == domain.CampaignRunning || c.Status == domain.CampaignReadyToSend) {
		if eta, err := s.estimateCompletion(ctx, orgID, c, remaining); err != nil {
			logger.Warn("completion estimate unavailable", "campaign_id", campaignID, "error", err.Error())
		} else {
			st.EstimatedCompletionTime = eta
		}
	}
	return st, nil
}

func (s *Service) estimateCompletion(ctx context.Context, orgID string, c *domain.Campaign, remaining int) (*time.Time, error) {
	policy, err := s.effectivePolicy(ctx, orgID, c.ScheduleOverride)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sentToday, err := s.sentTodayCount(ctx, c.ID, policy.Timezone, now)
	if err != nil {
		return nil, err
	}

	// Slot identity is irrelevant for the projection; only the count is.
	ids := make([]string, remaining)
	for i := range ids {
		ids[i] = fmt.Sprintf("projection-%d", i)
	}
	slots, err := s.alloc.Allocate(policy, ids, now, sentToday)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	eta := slots[len(slots)-1].ScheduledTime
	return &eta, nil
}
