package campaign

import (
	"context"
	"time"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/schedule"
)

// Repository defines the data access contract for campaigns and their
// member emails. Implementations must be safe for concurrent use.
//
// The three bulk mutators (ScheduleEmails, PauseScheduled, CancelPending)
// must each apply as a single transaction: the campaign status CAS and
// every member-email update commit together or not at all, and a CAS that
// matches no row on an existing campaign yields ErrConcurrentModification.
type Repository interface {
	// GetCampaign returns a single campaign. Returns ErrNotFound if it
	// doesn't exist in the organization.
	GetCampaign(ctx context.Context, orgID, id string) (*domain.Campaign, error)

	// SetCampaignStatus transitions the campaign status with compare-and-set
	// semantics: the update applies only while the current status is one of
	// from. Returns ErrNotFound or ErrConcurrentModification accordingly.
	SetCampaignStatus(ctx context.Context, orgID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error

	// PendingEmailIDs returns the IDs of approved, unscheduled emails in
	// campaign creation order. Creation order encodes send priority.
	PendingEmailIDs(ctx context.Context, campaignID string) ([]string, error)

	// PausedEmailIDs returns the IDs of paused emails ordered by their
	// prior scheduled_time ascending, preserving the original relative
	// send order across a pause/resume cycle.
	PausedEmailIDs(ctx context.Context, campaignID string) ([]string, error)

	// ApprovalCounts returns how many member emails are approved and how
	// many still await approval.
	ApprovalCounts(ctx context.Context, campaignID string) (approved, pending int, err error)

	// CountSentSince counts member emails sent at or after the given
	// instant (the effective policy's local midnight, computed by the
	// caller).
	CountSentSince(ctx context.Context, campaignID string, since time.Time) (int, error)

	// ScheduleEmails persists the allocated slots and flips the campaign
	// status in one transaction. Each slot's email must currently be in
	// expect status (unscheduled on first schedule, paused on resume);
	// otherwise the whole operation fails with ErrConcurrentModification.
	// Returns the number of emails scheduled.
	ScheduleEmails(ctx context.Context, orgID, campaignID string, slots []schedule.Slot, expect domain.SendStatus, from []domain.CampaignStatus, to domain.CampaignStatus) (int, error)

	// PauseScheduled flips every scheduled email to paused (keeping
	// scheduled_time for audit) and the campaign to paused, in one
	// transaction. Returns the number of send jobs taken off the clock.
	PauseScheduled(ctx context.Context, orgID, campaignID string) (int, error)

	// CancelPending terminally cancels every scheduled or paused email and
	// the campaign itself, in one transaction. Returns the number of
	// emails cancelled.
	CancelPending(ctx context.Context, orgID, campaignID string) (int, error)

	// ScheduleRollup returns per-send-status counts plus the next
	// scheduled and last sent timestamps for the campaign.
	ScheduleRollup(ctx context.Context, campaignID string) (*Rollup, error)

	// OrgPolicy returns the organization's default schedule policy.
	OrgPolicy(ctx context.Context, orgID string) (domain.SchedulePolicy, error)

	// SaveOrgPolicy persists the organization's default schedule policy.
	// The service validates before calling this.
	SaveOrgPolicy(ctx context.Context, orgID string, p domain.SchedulePolicy) error
}

// Rollup is the raw aggregate the repository computes for a campaign's
// schedule status.
type Rollup struct {
	Counts            map[domain.SendStatus]int
	NextScheduledTime *time.Time
	LastSentTime      *time.Time
}

// Total returns the total number of member emails.
func (r *Rollup) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}
