package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a donor email campaign.
type CampaignStatus string

const (
	CampaignDraft       CampaignStatus = "draft"
	CampaignGenerating  CampaignStatus = "generating"
	CampaignReadyToSend CampaignStatus = "ready_to_send"
	CampaignRunning     CampaignStatus = "running"
	CampaignPaused      CampaignStatus = "paused"
	CampaignCompleted   CampaignStatus = "completed"
	CampaignCancelled   CampaignStatus = "cancelled"
	CampaignFailed      CampaignStatus = "failed"
)

// Campaign is a named batch of donor emails generated together and sent
// under one schedule policy. It exclusively owns its GeneratedEmail set.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	Name           string         `json:"name" db:"name"`
	Status         CampaignStatus `json:"status" db:"status"`

	// ScheduleOverride holds campaign-level partial overrides of the
	// organization's default schedule policy. Nil means use org defaults
	// for every field.
	ScheduleOverride *PolicyOverride `json:"schedule_override" db:"schedule_override"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled || c.Status == CampaignFailed
}
