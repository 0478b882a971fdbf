package domain

import (
	"time"
)

// ApprovalStatus enumerates the review states of a generated donor email.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending_approval"
	ApprovalApproved ApprovalStatus = "approved"
)

// SendStatus enumerates the dispatch lifecycle of a single donor email.
type SendStatus string

const (
	SendUnscheduled SendStatus = "unscheduled"
	SendScheduled   SendStatus = "scheduled"
	SendSending     SendStatus = "sending"
	SendSent        SendStatus = "sent"
	SendPaused      SendStatus = "paused"
	SendFailed      SendStatus = "failed"
	SendCancelled   SendStatus = "cancelled"
)

// IsTerminal returns true if the send status is final. Failed emails are
// terminal too; retry is an explicit operator action, never automatic.
func (s SendStatus) IsTerminal() bool {
	return s == SendSent || s == SendFailed || s == SendCancelled
}

// GeneratedEmail is one AI-drafted, staff-approved email to a single donor.
// It has no existence independent of its owning campaign.
//
// ScheduledTime is only meaningful while SendStatus is scheduled or paused.
// A paused email keeps its last ScheduledTime for audit and estimation; the
// dispatcher must never fire a paused email even when that time has arrived.
type GeneratedEmail struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	DonorID    string `json:"donor_id" db:"donor_id"`

	ToEmail     string `json:"to_email" db:"to_email"`
	Subject     string `json:"subject" db:"subject"`
	HTMLContent string `json:"html_content" db:"html_content"`
	TextContent string `json:"text_content" db:"text_content"`

	ApprovalStatus ApprovalStatus `json:"approval_status" db:"approval_status"`
	SendStatus     SendStatus     `json:"send_status" db:"send_status"`

	ScheduledTime *time.Time `json:"scheduled_time" db:"scheduled_time"`
	SentAt        *time.Time `json:"sent_at" db:"sent_at"`
	LastError     string     `json:"last_error" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
