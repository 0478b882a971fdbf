package worker

import (
	"context"
	"time"

	"github.com/brightgive/donor-engine/internal/pkg/logger"
)

// MailSender delivers a single donor email through a mail provider.
type MailSender interface {
	Send(ctx context.Context, msg *OutboundEmail) (*DeliveryResult, error)
}

// OutboundEmail is the provider-agnostic message the dispatcher hands to a
// MailSender.
type OutboundEmail struct {
	ID          string
	CampaignID  string
	DonorID     string
	ToEmail     string
	FromName    string
	FromEmail   string
	ReplyTo     string
	Subject     string
	HTMLContent string
	TextContent string
}

// DeliveryResult reports the outcome of a send attempt. A failed attempt is
// reported with Success false rather than a non-nil error when the provider
// rejected the message; errors are reserved for transport problems.
type DeliveryResult struct {
	Success   bool
	MessageID string
	Error     error
	Provider  string
	SentAt    time.Time
}

// LogSender is a dry-run sender that logs instead of delivering. Used in
// development and when no provider credentials are configured, so a
// misconfigured deploy never silently emails real donors.
type LogSender struct{}

func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) Send(_ context.Context, msg *OutboundEmail) (*DeliveryResult, error) {
	logger.Info("dry-run send",
		"email_id", msg.ID, "campaign_id", msg.CampaignID,
		"to_email", msg.ToEmail, "subject", msg.Subject)
	return &DeliveryResult{
		Success:   true,
		MessageID: "dry-run-" + msg.ID,
		Provider:  "log",
		SentAt:    time.Now(),
	}, nil
}
