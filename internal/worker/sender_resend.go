package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/brightgive/donor-engine/internal/pkg/logger"
)

// ResendSender delivers donor emails through the Resend API. Smaller
// organizations on the platform tend to use Resend; larger ones use SES.
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(apiKey string) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend sender requires an api key")
	}
	return &ResendSender{client: resend.NewClient(apiKey)}, nil
}

func (s *ResendSender) Send(ctx context.Context, msg *OutboundEmail) (*DeliveryResult, error) {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail),
		To:      []string{msg.ToEmail},
		Subject: msg.Subject,
		Html:    msg.HTMLContent,
	}
	if msg.TextContent != "" {
		params.Text = msg.TextContent
	}
	if msg.ReplyTo != "" {
		params.ReplyTo = msg.ReplyTo
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		logger.Warn("resend send failed", "to_email", msg.ToEmail, "error", err.Error())
		return &DeliveryResult{Success: false, Error: err, Provider: "resend"}, nil
	}

	logger.Debug("resend sent", "to_email", msg.ToEmail, "message_id", sent.Id)

	return &DeliveryResult{
		Success:   true,
		MessageID: sent.Id,
		Provider:  "resend",
		SentAt:    time.Now(),
	}, nil
}
