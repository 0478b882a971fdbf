package worker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brightgive/donor-engine/internal/pkg/logger"
)

// Dispatcher drains due scheduled emails and hands them to a MailSender.
//
// Claiming uses FOR UPDATE SKIP LOCKED so several dispatcher instances can
// run against the same database without double-sending. A claim flips the
// row to sending; only rows whose campaign is still running are eligible,
// so a pause or cancel that lands between allocation and dispatch wins.
type Dispatcher struct {
	db      *sql.DB
	sender  MailSender
	limiter *OrgRateLimiter

	workerID     string
	numWorkers   int
	batchSize    int
	pollInterval time.Duration

	fromName  string
	fromEmail string
	replyTo   string

	totalSent     int64
	totalFailed   int64
	totalDeferred int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewDispatcher creates a dispatcher. The sender must not be nil; pass
// NewLogSender for a dry run.
func NewDispatcher(db *sql.DB, sender MailSender, numWorkers int) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &Dispatcher{
		db:           db,
		sender:       sender,
		workerID:     fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8]),
		numWorkers:   numWorkers,
		batchSize:    25,
		pollInterval: 5 * time.Second,
	}
}

// SetRateLimiter enables the per-organization delivery backstop.
func (d *Dispatcher) SetRateLimiter(l *OrgRateLimiter) { d.limiter = l }

// SetSenderIdentity sets the from header fields used for every outbound
// email when the organization has not configured its own.
func (d *Dispatcher) SetSenderIdentity(fromName, fromEmail, replyTo string) {
	d.fromName = fromName
	d.fromEmail = fromEmail
	d.replyTo = replyTo
}

// SetPollInterval tunes how often an idle worker re-checks for due emails.
func (d *Dispatcher) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.pollInterval = interval
	}
}

// Start launches the worker loops and the housekeeping loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	logger.Info("dispatcher starting",
		"worker_id", d.workerID, "workers", d.numWorkers, "batch_size", d.batchSize)

	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}

	d.wg.Add(1)
	go d.housekeepingLoop()
}

// Stop drains the workers and waits for in-flight sends to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()

	logger.Info("dispatcher stopped",
		"total_sent", atomic.LoadInt64(&d.totalSent),
		"total_failed", atomic.LoadInt64(&d.totalFailed),
		"total_deferred", atomic.LoadInt64(&d.totalDeferred))
}

// Stats returns cumulative dispatch counters.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"total_sent":     atomic.LoadInt64(&d.totalSent),
		"total_failed":   atomic.LoadInt64(&d.totalFailed),
		"total_deferred": atomic.LoadInt64(&d.totalDeferred),
	}
}

type claimedEmail struct {
	ID             string
	CampaignID     string
	OrganizationID string
	DonorID        string
	ToEmail        string
	Subject        string
	HTMLContent    string
	TextContent    string
	FromName       string
	FromEmail      string
	ReplyTo        string
}

func (d *Dispatcher) workerLoop(workerNum int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		items, err := d.claimDue()
		if err != nil {
			logger.Warn("claim batch failed", "worker", workerNum, "error", err.Error())
			d.sleep(time.Second)
			continue
		}
		if len(items) == 0 {
			d.sleep(d.pollInterval)
			continue
		}

		for _, item := range items {
			if err := d.dispatch(item); err != nil {
				logger.Warn("dispatch failed",
					"worker", workerNum, "email_id", item.ID, "error", err.Error())
			}
		}
	}
}

// sleep waits without delaying shutdown.
func (d *Dispatcher) sleep(dur time.Duration) {
	select {
	case <-d.ctx.Done():
	case <-time.After(dur):
	}
}

// claimDue atomically claims a batch of due emails. Per-organization sender
// identity comes from donor_org_settings, falling back to the dispatcher's
// platform defaults.
func (d *Dispatcher) claimDue() ([]claimedEmail, error) {
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE donor_emails
			SET send_status = 'sending',
			    worker_id = $1,
			    locked_at = NOW(),
			    updated_at = NOW()
			WHERE id IN (
				SELECT e.id FROM donor_emails e
				JOIN donor_campaigns c ON c.id = e.campaign_id
				WHERE e.send_status = 'scheduled'
				  AND e.scheduled_time <= NOW()
				  AND c.status = 'running'
				ORDER BY e.scheduled_time ASC
				LIMIT $2
				FOR UPDATE OF e SKIP LOCKED
			)
			RETURNING id, campaign_id, donor_id, to_email, subject, html_content, text_content
		)
		SELECT
			cl.id,
			cl.campaign_id,
			c.organization_id,
			cl.donor_id,
			cl.to_email,
			COALESCE(cl.subject, ''),
			COALESCE(cl.html_content, ''),
			COALESCE(cl.text_content, ''),
			COALESCE(s.from_name, ''),
			COALESCE(s.from_email, ''),
			COALESCE(s.reply_to, '')
		FROM claimed cl
		JOIN donor_campaigns c ON c.id = cl.campaign_id
		LEFT JOIN donor_org_settings s ON s.organization_id = c.organization_id
	`, d.workerID, d.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []claimedEmail
	for rows.Next() {
		var item claimedEmail
		if err := rows.Scan(
			&item.ID,
			&item.CampaignID,
			&item.OrganizationID,
			&item.DonorID,
			&item.ToEmail,
			&item.Subject,
			&item.HTMLContent,
			&item.TextContent,
			&item.FromName,
			&item.FromEmail,
			&item.ReplyTo,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// dispatch sends one claimed email and records the outcome.
func (d *Dispatcher) dispatch(item claimedEmail) error {
	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	if d.limiter != nil {
		allowed, wait, err := d.limiter.Allow(ctx, item.OrganizationID, 1)
		if err != nil {
			logger.Warn("rate limit check error, proceeding", "error", err.Error())
		} else if !allowed {
			atomic.AddInt64(&d.totalDeferred, 1)
			return d.requeue(ctx, item.ID, wait)
		}
	}

	msg := &OutboundEmail{
		ID:          item.ID,
		CampaignID:  item.CampaignID,
		DonorID:     item.DonorID,
		ToEmail:     item.ToEmail,
		FromName:    coalesce(item.FromName, d.fromName),
		FromEmail:   coalesce(item.FromEmail, d.fromEmail),
		ReplyTo:     coalesce(item.ReplyTo, d.replyTo),
		Subject:     item.Subject,
		HTMLContent: item.HTMLContent,
		TextContent: item.TextContent,
	}

	result, err := d.sender.Send(ctx, msg)
	if err != nil || !result.Success {
		atomic.AddInt64(&d.totalFailed, 1)
		errMsg := "unknown error"
		if err != nil {
			errMsg = err.Error()
		} else if result.Error != nil {
			errMsg = result.Error.Error()
		}
		return d.markFailed(ctx, item.ID, errMsg)
	}

	atomic.AddInt64(&d.totalSent, 1)
	return d.markSent(ctx, item.ID, result.MessageID)
}

func (d *Dispatcher) markSent(ctx context.Context, emailID, messageID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE donor_emails
		SET send_status = 'sent',
		    sent_at = NOW(),
		    provider_message_id = $2,
		    last_error = '',
		    worker_id = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND send_status = 'sending'
	`, emailID, messageID)
	return err
}

func (d *Dispatcher) markFailed(ctx context.Context, emailID, reason string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE donor_emails
		SET send_status = 'failed',
		    last_error = $2,
		    worker_id = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND send_status = 'sending'
	`, emailID, reason)
	return err
}

// requeue puts a rate-limited email back on the clock after the wait. Quota
// exhaustion is backpressure, not a delivery failure.
func (d *Dispatcher) requeue(ctx context.Context, emailID string, wait time.Duration) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE donor_emails
		SET send_status = 'scheduled',
		    scheduled_time = NOW() + $2 * INTERVAL '1 second',
		    worker_id = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND send_status = 'sending'
	`, emailID, int(wait.Seconds())+1)
	return err
}

// housekeepingLoop periodically reclaims stale claims and completes
// finished campaigns.
func (d *Dispatcher) housekeepingLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.reclaimStale(); err != nil {
				logger.Warn("stale claim recovery failed", "error", err.Error())
			}
			if err := d.completeFinished(); err != nil {
				logger.Warn("campaign completion pass failed", "error", err.Error())
			}
		}
	}
}

// reclaimStale requeues emails stuck in sending after a dispatcher crash.
// Five minutes comfortably exceeds the per-send timeout.
func (d *Dispatcher) reclaimStale() error {
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE donor_emails
		SET send_status = 'scheduled',
		    worker_id = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE send_status = 'sending'
		  AND locked_at < NOW() - INTERVAL '5 minutes'
	`)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Warn("requeued stale claims", "count", n)
	}
	return nil
}

// completeFinished closes out running campaigns once every member email is
// terminal: completed when at least one was sent, failed otherwise.
func (d *Dispatcher) completeFinished() error {
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE donor_campaigns c
		SET status = CASE
		        WHEN EXISTS (
		            SELECT 1 FROM donor_emails e
		            WHERE e.campaign_id = c.id AND e.send_status = 'sent'
		        ) THEN 'completed'
		        ELSE 'failed'
		    END,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE c.status = 'running'
		  AND EXISTS (SELECT 1 FROM donor_emails e WHERE e.campaign_id = c.id)
		  AND NOT EXISTS (
		      SELECT 1 FROM donor_emails e
		      WHERE e.campaign_id = c.id
		        AND e.send_status IN ('unscheduled', 'scheduled', 'sending', 'paused')
		  )
	`)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("campaigns completed", "count", n)
	}
	return nil
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
