package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/schedule"
	"github.com/brightgive/donor-engine/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
//
// defaultPolicy is returned for organizations that have never saved
// schedule settings, so a fresh organization can schedule with the
// platform baseline.
type CampaignRepo struct {
	db            *sql.DB
	defaultPolicy domain.SchedulePolicy
}

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB, defaultPolicy domain.SchedulePolicy) *CampaignRepo {
	return &CampaignRepo{db: db, defaultPolicy: defaultPolicy}
}

func (r *CampaignRepo) GetCampaign(ctx context.Context, orgID, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var override sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, status, schedule_override,
		       started_at, completed_at, created_at, updated_at
		FROM donor_campaigns
		WHERE id = $1 AND organization_id = $2
	`, id, orgID).Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Status, &override,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if override.Valid && override.String != "" && override.String != "null" {
		var ov domain.PolicyOverride
		if err := json.Unmarshal([]byte(override.String), &ov); err != nil {
			return nil, fmt.Errorf("decode schedule override: %w", err)
		}
		c.ScheduleOverride = &ov
	}
	return c, nil
}

func (r *CampaignRepo) SetCampaignStatus(ctx context.Context, orgID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE donor_campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND organization_id = $3 AND status = ANY($4)
	`, to, id, orgID, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return r.missingOrRaced(ctx, orgID, id)
	}
	return nil
}

func (r *CampaignRepo) PendingEmailIDs(ctx context.Context, campaignID string) ([]string, error) {
	return r.emailIDs(ctx, `
		SELECT id FROM donor_emails
		WHERE campaign_id = $1 AND approval_status = 'approved' AND send_status = 'unscheduled'
		ORDER BY created_at, id
	`, campaignID)
}

func (r *CampaignRepo) PausedEmailIDs(ctx context.Context, campaignID string) ([]string, error) {
	// scheduled_time ascending preserves the pre-pause relative send order.
	return r.emailIDs(ctx, `
		SELECT id FROM donor_emails
		WHERE campaign_id = $1 AND send_status = 'paused'
		ORDER BY scheduled_time, id
	`, campaignID)
}

func (r *CampaignRepo) emailIDs(ctx context.Context, query, campaignID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list email ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan email id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) ApprovalCounts(ctx context.Context, campaignID string) (approved, pending int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE approval_status = 'approved'),
		       COUNT(*) FILTER (WHERE approval_status = 'pending_approval')
		FROM donor_emails WHERE campaign_id = $1
	`, campaignID).Scan(&approved, &pending)
	if err != nil {
		return 0, 0, fmt.Errorf("approval counts: %w", err)
	}
	return approved, pending, nil
}

func (r *CampaignRepo) CountSentSince(ctx context.Context, campaignID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM donor_emails
		WHERE campaign_id = $1 AND send_status = 'sent' AND sent_at >= $2
	`, campaignID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sent since: %w", err)
	}
	return n, nil
}

// ScheduleEmails persists allocated slots and flips the campaign status in
// one transaction. The per-email WHERE send_status guard makes the whole
// operation a compare-and-set: any email a racing operation already moved
// causes a rollback and ErrConcurrentModification instead of a mixed state.
func (r *CampaignRepo) ScheduleEmails(ctx context.Context, orgID, campaignID string, slots []schedule.Slot, expect domain.SendStatus, from []domain.CampaignStatus, to domain.CampaignStatus) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE donor_campaigns
		SET status = $1, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE id = $2 AND organization_id = $3 AND status = ANY($4)
	`, to, campaignID, orgID, pq.Array(statusStrings(from)))
	if err != nil {
		return 0, fmt.Errorf("schedule: campaign cas: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, r.missingOrRaced(ctx, orgID, campaignID)
	}

	ids := make([]string, len(slots))
	times := make([]time.Time, len(slots))
	for i, s := range slots {
		ids[i] = s.EmailID
		times[i] = s.ScheduledTime.UTC()
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE donor_emails e
		SET send_status = 'scheduled', scheduled_time = v.scheduled_time, updated_at = NOW()
		FROM (SELECT unnest($1::uuid[]) AS id, unnest($2::timestamptz[]) AS scheduled_time) v
		WHERE e.id = v.id AND e.campaign_id = $3 AND e.send_status = $4
	`, pq.Array(ids), pq.Array(times), campaignID, expect)
	if err != nil {
		return 0, fmt.Errorf("schedule: apply slots: %w", err)
	}
	n, _ := res.RowsAffected()
	if int(n) != len(slots) {
		return 0, fmt.Errorf("%w: expected %d emails in %s state, matched %d",
			campaign.ErrConcurrentModification, len(slots), expect, n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit schedule tx: %w", err)
	}
	return int(n), nil
}

// PauseScheduled flips scheduled emails to paused and the campaign to
// paused in one transaction. scheduled_time is deliberately left in place
// for audit and resume ordering.
func (r *CampaignRepo) PauseScheduled(ctx context.Context, orgID, campaignID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin pause tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE donor_campaigns SET status = 'paused', updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND status = 'running'
	`, campaignID, orgID)
	if err != nil {
		return 0, fmt.Errorf("pause: campaign cas: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, r.missingOrRaced(ctx, orgID, campaignID)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE donor_emails SET send_status = 'paused', updated_at = NOW()
		WHERE campaign_id = $1 AND send_status = 'scheduled'
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("pause: flip emails: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit pause tx: %w", err)
	}
	return int(n), nil
}

func (r *CampaignRepo) CancelPending(ctx context.Context, orgID, campaignID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE donor_campaigns SET status = 'cancelled', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND status IN ('running', 'paused')
	`, campaignID, orgID)
	if err != nil {
		return 0, fmt.Errorf("cancel: campaign cas: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, r.missingOrRaced(ctx, orgID, campaignID)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE donor_emails SET send_status = 'cancelled', updated_at = NOW()
		WHERE campaign_id = $1 AND send_status IN ('scheduled', 'paused')
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("cancel: flip emails: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cancel tx: %w", err)
	}
	return int(n), nil
}

func (r *CampaignRepo) ScheduleRollup(ctx context.Context, campaignID string) (*campaign.Rollup, error) {
	rollup := &campaign.Rollup{Counts: make(map[domain.SendStatus]int)}

	rows, err := r.db.QueryContext(ctx, `
		SELECT send_status, COUNT(*) FROM donor_emails
		WHERE campaign_id = $1 GROUP BY send_status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("rollup counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.SendStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan rollup count: %w", err)
		}
		rollup.Counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var next, last sql.NullTime
	err = r.db.QueryRowContext(ctx, `
		SELECT MIN(scheduled_time) FILTER (WHERE send_status = 'scheduled'),
		       MAX(sent_at)        FILTER (WHERE send_status = 'sent')
		FROM donor_emails WHERE campaign_id = $1
	`, campaignID).Scan(&next, &last)
	if err != nil {
		return nil, fmt.Errorf("rollup timestamps: %w", err)
	}
	if next.Valid {
		rollup.NextScheduledTime = &next.Time
	}
	if last.Valid {
		rollup.LastSentTime = &last.Time
	}
	return rollup, nil
}

// missingOrRaced distinguishes a nonexistent campaign from one whose
// status changed under us.
func (r *CampaignRepo) missingOrRaced(ctx context.Context, orgID, id string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM donor_campaigns WHERE id = $1 AND organization_id = $2)
	`, id, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check campaign exists: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrConcurrentModification
}

func statusStrings(in []domain.CampaignStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
