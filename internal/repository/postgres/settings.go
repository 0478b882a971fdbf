package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brightgive/donor-engine/internal/domain"
)

// OrgPolicy returns the organization's saved default schedule policy, or
// the platform default when the organization has never saved one.
func (r *CampaignRepo) OrgPolicy(ctx context.Context, orgID string) (domain.SchedulePolicy, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT schedule_policy FROM donor_org_settings WHERE organization_id = $1
	`, orgID).Scan(&raw)
	if err == sql.ErrNoRows {
		return r.defaultPolicy.Clone(), nil
	}
	if err != nil {
		return domain.SchedulePolicy{}, fmt.Errorf("get org policy: %w", err)
	}

	var p domain.SchedulePolicy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.SchedulePolicy{}, fmt.Errorf("decode org policy: %w", err)
	}
	return p, nil
}

// SaveOrgPolicy upserts the organization's default schedule policy.
func (r *CampaignRepo) SaveOrgPolicy(ctx context.Context, orgID string, p domain.SchedulePolicy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode org policy: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO donor_org_settings (organization_id, schedule_policy, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (organization_id)
		DO UPDATE SET schedule_policy = EXCLUDED.schedule_policy, updated_at = NOW()
	`, orgID, string(raw))
	if err != nil {
		return fmt.Errorf("save org policy: %w", err)
	}
	return nil
}
