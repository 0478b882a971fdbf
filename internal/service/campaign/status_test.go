package campaign_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/service/campaign"
)

func TestStatusRollup(t *testing.T) {
	repo := newMemRepo()
	repo.addCampaign("c1", domain.CampaignRunning)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	sentAt := now.Add(-30 * time.Minute)
	id := repo.addEmail("c1", domain.ApprovalApproved, domain.SendSent)
	repo.emails[id].SentAt = &sentAt

	next := now.Add(15 * time.Minute)
	for i := 0; i < 2; i++ {
		id := repo.addEmail("c1", domain.ApprovalApproved, domain.SendScheduled)
		ts := next.Add(time.Duration(i) * time.Hour)
		repo.emails[id].ScheduledTime = &ts
	}
	repo.addEmail("c1", domain.ApprovalApproved, domain.SendFailed)

	svc := newTestService(repo, now)
	st, err := svc.Status(context.Background(), testOrg, "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", st.CampaignID)
	assert.Equal(t, domain.CampaignRunning, st.CampaignStatus)
	assert.Equal(t, 4, st.TotalEmails)
	assert.Equal(t, 1, st.Counts[domain.SendSent])
	assert.Equal(t, 2, st.Counts[domain.SendScheduled])
	assert.Equal(t, 1, st.Counts[domain.SendFailed])
	require.NotNil(t, st.NextScheduledTime)
	assert.True(t, st.NextScheduledTime.Equal(next))
	require.NotNil(t, st.LastSentTime)
	assert.True(t, st.LastSentTime.Equal(sentAt))
}

func TestStatusEstimatesCompletion(t *testing.T) {
	repo := newMemRepo()
	repo.orgPolicy.DailyLimit = 1
	repo.addCampaign("c1", domain.CampaignRunning)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	// Two scheduled emails under a daily cap of one: the projection must
	// land the last send on the following day.
	for i := 0; i < 2; i++ {
		id := repo.addEmail("c1", domain.ApprovalApproved, domain.SendScheduled)
		ts := now.Add(time.Duration(i+1) * time.Minute)
		repo.emails[id].ScheduledTime = &ts
	}

	svc := newTestService(repo, now)
	st, err := svc.Status(context.Background(), testOrg, "c1")
	require.NoError(t, err)

	require.NotNil(t, st.EstimatedCompletionTime)
	assert.Equal(t, 2, st.EstimatedCompletionTime.In(time.UTC).Day())
}

func TestStatusSkipsEstimateWhenTerminal(t *testing.T) {
	repo := newMemRepo()
	repo.addCampaign("c1", domain.CampaignCancelled)
	id := repo.addEmail("c1", domain.ApprovalApproved, domain.SendScheduled)
	ts := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
	repo.emails[id].ScheduledTime = &ts

	svc := newTestService(repo, ts.Add(-time.Hour))
	st, err := svc.Status(context.Background(), testOrg, "c1")
	require.NoError(t, err)
	assert.Nil(t, st.EstimatedCompletionTime)
}

func TestStatusNotFound(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, time.Now())
	_, err := svc.Status(context.Background(), testOrg, "missing")
	require.ErrorIs(t, err, campaign.ErrNotFound)
}
