package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/schedule"
	"github.com/brightgive/donor-engine/internal/service/campaign"
)

func setupRepo(t *testing.T) (*CampaignRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	def := domain.SchedulePolicy{
		DailyLimit:      150,
		MinGapSeconds:   60,
		MaxGapSeconds:   180,
		Timezone:        "America/New_York",
		AllowedWeekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DefaultWindow:   domain.TimeWindow{Start: "09:00", End: "17:00"},
	}
	return NewCampaignRepo(db, def), mock
}

func TestScheduleEmailsCommitsSlotsAndStatus(t *testing.T) {
	repo, mock := setupRepo(t)

	slots := []schedule.Slot{
		{EmailID: "e1", ScheduledTime: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)},
		{EmailID: "e2", ScheduledTime: time.Date(2024, 1, 1, 14, 2, 0, 0, time.UTC)},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE donor_campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE donor_emails`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.ScheduleEmails(context.Background(), "org-1", "c1", slots,
		domain.SendUnscheduled,
		[]domain.CampaignStatus{domain.CampaignReadyToSend}, domain.CampaignRunning)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEmailsRollsBackOnPartialMatch(t *testing.T) {
	repo, mock := setupRepo(t)

	slots := []schedule.Slot{
		{EmailID: "e1", ScheduledTime: time.Now()},
		{EmailID: "e2", ScheduledTime: time.Now()},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE donor_campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Only one of two emails was still in the expected state: a racing
	// operation moved the other. The whole transaction must roll back.
	mock.ExpectExec(`UPDATE donor_emails`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := repo.ScheduleEmails(context.Background(), "org-1", "c1", slots,
		domain.SendUnscheduled,
		[]domain.CampaignStatus{domain.CampaignReadyToSend}, domain.CampaignRunning)
	require.ErrorIs(t, err, campaign.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleEmailsCampaignRaced(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE donor_campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.ScheduleEmails(context.Background(), "org-1", "c1",
		[]schedule.Slot{{EmailID: "e1", ScheduledTime: time.Now()}},
		domain.SendUnscheduled,
		[]domain.CampaignStatus{domain.CampaignReadyToSend}, domain.CampaignRunning)
	require.ErrorIs(t, err, campaign.ErrConcurrentModification)
}

func TestSetCampaignStatusNotFound(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectExec(`UPDATE donor_campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.SetCampaignStatus(context.Background(), "org-1", "missing",
		[]domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignGenerating)
	require.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestPauseScheduledKeepsScheduledTime(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE donor_campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE donor_emails SET send_status = 'paused'`).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	n, err := repo.PauseScheduled(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingFlipsBothStates(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE donor_campaigns SET status = 'cancelled'`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE donor_emails SET send_status = 'cancelled'`).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	n, err := repo.CancelPending(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestScheduleRollup(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT send_status, COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"send_status", "count"}).
			AddRow("sent", 3).
			AddRow("scheduled", 4).
			AddRow("failed", 1))

	next := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 1, 16, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT MIN\(scheduled_time\)`).
		WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(next, last))

	rollup, err := repo.ScheduleRollup(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, rollup.Counts[domain.SendSent])
	assert.Equal(t, 4, rollup.Counts[domain.SendScheduled])
	assert.Equal(t, 8, rollup.Total())
	require.NotNil(t, rollup.NextScheduledTime)
	assert.True(t, rollup.NextScheduledTime.Equal(next))
	require.NotNil(t, rollup.LastSentTime)
	assert.True(t, rollup.LastSentTime.Equal(last))
}

func TestOrgPolicyFallsBackToDefault(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT schedule_policy`).
		WillReturnError(sql.ErrNoRows)

	p, err := repo.OrgPolicy(context.Background(), "org-without-settings")
	require.NoError(t, err)
	assert.Equal(t, 150, p.DailyLimit)
	assert.Equal(t, "America/New_York", p.Timezone)
}

func TestOrgPolicyRoundTrip(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery(`SELECT schedule_policy`).
		WillReturnRows(sqlmock.NewRows([]string{"schedule_policy"}).
			AddRow(`{"daily_limit":25,"min_gap_seconds":30,"max_gap_seconds":60,"timezone":"UTC","allowed_weekdays":[1,2,3],"default_window":{"start":"10:00","end":"16:00"}}`))

	p, err := repo.OrgPolicy(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 25, p.DailyLimit)
	assert.Equal(t, "UTC", p.Timezone)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday}, p.AllowedWeekdays)
}
