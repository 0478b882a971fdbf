package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/schedule"
	"github.com/brightgive/donor-engine/internal/service/campaign"
)

// fakeService returns canned results per method.
type fakeService struct {
	launchErr    error
	readyErr     error
	schedRes     campaign.ScheduleResult
	schedErr     error
	lastOverride *domain.PolicyOverride
	pauseRes     campaign.PauseResult
	pauseErr     error
	resumeRes    campaign.ScheduleResult
	resumeErr    error
	cancelRes    campaign.CancelResult
	cancelErr    error
	status       *campaign.ScheduleStatus
	statusErr    error
	policy       domain.SchedulePolicy
	policyErr    error
	saveErr      error
	savedPolicy  *domain.SchedulePolicy
}

func (f *fakeService) Launch(context.Context, string, string) error    { return f.launchErr }
func (f *fakeService) MarkReady(context.Context, string, string) error { return f.readyErr }
func (f *fakeService) ScheduleSend(_ context.Context, _, _ string, o *domain.PolicyOverride) (campaign.ScheduleResult, error) {
	f.lastOverride = o
	return f.schedRes, f.schedErr
}
func (f *fakeService) Pause(context.Context, string, string) (campaign.PauseResult, error) {
	return f.pauseRes, f.pauseErr
}
func (f *fakeService) Resume(context.Context, string, string) (campaign.ScheduleResult, error) {
	return f.resumeRes, f.resumeErr
}
func (f *fakeService) Cancel(context.Context, string, string) (campaign.CancelResult, error) {
	return f.cancelRes, f.cancelErr
}
func (f *fakeService) Status(context.Context, string, string) (*campaign.ScheduleStatus, error) {
	return f.status, f.statusErr
}
func (f *fakeService) OrgPolicy(context.Context, string) (domain.SchedulePolicy, error) {
	return f.policy, f.policyErr
}
func (f *fakeService) SaveOrgPolicy(_ context.Context, _ string, p domain.SchedulePolicy) error {
	f.savedPolicy = &p
	return f.saveErr
}

func doRequest(t *testing.T, svc CampaignService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := SetupRoutes(NewHandlers(svc))
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const campaignPath = "/api/organizations/org-1/campaigns/c1"

func TestScheduleSendHandler(t *testing.T) {
	svc := &fakeService{schedRes: campaign.ScheduleResult{Scheduled: 40, ScheduledForToday: 25}}
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/schedule-send", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var res campaign.ScheduleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 40, res.Scheduled)
	assert.Equal(t, 25, res.ScheduledForToday)
	assert.Nil(t, svc.lastOverride)
}

func TestScheduleSendHandlerPassesOverride(t *testing.T) {
	svc := &fakeService{}
	body := `{"override": {"daily_limit": 75, "timezone": "America/Denver"}}`
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/schedule-send", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastOverride)
	require.NotNil(t, svc.lastOverride.DailyLimit)
	assert.Equal(t, 75, *svc.lastOverride.DailyLimit)
	require.NotNil(t, svc.lastOverride.Timezone)
	assert.Equal(t, "America/Denver", *svc.lastOverride.Timezone)
}

func TestScheduleSendHandlerInvalidPolicy(t *testing.T) {
	svc := &fakeService{schedErr: fmt.Errorf("%w: dailyLimit must be positive", schedule.ErrInvalidPolicy)}
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/schedule-send", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_policy", body["code"])
}

func TestScheduleSendHandlerNoWindow(t *testing.T) {
	svc := &fakeService{schedErr: fmt.Errorf("%w: within 14 days", schedule.ErrNoAllowedWindow)}
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/schedule-send", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no_allowed_window", body["code"])
}

func TestPauseHandlerConflictOnBadState(t *testing.T) {
	svc := &fakeService{pauseErr: fmt.Errorf("%w: cannot pause a draft campaign", campaign.ErrInvalidTransition)}
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResumeHandlerConflictOnPersistentRace(t *testing.T) {
	svc := &fakeService{resumeErr: campaign.ErrConcurrentModification}
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/resume", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelHandlerNotFound(t *testing.T) {
	svc := &fakeService{cancelErr: campaign.ErrNotFound}
	rec := doRequest(t, svc, http.MethodPost, campaignPath+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleStatusHandler(t *testing.T) {
	svc := &fakeService{status: &campaign.ScheduleStatus{
		CampaignID:     "c1",
		CampaignStatus: domain.CampaignRunning,
		Counts:         map[domain.SendStatus]int{domain.SendScheduled: 10, domain.SendSent: 5},
		TotalEmails:    15,
	}}
	rec := doRequest(t, svc, http.MethodGet, campaignPath+"/schedule-status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var st campaign.ScheduleStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, domain.CampaignRunning, st.CampaignStatus)
	assert.Equal(t, 15, st.TotalEmails)
}

func TestGetScheduleSettings(t *testing.T) {
	svc := &fakeService{policy: domain.SchedulePolicy{DailyLimit: 150, Timezone: "America/New_York"}}
	rec := doRequest(t, svc, http.MethodGet, "/api/organizations/org-1/schedule-settings", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.SchedulePolicy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 150, p.DailyLimit)
}

func TestPutScheduleSettings(t *testing.T) {
	svc := &fakeService{}
	body := `{"daily_limit": 80, "min_gap_seconds": 30, "max_gap_seconds": 60, "timezone": "UTC",
		"allowed_weekdays": [1,2,3], "default_window": {"start": "09:00", "end": "17:00"}}`
	rec := doRequest(t, svc, http.MethodPut, "/api/organizations/org-1/schedule-settings", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.savedPolicy)
	assert.Equal(t, 80, svc.savedPolicy.DailyLimit)
}

func TestPutScheduleSettingsRejectsInvalid(t *testing.T) {
	svc := &fakeService{saveErr: fmt.Errorf("%w: minGapSeconds exceeds maxGapSeconds", schedule.ErrInvalidPolicy)}
	rec := doRequest(t, svc, http.MethodPut, "/api/organizations/org-1/schedule-settings", `{"daily_limit": 10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}
