package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightgive/donor-engine/internal/domain"
	"github.com/brightgive/donor-engine/internal/pkg/httputil"
	"github.com/brightgive/donor-engine/internal/schedule"
	"github.com/brightgive/donor-engine/internal/service/campaign"
)

// CampaignService is the slice of the campaign service the handlers use.
// Narrowed to an interface so handler tests run against a fake.
type CampaignService interface {
	Launch(ctx context.Context, orgID, campaignID string) error
	MarkReady(ctx context.Context, orgID, campaignID string) error
	ScheduleSend(ctx context.Context, orgID, campaignID string, override *domain.PolicyOverride) (campaign.ScheduleResult, error)
	Pause(ctx context.Context, orgID, campaignID string) (campaign.PauseResult, error)
	Resume(ctx context.Context, orgID, campaignID string) (campaign.ScheduleResult, error)
	Cancel(ctx context.Context, orgID, campaignID string) (campaign.CancelResult, error)
	Status(ctx context.Context, orgID, campaignID string) (*campaign.ScheduleStatus, error)
	OrgPolicy(ctx context.Context, orgID string) (domain.SchedulePolicy, error)
	SaveOrgPolicy(ctx context.Context, orgID string, p domain.SchedulePolicy) error
}

// Handlers holds HTTP handlers for the campaign API
type Handlers struct {
	svc       CampaignService
	startedAt time.Time
}

// NewHandlers creates handlers backed by the campaign service
func NewHandlers(svc CampaignService) *Handlers {
	return &Handlers{svc: svc, startedAt: time.Now()}
}

// HealthCheck reports liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// Launch starts email generation for a draft campaign
func (h *Handlers) Launch(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)
	if err := h.svc.Launch(r.Context(), orgID, campaignID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": string(domain.CampaignGenerating)})
}

// MarkReady moves a fully approved campaign to ready_to_send
func (h *Handlers) MarkReady(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)
	if err := h.svc.MarkReady(r.Context(), orgID, campaignID); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": string(domain.CampaignReadyToSend)})
}

// ScheduleSend assigns send times to every approved email and starts the
// campaign. The optional body carries a one-off policy override.
func (h *Handlers) ScheduleSend(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)

	var override *domain.PolicyOverride
	if r.ContentLength > 0 {
		var body struct {
			Override *domain.PolicyOverride `json:"override"`
		}
		if !httputil.Decode(w, r, &body) {
			return
		}
		override = body.Override
	}

	res, err := h.svc.ScheduleSend(r.Context(), orgID, campaignID, override)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// Pause takes scheduled emails off the clock
func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)
	res, err := h.svc.Pause(r.Context(), orgID, campaignID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// Resume reschedules paused emails from now
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)
	res, err := h.svc.Resume(r.Context(), orgID, campaignID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// Cancel terminally cancels a campaign
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)
	res, err := h.svc.Cancel(r.Context(), orgID, campaignID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ScheduleStatus returns the read-only schedule rollup the UI polls
func (h *Handlers) ScheduleStatus(w http.ResponseWriter, r *http.Request) {
	orgID, campaignID := pathIDs(r)
	st, err := h.svc.Status(r.Context(), orgID, campaignID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, st)
}

// GetScheduleSettings returns the organization's default schedule policy
func (h *Handlers) GetScheduleSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	policy, err := h.svc.OrgPolicy(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, policy)
}

// PutScheduleSettings validates and saves the organization's default
// schedule policy
func (h *Handlers) PutScheduleSettings(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var policy domain.SchedulePolicy
	if !httputil.Decode(w, r, &policy) {
		return
	}
	if err := h.svc.SaveOrgPolicy(r.Context(), orgID, policy); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, policy)
}

func pathIDs(r *http.Request) (orgID, campaignID string) {
	return chi.URLParam(r, "orgID"), chi.URLParam(r, "campaignID")
}

// writeServiceError maps service errors onto HTTP statuses. Invalid policy
// and no-allowed-window are the user's configuration to fix (400), lifecycle
// violations and persistent races are conflicts (409).
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, schedule.ErrInvalidPolicy):
		httputil.ValidationError(w, "invalid_policy", err.Error())
	case errors.Is(err, schedule.ErrNoAllowedWindow):
		httputil.ValidationError(w, "no_allowed_window", err.Error())
	case errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, campaign.ErrConcurrentModification):
		httputil.Conflict(w, "campaign was modified concurrently, retry")
	case errors.Is(err, campaign.ErrNoPendingEmails):
		httputil.ValidationError(w, "no_pending_emails", err.Error())
	case errors.Is(err, campaign.ErrNotAllApproved):
		httputil.ValidationError(w, "not_all_approved", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
