package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"guideboard/internal/api/middleware"
	"guideboard/internal/app/service"
	"guideboard/internal/common"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"

	"github.com/go-chi/chi/v5"
)

type JobUseCase interface {
	CreateJob(ctx context.Context, p policy.Principal, req service.CreateJobRequest) (*model.Job, error)
	UpdateJob(ctx context.Context, p policy.Principal, jobID string, req service.UpdateJobRequest) (*model.Job, error)
	GetJob(ctx context.Context, p policy.Principal, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, p policy.Principal, req service.ListJobsRequest) (*service.JobPage, error)
	PutContact(ctx context.Context, p policy.Principal, jobID string, req service.ContactRequest) (*model.Contact, error)
	GetContact(ctx context.Context, p policy.Principal, jobID string) (*model.Contact, error)

	Claim(ctx context.Context, callerID, jobID string) (bool, error)
	Unclaim(ctx context.Context, callerID, jobID string) (bool, error)
	AssignTo(ctx context.Context, callerID, jobID, guideID string) (bool, error)
	Complete(ctx context.Context, callerID, jobID string) (bool, error)
	Cancel(ctx context.Context, callerID, jobID string) (bool, error)
	ExplainRefusal(ctx context.Context, p policy.Principal, op service.Transition, jobID, guideID string) (string, error)
}

type JobHandler struct {
	jobService JobUseCase
}

func NewJobHandler(js JobUseCase) *JobHandler {
	return &JobHandler{jobService: js}
}

func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listJobs)
	r.Get("/{jobID}", h.getJob)
	r.Get("/{jobID}/contact", h.getContact)

	r.Post("/{jobID}/claim", h.transition(service.TransitionClaim))
	r.Post("/{jobID}/unclaim", h.transition(service.TransitionUnclaim))
	r.Post("/{jobID}/complete", h.transition(service.TransitionComplete))

	r.Group(func(adminRouter chi.Router) {
		adminRouter.Use(middleware.AdminOnly)
		adminRouter.Post("/", h.createJob)
		adminRouter.Patch("/{jobID}", h.updateJob)
		adminRouter.Put("/{jobID}/contact", h.putContact)
		adminRouter.Post("/{jobID}/assign", h.transition(service.TransitionAssign))
		adminRouter.Post("/{jobID}/cancel", h.transition(service.TransitionCancel))
	})
}

type AssignRequest struct {
	GuideID string `json:"guide_id"`
}

type TransitionResponse struct {
	OK     bool       `json:"ok"`
	Reason string     `json:"reason,omitempty"`
	Job    *model.Job `json:"job,omitempty"`
}

func (h *JobHandler) createJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req service.CreateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := h.jobService.CreateJob(r.Context(), p, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, job)
}

func (h *JobHandler) updateJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req service.UpdateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	job, err := h.jobService.UpdateJob(r.Context(), p, chi.URLParam(r, "jobID"), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	job, err := h.jobService.GetJob(r.Context(), p, chi.URLParam(r, "jobID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *JobHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	req := service.ListJobsRequest{
		Tab:      q.Get("tab"),
		Status:   q.Get("status"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Page:     page,
		PageSize: pageSize,
	}
	if since := q.Get("updated_since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "updated_since must be an RFC 3339 timestamp")
			return
		}
		req.UpdatedSince = &t
	}

	result, err := h.jobService.ListJobs(r.Context(), p, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, result)
}

func (h *JobHandler) getContact(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	contact, err := h.jobService.GetContact(r.Context(), p, chi.URLParam(r, "jobID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, contact)
}

func (h *JobHandler) putContact(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req service.ContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	contact, err := h.jobService.PutContact(r.Context(), p, chi.URLParam(r, "jobID"), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, contact)
}

// transition runs op through the arbiter. A refused transition is answered
// with the reason found by re-reading the job.
func (h *JobHandler) transition(op service.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		jobID := chi.URLParam(r, "jobID")

		var guideID string
		if op == service.TransitionAssign {
			var req AssignRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.GuideID == "" {
				common.RespondWithError(w, http.StatusBadRequest, "guide_id is required")
				return
			}
			guideID = req.GuideID
		}

		applied, err := h.apply(r.Context(), op, p.ID, jobID, guideID)
		if err != nil {
			common.RespondWithErr(w, err)
			return
		}

		if !applied {
			reason, err := h.jobService.ExplainRefusal(r.Context(), p, op, jobID, guideID)
			if err != nil {
				common.RespondWithErr(w, err)
				return
			}
			status := http.StatusConflict
			if reason == service.ReasonForbidden {
				status = http.StatusForbidden
			}
			common.RespondWithJSON(w, status, TransitionResponse{OK: false, Reason: reason})
			return
		}

		job, err := h.jobService.GetJob(r.Context(), p, jobID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			common.RespondWithErr(w, err)
			return
		}
		common.RespondWithJSON(w, http.StatusOK, TransitionResponse{OK: true, Job: job})
	}
}

func (h *JobHandler) apply(ctx context.Context, op service.Transition, callerID, jobID, guideID string) (bool, error) {
	switch op {
	case service.TransitionClaim:
		return h.jobService.Claim(ctx, callerID, jobID)
	case service.TransitionUnclaim:
		return h.jobService.Unclaim(ctx, callerID, jobID)
	case service.TransitionAssign:
		return h.jobService.AssignTo(ctx, callerID, jobID, guideID)
	case service.TransitionComplete:
		return h.jobService.Complete(ctx, callerID, jobID)
	case service.TransitionCancel:
		return h.jobService.Cancel(ctx, callerID, jobID)
	}
	return false, common.ErrBadRequest
}
