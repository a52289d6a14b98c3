package handler

import (
	"context"
	"net/http"
	"strconv"

	"guideboard/internal/app/service"
	"guideboard/internal/common"
	"guideboard/internal/domain/model"
	"guideboard/internal/domain/policy"

	"github.com/go-chi/chi/v5"
)

type ProfileUseCase interface {
	Me(ctx context.Context, p policy.Principal) (*model.Profile, error)
	Get(ctx context.Context, p policy.Principal, profileID string) (*model.Profile, error)
	UpdateMe(ctx context.Context, p policy.Principal, req service.UpdateProfileRequest) (*model.Profile, error)
	List(ctx context.Context, p policy.Principal, page, pageSize int) (*service.ProfilePage, error)
}

type ProfileHandler struct {
	profileService ProfileUseCase
}

func NewProfileHandler(ps ProfileUseCase) *ProfileHandler {
	return &ProfileHandler{profileService: ps}
}

func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listProfiles)
	r.Get("/me", h.getMe)
	r.Patch("/me", h.updateMe)
	r.Get("/{profileID}", h.getProfile)
}

func (h *ProfileHandler) getMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := h.profileService.Me(r.Context(), p)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) updateMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req service.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.profileService.UpdateMe(r.Context(), p, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := h.profileService.Get(r.Context(), p, chi.URLParam(r, "profileID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) listProfiles(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.profileService.List(r.Context(), p, page, pageSize)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, result)
}
