package handler

import (
	"context"
	"net/http"

	"guideboard/internal/app/service"
	"guideboard/internal/common"

	"github.com/go-chi/chi/v5"
)

type AuthUseCase interface {
	Signup(ctx context.Context, req service.SignupRequest) (*service.AuthResponse, error)
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error)
}

// AuthHandler issues tokens. Both endpoints answer {profile, token}.
type AuthHandler struct {
	auth AuthUseCase
}

func NewAuthHandler(auth AuthUseCase) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.auth.Signup(r.Context(), req)
	writeAuth(w, http.StatusCreated, resp, err)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.auth.Login(r.Context(), req)
	writeAuth(w, http.StatusOK, resp, err)
}

func writeAuth(w http.ResponseWriter, code int, resp *service.AuthResponse, err error) {
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	common.RespondWithJSON(w, code, resp)
}
