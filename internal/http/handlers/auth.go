package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/print3d-auth/internal/http/errors"
	"github.com/pribylovaa/print3d-auth/internal/http/middleware"
	"github.com/pribylovaa/print3d-auth/internal/service"
)

// Login - POST /api/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := h.bind(w, r, &in, false); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, user, err := h.Auth.Login(r.Context(), in.Login, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokensFromModel(pair, h.Auth.AccessTTL(), user))
}

// Refresh - POST /api/auth/refresh.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := h.bind(w, r, &in, false); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.Auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokensFromModel(pair, h.Auth.AccessTTL(), nil))
}

// Logout - POST /api/auth/logout. Тело необязательно.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if err := h.bind(w, r, &in, true); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	claims, _ := middleware.ClaimsFrom(r.Context())
	if err := h.Auth.Logout(r.Context(), claims, in.RefreshToken); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me - GET /api/auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthorized)
		return
	}

	user, err := h.Auth.Me(r.Context(), claims.Subject)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(user))
}

// Verify - GET /api/auth/verify: claims предъявленного access-токена.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, claims)
}

// CreateUser - POST /api/auth/users (только admin).
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in createUserRequest
	if err := h.bind(w, r, &in, false); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, err := h.Auth.CreateUser(r.Context(), service.NewUser{
		Login:    in.Login,
		Email:    in.Email,
		Password: in.Password,
		Role:     in.Role,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, userFromModel(user))
}
