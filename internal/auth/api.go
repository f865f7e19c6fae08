package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saas-project/saas/apitypes"
	"github.com/saas-project/saas/internal/platform/httpx"
)

// MountAPIRoutes registers the JSON authentication endpoints.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Post("/register", h.apiRegister)
	r.Post("/login", h.apiLogin)
	r.Post("/refresh", h.apiRefresh)
	r.Post("/logout", h.apiLogout)
	r.Get("/me", h.apiMe)
}

func (h *Handler) apiRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	user, tokens, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookies.setTokens(w, tokens)
	httpx.JSON(w, http.StatusCreated, apitypes.AuthResponse{Token: tokens.Access, User: user.APIUser()})
}

func (h *Handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	user, tokens, err := h.service.Login(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookies.setTokens(w, tokens)
	httpx.JSON(w, http.StatusOK, apitypes.AuthResponse{Token: tokens.Access, User: user.APIUser()})
}

func (h *Handler) apiRefresh(w http.ResponseWriter, r *http.Request) {
	user, tokens, err := h.service.Refresh(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookies.setTokens(w, tokens)
	httpx.JSON(w, http.StatusOK, apitypes.AuthResponse{Token: tokens.Access, User: user.APIUser()})
}

func (h *Handler) apiLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), refreshTokenFromRequest(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookies.clearTokens(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) apiMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context(), AccessTokenFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user.APIUser())
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.Status(err) == http.StatusInternalServerError {
		h.logger.Error("auth api", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
