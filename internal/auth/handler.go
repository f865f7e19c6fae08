package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saas-project/saas/internal/platform/httpx"
	"github.com/saas-project/saas/internal/shared"
	"github.com/saas-project/saas/internal/view"
)

// DefaultLanding is where a successful browser login lands without a next
// parameter.
const DefaultLanding = "/dashboard"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	cookies        CookieConfig
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, cookies CookieConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		cookies:        cookies,
		validator:      validator.New(),
	}
}

// MountRoutes registers browser auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Next     string
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if raw := sess.User(); raw != "" {
		err := h.ensureTokens(w, r, raw)
		switch {
		case err == nil:
			http.Redirect(w, r, SafeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
			return
		case errors.Is(err, httpx.ErrUnauthorized):
			// The account behind the session is gone or disabled.
			h.sessionManager.Rotate(sess)
			sess.SetUser("")
		default:
			h.logger.Error("restore tokens", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	form := loginForm{Next: SafeNext(r.URL.Query().Get("next"))}
	h.renderLogin(w, r, http.StatusOK, loginPageData{Form: form})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Next:     SafeNext(r.PostFormValue("next")),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldErr.Error()
			}
		}
	}

	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		switch {
		case err == nil && sess != nil:
			h.sessionManager.Rotate(sess)
			sess.SetUser(user.ID.String())
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
			expiresAt := time.Now().Add(h.sessionManager.TTL())
			if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
			if tokens, err := h.service.IssueTokens(r.Context(), user.ID); err != nil {
				h.logger.Warn("issue tokens", slog.Any("error", err))
			} else {
				h.cookies.setTokens(w, tokens)
			}
			http.Redirect(w, r, form.Next, http.StatusSeeOther)
			return
		case err == nil:
			h.logger.Error("session missing during login")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		default:
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				h.logger.Error("authenticate", slog.Any("error", err))
			}
			errs["general"] = shared.UserSafeMessage(err)
		}
	}

	form.Password = ""
	h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if sess.User() != "" {
			if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
				h.logger.Warn("remove session", slog.Any("error", err))
			}
		}
		h.sessionManager.Destroy(sess)
	}
	if token := refreshTokenFromRequest(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			h.logger.Warn("revoke refresh token", slog.Any("error", err))
		}
	}
	h.cookies.clearTokens(w)
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// ensureTokens makes sure a signed-in browser also holds a valid access token
// for the session user, refreshing or reissuing the pair when it does not.
func (h *Handler) ensureTokens(w http.ResponseWriter, r *http.Request, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return ErrInvalidToken
	}
	if owner, err := h.service.VerifyAccess(AccessTokenFromRequest(r)); err == nil && owner == id {
		return nil
	}
	if refresh := refreshTokenFromRequest(r); refresh != "" {
		if user, tokens, err := h.service.Refresh(r.Context(), refresh); err == nil && user.ID == id {
			h.cookies.setTokens(w, tokens)
			return nil
		}
	}
	if _, err := h.service.UserByID(r.Context(), id); err != nil {
		return err
	}
	tokens, err := h.service.IssueTokens(r.Context(), id)
	if err != nil {
		return err
	}
	h.cookies.setTokens(w, tokens)
	return nil
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	viewData := view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

// SafeNext returns target when it is a local absolute path, DefaultLanding
// otherwise.
func SafeNext(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return DefaultLanding
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultLanding
	}
	return target
}
