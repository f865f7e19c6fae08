package dashboard

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saas-project/saas/internal/shared"
	"github.com/saas-project/saas/internal/view"
)

// PageData feeds pages/dashboard.html.
type PageData struct {
	Content template.HTML
}

// Handler serves the dashboard pages behind the gate.
type Handler struct {
	logger    *slog.Logger
	gate      *Gate
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, gate *Gate, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, templates: templates, csrf: csrf}
}

// MountRoutes registers dashboard routes; every one of them sits behind the gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.gate.Protect)
	r.Get("/", h.home)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	data := view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		User:        PrincipalFromContext(r.Context()),
	}
	children, err := h.templates.Fragment("partials/dashboard_home", data)
	if err != nil {
		h.logger.Error("render dashboard content", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data.Data = PageData{Content: Layout(children)}
	if err := h.templates.Render(w, http.StatusOK, "pages/dashboard.html", data); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
}
