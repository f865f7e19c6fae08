package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/saas-project/saas/apitypes"
	"github.com/saas-project/saas/internal/auth"
	"github.com/saas-project/saas/internal/dashboard"
	"github.com/saas-project/saas/internal/observability"
	"github.com/saas-project/saas/internal/platform/httpx"
	"github.com/saas-project/saas/internal/shared"
	"github.com/saas-project/saas/internal/view"
	"github.com/saas-project/saas/jobs"
	"github.com/saas-project/saas/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, auth.DefaultLanding, http.StatusSeeOther)
	})

	r.Get("/api/types", sharedTypesHandler(params.Config, logger))

	rateLimit := 60
	if params.Config != nil {
		rateLimit = params.Config.RateLimitPerMinute
	}
	if params.AuthHandler != nil {
		r.Route("/api/auth", func(r chi.Router) {
			r.Use(authRateLimit(rateLimit))
			params.AuthHandler.MountAPIRoutes(r)
		})
		r.Route("/auth", func(r chi.Router) {
			r.Use(unsafeOnly(authRateLimit(rateLimit)))
			params.AuthHandler.MountRoutes(r)
		})
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// sharedTypesHandler publishes the shapes of every configured shared package.
func sharedTypesHandler(cfg *Config, logger *slog.Logger) http.HandlerFunc {
	names := []string{apitypes.PackageName}
	if cfg != nil && len(cfg.SharedPackages) > 0 {
		names = cfg.SharedPackages
	}
	return func(w http.ResponseWriter, r *http.Request) {
		shapes, err := apitypes.Lookup(names...)
		if err != nil {
			logger.Error("describe shared packages", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"packages": shapes})
	}
}

// staticCacheHandler caches static assets in the browser for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
