package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/saas-project/saas/cmd/saas/cli"
	"github.com/saas-project/saas/internal/app"
	"github.com/saas-project/saas/internal/auth"
	"github.com/saas-project/saas/internal/dashboard"
	"github.com/saas-project/saas/internal/observability"
	"github.com/saas-project/saas/internal/platform/cache"
	"github.com/saas-project/saas/internal/platform/db"
	"github.com/saas-project/saas/internal/shared"
	"github.com/saas-project/saas/internal/view"
	"github.com/saas-project/saas/jobs"
	"github.com/saas-project/saas/migrations"
)

// SessionCookie names the browser session cookie.
const SessionCookie = "saas_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	if err := serve(ctx, cfg, logger, stop); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, stop context.CancelFunc) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, migrations.Files)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", slog.Any("files", applied))
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine(view.Options{Strict: cfg.StrictMode})
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	authService := auth.NewService(auth.NewRepository(pool), auth.ServiceConfig{
		Access:       auth.NewTokenIssuer(cfg.AccessSecret, cfg.AccessTTL, auth.AudienceAccess, nil),
		Refresh:      auth.NewTokenIssuer(cfg.RefreshSecret, cfg.RefreshTTL, auth.AudienceRefresh, nil),
		RefreshStore: auth.NewRedisRefreshStore(redisClient),
		Events:       metrics,
	})
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, auth.CookieConfig{Secure: cfg.IsProduction()})

	checker, err := dashboard.NewChecker(cfg.DashboardGuard, authService)
	if err != nil {
		return err
	}
	logger.Info("dashboard guard", slog.String("mode", cfg.DashboardGuard))
	gate := dashboard.NewGate(checker, dashboard.WithLogger(logger), dashboard.WithRecorder(metrics))
	dashboardHandler := dashboard.NewHandler(logger, gate, templates, csrfManager)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: saas jobs <trigger|stats> [flags]")
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		retention := fs.Duration("retention", jobs.DefaultSessionRetention, "how long expired sessions are kept")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return jobsCLI.TriggerCommand(ctx, cli.TriggerOptions{Job: fs.Arg(0), Retention: *retention})
	case "stats":
		return jobsCLI.StatsCommand(os.Stdout, os.Stderr)
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
}
