package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultPurgeSchedule runs the session purge at the top of every hour.
const DefaultPurgeSchedule = "@hourly"

// WorkerConfig wires the session purge worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Purge       *SessionPurgeJob
	Schedule    string        // cron spec; DefaultPurgeSchedule when empty
	Retention   time.Duration // DefaultSessionRetention when zero
	Concurrency int
}

// Worker processes purge tasks and enqueues them on Schedule.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
	schedule  string
	retention time.Duration
}

// NewWorker validates cfg and prepares the server and scheduler. Nothing
// connects to Redis until Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Purge == nil {
		return nil, errors.New("jobs: session purge job is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultPurgeSchedule
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultSessionRetention
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	task, err := NewSessionPurgeTask(cfg.Retention)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With(slog.String("component", "worker"))
	scheduler := asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logger),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("schedule session purge", slog.Any("error", err))
				return
			}
			logger.Debug("scheduled session purge", slog.String("task_id", info.ID))
		},
	})
	if _, err := scheduler.Register(cfg.Schedule, task); err != nil {
		return nil, fmt.Errorf("jobs: purge schedule %q: %w", cfg.Schedule, err)
	}

	server := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  cfg.Concurrency,
		Queues:       map[string]int{QueueDefault: 1},
		Logger:       newAsynqLogger(logger),
		ErrorHandler: failureLogger(logger),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSessionPurge, cfg.Purge.Handle)

	return &Worker{
		server:    server,
		mux:       mux,
		scheduler: scheduler,
		logger:    logger,
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
	}, nil
}

// Run processes tasks until ctx is done, then drains in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("jobs: start scheduler: %w", err)
	}
	w.logger.Info("worker started", slog.String("schedule", w.schedule), slog.Duration("retention", w.retention))

	<-ctx.Done()
	w.logger.Info("worker stopping")
	w.scheduler.Shutdown()
	w.server.Shutdown()
	return ctx.Err()
}

// failureLogger reports failed attempts with their retry position.
func failureLogger(logger *slog.Logger) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		attrs := []any{
			slog.String("task", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		}
		if errors.Is(err, asynq.SkipRetry) || retried >= maxRetry {
			logger.Error("task failed permanently", attrs...)
			return
		}
		logger.Warn("task failed, will retry", attrs...)
	}
}
