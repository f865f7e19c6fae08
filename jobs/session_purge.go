package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saas-project/saas/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SessionPurger deletes session records. *auth.Service satisfies it.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// SessionPurgeJob handles TaskSessionPurge.
type SessionPurgeJob struct {
	Purger  SessionPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionPurgeJob constructs the job handler.
func NewSessionPurgeJob(purger SessionPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionPurgeJob {
	return &SessionPurgeJob{
		Purger:  purger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one purge run.
func (j *SessionPurgeJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("session purge: dependencies not configured")
	}
	var payload SessionPurgePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("session purge: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention, err := payload.RetentionDuration()
	if err != nil {
		return fmt.Errorf("session purge: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskSessionPurge)
	start := j.now()
	removed, err := j.Purger.PurgeExpiredSessions(ctx, start, retention)
	if err != nil {
		j.log().Error("purge sessions", slog.Duration("retention", retention), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddPurgedSessions(removed)
	j.log().Info("purged expired sessions", slog.Int64("removed", removed), slog.Duration("retention", retention), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *SessionPurgeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionPurgeJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionPurge))
	}
	return slog.Default().With(slog.String("job", TaskSessionPurge))
}

func (j *SessionPurgeJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SessionPurgeJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
