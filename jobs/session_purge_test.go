package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/saas-project/saas/internal/jobs"
)

type purgeCall struct {
	now       time.Time
	retention time.Duration
}

type stubPurger struct {
	calls   []purgeCall
	removed int64
	err     error
}

func (s *stubPurger) PurgeExpiredSessions(_ context.Context, now time.Time, retention time.Duration) (int64, error) {
	s.calls = append(s.calls, purgeCall{now: now, retention: retention})
	return s.removed, s.err
}

func fixedClock() time.Time {
	return time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
}

func TestNewSessionPurgeTask(t *testing.T) {
	task, err := NewSessionPurgeTask(0)
	require.NoError(t, err)
	assert.Equal(t, TaskSessionPurge, task.Type())

	var payload SessionPurgePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "24h0m0s", payload.Retention)

	task, err = NewSessionPurgeTask(90 * time.Minute)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	d, err := payload.RetentionDuration()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}

func TestSessionPurgeJobHandle(t *testing.T) {
	purger := &stubPurger{removed: 4}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	var logs bytes.Buffer
	job := NewSessionPurgeJob(purger, slog.New(slog.NewTextHandler(&logs, nil)), metrics)
	job.WithClock(fixedClock)

	task, err := NewSessionPurgeTask(2 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, purger.calls, 1)
	assert.Equal(t, fixedClock(), purger.calls[0].now)
	assert.Equal(t, 2*time.Hour, purger.calls[0].retention)
	assert.Contains(t, logs.String(), "removed=4")
	assert.Contains(t, logs.String(), "job=auth:sessions:purge")
}

func TestSessionPurgeJobEmptyPayloadUsesDefault(t *testing.T) {
	purger := &stubPurger{}
	job := NewSessionPurgeJob(purger, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskSessionPurge, nil)))
	require.Len(t, purger.calls, 1)
	assert.Equal(t, DefaultSessionRetention, purger.calls[0].retention)
}

func TestSessionPurgeJobBadPayloadSkipsRetry(t *testing.T) {
	purger := &stubPurger{}
	job := NewSessionPurgeJob(purger, nil, nil)

	for _, body := range []string{`{`, `{"retention":"soon"}`, `{"retention":"-1h"}`} {
		err := job.Handle(context.Background(), asynq.NewTask(TaskSessionPurge, []byte(body)))
		assert.ErrorIs(t, err, asynq.SkipRetry, body)
	}
	assert.Empty(t, purger.calls)
}

func TestSessionPurgeJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewSessionPurgeJob(&stubPurger{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionPurge, nil))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSessionPurgeJobNotConfigured(t *testing.T) {
	var job *SessionPurgeJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskSessionPurge, nil)))
}
