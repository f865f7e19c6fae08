package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge deletes session records that expired long enough ago.
	TaskSessionPurge = "auth:sessions:purge"
	// DefaultSessionRetention keeps expired sessions around for a day of auditing.
	DefaultSessionRetention = 24 * time.Hour
)

// SessionPurgePayload configures one purge run.
type SessionPurgePayload struct {
	Retention string `json:"retention"`
}

// RetentionDuration parses Retention, falling back to DefaultSessionRetention
// when empty.
func (p SessionPurgePayload) RetentionDuration() (time.Duration, error) {
	if p.Retention == "" {
		return DefaultSessionRetention, nil
	}
	d, err := time.ParseDuration(p.Retention)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", p.Retention, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retention must not be negative")
	}
	return d, nil
}

// NewSessionPurgeTask constructs an Asynq task. A zero retention uses the default.
func NewSessionPurgeTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = DefaultSessionRetention
	}
	body, err := json.Marshal(SessionPurgePayload{Retention: retention.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
