package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/saas-project/saas/internal/platform/httpx"
)

// QueueReader reads queue statistics. *asynq.Inspector satisfies it.
type QueueReader interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler serves the jobs health endpoint.
type Handler struct {
	queues QueueReader
	logger *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil queues reports an empty
// default queue.
func NewHandler(queues QueueReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{queues: queues, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue    string `json:"queue"`
	Pending  int    `json:"pending"`
	Active   int    `json:"active,omitempty"`
	Retry    int    `json:"retry,omitempty"`
	Archived int    `json:"archived,omitempty"`
	Paused   bool   `json:"paused,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.queues == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.queues.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "job queue statistics could not be read")
		return
	}
	body := queueHealth{Queue: QueueDefault}
	if info != nil {
		body = queueHealth{
			Queue:    info.Queue,
			Pending:  info.Pending,
			Active:   info.Active,
			Retry:    info.Retry,
			Archived: info.Archived,
			Paused:   info.Paused,
		}
	}
	httpx.JSON(w, http.StatusOK, body)
}
