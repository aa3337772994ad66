package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
)

const healthTimeout = 2 * time.Second

// Pinger is a dependency whose reachability is part of liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler checks the session store. Details stay in the logs.
func (s *Server) HealthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			s.Logger.Error("health_check_failed", "error", err, "detail", "session_store_unreachable")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "service temporarily unavailable",
			})
			return
		}

		helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// EmailHealthResponse is the queue probe answer.
type EmailHealthResponse struct {
	Status string       `json:"status"`
	Queue  mailer.Stats `json:"queue"`
}

// EmailHealthHandler reports queue stats. A stopped worker or a full queue is
// unhealthy (503). The probe gives up after two seconds.
func EmailHealthHandler(queue *mailer.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		result := make(chan mailer.Stats, 1)
		go func() { result <- queue.Stats() }()

		select {
		case stats := <-result:
			status, code := "healthy", http.StatusOK
			if !stats.Healthy() {
				status, code = "unhealthy", http.StatusServiceUnavailable
				slog.Warn("email_queue_unhealthy", "is_running", stats.IsRunning, "queue_size", stats.QueueSize)
			}
			helpers.RespondJSON(w, code, EmailHealthResponse{Status: status, Queue: stats})
		case <-ctx.Done():
			slog.Error("email_health_timeout")
			helpers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "timeout"})
		}
	}
}
