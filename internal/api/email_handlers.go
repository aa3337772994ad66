package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
	"github.com/Jeffreasy/LaventeCareGateway/internal/api/middleware"
	"github.com/Jeffreasy/LaventeCareGateway/internal/audit"
	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
)

const (
	maxRecipients   = 50
	maxSubjectRunes = 255
	queueStopWait   = 10 * time.Second
)

type EmailHandler struct {
	queue *mailer.Queue
	audit audit.AuditLogger
}

func NewEmailHandler(queue *mailer.Queue, auditLogger audit.AuditLogger) *EmailHandler {
	if auditLogger == nil {
		auditLogger = audit.NopAuditLogger{}
	}
	return &EmailHandler{queue: queue, audit: auditLogger}
}

type SendEmailRequest struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	Message string   `json:"message"`
	IsHTML  bool     `json:"is_html"`
}

func (req *SendEmailRequest) Validate() error {
	if len(req.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	if len(req.To)+len(req.Cc)+len(req.Bcc) > maxRecipients {
		return fmt.Errorf("too many recipients (max %d)", maxRecipients)
	}
	for _, list := range [][]string{req.To, req.Cc, req.Bcc} {
		for _, addr := range list {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("invalid email address %q", addr)
			}
		}
	}
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return errors.New("subject is required")
	}
	if len([]rune(req.Subject)) > maxSubjectRunes {
		return errors.New("subject too long")
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}

type SendEmailResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Send queues the email and returns at once. A full queue drops the task; the
// caller still gets 202 since delivery is best-effort either way.
func (h *EmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, accepted := h.queue.QueueEmail(req.To, req.Cc, req.Bcc, req.Subject, req.Message, req.IsHTML)
	if !accepted {
		slog.Warn("email_task_dropped", "task_id", id, "reason", "queue_full")
	}

	helpers.RespondJSON(w, http.StatusAccepted, SendEmailResponse{TaskID: id, Status: "queued"})
}

func (h *EmailHandler) Stats(w http.ResponseWriter, r *http.Request) {
	helpers.RespondJSON(w, http.StatusOK, h.queue.Stats())
}

func (h *EmailHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Start(); err != nil {
		respondServiceError(w, r, "email_queue_start", err)
		return
	}
	h.logControl(r, "start")
	helpers.RespondJSON(w, http.StatusOK, h.queue.Stats())
}

func (h *EmailHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queueStopWait)
	defer cancel()

	if err := h.queue.Stop(ctx); err != nil {
		slog.Error("email_queue_stop_failed", "error", err)
		helpers.RespondError(w, http.StatusGatewayTimeout, "worker did not stop in time")
		return
	}
	h.logControl(r, "stop")
	helpers.RespondJSON(w, http.StatusOK, h.queue.Stats())
}

func (h *EmailHandler) logControl(r *http.Request, action string) {
	actor := "unknown"
	if id, err := middleware.GetIdentity(r.Context()); err == nil {
		actor = id.User.Identifier()
	}
	h.audit.Log(r.Context(), actor, audit.EventQueueControl, "email_queue", map[string]string{"action": action})
}
