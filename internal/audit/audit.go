package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// EventType defines the category of the audit log.
type EventType string

const (
	EventLoginOTPRequested EventType = "LOGIN_OTP_REQUESTED"
	EventLoginSuccess      EventType = "LOGIN_SUCCESS"
	EventLoginFailed       EventType = "LOGIN_FAILED"
	EventLogout            EventType = "LOGOUT"
	EventSessionRefresh    EventType = "SESSION_REFRESH"
	EventWhatsAppLinked    EventType = "WHATSAPP_LINKED"
	EventTokenCacheCleared EventType = "TOKEN_CACHE_CLEARED"
	EventQueueControl      EventType = "EMAIL_QUEUE_CONTROL"
)

// AuditLogger defines the contract for append-only audit logging.
// actor is the session identifier (email or phone number) or "system".
type AuditLogger interface {
	Log(ctx context.Context, actor string, action EventType, resource string, metadata map[string]string)
}

// JSONAuditLogger writes structured lines with a "log_type" marker so aggregators
// can route them to a separate index.
type JSONAuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewJSONAuditLogger() *JSONAuditLogger {
	return NewJSONAuditLoggerTo(os.Stdout)
}

// NewJSONAuditLoggerTo writes audit lines to w. A separate handler keeps the format
// stable regardless of how the application logger is configured.
func NewJSONAuditLoggerTo(w io.Writer) *JSONAuditLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &JSONAuditLogger{logger: slog.New(handler), now: time.Now}
}

func (l *JSONAuditLogger) Log(ctx context.Context, actor string, action EventType, resource string, metadata map[string]string) {
	fields := []any{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("actor", actor),
		slog.String("action", string(action)),
		slog.String("resource", resource),
		slog.Time("timestamp_utc", l.now().UTC()),
	}

	for k, v := range metadata {
		fields = append(fields, slog.String("meta_"+k, v))
	}

	l.logger.InfoContext(ctx, "audit_event", fields...)
}

// NopAuditLogger discards events.
type NopAuditLogger struct{}

func (NopAuditLogger) Log(context.Context, string, EventType, string, map[string]string) {}
