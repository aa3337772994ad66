// Package mailer delivers email in the background: producers enqueue tasks, one
// worker sends them over SMTP in order.
package mailer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender delivers a single task. Any error counts as a delivery failure.
type Sender interface {
	Send(ctx context.Context, task EmailTask) error
}

// EmailTask is one email waiting in the queue. It lives only in memory.
type EmailTask struct {
	ID        string    `json:"id"`
	To        []string  `json:"to"`
	Cc        []string  `json:"cc,omitempty"`
	Bcc       []string  `json:"bcc,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IsHTML    bool      `json:"isHtml"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewEmailTask stamps a short opaque id and the creation time.
func NewEmailTask(to, cc, bcc []string, subject, message string, isHTML bool) EmailTask {
	return EmailTask{
		ID:        newTaskID(),
		To:        to,
		Cc:        cc,
		Bcc:       bcc,
		Subject:   subject,
		Message:   message,
		IsHTML:    isHTML,
		CreatedAt: time.Now().UTC(),
	}
}

func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Recipients returns every envelope recipient (To, Cc and Bcc).
func (t EmailTask) Recipients() []string {
	all := make([]string, 0, len(t.To)+len(t.Cc)+len(t.Bcc))
	all = append(all, t.To...)
	all = append(all, t.Cc...)
	return append(all, t.Bcc...)
}

// HashRecipient creates a SHA256 hash of an email address so logs can correlate
// deliveries without storing the address.
func HashRecipient(email string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(hash[:])
}

// LogSender is the development sender: it logs what would have been sent.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, task EmailTask) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hashes := make([]string, 0, len(task.To))
	for _, to := range task.To {
		hashes = append(hashes, HashRecipient(to))
	}
	logger.InfoContext(ctx, "dev_email_sent",
		"task_id", task.ID,
		"to_hash", hashes,
		"subject", task.Subject,
		"body", task.Message,
	)
	return nil
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, task EmailTask) error

func (f SenderFunc) Send(ctx context.Context, task EmailTask) error { return f(ctx, task) }
