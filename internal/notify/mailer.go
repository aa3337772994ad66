// Package notify turns application events into queued emails.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/Jeffreasy/LaventeCareGateway/internal/mailer"
)

// Enqueuer is the producer side of the email queue.
type Enqueuer interface {
	QueueEmail(to, cc, bcc []string, subject, message string, isHTML bool) (string, bool)
}

var loginOTPTemplate = template.Must(template.New("login_otp").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<p>Hello{{if .Name}} {{.Name}}{{end}},</p>
<p>Your LaventeCare login code is:</p>
<p style="font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
<p>The code expires in {{.Minutes}} minutes. If you did not try to log in, you can ignore this email.</p>
</body>
</html>
`))

// QueueMailer hands emails to the background queue. It never waits for SMTP.
type QueueMailer struct {
	queue      Enqueuer
	logger     *slog.Logger
	otpMinutes int
}

func NewQueueMailer(queue Enqueuer, logger *slog.Logger) *QueueMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueMailer{queue: queue, logger: logger, otpMinutes: 5}
}

// SendLoginOTP queues the one-time password email. A full queue is logged and
// swallowed: the login attempt itself still succeeds.
func (m *QueueMailer) SendLoginOTP(ctx context.Context, to, name, code string) error {
	var body bytes.Buffer
	err := loginOTPTemplate.Execute(&body, struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, m.otpMinutes})
	if err != nil {
		return fmt.Errorf("render login otp email: %w", err)
	}

	id, accepted := m.queue.QueueEmail([]string{to}, nil, nil, "Your LaventeCare login code", body.String(), true)
	if !accepted {
		m.logger.WarnContext(ctx, "login_otp_email_dropped", "to_hash", mailer.HashRecipient(to))
		return nil
	}

	m.logger.InfoContext(ctx, "login_otp_email_queued", "task_id", id, "to_hash", mailer.HashRecipient(to))
	return nil
}
