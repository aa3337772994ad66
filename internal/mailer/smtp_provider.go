package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	TLSModeStartTLS = "starttls"
	TLSModeTLS      = "tls"
)

var ErrNoRecipients = errors.New("email task has no recipients")

// SMTPConfig is the outbound mail server.
type SMTPConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	From         string
	TLSMode      string
	ValidateHost bool
}

// SMTPProvider opens one authenticated connection per message. STARTTLS is used on
// submission ports, implicit TLS when TLSMode is "tls" or the port is 465.
type SMTPProvider struct {
	cfg  SMTPConfig
	from *mail.Address
}

func NewSMTPProvider(cfg SMTPConfig) (*SMTPProvider, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if err := ValidateSMTPPort(cfg.Port); err != nil {
		return nil, err
	}

	from, err := parseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	if cfg.TLSMode == "" {
		cfg.TLSMode = TLSModeStartTLS
		if cfg.Port == 465 {
			cfg.TLSMode = TLSModeTLS
		}
	}
	if cfg.TLSMode != TLSModeStartTLS && cfg.TLSMode != TLSModeTLS {
		return nil, fmt.Errorf("unsupported smtp tls mode %q", cfg.TLSMode)
	}

	return &SMTPProvider{cfg: cfg, from: from}, nil
}

// Send delivers task. The password is never logged and recipients only appear hashed.
func (p *SMTPProvider) Send(ctx context.Context, task EmailTask) error {
	logger := slog.With("task_id", task.ID)

	to, err := parseAddressList(task.To)
	if err != nil {
		return fmt.Errorf("invalid to: %w", err)
	}
	cc, err := parseAddressList(task.Cc)
	if err != nil {
		return fmt.Errorf("invalid cc: %w", err)
	}
	bcc, err := parseAddressList(task.Bcc)
	if err != nil {
		return fmt.Errorf("invalid bcc: %w", err)
	}
	if len(to)+len(cc)+len(bcc) == 0 {
		return ErrNoRecipients
	}

	if p.cfg.ValidateHost {
		if err := ValidateSMTPHost(ctx, p.cfg.Host); err != nil {
			logger.Error("smtp_host_blocked", "host", p.cfg.Host, "error", err)
			return err
		}
	}

	msg, err := p.buildMessage(task, to, cc, time.Now())
	if err != nil {
		return err
	}

	client, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if p.cfg.User != "" {
		auth := smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(p.from.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range concatAddrs(to, cc, bcc) {
		if err := client.Rcpt(rcpt.Address); err != nil {
			return fmt.Errorf("smtp RCPT TO: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}
	if err := client.Quit(); err != nil {
		logger.Debug("smtp_quit_failed", "error", err)
	}

	hashes := make([]string, 0, len(to))
	for _, a := range to {
		hashes = append(hashes, HashRecipient(a.Address))
	}
	logger.Info("smtp_message_sent", "to_hash", hashes, "cc", len(cc), "bcc", len(bcc))
	return nil
}

func (p *SMTPProvider) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	tlsConfig := &tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}
	netDialer := &net.Dialer{Timeout: 10 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLSMode == TLSModeTLS {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if p.cfg.TLSMode == TLSModeStartTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

// buildMessage renders an RFC 5322 message. Bcc recipients only go into the envelope.
func (p *SMTPProvider) buildMessage(task EmailTask, to, cc []*mail.Address, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	contentType := "text/plain; charset=UTF-8"
	if task.IsHTML {
		contentType = "text/html; charset=UTF-8"
	}

	writeHeader(&buf, "From", p.from.String())
	if len(to) > 0 {
		writeHeader(&buf, "To", joinAddrs(to))
	}
	if len(cc) > 0 {
		writeHeader(&buf, "Cc", joinAddrs(cc))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", stripCRLF(task.Subject)))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", fmt.Sprintf("<%s.%d@%s>", task.ID, now.UnixNano(), p.cfg.Host))
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", contentType)
	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(task.Message)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func stripCRLF(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// parseAddress validates a single address. net/mail rejects CR/LF, which closes
// header injection through recipients.
func parseAddress(addr string) (*mail.Address, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("invalid email %q: %w", addr, err)
	}
	if strings.ContainsAny(parsed.Address+parsed.Name, "\r\n") {
		return nil, fmt.Errorf("invalid email %q: line break", addr)
	}
	return parsed, nil
}

func parseAddressList(addrs []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if strings.TrimSpace(a) == "" {
			continue
		}
		parsed, err := parseAddress(a)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

func joinAddrs(addrs []*mail.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func concatAddrs(lists ...[]*mail.Address) []*mail.Address {
	var out []*mail.Address
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
