// Package email delivers incident notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
)

const (
	defaultPort        = 587
	defaultBatchSize   = 50
	defaultDialTimeout = 10 * time.Second
)

// ErrNoRecipients is returned when a channel target lists no usable address.
var ErrNoRecipients = errors.New("no valid recipients")

// Config holds email sender configuration.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	BatchSize    int
	DialTimeout  time.Duration
}

// Sender implements email notification sender via SMTP.
type Sender struct {
	config Config
	auth   smtp.Auth
	now    func() time.Time
}

// NewSender creates a new email sender.
func NewSender(config Config) (*Sender, error) {
	if config.SMTPHost == "" {
		return nil, errors.New("email sender: SMTP host is required")
	}
	if config.FromAddress == "" {
		return nil, errors.New("email sender: from address is required")
	}

	if config.SMTPPort == 0 {
		config.SMTPPort = defaultPort
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaultDialTimeout
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"batch_size", config.BatchSize,
	)

	return &Sender{
		config: config,
		auth:   auth,
		now:    time.Now,
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeEmail
}

// Send mails the notification to every address in notification.To.
// The target is a comma separated list; recipients go in the envelope only.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	recipients := parseRecipients(notification.To)
	if len(recipients) == 0 {
		return notifications.NewNonRetryableError(ErrNoRecipients)
	}

	headers := map[string]string{}
	if notification.Payload != nil {
		headers["X-Incident-Number"] = notification.Payload.Incident.Number
		headers["X-Incident-Event"] = string(notification.Payload.MessageType)
	}
	msg := s.buildMessage(notification.Subject, notification.Body, headers)

	logger := ctxlog.FromContext(ctx)
	var errs []error
	for i := 0; i < len(recipients); i += s.config.BatchSize {
		end := min(i+s.config.BatchSize, len(recipients))
		batch := recipients[i:end]

		if err := s.sendEmail(ctx, batch, msg); err != nil {
			logger.Error("failed to send email batch",
				"batch_start", i,
				"batch_size", len(batch),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}

		logger.Debug("email batch sent",
			"batch_start", i,
			"batch_size", len(batch),
		)
	}

	if len(errs) == 0 {
		return nil
	}

	err := errors.Join(errs...)
	if IsRetryable(err) {
		return notifications.NewRetryableError(err)
	}
	return notifications.NewNonRetryableError(err)
}

func parseRecipients(target string) []string {
	var recipients []string
	for _, addr := range strings.Split(target, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(subject, body string, extra map[string]string) []byte {
	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", s.config.FromAddress)
	msg.WriteString("To: undisclosed-recipients:;\r\n")
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	for _, key := range []string{"X-Incident-Number", "X-Incident-Event"} {
		if v, ok := extra[key]; ok && v != "" {
			fmt.Fprintf(&msg, "%s: %s\r\n", key, v)
		}
	}
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(msg.String())
}

// sendEmail delivers msg to recipients in one SMTP session, using STARTTLS
// when the server offers it.
func (s *Sender) sendEmail(ctx context.Context, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(s.config.SMTPHost, fmt.Sprint(s.config.SMTPPort))

	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: s.config.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	var accepted int
	var lastRcptErr error
	for _, rcpt := range recipients {
		if err := client.Rcpt(extractEmail(rcpt)); err != nil {
			ctxlog.FromContext(ctx).Warn("recipient rejected", "error", err)
			lastRcptErr = err
			continue
		}
		accepted++
	}
	if accepted == 0 {
		if lastRcptErr != nil {
			return fmt.Errorf("%w: %w", ErrNoRecipients, lastRcptErr)
		}
		return ErrNoRecipients
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

// IsRetryable reports whether an SMTP delivery error is worth retrying:
// network failures and 4xx replies are, 5xx replies are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
