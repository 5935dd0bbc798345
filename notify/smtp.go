package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig holds mail transport settings. Incomplete settings disable
// the sink: the caller checks Configured and skips sending with a warning.
type SMTPConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	From          string   `yaml:"from"`
	Recipients    []string `yaml:"recipients"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// Configured reports whether the settings are complete enough to send.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != "" && len(c.Recipients) > 0
}

func (c *SMTPConfig) defaults() {
	if c.Port <= 0 {
		c.Port = 587
	}
}

// sendFunc matches smtp.SendMail, injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends one message per configured recipient. A recipient's failure
// is logged with identity and reason and does not prevent attempting the
// remaining recipients. Cancellation stops before the next recipient;
// messages already sent stay sent.
type SMTP struct {
	cfg    SMTPConfig
	logger *slog.Logger
	send   sendFunc
}

// SMTPOption configures an SMTP sink.
type SMTPOption func(*SMTP)

// WithSendFunc overrides the transport function. Tests use this to avoid
// a real SMTP server.
func WithSendFunc(fn sendFunc) SMTPOption {
	return func(s *SMTP) { s.send = fn }
}

// NewSMTP creates an SMTP sink from config.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger, opts ...SMTPOption) *SMTP {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &SMTP{cfg: cfg, logger: logger, send: smtp.SendMail}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SMTP) SendRemoved(ctx context.Context, r Report) error {
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	subject := fmt.Sprintf("%s%d layout(s) removed from %s",
		s.cfg.SubjectPrefix, len(r.Removed), r.Collection)
	body := buildBody(r)

	var firstErr error
	for _, rcpt := range s.cfg.Recipients {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		msg := formatMessage(s.cfg.From, rcpt, subject, body)
		if err := s.send(addr, auth, s.cfg.From, []string{rcpt}, msg); err != nil {
			s.logger.Warn("notify: smtp send failed", "recipient", rcpt, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logger.Info("notify: removal report sent", "recipient", rcpt, "removed", len(r.Removed))
	}
	return firstErr
}

func (s *SMTP) Close() error { return nil }

func buildBody(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following layouts are no longer present in collection %q:\r\n\r\n", r.Collection)
	for _, e := range r.Removed {
		fmt.Fprintf(&b, "  %s (%s)\r\n", e.Label, e.Key)
	}
	fmt.Fprintf(&b, "\r\nObserved at %s.\r\n", r.ObservedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func formatMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
