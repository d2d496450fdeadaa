package queue

import (
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/apnisec/trackify/internal/config"
)

// Mailer sends plain-text email over SMTP.  A Mailer with an empty address
// is "unconfigured" and Send reports that so the consumer can fall back to
// log-only delivery.
type Mailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, host)
	}
	return &Mailer{addr: cfg.Addr, auth: auth, from: cfg.From}
}

// Configured reports whether an SMTP relay address is set.
func (m *Mailer) Configured() bool { return m.addr != "" }

// Send delivers a single message.  Caller is responsible for retry policy.
func (m *Mailer) Send(to, subject, body string) error {
	if !m.Configured() {
		return fmt.Errorf("smtp not configured")
	}
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n") + "\r\n"
	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg))
}
