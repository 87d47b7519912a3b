package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sender delivers a plain text email.
type Sender interface {
	Send(to, subject, body string) error
}

// LogSender writes emails to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Msg("[dev email] " + body)
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (c SMTPConfig) complete() bool {
	return c.Host != "" && c.Port != "" && c.Username != "" && c.Password != "" && c.From != ""
}

type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var ErrNotConfigured = errors.New("smtp not fully configured")

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if !cfg.complete() {
		return nil, ErrNotConfigured
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}, nil
}

// NewSender picks SMTP when it is fully configured and falls back to
// LogSender otherwise.
func NewSender(cfg SMTPConfig) Sender {
	s, err := NewSMTPSender(cfg)
	if err != nil {
		log.Warn().Msg("smtp not configured, invitation emails will be logged")
		return LogSender{}
	}
	return s
}

func (s *SMTPSender) Send(to, subject, body string) error {
	addr := s.cfg.Host + ":" + s.cfg.Port
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	return s.send(addr, auth, s.cfg.From, []string{to}, buildMessage(s.cfg.From, to, subject, body))
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// InvitationEmail renders the notice sent alongside an inbox entry.
func InvitationEmail(kind, entityName, message string) (subject, body string) {
	subject = fmt.Sprintf("MusicRoom: new %s invitation", kind)
	body = fmt.Sprintf("%s\n\nOpen MusicRoom to accept or decline the invitation to %q.", message, entityName)
	return subject, body
}
