// Package notify renders and sends quote emails and keeps an audit trail of
// every send attempt.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	mail "gopkg.in/mail.v2"
)

// ErrNotConfigured is returned by NopMailer.
var ErrNotConfigured = errors.New("smtp not configured")

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	ReplyTo     string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NopMailer stands in when SMTP is not configured. Every send fails with
// ErrNotConfigured so the audit log shows the gap.
type NopMailer struct{}

func (NopMailer) Send(context.Context, Message) error { return ErrNotConfigured }

type SMTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SMTPMailer sends through a single SMTP relay with STARTTLS when offered.
type SMTPMailer struct {
	dialer   *mail.Dialer
	from     string
	fromName string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.Timeout = cfg.Timeout
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return &SMTPMailer{dialer: d, from: cfg.FromEmail, fromName: cfg.FromName}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	if err := m.dialer.DialAndSend(m.build(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) build(msg Message) *mail.Message {
	out := mail.NewMessage()
	out.SetAddressHeader("From", m.from, m.fromName)
	out.SetHeader("To", msg.To...)
	if msg.ReplyTo != "" {
		out.SetHeader("Reply-To", msg.ReplyTo)
	}
	out.SetHeader("Subject", msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		out.SetBody("text/plain", msg.Text)
		out.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		out.SetBody("text/html", msg.HTML)
	default:
		out.SetBody("text/plain", msg.Text)
	}
	for _, a := range msg.Attachments {
		data := a.Data
		settings := []mail.FileSetting{
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		}
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		out.Attach(a.Filename, settings...)
	}
	return out
}

// Recipients joins msg.To for logging and the audit trail.
func (msg Message) Recipients() string {
	return strings.Join(msg.To, ", ")
}
