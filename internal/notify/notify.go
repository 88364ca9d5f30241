// Package notify delivers verification and password-reset links to users.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/example/authcore/internal/apperr"
)

type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

type Recipient struct {
	Email string
	Name  string
}

// Message is one outbound link-bearing email.
type Message struct {
	To      []Recipient
	Subject string
	Link    string
	Kind    Kind
}

// Notifier sends a message. Failures wrap apperr.ErrNotifier.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

var templates = template.Must(template.New(string(KindVerification)).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4;">
  <div style="max-width: 600px; margin: 40px auto; background: #ffffff; padding: 20px; border-radius: 8px; text-align: center;">
    <p>Hello, <strong>{{.Name}}</strong>!<br>Thanks for signing up. Use the button below to verify your email address.</p>
    <a href="{{.Link}}" style="display: inline-block; background: #007bff; color: #ffffff; padding: 12px 24px; border-radius: 5px; text-decoration: none;">Verify email</a>
    <p style="font-size: 12px; color: #777;">The link expires in 15 minutes. If you did not sign up, ignore this email.</p>
  </div>
</body>
</html>
`))

func init() {
	template.Must(templates.New(string(KindPasswordReset)).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4;">
  <div style="max-width: 600px; margin: 40px auto; background: #ffffff; padding: 20px; border-radius: 8px; text-align: center;">
    <p>Hello, <strong>{{.Name}}</strong>!<br>We received a request to reset your password.</p>
    <a href="{{.Link}}" style="display: inline-block; background: #007bff; color: #ffffff; padding: 12px 24px; border-radius: 5px; text-decoration: none;">Reset password</a>
    <p style="font-size: 12px; color: #777;">The link expires in 15 minutes. If you did not ask for a reset, ignore this email.</p>
  </div>
</body>
</html>
`))
}

// Render returns the HTML body for msg.
func Render(msg Message) (string, error) {
	t := templates.Lookup(string(msg.Kind))
	if t == nil {
		return "", fmt.Errorf("%w: unknown message kind %q", apperr.ErrNotifier, msg.Kind)
	}
	var name string
	if len(msg.To) > 0 {
		name = msg.To[0].Name
	}
	var buf bytes.Buffer
	err := t.Execute(&buf, struct {
		Subject, Name, Link string
	}{msg.Subject, name, msg.Link})
	if err != nil {
		return "", fmt.Errorf("%w: render: %v", apperr.ErrNotifier, err)
	}
	return buf.String(), nil
}

// Log writes messages to the logger instead of sending them. It is meant for
// development, where the link is copied from the log.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("%w: no recipients", apperr.ErrNotifier)
	}
	if _, err := Render(msg); err != nil {
		return err
	}
	l.log.InfoContext(ctx, "email not sent, logging instead",
		"kind", msg.Kind,
		"to", msg.To[0].Email,
		"subject", msg.Subject,
		"link", msg.Link,
	)
	return nil
}
