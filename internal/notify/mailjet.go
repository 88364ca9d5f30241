package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/mailjet/mailjet-apiv3-go/v4"
)

type MailjetConfig struct {
	APIKey    string
	SecretKey string
	FromEmail string
	FromName  string
	Timeout   time.Duration
	// BaseURL overrides the API root, e.g. "https://api.mailjet.com/v3".
	BaseURL string
}

// Mailjet sends messages through the Mailjet v3.1 send API.
type Mailjet struct {
	from    mailjet.RecipientV31
	timeout time.Duration
	send    func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)
}

func NewMailjet(cfg MailjetConfig) *Mailjet {
	var base []string
	if cfg.BaseURL != "" {
		base = append(base, cfg.BaseURL)
	}
	client := mailjet.NewMailjetClient(cfg.APIKey, cfg.SecretKey, base...)
	// bounds the request itself, not just the wait for it
	client.SetClient(&http.Client{Timeout: cfg.Timeout})
	return &Mailjet{
		from:    mailjet.RecipientV31{Email: cfg.FromEmail, Name: cfg.FromName},
		timeout: cfg.Timeout,
		send: func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(m)
		},
	}
}

func (m *Mailjet) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("%w: no recipients", apperr.ErrNotifier)
	}
	html, err := Render(msg)
	if err != nil {
		return err
	}

	to := make(mailjet.RecipientsV31, 0, len(msg.To))
	for _, r := range msg.To {
		to = append(to, mailjet.RecipientV31{Email: r.Email, Name: r.Name})
	}
	from := m.from
	payload := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:     &from,
		To:       &to,
		Subject:  msg.Subject,
		HTMLPart: html,
		CustomID: string(msg.Kind),
	}}}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	// the client takes no context, so the deadline is enforced around it
	type result struct {
		res *mailjet.ResultsV31
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := m.send(payload)
		done <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", apperr.ErrNotifier, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w: mailjet: %v", apperr.ErrNotifier, r.err)
		}
		for _, res := range r.res.ResultsV31 {
			if res.Status != "success" {
				return fmt.Errorf("%w: mailjet status %q", apperr.ErrNotifier, res.Status)
			}
		}
		return nil
	}
}
