package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/authcore/internal/apperr"
	"github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msg = Message{
	To:      []Recipient{{Email: "ada@x.com", Name: "Ada"}},
	Subject: "Verify your email",
	Link:    "http://app.test/register/verify-email?verificationID=abc",
	Kind:    KindVerification,
}

func TestRender(t *testing.T) {
	html, err := Render(msg)
	require.NoError(t, err)
	assert.Contains(t, html, "Ada")
	assert.Contains(t, html, `href="http://app.test/register/verify-email?verificationID=abc"`)

	reset := msg
	reset.Kind = KindPasswordReset
	html, err = Render(reset)
	require.NoError(t, err)
	assert.Contains(t, html, "Reset password")

	evil := msg
	evil.To = []Recipient{{Email: "x@x.com", Name: "<script>"}}
	html, err = Render(evil)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")

	unknown := msg
	unknown.Kind = "welcome"
	_, err = Render(unknown)
	assert.ErrorIs(t, err, apperr.ErrNotifier)
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	n := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), msg))
	assert.Contains(t, buf.String(), "verificationID=abc")
	assert.Contains(t, buf.String(), "ada@x.com")

	err := n.Send(context.Background(), Message{Kind: KindVerification})
	assert.ErrorIs(t, err, apperr.ErrNotifier)
}

func newTestMailjet(send func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)) *Mailjet {
	m := NewMailjet(MailjetConfig{APIKey: "k", SecretKey: "s", FromEmail: "no-reply@x.com", FromName: "Authcore", Timeout: time.Second})
	m.send = send
	return m
}

func TestMailjetPayload(t *testing.T) {
	var got *mailjet.MessagesV31
	m := newTestMailjet(func(p *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		got = p
		return &mailjet.ResultsV31{ResultsV31: []mailjet.ResultV31{{Status: "success"}}}, nil
	})

	require.NoError(t, m.Send(context.Background(), msg))
	require.Len(t, got.Info, 1)
	info := got.Info[0]
	assert.Equal(t, "no-reply@x.com", info.From.Email)
	assert.Equal(t, "ada@x.com", (*info.To)[0].Email)
	assert.Equal(t, "Verify your email", info.Subject)
	assert.Contains(t, info.HTMLPart, "verificationID=abc")
}

func TestMailjetFailures(t *testing.T) {
	failing := newTestMailjet(func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		return nil, errors.New("401 unauthorized")
	})
	assert.ErrorIs(t, failing.Send(context.Background(), msg), apperr.ErrNotifier)

	rejected := newTestMailjet(func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		return &mailjet.ResultsV31{ResultsV31: []mailjet.ResultV31{{Status: "error"}}}, nil
	})
	assert.ErrorIs(t, rejected.Send(context.Background(), msg), apperr.ErrNotifier)

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	slow := newTestMailjet(func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		<-block
		return nil, nil
	})
	slow.timeout = 10 * time.Millisecond
	assert.ErrorIs(t, slow.Send(context.Background(), msg), apperr.ErrNotifier)

	assert.ErrorIs(t, failing.Send(context.Background(), Message{Kind: KindVerification}), apperr.ErrNotifier)
}

func TestMailjetRequestIsBoundedByTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	m := NewMailjet(MailjetConfig{
		APIKey:    "key",
		SecretKey: "secret",
		FromEmail: "noreply@app.test",
		Timeout:   50 * time.Millisecond,
		BaseURL:   srv.URL + "/v3",
	})

	start := time.Now()
	_, err := m.send(&mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{Subject: "hi"}}})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
