package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapel/pkg/platform/sentinel"
)

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
	)
	s := NewSMTP(SMTPConfig{Host: "smtp.example.org", Port: 587, Username: "u", Password: "p", From: "news@Church.KR"})
	s.now = func() time.Time { return time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC) }
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "grace@example.org", Subject: "부활절 예배", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.Equal(t, "news@Church.KR", gotFrom)
	assert.Equal(t, []string{"grace@example.org"}, gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "To: grace@example.org\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "Date: Sun, 05 Apr 2026 09:00:00 +0000\r\n")
	assert.Regexp(t, `Message-ID: <[0-9a-f-]{36}@church\.kr>`, raw)
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "localhost", Port: 25, From: "a@b.c"})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not dial after cancellation")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "x@y.z"}), context.Canceled)
}

type flakySender struct {
	calls int
	err   error
}

func (f *flakySender) Send(context.Context, Message) error {
	f.calls++
	return f.err
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakySender{err: errors.New("connection refused")}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	b := NewBreaker(next, BreakerSettings{FailureThreshold: 2, OpenTimeout: time.Minute}, logger)

	for range 2 {
		assert.Error(t, b.Send(context.Background(), Message{}))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, 2, next.calls, "open breaker must not call the relay")
}

func TestBreakerIgnoresRecipientRejections(t *testing.T) {
	rejected := fmt.Errorf("smtp send to gone@church.kr: %w", &textproto.Error{Code: 550, Msg: "mailbox unavailable"})
	next := &flakySender{err: rejected}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	b := NewBreaker(next, BreakerSettings{FailureThreshold: 2, OpenTimeout: time.Minute}, logger)

	for range 5 {
		err := b.Send(context.Background(), Message{To: "gone@church.kr"})
		assert.ErrorIs(t, err, rejected)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 5, next.calls)
}

func TestRecipientRejected(t *testing.T) {
	assert.True(t, RecipientRejected(&textproto.Error{Code: 553, Msg: "bad address"}))
	assert.False(t, RecipientRejected(&textproto.Error{Code: 535, Msg: "authentication failed"}))
	assert.False(t, RecipientRejected(&textproto.Error{Code: 421, Msg: "try later"}))
	assert.False(t, RecipientRejected(errors.New("connection refused")))
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, s.Send(context.Background(), Message{To: "a@b.c", Subject: "Hello"}))
	assert.Contains(t, buf.String(), "subject=Hello")
}

func TestRenderNewsletterEscapesContent(t *testing.T) {
	html, err := RenderNewsletter("Easter <b>", "first\n\nsecond <script>", "event", "Grace")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Easter &lt;b&gt;</h1>")
	assert.Contains(t, html, "<p>first</p>")
	assert.Contains(t, html, "<p>second &lt;script&gt;</p>")
	assert.Contains(t, html, "Sent to Grace")
}
