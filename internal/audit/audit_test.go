package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"chapel/pkg/requestcontext"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	f.records = append(f.records, r)
	f.mu.Unlock()
	promise(r, f.err)
}

func (f *fakeProducer) Flush(context.Context) error { return nil }

func (f *fakeProducer) Close() { f.closed = true }

func TestWithRequestEnrichesFromContext(t *testing.T) {
	at := time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithTime(ctx, at)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	e := Event{Action: ActionGateRejected, Code: "NOT_ADMIN"}.WithRequest(ctx, "POST", "/api/upload")

	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "203.0.113.7", e.ClientIP)
	assert.Equal(t, "Chrome", e.Browser)
	assert.NotEmpty(t, e.OS)
	assert.Equal(t, "/api/upload", e.Path)
}

func TestKafkaPublisherProducesJSON(t *testing.T) {
	fp := &fakeProducer{}
	p := newKafkaPublisher(fp, "chapel.security-audit", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	p.Emit(context.Background(), Event{Action: ActionPromoteGranted, UserID: "u-1", Role: "admin"})
	p.Close(context.Background())

	require.Len(t, fp.records, 1)
	rec := fp.records[0]
	assert.Equal(t, "chapel.security-audit", rec.Topic)
	assert.Equal(t, []byte("u-1"), rec.Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, ActionPromoteGranted, decoded.Action)
	assert.False(t, decoded.Timestamp.IsZero())
	assert.True(t, fp.closed)
}

func TestKafkaPublisherLogsProduceFailure(t *testing.T) {
	var buf bytes.Buffer
	fp := &fakeProducer{err: errors.New("broker down")}
	p := newKafkaPublisher(fp, "t", slog.New(slog.NewTextHandler(&buf, nil)))

	assert.NotPanics(t, func() { p.Emit(context.Background(), Event{Action: ActionGateFailed}) })
	assert.Contains(t, buf.String(), "broker down")
}

func TestMultiAndRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := &Recorder{}
	m := Multi{NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil))), nil, rec}

	m.Emit(context.Background(), Event{Action: ActionGateRejected, Code: "TOKEN_INVALID"})

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "TOKEN_INVALID", rec.Events()[0].Code)
	assert.Contains(t, buf.String(), "security audit")
	assert.Contains(t, buf.String(), "TOKEN_INVALID")
}
