package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher accepts audit events. Emit is fire-and-forget: sinks log their
// own failures and never block or fail the request that produced the event.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}

// LogPublisher writes events as structured log lines.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	p.logger.LogAttrs(ctx, slog.LevelWarn, "security audit",
		slog.String("action", string(e.Action)),
		slog.String("code", e.Code),
		slog.String("user_id", e.UserID),
		slog.String("policy", e.Policy),
		slog.String("method", e.Method),
		slog.String("path", e.Path),
		slog.String("request_id", e.RequestID),
		slog.String("client_ip", e.ClientIP),
		slog.String("browser", e.Browser),
		slog.String("os", e.OS),
		slog.Time("at", e.Timestamp),
	)
}

// Multi fans an event out to every publisher.
type Multi []Publisher

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, p := range m {
		if p != nil {
			p.Emit(ctx, e)
		}
	}
}

// Recorder keeps events in memory for tests and local inspection.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
