package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/textproto"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"chapel/pkg/platform/sentinel"
)

// BreakerSettings tunes the circuit breaker around a Sender.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// BreakerSender fails fast once the wrapped sender keeps failing.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(next Sender, settings BreakerSettings, logger *slog.Logger) *BreakerSender {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "newsletter-smtp",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || RecipientRejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerSender{next: next, cb: cb}
}

func (s *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return err
}

// State reports the breaker state for health output.
func (s *BreakerSender) State() gobreaker.State {
	return s.cb.State()
}

// RecipientRejected reports a permanent SMTP rejection of one mailbox
// (550 unavailable, 551 not local, 552 over quota, 553 bad name). The relay
// itself is healthy, so these never count toward opening the breaker.
func RecipientRejected(err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	switch tpErr.Code {
	case 550, 551, 552, 553:
		return true
	default:
		return false
	}
}
