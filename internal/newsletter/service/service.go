// Package service sends newsletters and manages subscriptions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chapel/internal/newsletter/models"
	"chapel/internal/newsletter/sender"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/sentinel"
	"chapel/pkg/requestcontext"
)

// Delivery outcomes reported to Metrics.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

type Store interface {
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	Subscribe(ctx context.Context, email, name string, now time.Time) (*models.Subscriber, error)
	Unsubscribe(ctx context.Context, email string, now time.Time) error
}

type Metrics interface {
	ObserveNewsletterDelivery(result string)
}

type Service struct {
	store    Store
	sender   sender.Sender
	metrics  Metrics
	logger   *slog.Logger
	interval time.Duration
}

type Option func(*Service)

// WithSendInterval spaces consecutive sends. Zero sends without pacing.
func WithSendInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(store Store, snd sender.Sender, opts ...Option) *Service {
	s := &Service{store: store, sender: snd, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers n to every active subscriber, one message at a time.
// Individual failures are counted. Cancellation stops the run and returns
// the counts so far alongside a timeout error.
func (s *Service) Send(ctx context.Context, n models.Newsletter) (models.Delivery, error) {
	requestID := requestcontext.RequestID(ctx)
	subs, err := s.store.ListActive(ctx)
	if err != nil {
		return models.Delivery{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscribers")
	}

	limit := rate.Inf
	if s.interval > 0 {
		limit = rate.Every(s.interval)
	}
	limiter := rate.NewLimiter(limit, 1)
	if deadline, ok := ctx.Deadline(); ok && s.interval > 0 && len(subs) > 1 {
		if need := time.Duration(len(subs)-1) * s.interval; time.Until(deadline) < need {
			s.logger.WarnContext(ctx, "newsletter run cannot finish before the request deadline",
				"request_id", requestID,
				"subscribers", len(subs),
				"needed", need,
				"remaining", time.Until(deadline),
			)
		}
	}

	result := models.Delivery{Total: len(subs)}
	for _, sub := range subs {
		if err := limiter.Wait(ctx); err != nil {
			s.logger.WarnContext(ctx, "newsletter delivery interrupted",
				"request_id", requestID,
				"sent", result.Sent,
				"failed", result.Failed,
				"total", result.Total,
				"error", err,
			)
			return result, dErrors.Wrap(err, dErrors.CodeTimeout, "newsletter delivery interrupted")
		}

		if err := s.deliver(ctx, n, sub); err != nil {
			result.Failed++
			s.observe(ResultFailed)
			s.logger.WarnContext(ctx, "newsletter delivery failed",
				"request_id", requestID,
				"subscriber_id", sub.ID,
				"error", err,
			)
			continue
		}
		result.Sent++
		s.observe(ResultSent)
	}

	s.logger.InfoContext(ctx, "newsletter sent",
		"request_id", requestID,
		"title", n.Title,
		"sent", result.Sent,
		"failed", result.Failed,
		"total", result.Total,
	)
	return result, nil
}

func (s *Service) deliver(ctx context.Context, n models.Newsletter, sub models.Subscriber) error {
	body, err := sender.RenderNewsletter(n.Title, n.Content, n.Type, sub.Name)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, sender.Message{To: sub.Email, Subject: n.Title, HTML: body})
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.ObserveNewsletterDelivery(result)
	}
}

// Subscribe adds or reactivates an address. Emails are stored lower-cased.
func (s *Service) Subscribe(ctx context.Context, email, name string) (*models.Subscriber, error) {
	sub, err := s.store.Subscribe(ctx, normalize(email), strings.TrimSpace(name), requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to subscribe")
	}
	return sub, nil
}

// Unsubscribe deactivates an address. Unknown addresses are not reported so
// the endpoint cannot be used to enumerate the list.
func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	err := s.store.Unsubscribe(ctx, normalize(email), requestcontext.Now(ctx).UTC())
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unsubscribe")
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
