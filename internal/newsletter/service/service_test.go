package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chapel/internal/newsletter/models"
	"chapel/internal/newsletter/sender"
	"chapel/internal/newsletter/store"
	dErrors "chapel/pkg/domain-errors"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []sender.Message
	failFor map[string]bool
	onSend  func()
}

func (r *recordingSender) Send(_ context.Context, msg sender.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onSend != nil {
		r.onSend()
	}
	if r.failFor[msg.To] {
		return errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

type deliveryCounter map[string]int

func (d deliveryCounter) ObserveNewsletterDelivery(result string) { d[result]++ }

type brokenStore struct{ *store.InMemoryStore }

func (brokenStore) ListActive(context.Context) ([]models.Subscriber, error) {
	return nil, errors.New("relation does not exist")
}

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	sender  *recordingSender
	metrics deliveryCounter
	svc     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.sender = &recordingSender{failFor: map[string]bool{}}
	s.metrics = deliveryCounter{}
	s.svc = New(s.store, s.sender, WithMetrics(s.metrics))
}

func (s *ServiceSuite) subscribe(emails ...string) {
	for _, e := range emails {
		_, err := s.svc.Subscribe(context.Background(), e, "")
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) TestSendCountsFailures() {
	s.subscribe("a@church.kr", "b@church.kr", "c@church.kr")
	s.sender.failFor["b@church.kr"] = true

	got, err := s.svc.Send(context.Background(), models.Newsletter{Title: "Weekly", Content: "Hello"})
	s.Require().NoError(err)
	s.Equal(models.Delivery{Sent: 2, Failed: 1, Total: 3}, got)
	s.Equal(2, s.metrics[ResultSent])
	s.Equal(1, s.metrics[ResultFailed])
	s.Equal("Weekly", s.sender.sent[0].Subject)
}

func (s *ServiceSuite) TestSendSkipsInactive() {
	s.subscribe("a@church.kr", "b@church.kr")
	s.Require().NoError(s.svc.Unsubscribe(context.Background(), "B@Church.kr"))

	got, err := s.svc.Send(context.Background(), models.Newsletter{Title: "t", Content: "c"})
	s.Require().NoError(err)
	s.Equal(1, got.Total)
}

func (s *ServiceSuite) TestSendWithNoSubscribers() {
	got, err := s.svc.Send(context.Background(), models.Newsletter{Title: "t", Content: "c"})
	s.Require().NoError(err)
	s.Equal(models.Delivery{}, got)
}

func (s *ServiceSuite) TestSubscriberLoadFailureIsInternal() {
	svc := New(brokenStore{store.NewInMemory()}, s.sender)
	_, err := svc.Send(context.Background(), models.Newsletter{Title: "t", Content: "c"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Empty(s.sender.sent)
}

func (s *ServiceSuite) TestSendStopsOnCancellation() {
	s.subscribe("a@church.kr", "b@church.kr", "c@church.kr")
	ctx, cancel := context.WithCancel(context.Background())
	s.sender.onSend = cancel

	got, err := s.svc.Send(ctx, models.Newsletter{Title: "t", Content: "c"})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(1, got.Sent)
	s.Equal(3, got.Total)
}

func (s *ServiceSuite) TestSendIsPaced() {
	s.subscribe("a@church.kr", "b@church.kr", "c@church.kr")
	svc := New(s.store, s.sender, WithSendInterval(20*time.Millisecond))

	start := time.Now()
	_, err := svc.Send(context.Background(), models.Newsletter{Title: "t", Content: "c"})
	s.Require().NoError(err)
	s.GreaterOrEqual(time.Since(start), 35*time.Millisecond)
}

func (s *ServiceSuite) TestSubscribeReactivatesAndNormalises() {
	first, err := s.svc.Subscribe(context.Background(), "  Grace@Church.KR ", "Grace")
	s.Require().NoError(err)
	s.Equal("grace@church.kr", first.Email)

	s.Require().NoError(s.svc.Unsubscribe(context.Background(), "grace@church.kr"))
	again, err := s.svc.Subscribe(context.Background(), "grace@church.kr", "")
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.True(again.Active)
	s.Equal("Grace", again.Name)
}

func (s *ServiceSuite) TestUnsubscribeUnknownIsSilent() {
	s.NoError(s.svc.Unsubscribe(context.Background(), "nobody@church.kr"))
}
