package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chapel/internal/newsletter/models"
	"chapel/pkg/platform/sentinel"
)

// InMemoryStore keys subscribers by lower-cased email.
type InMemoryStore struct {
	mu   sync.RWMutex
	subs map[string]models.Subscriber

	// ListCalls counts ListActive invocations.
	ListCalls int
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{subs: make(map[string]models.Subscriber)}
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]models.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++

	out := make([]models.Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.Active {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Subscribe(_ context.Context, email, name string, now time.Time) (*models.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[email]
	if !ok {
		sub = models.Subscriber{ID: uuid.New(), Email: email, CreatedAt: now}
	}
	if name != "" {
		sub.Name = name
	}
	sub.Active = true
	sub.UpdatedAt = now
	s.subs[email] = sub
	return &sub, nil
}

func (s *InMemoryStore) Unsubscribe(_ context.Context, email string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[email]
	if !ok {
		return sentinel.ErrNotFound
	}
	sub.Active = false
	sub.UpdatedAt = now
	s.subs[email] = sub
	return nil
}
