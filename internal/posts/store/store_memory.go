package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"chapel/internal/posts/models"
	"chapel/pkg/platform/sentinel"
)

// InMemoryStore keeps posts in a map. Reads return copies.
type InMemoryStore struct {
	mu    sync.RWMutex
	posts map[uuid.UUID]models.Post
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{posts: make(map[uuid.UUID]models.Post)}
}

func (s *InMemoryStore) Create(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.posts[post.ID]; exists {
		return sentinel.ErrConflict
	}
	s.posts[post.ID] = clonePost(*post)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clonePost(p)
	return &out, nil
}

func (s *InMemoryStore) List(_ context.Context, f models.ListFilter) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Post, 0)
	for _, p := range s.posts {
		if !matches(p, f) {
			continue
		}
		c := clonePost(p)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.posts[post.ID] = clonePost(*post)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func matches(p models.Post, f models.ListFilter) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, p.Type) {
		return false
	}
	if len(f.Categories) > 0 && !containsString(f.Categories, p.Category) {
		return false
	}
	return true
}

// newerFirst orders by published_at desc (unpublished last), then created_at desc.
func newerFirst(a, b *models.Post) bool {
	switch {
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.After(*b.PublishedAt)
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return true
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return false
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func containsType(types []models.Type, t models.Type) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func clonePost(p models.Post) models.Post {
	if p.Attachments != nil {
		p.Attachments = append([]string(nil), p.Attachments...)
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		p.PublishedAt = &t
	}
	if p.ScheduledFor != nil {
		t := *p.ScheduledFor
		p.ScheduledFor = &t
	}
	return p
}
