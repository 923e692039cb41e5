package store

import (
	"context"
	"strings"
	"sync"

	"chapel/internal/authz/models"
	"chapel/pkg/platform/sentinel"
)

// InMemoryStore backs local development and tests. Either table can be
// marked missing to reproduce an unprovisioned deployment.
type InMemoryStore struct {
	mu             sync.RWMutex
	admins         map[string]models.AdminUser
	profiles       map[string]models.Profile
	adminsMissing  bool
	profileMissing bool
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		admins:   make(map[string]models.AdminUser),
		profiles: make(map[string]models.Profile),
	}
}

// DropAdminTable makes every admin_users call fail with sentinel.ErrTableMissing.
func (s *InMemoryStore) DropAdminTable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminsMissing = true
}

// DropProfileTable makes every profiles call fail with sentinel.ErrTableMissing.
func (s *InMemoryStore) DropProfileTable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileMissing = true
}

func (s *InMemoryStore) FindAdmin(_ context.Context, userID string) (*models.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adminsMissing {
		return nil, sentinel.ErrTableMissing
	}
	a, ok := s.admins[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s *InMemoryStore) UpsertAdmin(_ context.Context, admin models.AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adminsMissing {
		return sentinel.ErrTableMissing
	}
	s.admins[admin.ID] = admin
	return nil
}

func (s *InMemoryStore) FindProfile(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profileMissing {
		return nil, sentinel.ErrTableMissing
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) FindProfileByEmail(_ context.Context, email string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profileMissing {
		return nil, sentinel.ErrTableMissing
	}
	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, email) {
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// SaveProfile inserts or replaces a profile row.
func (s *InMemoryStore) SaveProfile(_ context.Context, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileMissing {
		return sentinel.ErrTableMissing
	}
	s.profiles[profile.ID] = profile
	return nil
}
