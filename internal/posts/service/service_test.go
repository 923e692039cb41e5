package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chapel/internal/posts/models"
	"chapel/internal/posts/store"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/requestcontext"
)

type fakeCache struct {
	entries     map[string][]*models.Post
	invalidated int
	failInvalid bool
}

func (c *fakeCache) Fetch(ctx context.Context, key string, load func(context.Context) ([]*models.Post, error)) ([]*models.Post, error) {
	if posts, ok := c.entries[key]; ok {
		return posts, nil
	}
	posts, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.entries[key] = posts
	return posts, nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	c.entries = map[string][]*models.Post{}
	if c.failInvalid {
		return errors.New("redis down")
	}
	return nil
}

type countingMetrics struct{ created int }

func (m *countingMetrics) IncrementPostsCreated() { m.created++ }

type failingStore struct{ *store.InMemoryStore }

func (failingStore) List(context.Context, models.ListFilter) ([]*models.Post, error) {
	return nil, errors.New("connection reset")
}

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	cache   *fakeCache
	metrics *countingMetrics
	svc     *Service
	now     time.Time
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.cache = &fakeCache{entries: map[string][]*models.Post{}}
	s.metrics = &countingMetrics{}
	s.svc = New(s.store, WithCache(s.cache), WithMetrics(s.metrics))
	s.now = time.Date(2026, 4, 5, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) mustCreate(cmd CreateCommand) *models.Post {
	if cmd.Title == "" {
		cmd.Title = "title"
	}
	if cmd.Content == "" {
		cmd.Content = "content"
	}
	if cmd.Type == "" {
		cmd.Type = string(models.TypeAnnouncement)
	}
	if cmd.Status == "" {
		cmd.Status = string(models.StatusDraft)
	}
	post, err := s.svc.Create(s.ctx, cmd, Author{Email: "admin@church.kr", Name: "Admin"})
	s.Require().NoError(err)
	return post
}

func (s *ServiceSuite) TestCreatePublishedStampsRequestTime() {
	post := s.mustCreate(CreateCommand{Status: "published"})

	s.Require().NotNil(post.PublishedAt)
	s.Equal(s.now, *post.PublishedAt)
	s.Equal(s.now, post.CreatedAt)
	s.Equal(1, s.metrics.created)
	s.Equal(1, s.cache.invalidated)
}

func (s *ServiceSuite) TestCreateDraftLeavesPublishedAtNil() {
	post := s.mustCreate(CreateCommand{})
	s.Nil(post.PublishedAt)
	s.Equal([]string{}, post.Attachments)
}

func (s *ServiceSuite) TestCreateExplicitAuthorWins() {
	post := s.mustCreate(CreateCommand{AuthorEmail: "guest@church.kr"})
	s.Equal("guest@church.kr", post.AuthorEmail)
	s.Equal("Admin", post.AuthorName)
}

func (s *ServiceSuite) TestCreateScheduled() {
	s.Run("future time", func() {
		at := s.now.Add(24 * time.Hour)
		post := s.mustCreate(CreateCommand{Status: "scheduled", ScheduledFor: &at})
		s.Equal(models.StatusScheduled, post.Status)
		s.Nil(post.PublishedAt)
		s.Equal(at, *post.ScheduledFor)
	})
	s.Run("past time", func() {
		at := s.now.Add(-time.Minute)
		_, err := s.svc.Create(s.ctx, CreateCommand{Title: "t", Content: "c", Type: "event", Status: "scheduled", ScheduledFor: &at}, Author{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestListAnnouncementsUsesCache() {
	s.mustCreate(CreateCommand{Status: "published"})
	first, err := s.svc.ListAnnouncements(s.ctx, "")
	s.Require().NoError(err)
	s.Len(first, 1)

	// A store write that bypasses the service is not visible until invalidation.
	hidden := &models.Post{Title: "direct", Type: models.TypeEvent, Status: models.StatusPublished}
	hidden.ID = first[0].ID
	hidden.ID[0] ^= 0xff
	s.Require().NoError(s.store.Create(s.ctx, hidden))

	cached, err := s.svc.ListAnnouncements(s.ctx, "")
	s.Require().NoError(err)
	s.Len(cached, 1)

	s.mustCreate(CreateCommand{Status: "published"})
	fresh, err := s.svc.ListAnnouncements(s.ctx, "")
	s.Require().NoError(err)
	s.Len(fresh, 3)
}

func (s *ServiceSuite) TestListResourcesRejectsOtherCategories() {
	_, err := s.svc.ListResources(s.ctx, "youth")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestListResourcesFiltersCategory() {
	s.mustCreate(CreateCommand{Type: "general", Category: "bible", Status: "published"})
	s.mustCreate(CreateCommand{Type: "general", Category: "sunday", Status: "published"})

	posts, err := s.svc.ListResources(s.ctx, "bible")
	s.Require().NoError(err)
	s.Require().Len(posts, 1)
	s.Equal("bible", posts[0].Category)
}

func (s *ServiceSuite) TestListStoreFailureIsInternal() {
	svc := New(failingStore{store.NewInMemory()})
	_, err := svc.ListAnnouncements(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestRepublishOnlyStampsOnce() {
	post := s.mustCreate(CreateCommand{Status: "published"})

	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	_, err := s.svc.UpdateStatus(later, post.ID, "draft", nil)
	s.Require().NoError(err)
	updated, err := s.svc.UpdateStatus(later, post.ID, "published", nil)
	s.Require().NoError(err)
	s.Require().NotNil(updated.PublishedAt)
	s.Equal(s.now.Add(time.Hour), *updated.PublishedAt)
	s.Equal(s.now.Add(time.Hour), updated.UpdatedAt)

	again, err := s.svc.UpdateStatus(requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour)), post.ID, "published", nil)
	s.Require().NoError(err)
	s.Equal(s.now.Add(time.Hour), *again.PublishedAt)
}

func (s *ServiceSuite) TestUpdateStatusUnknownPost() {
	post := s.mustCreate(CreateCommand{})
	s.Require().NoError(s.svc.Delete(s.ctx, post.ID))

	_, err := s.svc.UpdateStatus(s.ctx, post.ID, "published", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestInvalidationFailureDoesNotFailWrite() {
	s.cache.failInvalid = true
	post := s.mustCreate(CreateCommand{})
	s.NotNil(post)
}

func (s *ServiceSuite) TestListAllStatusFilter() {
	s.mustCreate(CreateCommand{})
	s.mustCreate(CreateCommand{Status: "published"})

	all, err := s.svc.ListAll(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	_, err = s.svc.ListAll(s.ctx, "archived")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
