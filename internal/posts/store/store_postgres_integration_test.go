//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"chapel/internal/posts/models"
	"chapel/pkg/platform/sentinel"
	"chapel/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "posts"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	published := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := newPost("Easter", models.TypeEvent, "sunday", &published)
	p.CreatedAt = published
	p.UpdatedAt = published

	s.Require().NoError(s.store.Create(ctx, p))
	s.ErrorIs(s.store.Create(ctx, p), sentinel.ErrConflict)

	got, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Title, got.Title)
	s.Equal(p.Attachments, got.Attachments)
	s.Require().NotNil(got.PublishedAt)
	s.True(published.Equal(*got.PublishedAt))
	s.Nil(got.ScheduledFor)
}

func (s *PostgresStoreSuite) TestListFiltersAndOrder() {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	for _, p := range []*models.Post{
		newPost("older", models.TypeAnnouncement, "", &t0),
		newPost("newer", models.TypeEvent, "", &t1),
		newPost("bible", models.TypeGeneral, "bible", &t0),
		newPost("draft", models.TypeAnnouncement, "", nil),
	} {
		s.Require().NoError(s.store.Create(ctx, p))
	}

	got, err := s.store.List(ctx, models.ListFilter{Types: models.AnnouncementTypes, Status: models.StatusPublished, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("newer", got[0].Title)

	got, err = s.store.List(ctx, models.ListFilter{Categories: []string{"bible"}})
	s.Require().NoError(err)
	s.Require().Len(got, 1)

	got, err = s.store.List(ctx, models.ListFilter{Limit: 1})
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *PostgresStoreSuite) TestUpdateAndDelete() {
	ctx := context.Background()
	p := newPost("draft", models.TypeAnnouncement, "", nil)
	s.Require().NoError(s.store.Create(ctx, p))

	now := time.Now().UTC().Truncate(time.Microsecond)
	p.Status = models.StatusPublished
	p.PublishedAt = &now
	s.Require().NoError(s.store.Update(ctx, p))

	got, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPublished, got.Status)

	s.Require().NoError(s.store.Delete(ctx, p.ID))
	s.ErrorIs(s.store.Delete(ctx, p.ID), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(ctx, &models.Post{ID: uuid.New()}), sentinel.ErrNotFound)
}
