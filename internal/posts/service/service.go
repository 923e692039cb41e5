// Package service implements post creation, publication and listing.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chapel/internal/posts/models"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/sentinel"
	"chapel/pkg/requestcontext"
)

const adminListLimit = 200

// Store persists posts. Missing rows are reported as sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ListCache memoises public listings.
type ListCache interface {
	Fetch(ctx context.Context, key string, load func(context.Context) ([]*models.Post, error)) ([]*models.Post, error)
	Invalidate(ctx context.Context) error
}

// Metrics counts created posts.
type Metrics interface {
	IncrementPostsCreated()
}

type Service struct {
	store   Store
	cache   ListCache
	metrics Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithCache(c ListCache) Option {
	return func(s *Service) { s.cache = c }
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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCommand carries validated input for Create.
type CreateCommand struct {
	Title         string
	Content       string
	Type          string
	Category      string
	Status        string
	AuthorEmail   string
	AuthorName    string
	CoverImageURL string
	ScheduledFor  *time.Time
	Attachments   []string
}

// Author is who is creating the post; it fills unset author fields.
type Author struct {
	Email string
	Name  string
}

// Create stores a new post. PublishedAt is the request time when the post is
// created as published and nil otherwise.
func (s *Service) Create(ctx context.Context, cmd CreateCommand, author Author) (*models.Post, error) {
	postType, err := models.ParseType(cmd.Type)
	if err != nil {
		return nil, err
	}
	status, err := models.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()

	post := &models.Post{
		ID:            uuid.New(),
		Title:         cmd.Title,
		Content:       cmd.Content,
		Type:          postType,
		Category:      cmd.Category,
		Status:        status,
		AuthorEmail:   firstNonEmpty(cmd.AuthorEmail, author.Email),
		AuthorName:    firstNonEmpty(cmd.AuthorName, author.Name),
		CoverImageURL: cmd.CoverImageURL,
		Attachments:   cmd.Attachments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if post.Attachments == nil {
		post.Attachments = []string{}
	}
	if err := applyStatus(post, status, cmd.ScheduledFor, now); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, post); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create post")
	}
	s.invalidate(ctx)
	if s.metrics != nil {
		s.metrics.IncrementPostsCreated()
	}
	return post, nil
}

// ListAnnouncements returns published announcement and event posts.
func (s *Service) ListAnnouncements(ctx context.Context, category string) ([]*models.Post, error) {
	filter := models.ListFilter{
		Types:  models.AnnouncementTypes,
		Status: models.StatusPublished,
		Limit:  models.ListLimit,
	}
	if category != "" {
		filter.Categories = []string{category}
	}
	return s.listPublic(ctx, "announcements:"+category, filter)
}

// ListResources returns published posts in the resource categories only.
func (s *Service) ListResources(ctx context.Context, category string) ([]*models.Post, error) {
	filter := models.ListFilter{
		Categories: models.ResourceCategories,
		Status:     models.StatusPublished,
		Limit:      models.ListLimit,
	}
	if category != "" {
		if !models.IsResourceCategory(category) {
			return nil, dErrors.New(dErrors.CodeValidation, "category must be one of: wednesday, sunday, bible")
		}
		filter.Categories = []string{category}
	}
	return s.listPublic(ctx, "resources:"+category, filter)
}

func (s *Service) listPublic(ctx context.Context, key string, filter models.ListFilter) ([]*models.Post, error) {
	load := func(ctx context.Context) ([]*models.Post, error) {
		return s.store.List(ctx, filter)
	}
	var (
		posts []*models.Post
		err   error
	)
	if s.cache != nil {
		posts, err = s.cache.Fetch(ctx, key, load)
	} else {
		posts, err = load(ctx)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list posts")
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// GetPublished returns a published post; drafts read as not found.
func (s *Service) GetPublished(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	post, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != models.StatusPublished {
		return nil, dErrors.New(dErrors.CodeNotFound, "post not found")
	}
	return post, nil
}

// ListAll returns posts in every state for the admin console.
func (s *Service) ListAll(ctx context.Context, status string) ([]*models.Post, error) {
	filter := models.ListFilter{Limit: adminListLimit}
	if status != "" {
		st, err := models.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	posts, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list posts")
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// UpdateStatus moves a post between draft, published and scheduled. A post
// keeps its original PublishedAt when re-published.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, scheduledFor *time.Time) (*models.Post, error) {
	st, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	post, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx).UTC()
	if err := applyStatus(post, st, scheduledFor, now); err != nil {
		return nil, err
	}
	post.UpdatedAt = now

	if err := s.store.Update(ctx, post); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "post not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update post")
	}
	s.invalidate(ctx)
	return post, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "post not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete post")
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	post, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "post not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load post")
	}
	return post, nil
}

// applyStatus sets Status, PublishedAt and ScheduledFor consistently.
func applyStatus(post *models.Post, status models.Status, scheduledFor *time.Time, now time.Time) error {
	switch status {
	case models.StatusPublished:
		if post.PublishedAt == nil {
			post.PublishedAt = &now
		}
		post.ScheduledFor = nil
	case models.StatusScheduled:
		if scheduledFor == nil || !scheduledFor.After(now) {
			return dErrors.New(dErrors.CodeValidation, "scheduledFor must be in the future")
		}
		at := scheduledFor.UTC()
		post.ScheduledFor = &at
		post.PublishedAt = nil
	default:
		post.ScheduledFor = nil
		post.PublishedAt = nil
	}
	post.Status = status
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "post cache invalidation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
