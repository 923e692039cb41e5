package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chapel/internal/posts/models"
	"chapel/pkg/platform/sentinel"
)

const postColumns = `id, title, content, type, category, status, author_email, author_name,
	cover_image_url, attachments, scheduled_for, published_at, created_at, updated_at`

// PostgresStore persists posts in the posts table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type postRow struct {
	ID            uuid.UUID      `db:"id"`
	Title         string         `db:"title"`
	Content       string         `db:"content"`
	Type          string         `db:"type"`
	Category      string         `db:"category"`
	Status        string         `db:"status"`
	AuthorEmail   string         `db:"author_email"`
	AuthorName    string         `db:"author_name"`
	CoverImageURL string         `db:"cover_image_url"`
	Attachments   pq.StringArray `db:"attachments"`
	ScheduledFor  *time.Time     `db:"scheduled_for"`
	PublishedAt   *time.Time     `db:"published_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toRow(p *models.Post) postRow {
	attachments := pq.StringArray(p.Attachments)
	if attachments == nil {
		attachments = pq.StringArray{}
	}
	return postRow{
		ID:            p.ID,
		Title:         p.Title,
		Content:       p.Content,
		Type:          string(p.Type),
		Category:      p.Category,
		Status:        string(p.Status),
		AuthorEmail:   p.AuthorEmail,
		AuthorName:    p.AuthorName,
		CoverImageURL: p.CoverImageURL,
		Attachments:   attachments,
		ScheduledFor:  p.ScheduledFor,
		PublishedAt:   p.PublishedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (r postRow) toModel() (*models.Post, error) {
	postType, err := models.ParseType(r.Type)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", r.ID, err)
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", r.ID, err)
	}
	attachments := []string(r.Attachments)
	if attachments == nil {
		attachments = []string{}
	}
	return &models.Post{
		ID:            r.ID,
		Title:         r.Title,
		Content:       r.Content,
		Type:          postType,
		Category:      r.Category,
		Status:        status,
		AuthorEmail:   r.AuthorEmail,
		AuthorName:    r.AuthorName,
		CoverImageURL: r.CoverImageURL,
		Attachments:   attachments,
		ScheduledFor:  r.ScheduledFor,
		PublishedAt:   r.PublishedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES (:id, :title, :content, :type, :category, :status, :author_email, :author_name,
			:cover_image_url, :attachments, :scheduled_for, :published_at, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, toRow(post)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var row postRow
	err := s.db.GetContext(ctx, &row, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find post: %w", err)
	}
	return row.toModel()
}

func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]*models.Post, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		args = append(args, pq.Array(types))
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if len(f.Categories) > 0 {
		args = append(args, pq.Array(f.Categories))
		where = append(where, fmt.Sprintf("category = ANY($%d)", len(args)))
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published_at DESC NULLS LAST, created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts := make([]*models.Post, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (s *PostgresStore) Update(ctx context.Context, post *models.Post) error {
	query := `
		UPDATE posts SET
			title = :title,
			content = :content,
			type = :type,
			category = :category,
			status = :status,
			author_email = :author_email,
			author_name = :author_name,
			cover_image_url = :cover_image_url,
			attachments = :attachments,
			scheduled_for = :scheduled_for,
			published_at = :published_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := s.db.NamedExecContext(ctx, query, toRow(post))
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
