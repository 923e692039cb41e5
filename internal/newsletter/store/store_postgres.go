package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chapel/internal/newsletter/models"
	"chapel/pkg/platform/sentinel"
)

// PostgresStore persists subscribers in newsletter_subscribers.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := s.db.SelectContext(ctx, &subs, `
		SELECT id, email, name, active, created_at, updated_at
		FROM newsletter_subscribers
		WHERE active
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

// Subscribe inserts the address or reactivates an existing row. A blank name
// keeps the stored one.
func (s *PostgresStore) Subscribe(ctx context.Context, email, name string, now time.Time) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.GetContext(ctx, &sub, `
		INSERT INTO newsletter_subscribers (id, email, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (email) DO UPDATE SET
			active = TRUE,
			name = COALESCE(NULLIF(EXCLUDED.name, ''), newsletter_subscribers.name),
			updated_at = EXCLUDED.updated_at
		RETURNING id, email, name, active, created_at, updated_at
	`, uuid.New(), email, name, now)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) Unsubscribe(ctx context.Context, email string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE newsletter_subscribers SET active = FALSE, updated_at = $2 WHERE email = $1
	`, email, now)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
