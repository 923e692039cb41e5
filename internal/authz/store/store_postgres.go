package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chapel/internal/authz/models"
	"chapel/pkg/domain"
	"chapel/pkg/platform/sentinel"
)

const pqUndefinedTable = "42P01"

// PostgresStore reads admin_users and profiles.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type adminRow struct {
	ID    string `db:"id"`
	Email string `db:"email"`
	Name  string `db:"name"`
	Role  string `db:"role"`
}

type profileRow struct {
	ID       string         `db:"id"`
	Email    string         `db:"email"`
	FullName sql.NullString `db:"full_name"`
	Role     sql.NullString `db:"role"`
}

// FindAdmin returns the admin_users row for userID.
func (s *PostgresStore) FindAdmin(ctx context.Context, userID string) (*models.AdminUser, error) {
	var row adminRow
	err := s.db.GetContext(ctx, &row, `SELECT id, email, name, role FROM admin_users WHERE id = $1`, userID)
	if err != nil {
		return nil, translate(err, "find admin")
	}
	role, err := domain.ParseRole(row.Role)
	if err != nil {
		return nil, fmt.Errorf("admin_users row %s: %w", row.ID, err)
	}
	return &models.AdminUser{ID: row.ID, Email: row.Email, Name: row.Name, Role: role}, nil
}

// FindProfile returns the profiles row for userID.
func (s *PostgresStore) FindProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `SELECT id, email, full_name, role FROM profiles WHERE id = $1`, userID)
	if err != nil {
		return nil, translate(err, "find profile")
	}
	return row.toModel()
}

// FindProfileByEmail matches email case-insensitively.
func (s *PostgresStore) FindProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, email, full_name, role FROM profiles WHERE lower(email) = lower($1) LIMIT 1`, email)
	if err != nil {
		return nil, translate(err, "find profile by email")
	}
	return row.toModel()
}

// UpsertAdmin inserts or replaces the admin_users row keyed by ID.
func (s *PostgresStore) UpsertAdmin(ctx context.Context, admin models.AdminUser) error {
	query := `
		INSERT INTO admin_users (id, email, name, role)
		VALUES (:id, :email, :name, :role)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			updated_at = now()
	`
	_, err := s.db.NamedExecContext(ctx, query, adminRow{
		ID:    admin.ID,
		Email: admin.Email,
		Name:  admin.Name,
		Role:  admin.Role.String(),
	})
	if err != nil {
		return translate(err, "upsert admin")
	}
	return nil
}

func (r profileRow) toModel() (*models.Profile, error) {
	role, err := parseProfileRole(r.Role.String)
	if err != nil {
		return nil, fmt.Errorf("profiles row %s: %w", r.ID, err)
	}
	return &models.Profile{ID: r.ID, Email: r.Email, FullName: r.FullName.String, Role: role}, nil
}

func translate(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrTableMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
