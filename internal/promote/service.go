// Package promote grants roles to identity-provider users on behalf of an operator.
package promote

import (
	"context"
	"errors"
	"log/slog"

	"chapel/internal/authz/models"
	"chapel/internal/identity"
	"chapel/pkg/domain"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/sentinel"
	"chapel/pkg/requestcontext"
)

// ErrUserNotFound is returned when neither the profile table nor the identity
// provider knows the target user.
var ErrUserNotFound = errors.New("user not found")

// ClaimsWriter stores the role claim on the identity-provider user.
type ClaimsWriter interface {
	SetRole(ctx context.Context, userID, role string) error
}

// Directory is the slice of the authorization store promote needs.
type Directory interface {
	FindProfile(ctx context.Context, userID string) (*models.Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	UpsertAdmin(ctx context.Context, admin models.AdminUser) error
}

type Metrics interface {
	IncrementRolesGranted(role string)
}

type Service struct {
	claims    ClaimsWriter
	directory Directory
	metrics   Metrics
	logger    *slog.Logger
}

type Option func(*Service)

// WithClaimsWriter enables updating the provider-side role claim.
func WithClaimsWriter(c ClaimsWriter) Option {
	return func(s *Service) { s.claims = c }
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

func NewService(directory Directory, opts ...Option) *Service {
	s := &Service{directory: directory, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Command identifies the target by uid or email.
type Command struct {
	UserID string
	Email  string
	Role   domain.Role
}

// Grant sets the role claim and, for admin roles, upserts the admin_users row
// so the strict admin gate accepts the user.
func (s *Service) Grant(ctx context.Context, cmd Command) (string, error) {
	profile, err := s.lookup(ctx, cmd)
	if err != nil {
		return "", err
	}
	userID := cmd.UserID
	if userID == "" {
		userID = profile.ID
	}

	if s.claims != nil {
		if err := s.claims.SetRole(ctx, userID, cmd.Role.String()); err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				return "", ErrUserNotFound
			}
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role claim")
		}
	} else {
		s.logger.WarnContext(ctx, "no claims writer configured; role claim not updated",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
		)
	}

	if cmd.Role.IsAdmin() {
		admin := models.AdminUser{ID: userID, Email: cmd.Email, Role: cmd.Role}
		if profile != nil {
			admin.Email = profile.Email
			admin.Name = profile.FullName
		}
		if err := s.directory.UpsertAdmin(ctx, admin); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to record administrator")
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementRolesGranted(cmd.Role.String())
	}
	return userID, nil
}

// lookup returns the target's profile. A uid without a profile row is still a
// valid target; an email must resolve.
func (s *Service) lookup(ctx context.Context, cmd Command) (*models.Profile, error) {
	var (
		profile *models.Profile
		err     error
	)
	if cmd.UserID != "" {
		profile, err = s.directory.FindProfile(ctx, cmd.UserID)
	} else {
		profile, err = s.directory.FindProfileByEmail(ctx, cmd.Email)
	}
	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, sentinel.ErrNotFound) && cmd.UserID != "":
		return nil, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, ErrUserNotFound
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
}
