package handler

import (
	"strings"
	"time"

	"chapel/internal/posts/models"
	dErrors "chapel/pkg/domain-errors"
	"chapel/pkg/platform/httputil"
	strutil "chapel/pkg/platform/strings"
)

const maxAttachments = 20

// CreatePostRequest is the body of POST /api/posts and /api/admin/posts.
type CreatePostRequest struct {
	Title         string     `json:"title" validate:"max=200"`
	Content       string     `json:"content"`
	Type          string     `json:"type"`
	Category      string     `json:"category" validate:"max=50"`
	Status        string     `json:"status"`
	AuthorEmail   string     `json:"authorEmail" validate:"omitempty,email"`
	AuthorName    string     `json:"authorName" validate:"max=100"`
	CoverImageURL string     `json:"coverImageUrl" validate:"omitempty,max=2048"`
	ScheduledFor  *time.Time `json:"scheduledFor"`
	Attachments   []string   `json:"attachments"`
}

// Validate trims input, applies defaults and checks enum values.
func (r *CreatePostRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
	r.Category = strings.TrimSpace(r.Category)
	r.AuthorEmail = strings.TrimSpace(r.AuthorEmail)
	r.AuthorName = strings.TrimSpace(r.AuthorName)
	r.CoverImageURL = strings.TrimSpace(r.CoverImageURL)
	r.Attachments = strutil.DedupeAndTrim(r.Attachments)

	if r.Title == "" || r.Content == "" {
		return dErrors.New(dErrors.CodeValidation, "title and content are required")
	}
	if r.Type == "" {
		r.Type = string(models.TypeAnnouncement)
	}
	if _, err := models.ParseType(r.Type); err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = string(models.StatusDraft)
	}
	if _, err := models.ParseStatus(r.Status); err != nil {
		return err
	}
	if models.Status(r.Status) == models.StatusScheduled && r.ScheduledFor == nil {
		return dErrors.New(dErrors.CodeValidation, "scheduledFor is required when status is scheduled")
	}
	if len(r.Attachments) > maxAttachments {
		return dErrors.New(dErrors.CodeValidation, "too many attachments")
	}
	return httputil.ValidateStruct(r)
}

// UpdateStatusRequest is the body of PATCH /api/admin/posts/{id}/status.
type UpdateStatusRequest struct {
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduledFor"`
}

func (r *UpdateStatusRequest) Validate() error {
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	if status == models.StatusScheduled && r.ScheduledFor == nil {
		return dErrors.New(dErrors.CodeValidation, "scheduledFor is required when status is scheduled")
	}
	return nil
}

// CreatePostResponse is returned with 201.
type CreatePostResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ListResponse wraps listings.
type ListResponse struct {
	Posts []*models.Post `json:"posts"`
}
