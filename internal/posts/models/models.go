package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "chapel/pkg/domain-errors"
)

// Type classifies a post.
type Type string

const (
	TypeAnnouncement Type = "announcement"
	TypeEvent        Type = "event"
	TypeGeneral      Type = "general"
)

// Status is the publication state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusScheduled Status = "scheduled"
)

// ListLimit caps every listing.
const ListLimit = 50

// ResourceCategories are the only categories served by the resources listing.
var ResourceCategories = []string{"wednesday", "sunday", "bible"}

// AnnouncementTypes are the post types served by the announcements listing.
var AnnouncementTypes = []Type{TypeAnnouncement, TypeEvent}

func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeAnnouncement, TypeEvent, TypeGeneral:
		return t, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "type must be one of: announcement, event, general")
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusPublished, StatusScheduled:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "status must be one of: draft, published, scheduled")
}

// IsResourceCategory reports whether c is served by the resources listing.
func IsResourceCategory(c string) bool {
	for _, rc := range ResourceCategories {
		if c == rc {
			return true
		}
	}
	return false
}

// Post is a piece of site content.
type Post struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Type          Type       `json:"type"`
	Category      string     `json:"category"`
	Status        Status     `json:"status"`
	AuthorEmail   string     `json:"authorEmail"`
	AuthorName    string     `json:"authorName"`
	CoverImageURL string     `json:"coverImageUrl,omitempty"`
	Attachments   []string   `json:"attachments"`
	ScheduledFor  *time.Time `json:"scheduledFor"`
	PublishedAt   *time.Time `json:"publishedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ListFilter selects posts. Empty slices mean "any".
type ListFilter struct {
	Types      []Type
	Categories []string
	Status     Status
	Limit      int
}
