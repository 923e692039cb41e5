package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is a newsletter recipient. Inactive subscribers are kept so a
// later subscribe reactivates the same row.
type Subscriber struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Newsletter is one issue sent to every active subscriber.
type Newsletter struct {
	Title   string
	Content string
	Type    string
}

// Delivery summarises a send run.
type Delivery struct {
	Sent   int
	Failed int
	Total  int
}
