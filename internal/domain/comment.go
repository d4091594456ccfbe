package domain

import "time"

// Comment is a threaded message on a ticket. Comments are append-only and
// immutable once created; ordering is by CreatedAt ascending.
type Comment struct {
	ID             string
	TicketID       string
	AuthorID       string
	AuthorName     string
	AuthorRole     Role
	AuthorPhotoURL *string
	Message        string
	CreatedAt      time.Time
}
