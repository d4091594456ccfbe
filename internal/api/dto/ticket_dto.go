package dto

import (
	"time"

	"github.com/helpdeskpro/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// TicketResponse is the wire shape of a ticket.
type TicketResponse struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	CreatedBy     string                `json:"created_by"`
	CreatedByName string                `json:"created_by_name"`
	AssignedTo    *string               `json:"assigned_to,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Message string `json:"message"`
}

// CommentResponse is the wire shape of a thread comment.
type CommentResponse struct {
	ID             string      `json:"id"`
	TicketID       string      `json:"ticket_id"`
	AuthorID       string      `json:"author_id"`
	AuthorName     string      `json:"author_name"`
	AuthorRole     domain.Role `json:"author_role"`
	AuthorPhotoURL *string     `json:"author_photo_url,omitempty"`
	Message        string      `json:"message"`
	CreatedAt      time.Time   `json:"created_at"`
}
