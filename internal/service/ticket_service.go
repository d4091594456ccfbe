package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/domain"
	"github.com/helpdeskpro/helpdesk/internal/events"
	"github.com/helpdeskpro/helpdesk/internal/repository"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

// TicketService orchestrates ticket and comment workflows: it enforces role
// authorization, sequences the store mutation before the notification side
// effect, and never rolls back a persisted write on notification failure.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles requirements for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// CreateTicket persists a new ticket for the actor and fans out the creation
// notification to all agents.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, WriteOutcome, error) {
	if actor == nil {
		return nil, WriteOutcome{}, apperrors.NewUnauthorized("authentication required")
	}

	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, WriteOutcome{}, apperrors.NewValidationError("title and description required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, WriteOutcome{}, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	ticket := &domain.Ticket{
		Title:         title,
		Description:   description,
		Status:        domain.TicketStatusOpen,
		Priority:      priority,
		CreatedBy:     actor.ID,
		CreatedByName: actor.Name,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, WriteOutcome{}, apperrors.MapError(err)
	}

	outcome := s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			Description: ticket.Description,
			CreatorName: ticket.CreatedByName,
		},
	})
	return ticket, outcome, nil
}

// GetTicket returns a ticket by id, or nil when absent. Clients may only
// read their own tickets.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleAgent && ticket.CreatedBy != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListMine returns tickets created by the actor, most recent first.
func (s *TicketService) ListMine(ctx context.Context, actor *domain.User) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	tickets, err := s.tickets.ListByCreator(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListAssigned returns tickets assigned to the acting agent.
func (s *TicketService) ListAssigned(ctx context.Context, actor *domain.User) ([]domain.Ticket, error) {
	if err := requireAgent(actor); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByAssignee(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListAll returns every ticket, agents only.
func (s *TicketService) ListAll(ctx context.Context, actor *domain.User) ([]domain.Ticket, error) {
	if err := requireAgent(actor); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// UpdateStatus sets the ticket status, agents only. Any of the four statuses
// may be set from any current status; the write is last-write-wins.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if err := requireAgent(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	oldStatus := ticket.Status
	if err := s.tickets.SetStatus(ctx, ticketID, status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	ticket.Status = status

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
		},
	})
	return ticket, nil
}

// UpdatePriority sets the ticket priority, agents only.
func (s *TicketService) UpdatePriority(ctx context.Context, actor *domain.User, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if err := requireAgent(actor); err != nil {
		return nil, err
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	oldPriority := ticket.Priority
	if err := s.tickets.SetPriority(ctx, ticketID, priority); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	ticket.Priority = priority

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: priority,
		},
	})
	return ticket, nil
}

// AddComment appends a comment to the ticket thread and routes the comment
// notification. Clients may only comment on their own tickets.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, message string) (*domain.Comment, WriteOutcome, error) {
	if actor == nil {
		return nil, WriteOutcome{}, apperrors.NewUnauthorized("authentication required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, WriteOutcome{}, apperrors.NewValidationError("message required", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, WriteOutcome{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, WriteOutcome{}, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleAgent && ticket.CreatedBy != actor.ID {
		return nil, WriteOutcome{}, apperrors.NewForbidden("access denied")
	}

	comment := &domain.Comment{
		TicketID:       ticket.ID,
		AuthorID:       actor.ID,
		AuthorName:     actor.Name,
		AuthorRole:     actor.Role,
		AuthorPhotoURL: actor.PhotoURL,
		Message:        message,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, WriteOutcome{}, apperrors.MapError(err)
	}

	outcome := s.publishEvent(ctx, events.Event{
		Type:     events.EventCommentAdded,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.CommentAddedPayload{
			CommentID:  comment.ID,
			AuthorRole: comment.AuthorRole,
			AuthorName: comment.AuthorName,
			Message:    comment.Message,
		},
	})
	return comment, outcome, nil
}

// ListComments returns the ticket thread ordered oldest first.
func (s *TicketService) ListComments(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Comment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleAgent && ticket.CreatedBy != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return comments, nil
}

// publishEvent delivers the event synchronously and downgrades handler
// failure to a logged warning carried in the outcome. The domain write has
// already been persisted at this point and is never unwound.
func (s *TicketService) publishEvent(ctx context.Context, event events.Event) WriteOutcome {
	if s.dispatcher == nil {
		return WriteOutcome{}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return WriteOutcome{NotificationErr: apperrors.NewNotificationFailed(err)}
	}
	return WriteOutcome{}
}

func requireAgent(actor *domain.User) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if actor.Role != domain.RoleAgent {
		return apperrors.NewForbidden("agent role required")
	}
	return nil
}
