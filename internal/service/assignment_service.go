package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/domain"
	"github.com/helpdeskpro/helpdesk/internal/events"
	"github.com/helpdeskpro/helpdesk/internal/repository"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

// AssignmentService handles ticket assignment. Assignment moves from unset
// to set; there is no unassign operation. Two agents racing to claim the
// same ticket resolve last-write-wins.
type AssignmentService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// AssignmentDependencies bundles requirements.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Assign sets the ticket assignee, agents only, and notifies the ticket
// creator.
func (s *AssignmentService) Assign(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, WriteOutcome, error) {
	if err := requireAgent(actor); err != nil {
		return nil, WriteOutcome{}, err
	}

	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, WriteOutcome{}, apperrors.NewNotFound("agent", map[string]any{"agent_id": assigneeID})
		}
		return nil, WriteOutcome{}, apperrors.MapError(err)
	}
	if assignee.Role != domain.RoleAgent {
		return nil, WriteOutcome{}, apperrors.NewValidationError("assignee is not an agent", map[string]any{"agent_id": assigneeID})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, WriteOutcome{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, WriteOutcome{}, apperrors.MapError(err)
	}

	if err := s.tickets.SetAssignee(ctx, ticketID, assignee.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, WriteOutcome{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, WriteOutcome{}, apperrors.MapError(err)
	}
	assigneeRef := assignee.ID
	ticket.AssignedTo = &assigneeRef

	outcome := WriteOutcome{}
	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketAssigned,
			TicketID:  ticket.ID,
			ActorID:   actor.ID,
			Timestamp: time.Now(),
			Payload: events.TicketAssignedPayload{
				AssigneeID: assignee.ID,
			},
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			outcome.NotificationErr = apperrors.NewNotificationFailed(err)
		}
	}
	return ticket, outcome, nil
}
