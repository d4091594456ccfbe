package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/domain"
	"github.com/helpdeskpro/helpdesk/internal/events"
	"github.com/helpdeskpro/helpdesk/internal/mail"
	"github.com/helpdeskpro/helpdesk/internal/observability"
	"github.com/helpdeskpro/helpdesk/internal/repository"
)

// NotificationService routes domain events to email recipients:
//
//   - ticket created: every agent
//   - ticket assigned: the ticket creator
//   - comment by an agent: the ticket creator
//   - comment by a client: the assignee, if any; unassigned sends nothing
//
// A resolved recipient without an email address is silently dropped. Delivery
// is best-effort: a failure propagates to the publishing orchestrator as a
// warning, never as a rollback of the domain write.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	tickets    repository.TicketRepository
	mailer     mail.Mailer
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NotificationDependencies bundles requirements.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	UserRepo   repository.UserRepository
	TicketRepo repository.TicketRepository
	Mailer     mail.Mailer
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		mailer:     deps.Mailer,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketPriorityChanged, n.handleTicketPriorityChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}

	agents, err := n.users.ListByRole(ctx, domain.RoleAgent)
	if err != nil {
		return err
	}

	var errs []error
	for _, agent := range agents {
		if agent.Email == "" {
			continue
		}
		msg := mail.Message{
			To:      agent.Email,
			Subject: fmt.Sprintf("New Ticket: %s", payload.Title),
			Text: fmt.Sprintf("A new ticket has been created by %s.\n\nTitle: %s\nDescription: %s\n\nView it on the dashboard.",
				payload.CreatorName, payload.Title, payload.Description),
		}
		errs = append(errs, n.send(ctx, event, msg))
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}

	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return err
	}
	creator, err := n.users.GetByID(ctx, ticket.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if creator.Email == "" {
		return nil
	}

	agentName := "An agent"
	if agent, err := n.users.GetByID(ctx, payload.AssigneeID); err == nil && agent.Name != "" {
		agentName = agent.Name
	}

	return n.send(ctx, event, mail.Message{
		To:      creator.Email,
		Subject: fmt.Sprintf("Ticket Assigned: %s", ticket.Title),
		Text:    fmt.Sprintf("Your ticket %q has been assigned to %s.", ticket.Title, agentName),
	})
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		return nil
	}

	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		return err
	}

	var recipientID, text string
	switch {
	case payload.AuthorRole == domain.RoleAgent:
		recipientID = ticket.CreatedBy
		text = fmt.Sprintf("Agent %s replied to your ticket %q:\n\n%q", payload.AuthorName, ticket.Title, payload.Message)
	case payload.AuthorRole == domain.RoleClient && ticket.AssignedTo != nil:
		recipientID = *ticket.AssignedTo
		text = fmt.Sprintf("Client %s replied to ticket %q:\n\n%q", payload.AuthorName, ticket.Title, payload.Message)
	default:
		// Client comment on an unassigned ticket: nobody to notify.
		return nil
	}

	recipient, err := n.users.GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if recipient.Email == "" {
		return nil
	}

	return n.send(ctx, event, mail.Message{
		To:      recipient.Email,
		Subject: fmt.Sprintf("New Message on Ticket: %s", ticket.Title),
		Text:    text,
	})
}

func (n *NotificationService) handleTicketStatusChanged(_ context.Context, event events.Event) error {
	n.logger.Info("ticket status changed", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketPriorityChanged(_ context.Context, event events.Event) error {
	n.logger.Info("ticket priority changed", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) send(ctx context.Context, event events.Event, msg mail.Message) error {
	err := n.mailer.Send(ctx, msg)
	n.metrics.RecordMail(string(event.Type), err == nil)
	if err != nil {
		n.logger.Warn("email send failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	n.logger.Info("email sent",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("subject", msg.Subject))
	return nil
}
