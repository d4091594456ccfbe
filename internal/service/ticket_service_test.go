package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/domain"
	"github.com/helpdeskpro/helpdesk/internal/events"
	"github.com/helpdeskpro/helpdesk/internal/observability"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

type testEnv struct {
	clock       *fakeClock
	tickets     *fakeTicketRepo
	comments    *fakeCommentRepo
	users       *fakeUserRepo
	mailer      *fakeMailer
	ticketSvc   *TicketService
	assignSvc   *AssignmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	tickets := newFakeTicketRepo(clock)
	comments := newFakeCommentRepo(clock)
	users := newFakeUserRepo(clock)
	mailer := &fakeMailer{}
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher()

	notifications := NewNotificationService(NotificationDependencies{
		Dispatcher: dispatcher,
		UserRepo:   users,
		TicketRepo: tickets,
		Mailer:     mailer,
		Metrics:    observability.NewMetrics(),
		Logger:     logger,
	})
	notifications.RegisterHandlers()

	return &testEnv{
		clock:    clock,
		tickets:  tickets,
		comments: comments,
		users:    users,
		mailer:   mailer,
		ticketSvc: NewTicketService(TicketDependencies{
			TicketRepo:  tickets,
			CommentRepo: comments,
			Dispatcher:  dispatcher,
			Logger:      logger,
		}),
		assignSvc: NewAssignmentService(AssignmentDependencies{
			TicketRepo: tickets,
			UserRepo:   users,
			Dispatcher: dispatcher,
			Logger:     logger,
		}),
	}
}

func (e *testEnv) addUser(t *testing.T, name, email string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Name: name, Email: email, Role: role}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func domainErrCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	return domainErr.Code
}

func TestCreateTicketDefaults(t *testing.T) {
	env := newTestEnv(t)
	client := env.addUser(t, "Carla Client", "carla@example.com", domain.RoleClient)

	ticket, outcome, err := env.ticketSvc.CreateTicket(context.Background(), client, TicketCreateInput{
		Title:       "Printer on fire",
		Description: "It is actually on fire.",
	})
	require.NoError(t, err)
	assert.False(t, outcome.NotificationFailed())

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, client.ID, ticket.CreatedBy)
	assert.Equal(t, "Carla Client", ticket.CreatedByName)
	assert.Nil(t, ticket.AssignedTo)
	assert.Equal(t, ticket.CreatedAt, ticket.UpdatedAt)
}

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv(t)
	client := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)

	_, _, err := env.ticketSvc.CreateTicket(context.Background(), client, TicketCreateInput{Title: "  ", Description: "x"})
	assert.Equal(t, "VALIDATION_FAILED", domainErrCode(t, err))

	_, _, err = env.ticketSvc.CreateTicket(context.Background(), client, TicketCreateInput{
		Title: "t", Description: "d", Priority: domain.TicketPriority("urgent"),
	})
	assert.Equal(t, "VALIDATION_FAILED", domainErrCode(t, err))
}

func TestStatusLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	client := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	agent := env.addUser(t, "Alex Agent", "alex@example.com", domain.RoleAgent)

	ticket, _, err := env.ticketSvc.CreateTicket(context.Background(), client, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, err = env.ticketSvc.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)
	_, err = env.ticketSvc.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusClosed)
	require.NoError(t, err)

	stored, err := env.ticketSvc.GetTicket(context.Background(), agent, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))

	// Loose machine: closed can move back to open.
	_, err = env.ticketSvc.UpdateStatus(context.Background(), agent, ticket.ID, domain.TicketStatusOpen)
	require.NoError(t, err)
}

func TestUpdateStatusUnknownTicket(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addUser(t, "Alex", "alex@example.com", domain.RoleAgent)

	_, err := env.ticketSvc.UpdateStatus(context.Background(), agent, "missing", domain.TicketStatusClosed)
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))
}

func TestStatusAndPriorityRequireAgent(t *testing.T) {
	env := newTestEnv(t)
	client := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)

	ticket, _, err := env.ticketSvc.CreateTicket(context.Background(), client, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, err = env.ticketSvc.UpdateStatus(context.Background(), client, ticket.ID, domain.TicketStatusClosed)
	assert.Equal(t, "FORBIDDEN", domainErrCode(t, err))

	_, err = env.ticketSvc.UpdatePriority(context.Background(), client, ticket.ID, domain.TicketPriorityHigh)
	assert.Equal(t, "FORBIDDEN", domainErrCode(t, err))

	stored, err := env.ticketSvc.GetTicket(context.Background(), client, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
}

func TestGetTicketUnknownReturnsNil(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addUser(t, "Alex", "alex@example.com", domain.RoleAgent)

	ticket, err := env.ticketSvc.GetTicket(context.Background(), agent, "missing")
	require.NoError(t, err)
	assert.Nil(t, ticket)
}

func TestGetTicketClientScope(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	dave := env.addUser(t, "Dave", "dave@example.com", domain.RoleClient)

	ticket, _, err := env.ticketSvc.CreateTicket(context.Background(), carla, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, err = env.ticketSvc.GetTicket(context.Background(), dave, ticket.ID)
	assert.Equal(t, "FORBIDDEN", domainErrCode(t, err))
}

func TestListMineOrderingAndScope(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	dave := env.addUser(t, "Dave", "dave@example.com", domain.RoleClient)

	for _, title := range []string{"first", "second", "third"} {
		_, _, err := env.ticketSvc.CreateTicket(context.Background(), carla, TicketCreateInput{Title: title, Description: "d"})
		require.NoError(t, err)
	}
	_, _, err := env.ticketSvc.CreateTicket(context.Background(), dave, TicketCreateInput{Title: "other", Description: "d"})
	require.NoError(t, err)

	mine, err := env.ticketSvc.ListMine(context.Background(), carla)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "third", mine[0].Title)
	assert.Equal(t, "second", mine[1].Title)
	assert.Equal(t, "first", mine[2].Title)
	for _, ticket := range mine {
		assert.Equal(t, carla.ID, ticket.CreatedBy)
	}

	stranger := env.addUser(t, "Eve", "eve@example.com", domain.RoleClient)
	none, err := env.ticketSvc.ListMine(context.Background(), stranger)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListAllAgentOnlyAndIdempotent(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	agent := env.addUser(t, "Alex", "alex@example.com", domain.RoleAgent)

	_, err := env.ticketSvc.ListAll(context.Background(), carla)
	assert.Equal(t, "FORBIDDEN", domainErrCode(t, err))

	for _, title := range []string{"a", "b"} {
		_, _, err := env.ticketSvc.CreateTicket(context.Background(), carla, TicketCreateInput{Title: title, Description: "d"})
		require.NoError(t, err)
	}

	first, err := env.ticketSvc.ListAll(context.Background(), agent)
	require.NoError(t, err)
	second, err := env.ticketSvc.ListAll(context.Background(), agent)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAddCommentAppendOrdering(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	agent := env.addUser(t, "Alex", "alex@example.com", domain.RoleAgent)

	ticket, _, err := env.ticketSvc.CreateTicket(context.Background(), carla, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, _, err = env.ticketSvc.AddComment(context.Background(), carla, ticket.ID, "hello")
	require.NoError(t, err)
	_, _, err = env.ticketSvc.AddComment(context.Background(), agent, ticket.ID, "hi, looking into it")
	require.NoError(t, err)
	last, _, err := env.ticketSvc.AddComment(context.Background(), carla, ticket.ID, "thanks")
	require.NoError(t, err)

	comments, err := env.ticketSvc.ListComments(context.Background(), carla, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 3)
	assert.Equal(t, "hello", comments[0].Message)
	assert.Equal(t, last.ID, comments[2].ID)
	assert.True(t, comments[0].CreatedAt.Before(comments[2].CreatedAt))
}

func TestAddCommentUnknownTicket(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)

	_, _, err := env.ticketSvc.AddComment(context.Background(), carla, "missing", "hello")
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))
}

func TestAddCommentClientScope(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	dave := env.addUser(t, "Dave", "dave@example.com", domain.RoleClient)

	ticket, _, err := env.ticketSvc.CreateTicket(context.Background(), carla, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)

	_, _, err = env.ticketSvc.AddComment(context.Background(), dave, ticket.ID, "intruding")
	assert.Equal(t, "FORBIDDEN", domainErrCode(t, err))
}

func TestCreateTicketPersistsDespiteNotificationFailure(t *testing.T) {
	env := newTestEnv(t)
	carla := env.addUser(t, "Carla", "carla@example.com", domain.RoleClient)
	env.addUser(t, "Alex", "alex@example.com", domain.RoleAgent)
	env.mailer.failErr = errors.New("relay down")

	ticket, outcome, err := env.ticketSvc.CreateTicket(context.Background(), carla, TicketCreateInput{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.True(t, outcome.NotificationFailed())
	assert.Equal(t, "NOTIFICATION_FAILED", domainErrCode(t, outcome.NotificationErr))

	stored, err := env.ticketSvc.GetTicket(context.Background(), carla, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}
