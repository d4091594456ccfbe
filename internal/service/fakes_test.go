package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helpdeskpro/helpdesk/internal/domain"
	"github.com/helpdeskpro/helpdesk/internal/mail"
)

// fakeClock hands out strictly increasing timestamps, standing in for the
// database's server-assigned time.
type fakeClock struct {
	mu   sync.Mutex
	base time.Time
	tick int
}

func newFakeClock() *fakeClock {
	return &fakeClock{base: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.base.Add(time.Duration(c.tick) * time.Millisecond)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*domain.Ticket
	clock   *fakeClock
	failErr error
}

func newFakeTicketRepo(clock *fakeClock) *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket), clock: clock}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	now := r.clock.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	ticket.Status = domain.TicketStatusOpen
	stored := *ticket
	r.tickets[ticket.ID] = &stored
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListByCreator(_ context.Context, userID string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool { return t.CreatedBy == userID })
}

func (r *fakeTicketRepo) ListByAssignee(_ context.Context, agentID string) ([]domain.Ticket, error) {
	return r.list(func(t *domain.Ticket) bool { return t.AssignedTo != nil && *t.AssignedTo == agentID })
}

func (r *fakeTicketRepo) ListAll(_ context.Context) ([]domain.Ticket, error) {
	return r.list(func(*domain.Ticket) bool { return true })
}

func (r *fakeTicketRepo) list(match func(*domain.Ticket) bool) ([]domain.Ticket, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Ticket{}
	for _, ticket := range r.tickets {
		if match(ticket) {
			result = append(result, *ticket)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *fakeTicketRepo) SetStatus(_ context.Context, id string, status domain.TicketStatus) error {
	return r.mutate(id, func(t *domain.Ticket) { t.Status = status })
}

func (r *fakeTicketRepo) SetPriority(_ context.Context, id string, priority domain.TicketPriority) error {
	return r.mutate(id, func(t *domain.Ticket) { t.Priority = priority })
}

func (r *fakeTicketRepo) SetAssignee(_ context.Context, id, agentID string) error {
	return r.mutate(id, func(t *domain.Ticket) { t.AssignedTo = &agentID })
}

func (r *fakeTicketRepo) mutate(id string, apply func(*domain.Ticket)) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	apply(ticket)
	ticket.UpdatedAt = r.clock.Now()
	return nil
}

type fakeCommentRepo struct {
	mu       sync.Mutex
	seq      int
	comments []domain.Comment
	clock    *fakeClock
	failErr  error
}

func newFakeCommentRepo(clock *fakeClock) *fakeCommentRepo {
	return &fakeCommentRepo{clock: clock}
}

func (r *fakeCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	comment.ID = fmt.Sprintf("comment-%d", r.seq)
	comment.CreatedAt = r.clock.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	if r.failErr != nil {
		return nil, r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Comment{}
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]*domain.User
	clock *fakeClock
}

func newFakeUserRepo(clock *fakeClock) *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User), clock: clock}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", r.seq)
	}
	now := r.clock.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.User{}
	for _, user := range r.users {
		if user.Role == role {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *fakeUserRepo) SetEmailVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerified = true
	return nil
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []mail.Message
	failErr error
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message{}, m.sent...)
}
