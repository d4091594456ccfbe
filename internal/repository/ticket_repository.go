package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskpro/helpdesk/internal/domain"
)

// TicketRepository encapsulates ticket persistence. All timestamps are
// assigned by the database so ordering stays monotonic across sessions.
// Field writes are unconditional: concurrent writers resolve last-write-wins.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByCreator(ctx context.Context, userID string) ([]domain.Ticket, error)
	ListByAssignee(ctx context.Context, agentID string) ([]domain.Ticket, error)
	ListAll(ctx context.Context) ([]domain.Ticket, error)
	SetStatus(ctx context.Context, id string, status domain.TicketStatus) error
	SetPriority(ctx context.Context, id string, priority domain.TicketPriority) error
	SetAssignee(ctx context.Context, id, agentID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, priority, created_by, created_by_name)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		domain.TicketStatusOpen,
		ticket.Priority,
		ticket.CreatedBy,
		ticket.CreatedByName,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, title, description, status, priority, created_by, created_by_name,
               assigned_to, created_at, updated_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedBy,
		&ticket.CreatedByName,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByCreator(ctx context.Context, userID string) ([]domain.Ticket, error) {
	const query = `
        SELECT id, title, description, status, priority, created_by, created_by_name,
               assigned_to, created_at, updated_at
        FROM tickets WHERE created_by=$1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *ticketRepository) ListByAssignee(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	const query = `
        SELECT id, title, description, status, priority, created_by, created_by_name,
               assigned_to, created_at, updated_at
        FROM tickets WHERE assigned_to=$1 ORDER BY created_at DESC`
	return r.list(ctx, query, agentID)
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	const query = `
        SELECT id, title, description, status, priority, created_by, created_by_name,
               assigned_to, created_at, updated_at
        FROM tickets ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	const query = `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`
	return r.exec(ctx, query, status, id)
}

func (r *ticketRepository) SetPriority(ctx context.Context, id string, priority domain.TicketPriority) error {
	const query = `UPDATE tickets SET priority=$1, updated_at=NOW() WHERE id=$2`
	return r.exec(ctx, query, priority, id)
}

func (r *ticketRepository) SetAssignee(ctx context.Context, id, agentID string) error {
	const query = `UPDATE tickets SET assigned_to=$1, updated_at=NOW() WHERE id=$2`
	return r.exec(ctx, query, agentID, id)
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.CreatedBy,
			&ticket.CreatedByName,
			&ticket.AssignedTo,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
