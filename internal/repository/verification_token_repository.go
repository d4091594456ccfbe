package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdeskpro/helpdesk/internal/domain"
)

// VerificationTokenRepository persists single-use email verification tokens.
type VerificationTokenRepository interface {
	Create(ctx context.Context, token *domain.VerificationToken) error
	GetByToken(ctx context.Context, token string) (*domain.VerificationToken, error)
	MarkUsed(ctx context.Context, token string) error
}

type verificationTokenRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationTokenRepository builds repository.
func NewVerificationTokenRepository(pool *pgxpool.Pool) VerificationTokenRepository {
	return &verificationTokenRepository{pool: pool}
}

func (r *verificationTokenRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	const query = `
        INSERT INTO verification_tokens (token, user_id, expires_at)
        VALUES ($1,$2,$3)
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		token.Token,
		token.UserID,
		token.ExpiresAt,
	).Scan(&token.CreatedAt)
}

func (r *verificationTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*domain.VerificationToken, error) {
	const query = `
        SELECT token, user_id, expires_at, used_at, created_at
        FROM verification_tokens WHERE token=$1`
	var token domain.VerificationToken
	if err := r.pool.QueryRow(ctx, query, tokenStr).Scan(
		&token.Token,
		&token.UserID,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *verificationTokenRepository) MarkUsed(ctx context.Context, tokenStr string) error {
	const query = `UPDATE verification_tokens SET used_at=NOW() WHERE token=$1`
	cmd, err := r.pool.Exec(ctx, query, tokenStr)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
