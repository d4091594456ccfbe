package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/auth"
	"github.com/helpdeskpro/helpdesk/internal/config"
	"github.com/helpdeskpro/helpdesk/internal/domain"
	"github.com/helpdeskpro/helpdesk/internal/mail"
	"github.com/helpdeskpro/helpdesk/internal/repository"
	apperrors "github.com/helpdeskpro/helpdesk/pkg/util"
)

// AuthService coordinates user provisioning, login and role resolution.
type AuthService struct {
	users           repository.UserRepository
	verifications   repository.VerificationTokenRepository
	mailer          mail.Mailer
	tokenMgr        *auth.TokenManager
	bcryptCost      int
	verificationTTL time.Duration
	baseURL         string
	logger          *zap.Logger
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo         repository.UserRepository
	VerificationRepo repository.VerificationTokenRepository
	Mailer           mail.Mailer
	Logger           *zap.Logger
}

// ProvisionInput describes a new principal.
type ProvisionInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        domain.Role
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:           deps.UserRepo,
		verifications:   deps.VerificationRepo,
		mailer:          deps.Mailer,
		tokenMgr:        auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost:      cfg.Auth.BcryptCost,
		verificationTTL: time.Duration(cfg.Auth.VerificationTokenTTLHours) * time.Hour,
		baseURL:         cfg.App.BaseURL,
		logger:          deps.Logger,
	}
}

// ProvisionUser creates a credentialed principal with a role, then issues a
// verification token and sends the verification email. Any failure along the
// way surfaces as a single error; there is no partial-success signaling.
func (s *AuthService) ProvisionUser(ctx context.Context, input ProvisionInput) (*domain.User, error) {
	if input.Email == "" || input.Password == "" || input.DisplayName == "" {
		return nil, errors.New("email, password and displayName required")
	}
	if !input.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", input.Role)
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return nil, errors.New("email already registered")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        input.Email,
		Name:         input.DisplayName,
		Role:         input.Role,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token := &domain.VerificationToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.verificationTTL),
	}
	if err := s.verifications.Create(ctx, token); err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/api/users/verify?token=%s", s.baseURL, token.Token)
	if err := s.sendVerificationEmail(ctx, user.Email, link); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates a principal by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return user, token, exp, nil
}

// VerifyEmail consumes a verification token and marks the principal verified.
func (s *AuthService) VerifyEmail(ctx context.Context, tokenStr string) error {
	token, err := s.verifications.GetByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("verification token", nil)
		}
		return apperrors.MapError(err)
	}
	if token.UsedAt != nil || time.Now().After(token.ExpiresAt) {
		return apperrors.NewValidationError("token expired or used", nil)
	}
	if err := s.users.SetEmailVerified(ctx, token.UserID); err != nil {
		return apperrors.MapError(err)
	}
	return apperrors.MapError(s.verifications.MarkUsed(ctx, token.Token))
}

// ResolveRole looks up the role for a principal id. A missing record means
// the principal is unauthorized for any role-scoped action.
func (s *AuthService) ResolveRole(ctx context.Context, principalID string) (domain.Role, error) {
	user, err := s.users.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFound("principal", map[string]any{"principal_id": principalID})
		}
		return "", apperrors.MapError(err)
	}
	return user.Role, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) sendVerificationEmail(ctx context.Context, email, link string) error {
	html := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
    <h2>Welcome to HelpDeskPro!</h2>
    <p>Please click the button below to verify your email address and activate your account.</p>
    <a href="%s" style="display: inline-block; background-color: #007bff; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; margin-top: 20px;">Verify Email</a>
    <p style="margin-top: 20px; color: #666;">If you didn't create this account, you can safely ignore this email.</p>
</div>`, link)

	err := s.mailer.Send(ctx, mail.Message{
		To:      email,
		Subject: "Verify your email address - HelpDeskPro",
		Text:    fmt.Sprintf("Please verify your email address by visiting: %s", link),
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	s.logger.Info("verification email sent", zap.String("email", email))
	return nil
}
