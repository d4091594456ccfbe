package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helpdeskpro/helpdesk/internal/config"
	"github.com/helpdeskpro/helpdesk/internal/domain"
)

type fakeVerificationRepo struct {
	mu      sync.Mutex
	tokens  map[string]*domain.VerificationToken
	failErr error
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{tokens: make(map[string]*domain.VerificationToken)}
}

func (r *fakeVerificationRepo) Create(_ context.Context, token *domain.VerificationToken) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	token.CreatedAt = time.Now()
	stored := *token
	r.tokens[token.Token] = &stored
	return nil
}

func (r *fakeVerificationRepo) GetByToken(_ context.Context, tokenStr string) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenStr]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *token
	return &copied, nil
}

func (r *fakeVerificationRepo) MarkUsed(_ context.Context, tokenStr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[tokenStr]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	token.UsedAt = &now
	return nil
}

type authEnv struct {
	users         *fakeUserRepo
	verifications *fakeVerificationRepo
	mailer        *fakeMailer
	svc           *AuthService
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	cfg := config.Config{}
	cfg.App.BaseURL = "http://localhost:3000"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 60
	cfg.Auth.VerificationTokenTTLHours = 24
	cfg.Auth.BcryptCost = 4 // bcrypt.MinCost, keeps hashing fast in tests

	users := newFakeUserRepo(newFakeClock())
	verifications := newFakeVerificationRepo()
	mailer := &fakeMailer{}

	return &authEnv{
		users:         users,
		verifications: verifications,
		mailer:        mailer,
		svc: NewAuthService(cfg, AuthDependencies{
			UserRepo:         users,
			VerificationRepo: verifications,
			Mailer:           mailer,
			Logger:           zap.NewNop(),
		}),
	}
}

func TestProvisionUserSendsVerificationEmail(t *testing.T) {
	env := newAuthEnv(t)

	user, err := env.svc.ProvisionUser(context.Background(), ProvisionInput{
		Email:       "carla@example.com",
		Password:    "hunter22",
		DisplayName: "Carla Client",
		Role:        domain.RoleClient,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, domain.RoleClient, user.Role)
	assert.False(t, user.EmailVerified)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	sent := env.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "carla@example.com", sent[0].To)
	assert.Equal(t, "Verify your email address - HelpDeskPro", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "http://localhost:3000/api/users/verify?token=")
	assert.Contains(t, sent[0].HTML, "Welcome to HelpDeskPro!")
}

func TestProvisionUserValidation(t *testing.T) {
	env := newAuthEnv(t)

	_, err := env.svc.ProvisionUser(context.Background(), ProvisionInput{Email: "a@b.c", Password: "p"})
	assert.Error(t, err)

	_, err = env.svc.ProvisionUser(context.Background(), ProvisionInput{
		Email: "a@b.c", Password: "p", DisplayName: "A", Role: domain.Role("admin"),
	})
	assert.Error(t, err)
}

func TestProvisionUserRejectsDuplicateEmail(t *testing.T) {
	env := newAuthEnv(t)
	input := ProvisionInput{
		Email:       "carla@example.com",
		Password:    "hunter22",
		DisplayName: "Carla",
		Role:        domain.RoleClient,
	}

	_, err := env.svc.ProvisionUser(context.Background(), input)
	require.NoError(t, err)

	_, err = env.svc.ProvisionUser(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestProvisionUserFailsWhenEmailFails(t *testing.T) {
	env := newAuthEnv(t)
	env.mailer.failErr = assert.AnError

	_, err := env.svc.ProvisionUser(context.Background(), ProvisionInput{
		Email:       "carla@example.com",
		Password:    "hunter22",
		DisplayName: "Carla",
		Role:        domain.RoleClient,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send verification email")
}

func TestLoginRoundTrip(t *testing.T) {
	env := newAuthEnv(t)

	created, err := env.svc.ProvisionUser(context.Background(), ProvisionInput{
		Email:       "alex@example.com",
		Password:    "hunter22",
		DisplayName: "Alex",
		Role:        domain.RoleAgent,
	})
	require.NoError(t, err)

	user, token, expiresAt, err := env.svc.Login(context.Background(), "alex@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := env.svc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.PrincipalID)
	assert.Equal(t, domain.RoleAgent, claims.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newAuthEnv(t)

	_, err := env.svc.ProvisionUser(context.Background(), ProvisionInput{
		Email:       "alex@example.com",
		Password:    "hunter22",
		DisplayName: "Alex",
		Role:        domain.RoleAgent,
	})
	require.NoError(t, err)

	_, _, _, err = env.svc.Login(context.Background(), "alex@example.com", "wrong")
	assert.Equal(t, "UNAUTHORIZED", domainErrCode(t, err))

	_, _, _, err = env.svc.Login(context.Background(), "nobody@example.com", "hunter22")
	assert.Equal(t, "UNAUTHORIZED", domainErrCode(t, err))
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	env := newAuthEnv(t)

	user, err := env.svc.ProvisionUser(context.Background(), ProvisionInput{
		Email:       "carla@example.com",
		Password:    "hunter22",
		DisplayName: "Carla",
		Role:        domain.RoleClient,
	})
	require.NoError(t, err)

	sent := env.mailer.Sent()
	require.Len(t, sent, 1)
	idx := strings.LastIndex(sent[0].Text, "token=")
	require.GreaterOrEqual(t, idx, 0)
	token := sent[0].Text[idx+len("token="):]

	verifyErr := env.svc.VerifyEmail(context.Background(), token)
	require.True(t, verifyErr == nil, "VerifyEmail = %#v, want untyped nil", verifyErr)

	stored, err := env.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	// Single use: a second attempt is rejected.
	err = env.svc.VerifyEmail(context.Background(), token)
	assert.Equal(t, "VALIDATION_FAILED", domainErrCode(t, err))
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	env := newAuthEnv(t)
	err := env.svc.VerifyEmail(context.Background(), "missing")
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))
}

func TestResolveRole(t *testing.T) {
	env := newAuthEnv(t)

	agent := &domain.User{Name: "Alex", Email: "alex@example.com", Role: domain.RoleAgent}
	require.NoError(t, env.users.Create(context.Background(), agent))

	role, err := env.svc.ResolveRole(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgent, role)

	_, err = env.svc.ResolveRole(context.Background(), "missing")
	assert.Equal(t, "NOT_FOUND", domainErrCode(t, err))
}
