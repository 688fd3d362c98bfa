package service

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService() (*AuthService, *MockUserRepository) {
	repo := new(MockUserRepository)
	jwt := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute, time.Hour)
	return NewAuthService(repo, jwt), repo
}

func TestAuthService_Register(t *testing.T) {
	svc, repo := newAuthService()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo.On("EmailExists", ctx, "new@example.com").Return(false, nil).Once()
		repo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil).Once()

		user, err := svc.Register(ctx, domain.UserCreate{Email: " New@Example.com ", Password: "password123"})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", user.Email)
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
	})

	t.Run("email taken", func(t *testing.T) {
		repo.On("EmailExists", ctx, "taken@example.com").Return(true, nil).Once()

		_, err := svc.Register(ctx, domain.UserCreate{Email: "taken@example.com", Password: "password123"})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	repo.AssertExpectations(t)
}

func TestAuthService_LoginAndRefresh(t *testing.T) {
	svc, repo := newAuthService()
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{ID: uuid.New(), Email: "kaif@example.com", PasswordHash: string(hash)}

	repo.On("GetByEmail", ctx, "kaif@example.com").Return(user, nil)
	repo.On("GetByEmail", ctx, "nobody@example.com").Return(nil, nil)
	repo.On("GetByID", ctx, user.ID).Return(user, nil)

	got, tokens, err := svc.Login(ctx, domain.UserLogin{Email: "kaif@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, int64(900), tokens.ExpiresIn)

	_, _, err = svc.Login(ctx, domain.UserLogin{Email: "kaif@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, domain.UserLogin{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	refreshed, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.Refresh(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
