package service

import (
	"testing"
	"time"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/db"
	"github.com/dukkanhq/dukkan-backend/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJWTSecret = "test-jwt-secret"

func setupAuthServiceTest(t *testing.T) (*gorm.DB, AuthService) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(testDB)
	svc := NewAuthService(userRepo, testJWTSecret, 15*time.Minute, 7*24*time.Hour)

	return testDB, svc
}

func TestAuthService_Register(t *testing.T) {
	testDB, svc := setupAuthServiceTest(t)
	defer db.CleanupTestDB(testDB)

	user, tokens, err := svc.Register("new@example.com", "password123", "New User", "+20100000000")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	// The access token carries the user's identity
	claims, err := util.ValidateToken(tokens.AccessToken, testJWTSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "new@example.com", claims.Email)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	testDB, svc := setupAuthServiceTest(t)
	defer db.CleanupTestDB(testDB)

	_, _, err := svc.Register("dup@example.com", "password123", "First", "")
	require.NoError(t, err)

	_, _, err = svc.Register("dup@example.com", "different456", "Second", "")
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	testDB, svc := setupAuthServiceTest(t)
	defer db.CleanupTestDB(testDB)

	registered, _, err := svc.Register("login@example.com", "password123", "Login User", "")
	require.NoError(t, err)

	user, tokens, err := svc.Login("login@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, tokens.AccessToken)

	// Wrong password and unknown email both come back as invalid credentials
	_, _, err = svc.Login("login@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login("nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_RefreshTokens(t *testing.T) {
	testDB, svc := setupAuthServiceTest(t)
	defer db.CleanupTestDB(testDB)

	_, tokens, err := svc.Register("refresh@example.com", "password123", "Refresh User", "")
	require.NoError(t, err)

	fresh, err := svc.RefreshTokens(tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEmpty(t, fresh.RefreshToken)

	_, err = svc.RefreshTokens("not-a-token")
	assert.Error(t, err)
}

func TestAuthService_UpdateProfile(t *testing.T) {
	testDB, svc := setupAuthServiceTest(t)
	defer db.CleanupTestDB(testDB)

	registered, _, err := svc.Register("profile@example.com", "password123", "Before", "+2010")
	require.NoError(t, err)

	user, err := svc.UpdateProfile(registered.ID, "After", "")
	require.NoError(t, err)
	assert.Equal(t, "After", user.Name)
	// Empty fields are left alone
	assert.Equal(t, "+2010", user.Phone)

	_, err = svc.UpdateProfile(99999, "Ghost", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
