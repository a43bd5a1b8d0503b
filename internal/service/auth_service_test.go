package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mchat/internal/domain"
	"mchat/internal/security"
	"mchat/internal/service"
)

type authFixture struct {
	users  *MockUserRepo
	resets *MockResetRepo
	mailer *MockMailer
	hasher *security.PasswordHasher
	svc    *service.AuthService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:  new(MockUserRepo),
		resets: new(MockResetRepo),
		mailer: new(MockMailer),
		hasher: security.NewPasswordHasher(4), // low cost for tests
	}
	tokens := security.NewTokenService("secret", time.Hour)
	f.svc = service.NewAuthService(
		f.users, f.resets, tokens, f.hasher, f.mailer,
		zerolog.Nop(), "http://localhost:5173", 30*time.Minute,
	)
	return f
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByUsername", mock.Anything, "newuser").Return(nil, nil)
		f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser" && u.IsActive && u.HashedPassword != "Password1!"
		})).Return(nil)

		user, err := f.svc.Register(ctx, service.RegisterInput{
			Username: "newuser",
			Password: "Password1!",
		})
		require.NoError(t, err)
		assert.Equal(t, "newuser", user.Username)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByUsername", mock.Anything, "existing").Return(&domain.User{Username: "existing"}, nil)

		_, err := f.svc.Register(ctx, service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		f := newAuthFixture()
		_, err := f.svc.Register(ctx, service.RegisterInput{
			Username: "u",
			Password: "short",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthFixture()
		hashed, err := f.hasher.Hash("Password1!")
		require.NoError(t, err)

		f.users.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{
			ID: 1, Username: "alice", HashedPassword: hashed, IsActive: true,
		}, nil)
		f.users.On("SetOnlineStatus", mock.Anything, int64(1), true).Return(nil)

		resp, err := f.svc.Login(ctx, service.LoginInput{Username: "alice", Password: "Password1!"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.True(t, resp.User.IsOnline)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		f := newAuthFixture()
		hashed, err := f.hasher.Hash("Password1!")
		require.NoError(t, err)

		f.users.On("GetByUsername", mock.Anything, "alice").Return(&domain.User{
			ID: 1, Username: "alice", HashedPassword: hashed, IsActive: true,
		}, nil)

		_, err = f.svc.Login(ctx, service.LoginInput{Username: "alice", Password: "wrong"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByUsername", mock.Anything, "ghost").Return(nil, nil)

		_, err := f.svc.Login(ctx, service.LoginInput{Username: "ghost", Password: "whatever1"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("InactiveUser", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByUsername", mock.Anything, "gone").Return(&domain.User{
			ID: 2, Username: "gone", IsActive: false,
		}, nil)

		_, err := f.svc.Login(ctx, service.LoginInput{Username: "gone", Password: "whatever1"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestRequestPasswordReset(t *testing.T) {
	ctx := context.Background()
	email := "alice@example.com"

	t.Run("SendsLinkWithToken", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByEmail", mock.Anything, email).Return(&domain.User{
			ID: 1, Username: "alice", Email: &email, IsActive: true,
		}, nil)

		var storedToken string
		f.resets.On("Create", mock.Anything, mock.MatchedBy(func(tk *domain.PasswordResetToken) bool {
			storedToken = tk.Token
			return tk.UserID == 1 && tk.ExpiresAt.After(time.Now())
		})).Return(nil)
		f.mailer.On("SendPasswordReset", mock.Anything, email, mock.MatchedBy(func(url string) bool {
			return strings.Contains(url, "reset-password?token=")
		})).Return(nil)

		err := f.svc.RequestPasswordReset(ctx, email)
		require.NoError(t, err)
		assert.NotEmpty(t, storedToken)
		f.mailer.AssertExpectations(t)
	})

	t.Run("UnknownAddressSucceedsSilently", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, nil)

		err := f.svc.RequestPasswordReset(ctx, "nobody@example.com")
		assert.NoError(t, err)
		f.mailer.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestConfirmPasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthFixture()
		f.resets.On("Consume", mock.Anything, "tok-1").Return(int64(1), nil)
		f.users.On("UpdatePassword", mock.Anything, int64(1), mock.MatchedBy(func(h string) bool {
			return f.hasher.Verify("NewPassword1!", h) == nil
		})).Return(nil)

		err := f.svc.ConfirmPasswordReset(ctx, "tok-1", "NewPassword1!")
		assert.NoError(t, err)
		f.users.AssertExpectations(t)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		f := newAuthFixture()
		f.resets.On("Consume", mock.Anything, "bogus").Return(int64(0), domain.ErrNotFound)

		err := f.svc.ConfirmPasswordReset(ctx, "bogus", "NewPassword1!")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		f := newAuthFixture()
		err := f.svc.ConfirmPasswordReset(ctx, "tok-1", "short")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
