package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"task-manager/internal/models"
	"task-manager/internal/storage"
	"task-manager/internal/token"
)

func newUserManager(t *testing.T) (*UserManager, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	return NewUserManager(storage.NewMemoryStorage(), codec, WithBcryptCost(bcrypt.MinCost)), codec
}

func TestSignupAndLogin(t *testing.T) {
	um, codec := newUserManager(t)
	ctx := context.Background()

	user, err := um.Signup(ctx, models.Credentials{Email: " Alice@Example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	resp, err := um.Login(ctx, models.Credentials{Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, user.Identity(), resp.User)

	id, err := codec.Decode(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.Identity(), id)
}

func TestSignupValidation(t *testing.T) {
	um, _ := newUserManager(t)

	tests := []struct {
		name  string
		creds models.Credentials
	}{
		{"missing email", models.Credentials{Password: "secret1"}},
		{"not an email", models.Credentials{Email: "alice", Password: "secret1"}},
		{"display name form", models.Credentials{Email: "Alice <alice@example.com>", Password: "secret1"}},
		{"short password", models.Credentials{Email: "alice@example.com", Password: "12345"}},
		{"long password", models.Credentials{Email: "alice@example.com", Password: string(make([]byte, 73))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := um.Signup(context.Background(), tt.creds)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	um, _ := newUserManager(t)
	ctx := context.Background()

	_, err := um.Signup(ctx, models.Credentials{Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = um.Signup(ctx, models.Credentials{Email: "BOB@example.com", Password: "secret2"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginRejects(t *testing.T) {
	um, _ := newUserManager(t)
	ctx := context.Background()
	_, err := um.Signup(ctx, models.Credentials{Email: "carol@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = um.Login(ctx, models.Credentials{Email: "carol@example.com", Password: "wrong-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = um.Login(ctx, models.Credentials{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

type failingUsers struct{}

func (failingUsers) CreateUser(context.Context, *models.User) error {
	return storage.ErrUnavailable
}

func (failingUsers) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, storage.ErrUnavailable
}

func TestUserStoreFailures(t *testing.T) {
	um := NewUserManager(failingUsers{}, nil, WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	_, err := um.Signup(ctx, models.Credentials{Email: "dave@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = um.Login(ctx, models.Credentials{Email: "dave@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}
