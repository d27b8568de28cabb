package manager

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"task-manager/internal/logger"
	"task-manager/internal/models"
	"task-manager/internal/storage"
)

const (
	MinPasswordLength = 6
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordLength = 72
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

var (
	signupCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_signups_total",
			Help: "Total number of Signup operations",
		},
		[]string{"status"},
	)

	loginCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_logins_total",
			Help: "Total number of Login operations",
		},
		[]string{"status"},
	)
)

// Issuer mints an access token for an identity.
type Issuer interface {
	Issue(id models.Identity) (string, error)
}

type UserManager struct {
	store  storage.UserStore
	issuer Issuer
	cost   int

	dummyOnce sync.Once
	dummyHash []byte
}

type UserOption func(*UserManager)

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) UserOption {
	return func(um *UserManager) { um.cost = cost }
}

func NewUserManager(store storage.UserStore, issuer Issuer, opts ...UserOption) *UserManager {
	um := &UserManager{
		store:  store,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(um)
	}
	return um
}

func validateCredentials(c models.Credentials) (string, error) {
	email := storage.NormalizeEmail(c.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(c.Password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if len(c.Password) > MaxPasswordLength {
		return "", fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, MaxPasswordLength)
	}
	return email, nil
}

// Signup registers a new user with a bcrypt-hashed password.
func (um *UserManager) Signup(ctx context.Context, c models.Credentials) (_ *models.User, err error) {
	defer func() { signupCount.WithLabelValues(userOutcome(err)).Inc() }()

	email, err := validateCredentials(c)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), um.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: string(hash)}
	if err := um.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	logger.Info(ctx, "user registered", "userID", user.ID)
	return user, nil
}

// Login checks the credentials and issues an access token. An unknown
// email and a wrong password yield the same error.
func (um *UserManager) Login(ctx context.Context, c models.Credentials) (_ *models.LoginResponse, err error) {
	defer func() { loginCount.WithLabelValues(userOutcome(err)).Inc() }()

	user, err := um.store.GetUserByEmail(ctx, c.Email)
	if errors.Is(err, storage.ErrNotFound) {
		// Spend the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(um.dummy(), []byte(c.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(c.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	tok, err := um.issuer.Issue(user.Identity())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	logger.Info(ctx, "user logged in", "userID", user.ID)
	return &models.LoginResponse{Token: tok, User: user.Identity()}, nil
}

func (um *UserManager) dummy() []byte {
	um.dummyOnce.Do(func() {
		um.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("task-manager-dummy"), um.cost)
	})
	return um.dummyHash
}

func userOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrEmailTaken), errors.Is(err, ErrValidation):
		return "rejected"
	}
	return "error"
}
