package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"task-manager/internal/models"
)

var (
	// ErrNotFound covers both a missing record and a record owned by
	// someone else.
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate")
	ErrUnavailable = errors.New("storage unavailable")
)

// TaskStore is the ownership-scoped task collection. Every method that
// touches an existing task filters on id AND owner in one operation.
type TaskStore interface {
	// CreateTask assigns ID, CreatedAt and UpdatedAt on task.
	CreateTask(ctx context.Context, task *models.Task) error
	// ListTasks returns the owner's tasks in creation order.
	ListTasks(ctx context.Context, ownerID string) ([]models.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, upd models.UpdateTaskRequest) (*models.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

type UserStore interface {
	// CreateUser assigns ID and timestamps; a taken email yields ErrDuplicate.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Storage interface {
	TaskStore
	UserStore

	// Migrate creates tables or indexes. It is idempotent.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type Option func(*storeOptions)

type storeOptions struct {
	now   func() time.Time
	newID func() string
}

func defaultOptions() storeOptions {
	return storeOptions{
		now: time.Now,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
	}
}

func buildOptions(opts []Option) storeOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the source of createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// WithIDGenerator overrides id generation for stores that mint their own ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *storeOptions) { o.newID = gen }
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// NormalizeEmail is the canonical form used as the unique user key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func applyUpdate(t *models.Task, upd models.UpdateTaskRequest) {
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Tags != nil {
		t.Tags = cloneTags(*upd.Tags)
	}
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return slices.Clone(tags)
}

func cloneTask(t models.Task) models.Task {
	t.Tags = cloneTags(t.Tags)
	return t
}

// MemoryStorage keeps everything in process memory. Used by tests and the
// "memory" driver.
type MemoryStorage struct {
	mu    sync.Mutex
	opts  storeOptions
	tasks []models.Task
	users map[string]models.User
}

func NewMemoryStorage(opts ...Option) *MemoryStorage {
	return &MemoryStorage{
		opts:  buildOptions(opts),
		users: make(map[string]models.User),
	}
}

func (m *MemoryStorage) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	task.ID = m.opts.newID()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Tags = cloneTags(task.Tags)
	m.tasks = append(m.tasks, cloneTask(*task))
	return nil
}

func (m *MemoryStorage) ListTasks(_ context.Context, ownerID string) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]models.Task, 0)
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			tasks = append(tasks, cloneTask(t))
		}
	}
	return tasks, nil
}

func (m *MemoryStorage) indexOf(ownerID, taskID string) int {
	return slices.IndexFunc(m.tasks, func(t models.Task) bool {
		return t.ID == taskID && t.OwnerID == ownerID
	})
}

func (m *MemoryStorage) UpdateTask(_ context.Context, ownerID, taskID string, upd models.UpdateTaskRequest) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(ownerID, taskID)
	if i < 0 {
		return nil, ErrNotFound
	}
	applyUpdate(&m.tasks[i], upd)
	m.tasks[i].UpdatedAt = m.opts.now()
	out := cloneTask(m.tasks[i])
	return &out, nil
}

func (m *MemoryStorage) DeleteTask(_ context.Context, ownerID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(ownerID, taskID)
	if i < 0 {
		return ErrNotFound
	}
	m.tasks = slices.Delete(m.tasks, i, i+1)
	return nil
}

func (m *MemoryStorage) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := NormalizeEmail(user.Email)
	if _, exists := m.users[email]; exists {
		return ErrDuplicate
	}
	now := m.opts.now()
	user.ID = m.opts.newID()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[email] = *user
	return nil
}

func (m *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStorage) Migrate(context.Context) error { return nil }
func (m *MemoryStorage) Ping(context.Context) error    { return nil }
func (m *MemoryStorage) Close() error                  { return nil }
