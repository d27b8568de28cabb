package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"task-manager/internal/logger"
	"task-manager/internal/models"
	"task-manager/internal/storage"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for missing tasks and for tasks owned by
	// another user alike.
	ErrNotFound           = storage.ErrNotFound
	ErrStorageUnavailable = storage.ErrUnavailable
)

var (
	createTaskCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_tasks_created_total",
			Help: "Total number of CreateTask operations",
		},
		[]string{"status"},
	)

	updateTaskCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_tasks_updated_total",
			Help: "Total number of UpdateTask operations",
		},
		[]string{"status"},
	)

	deleteTaskCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_tasks_deleted_total",
			Help: "Total number of DeleteTask operations",
		},
		[]string{"status"},
	)

	taskTitleLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskmanager_task_title_length_chars",
			Help:    "Length distribution of task titles",
			Buckets: []float64{10, 25, 50, 100, 200},
		},
	)

	taskOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskmanager_task_operation_duration_seconds",
			Help:    "Duration of task store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// outcome is the status label recorded for a finished operation.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	}
	return "error"
}

// TaskManager applies validation and ownership scoping on top of a
// TaskStore. It holds no mutable state of its own.
type TaskManager struct {
	store   storage.TaskStore
	timeout time.Duration
}

// NewTaskManager wraps store. A zero timeout leaves the caller's context
// deadline as the only limit.
func NewTaskManager(store storage.TaskStore, timeout time.Duration) *TaskManager {
	return &TaskManager{store: store, timeout: timeout}
}

func (tm *TaskManager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if tm.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, tm.timeout)
}

func observe(op string, start time.Time) {
	taskOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func validateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrValidation, MaxTitleLength)
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", ErrValidation, MaxDescriptionLength)
	}
	return nil
}

// normalizeTags trims every tag and rejects blank ones. Duplicates are
// kept; the server does not enforce uniqueness.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, fmt.Errorf("%w: tags must not be blank", ErrValidation)
		}
		out = append(out, tag)
	}
	return out, nil
}

// Create stores a new pending task owned by ownerID.
func (tm *TaskManager) Create(ctx context.Context, ownerID string, req models.CreateTaskRequest) (_ *models.Task, err error) {
	start := time.Now()
	defer func() {
		observe("create", start)
		createTaskCount.WithLabelValues(outcome(err)).Inc()
	}()

	title := strings.TrimSpace(req.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}
	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		Title:       title,
		Description: req.Description,
		Status:      models.StatusPending,
		Tags:        tags,
		OwnerID:     ownerID,
	}

	ctx, cancel := tm.withTimeout(ctx)
	defer cancel()
	if err := tm.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	taskTitleLength.Observe(float64(utf8.RuneCountInString(title)))
	logger.Debug(ctx, "task created", "taskID", task.ID, "ownerID", ownerID)
	return task, nil
}

// List returns every task owned by ownerID in creation order.
func (tm *TaskManager) List(ctx context.Context, ownerID string) ([]models.Task, error) {
	defer observe("list", time.Now())

	ctx, cancel := tm.withTimeout(ctx)
	defer cancel()
	tasks, err := tm.store.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// Update changes only the fields present in req on a task owned by
// ownerID.
func (tm *TaskManager) Update(ctx context.Context, ownerID, taskID string, req models.UpdateTaskRequest) (_ *models.Task, err error) {
	start := time.Now()
	defer func() {
		observe("update", start)
		updateTaskCount.WithLabelValues(outcome(err)).Inc()
	}()

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		req.Title = &title
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *req.Status)
	}
	if req.Tags != nil {
		tags, err := normalizeTags(*req.Tags)
		if err != nil {
			return nil, err
		}
		req.Tags = &tags
	}

	ctx, cancel := tm.withTimeout(ctx)
	defer cancel()
	task, err := tm.store.UpdateTask(ctx, ownerID, taskID, req)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "task updated", "taskID", taskID, "ownerID", ownerID)
	return task, nil
}

// Delete removes a task owned by ownerID.
func (tm *TaskManager) Delete(ctx context.Context, ownerID, taskID string) (err error) {
	start := time.Now()
	defer func() {
		observe("delete", start)
		deleteTaskCount.WithLabelValues(outcome(err)).Inc()
	}()

	ctx, cancel := tm.withTimeout(ctx)
	defer cancel()
	if err := tm.store.DeleteTask(ctx, ownerID, taskID); err != nil {
		return err
	}
	logger.Debug(ctx, "task deleted", "taskID", taskID, "ownerID", ownerID)
	return nil
}
