package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"task-manager/internal/models"
	"task-manager/internal/storage"
)

func newManager() *TaskManager {
	return NewTaskManager(storage.NewMemoryStorage(), time.Second)
}

func ptr[T any](v T) *T { return &v }

func TestCreateTask(t *testing.T) {
	tm := newManager()
	ctx := context.Background()

	task, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "  Buy milk  "})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.ID == "" {
		t.Error("expected store-assigned id")
	}
	if task.Title != "Buy milk" {
		t.Errorf("expected trimmed title, got %q", task.Title)
	}

	tasks, err := tm.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Status != models.StatusPending {
		t.Errorf("expected pending, got %q", tasks[0].Status)
	}
	if tasks[0].Tags == nil || len(tasks[0].Tags) != 0 {
		t.Errorf("expected empty tags, got %#v", tasks[0].Tags)
	}
}

func TestCreateEmptyTitle(t *testing.T) {
	tm := newManager()

	for _, title := range []string{"", "   "} {
		_, err := tm.Create(context.Background(), "alice", models.CreateTaskRequest{Title: title})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("title %q: expected ErrValidation, got %v", title, err)
		}
	}
}

func TestCreateWithMaxLengths(t *testing.T) {
	tm := newManager()
	ctx := context.Background()

	title := strings.Repeat("ж", MaxTitleLength)
	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: title}); err != nil {
		t.Errorf("expected %d-character title to pass: %v", MaxTitleLength, err)
	}
	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: title + "ж"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for long title, got %v", err)
	}

	desc := strings.Repeat("a", MaxDescriptionLength)
	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "t", Description: desc}); err != nil {
		t.Errorf("expected %d-character description to pass: %v", MaxDescriptionLength, err)
	}
	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "t", Description: desc + "a"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for long description, got %v", err)
	}
}

func TestCreateTags(t *testing.T) {
	tm := newManager()
	ctx := context.Background()

	task, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "t", Tags: []string{" work ", "work"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if fmt.Sprint(task.Tags) != "[work work]" {
		t.Errorf("unexpected tags %v", task.Tags)
	}

	_, err = tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "t", Tags: []string{" "}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank tag, got %v", err)
	}
}

func TestUpdateTask(t *testing.T) {
	tm := newManager()
	ctx := context.Background()

	task, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "Report", Description: "draft"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := tm.Update(ctx, "alice", task.ID, models.UpdateTaskRequest{Status: ptr(models.StatusCompleted)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != models.StatusCompleted || updated.Title != "Report" || updated.Description != "draft" {
		t.Errorf("unexpected task after update: %+v", updated)
	}
	if updated.UpdatedAt.Before(task.UpdatedAt) {
		t.Error("updatedAt went backwards")
	}

	tasks, _ := tm.List(ctx, "alice")
	if tasks[0].Status != models.StatusCompleted {
		t.Errorf("List shows %q, want completed", tasks[0].Status)
	}
}

func TestUpdateValidation(t *testing.T) {
	tm := newManager()
	ctx := context.Background()
	task, _ := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "Report"})

	tests := []struct {
		name string
		req  models.UpdateTaskRequest
	}{
		{"blank title", models.UpdateTaskRequest{Title: ptr("  ")}},
		{"unknown status", models.UpdateTaskRequest{Status: ptr(models.Status("done"))}},
		{"blank tag", models.UpdateTaskRequest{Tags: &[]string{"ok", ""}}},
		{"long description", models.UpdateTaskRequest{Description: ptr(strings.Repeat("a", MaxDescriptionLength+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.Update(ctx, "alice", task.ID, tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	tasks, _ := tm.List(ctx, "alice")
	if tasks[0].Title != "Report" || tasks[0].Status != models.StatusPending {
		t.Errorf("rejected update changed the task: %+v", tasks[0])
	}
}

func TestOwnershipIsolation(t *testing.T) {
	tm := newManager()
	ctx := context.Background()

	task, _ := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "secret"})

	bobTasks, err := tm.List(ctx, "bob")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bobTasks) != 0 {
		t.Errorf("bob sees %d of alice's tasks", len(bobTasks))
	}

	if _, err := tm.Update(ctx, "bob", task.ID, models.UpdateTaskRequest{Title: ptr("mine")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on foreign update, got %v", err)
	}
	if err := tm.Delete(ctx, "bob", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on foreign delete, got %v", err)
	}

	tasks, _ := tm.List(ctx, "alice")
	if len(tasks) != 1 || tasks[0].Title != "secret" {
		t.Errorf("alice's task changed: %+v", tasks)
	}
}

func TestDeleteTwice(t *testing.T) {
	tm := newManager()
	ctx := context.Background()
	task, _ := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "once"})

	if err := tm.Delete(ctx, "alice", task.ID); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := tm.Delete(ctx, "alice", task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

type brokenStore struct{}

func (brokenStore) CreateTask(context.Context, *models.Task) error {
	return fmt.Errorf("create task: %w: connection refused", storage.ErrUnavailable)
}

func (brokenStore) ListTasks(context.Context, string) ([]models.Task, error) {
	return nil, fmt.Errorf("list tasks: %w: connection refused", storage.ErrUnavailable)
}

func (brokenStore) UpdateTask(context.Context, string, string, models.UpdateTaskRequest) (*models.Task, error) {
	return nil, fmt.Errorf("update task: %w: connection refused", storage.ErrUnavailable)
}

func (brokenStore) DeleteTask(context.Context, string, string) error {
	return fmt.Errorf("delete task: %w: connection refused", storage.ErrUnavailable)
}

func TestStorageUnavailable(t *testing.T) {
	tm := NewTaskManager(brokenStore{}, 0)
	ctx := context.Background()

	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "t"}); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Create: expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := tm.List(ctx, "alice"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("List: expected ErrStorageUnavailable, got %v", err)
	}
	if _, err := tm.Update(ctx, "alice", "x", models.UpdateTaskRequest{}); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Update: expected ErrStorageUnavailable, got %v", err)
	}
	if err := tm.Delete(ctx, "alice", "x"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Delete: expected ErrStorageUnavailable, got %v", err)
	}
}

type deadlineStore struct {
	brokenStore
	deadline time.Time
	ok       bool
}

func (s *deadlineStore) ListTasks(ctx context.Context, _ string) ([]models.Task, error) {
	s.deadline, s.ok = ctx.Deadline()
	return nil, nil
}

func TestOperationTimeout(t *testing.T) {
	store := &deadlineStore{}
	tm := NewTaskManager(store, 50*time.Millisecond)

	tasks, err := tm.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if tasks == nil {
		t.Error("expected non-nil empty slice")
	}
	if !store.ok {
		t.Fatal("store call ran without a deadline")
	}
	if time.Until(store.deadline) > 50*time.Millisecond {
		t.Errorf("deadline too far: %v", time.Until(store.deadline))
	}
}

func TestCreateTaskMetrics(t *testing.T) {
	originalCreateTaskCount := createTaskCount
	originalTaskTitleLength := taskTitleLength

	registry := prometheus.NewRegistry()

	testCreateTaskCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskmanager_tasks_created_total",
			Help: "Test counter",
		},
		[]string{"status"},
	)

	testTaskTitleLength := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskmanager_task_title_length_chars",
			Help:    "Test histogram",
			Buckets: []float64{10, 25, 50, 100, 200},
		},
	)

	registry.MustRegister(testCreateTaskCount)
	registry.MustRegister(testTaskTitleLength)

	createTaskCount = testCreateTaskCount
	taskTitleLength = testTaskTitleLength

	defer func() {
		createTaskCount = originalCreateTaskCount
		taskTitleLength = originalTaskTitleLength
	}()

	tm := newManager()
	ctx := context.Background()

	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "Valid title"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if successCount := testutil.ToFloat64(testCreateTaskCount.WithLabelValues("success")); successCount != 1 {
		t.Errorf("Expected 1 success, got %v", successCount)
	}

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	foundHistogram := false
	for _, mf := range metrics {
		if mf.GetName() == "taskmanager_task_title_length_chars" {
			foundHistogram = true
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
				t.Errorf("Expected 1 histogram sample, got %d", got)
			}
			break
		}
	}
	if !foundHistogram {
		t.Error("Histogram metric not found")
	}

	if _, err := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: ""}); err == nil {
		t.Error("Expected error for empty title")
	}
	if invalid := testutil.ToFloat64(testCreateTaskCount.WithLabelValues("invalid")); invalid != 1 {
		t.Errorf("Expected 1 invalid, got %v", invalid)
	}
}

func TestDeleteTaskMetrics(t *testing.T) {
	original := deleteTaskCount
	deleteTaskCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "taskmanager_tasks_deleted_total", Help: "Test counter"},
		[]string{"status"},
	)
	defer func() { deleteTaskCount = original }()

	tm := newManager()
	ctx := context.Background()
	task, _ := tm.Create(ctx, "alice", models.CreateTaskRequest{Title: "t"})

	_ = tm.Delete(ctx, "alice", task.ID)
	_ = tm.Delete(ctx, "alice", task.ID)

	if got := testutil.ToFloat64(deleteTaskCount.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(deleteTaskCount.WithLabelValues("not_found")); got != 1 {
		t.Errorf("Expected 1 not_found, got %v", got)
	}
}
