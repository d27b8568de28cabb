package view

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/client"
	"task-manager/internal/models"
)

// fakeAPI is an in-process stand-in for the REST API that records calls.
type fakeAPI struct {
	tasks  []models.Task
	nextID int
	calls  []string
	err    error

	// failUpdates makes the next n UpdateTask calls fail.
	failUpdates int
}

func (f *fakeAPI) ListTasks(context.Context) ([]models.Task, error) {
	f.calls = append(f.calls, "list")
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Task, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

func (f *fakeAPI) CreateTask(_ context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	f.calls = append(f.calls, "create")
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	t := models.Task{
		ID:          fmt.Sprintf("task-%03d", f.nextID),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.StatusPending,
		Tags:        tags,
	}
	f.tasks = append(f.tasks, t)
	return &t, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, id string, req models.UpdateTaskRequest) (*models.Task, error) {
	f.calls = append(f.calls, "update")
	if f.err != nil {
		return nil, f.err
	}
	if f.failUpdates > 0 {
		f.failUpdates--
		return nil, &client.APIError{StatusCode: http.StatusInternalServerError, Message: "internal server error"}
	}
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		t := &f.tasks[i]
		if req.Title != nil {
			t.Title = *req.Title
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.Status != nil {
			t.Status = *req.Status
		}
		if req.Tags != nil {
			t.Tags = *req.Tags
		}
		out := *t
		return &out, nil
	}
	return nil, &client.APIError{StatusCode: http.StatusNotFound, Message: "task not found"}
}

func (f *fakeAPI) DeleteTask(_ context.Context, id string) error {
	f.calls = append(f.calls, "delete")
	if f.err != nil {
		return f.err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return &client.APIError{StatusCode: http.StatusNotFound, Message: "task not found"}
}

func seeded() *fakeAPI {
	return &fakeAPI{
		nextID: 3,
		tasks: []models.Task{
			{ID: "aaa111", Title: "Write report", Status: models.StatusPending, Tags: []string{"work"}},
			{ID: "aab222", Title: "Buy milk", Status: models.StatusCompleted, Tags: []string{}},
			{ID: "bbb333", Title: "Call mom", Status: models.StatusInProgress, Tags: []string{}},
		},
	}
}

func titles(tasks []models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Title)
	}
	return out
}

func TestRefreshRequiresLogin(t *testing.T) {
	for _, cause := range []error{
		client.ErrNotLoggedIn,
		&client.APIError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"},
	} {
		c := New(&fakeAPI{err: cause})
		err := c.Refresh(context.Background())
		assert.ErrorIs(t, err, ErrLoginRequired)
		assert.ErrorIs(t, err, cause)
	}

	other := &client.APIError{StatusCode: http.StatusInternalServerError}
	err := New(&fakeAPI{err: other}).Refresh(context.Background())
	assert.False(t, errors.Is(err, ErrLoginRequired))
}

func TestFilterAndCounts(t *testing.T) {
	c := New(seeded())
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, Counts{Total: 3, Pending: 1, InProgress: 1, Completed: 1}, c.Counts())
	assert.Equal(t, []string{"Write report", "Buy milk", "Call mom"}, titles(c.Visible()))

	require.NoError(t, c.SetFilter("completed"))
	assert.Equal(t, []string{"Buy milk"}, titles(c.Visible()))
	assert.Equal(t, 3, c.Counts().Total, "counts ignore the filter")

	assert.ErrorIs(t, c.SetFilter("done"), ErrUnknownFilter)
	assert.Equal(t, Filter(models.StatusCompleted), c.Filter())

	require.NoError(t, c.SetFilter(" ALL "))
	assert.Len(t, c.Visible(), 3)
}

func TestDraftTags(t *testing.T) {
	c := New(&fakeAPI{})

	assert.True(t, c.AddTag("  urgent "))
	assert.False(t, c.AddTag("urgent"), "duplicate")
	assert.False(t, c.AddTag("   "), "blank")
	assert.True(t, c.AddTag("home"))
	assert.Equal(t, []string{"urgent", "home"}, c.Draft().Tags)

	c.RemoveTag("urgent")
	c.RemoveTag("missing")
	assert.Equal(t, []string{"home"}, c.Draft().Tags)

	d := c.Draft()
	d.Tags[0] = "mutated"
	assert.Equal(t, []string{"home"}, c.Draft().Tags, "Draft returns a copy")
}

func TestSaveCreatesThenRefetches(t *testing.T) {
	api := &fakeAPI{}
	c := New(api)
	ctx := context.Background()

	c.SetTitle("  Plan trip ")
	c.SetDescription("Lisbon")
	c.AddTag("travel")
	require.NoError(t, c.SetStatus(models.StatusInProgress))

	saved, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "update", "list"}, api.calls)

	want := []models.Task{{
		ID:          saved.ID,
		Title:       "Plan trip",
		Description: "Lisbon",
		Status:      models.StatusInProgress,
		Tags:        []string{"travel"},
	}}
	if diff := cmp.Diff(want, c.Tasks()); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(emptyDraft(), c.Draft(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("draft not reset (-want +got):\n%s", diff)
	}
}

func TestSavePendingSkipsStatusUpdate(t *testing.T) {
	api := &fakeAPI{}
	c := New(api)
	c.SetTitle("Buy milk")

	_, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "list"}, api.calls)
	require.Len(t, c.Tasks(), 1)
	assert.Equal(t, models.StatusPending, c.Tasks()[0].Status)
	assert.Equal(t, []string{}, c.Tasks()[0].Tags)
}

func TestSaveEditsExisting(t *testing.T) {
	api := seeded()
	c := New(api)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	require.NoError(t, c.Edit("aaa111"))
	assert.Equal(t, "Write report", c.Draft().Title)
	c.SetTitle("Write final report")
	c.AddTag("q3")
	require.NoError(t, c.SetStatus(models.StatusCompleted))

	api.calls = nil
	_, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"update", "list"}, api.calls)

	got, err := c.Find("aaa111")
	require.NoError(t, err)
	assert.Equal(t, "Write final report", got.Title)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, []string{"work", "q3"}, got.Tags)
	assert.Empty(t, c.Draft().EditingID)
}

func TestSaveRequiresTitle(t *testing.T) {
	api := &fakeAPI{}
	c := New(api)
	c.SetTitle("   ")
	_, err := c.Save(context.Background())
	assert.ErrorIs(t, err, ErrTitleRequired)
	assert.Empty(t, api.calls)
}

func TestSaveKeepsDraftOnFailure(t *testing.T) {
	api := &fakeAPI{err: &client.APIError{StatusCode: http.StatusInternalServerError}}
	c := New(api)
	c.SetTitle("Keep me")

	_, err := c.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Keep me", c.Draft().Title)
}

func TestSaveRetryAfterFailedStatusUpdateDoesNotDuplicate(t *testing.T) {
	api := &fakeAPI{failUpdates: 1}
	c := New(api)
	ctx := context.Background()
	c.SetTitle("Plan trip")
	require.NoError(t, c.SetStatus(models.StatusInProgress))

	_, err := c.Save(ctx)
	require.Error(t, err)
	require.Len(t, api.tasks, 1)
	assert.Equal(t, api.tasks[0].ID, c.Draft().EditingID)
	assert.Equal(t, "Plan trip", c.Draft().Title)
	assert.Len(t, c.Tasks(), 1, "list refetched after the partial save")

	saved, err := c.Save(ctx)
	require.NoError(t, err)
	require.Len(t, api.tasks, 1)
	assert.Equal(t, api.tasks[0].ID, saved.ID)
	assert.Equal(t, models.StatusInProgress, saved.Status)
	assert.Empty(t, c.Draft().EditingID)
}

func TestFindByListedShortID(t *testing.T) {
	api := &fakeAPI{tasks: []models.Task{
		{ID: "0192f3a4-7b1c-7d2e-8f00-112233445566", Title: "Ship release", Status: models.StatusPending},
		{ID: "0192f3a4-7b1c-7d2e-8f00-998877665544", Title: "Write notes", Status: models.StatusPending},
	}}
	c := New(api)
	require.NoError(t, c.Refresh(context.Background()))

	got, err := c.Find("33445566")
	require.NoError(t, err)
	assert.Equal(t, "Ship release", got.Title)

	_, err = c.Find("0192f3a4")
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestDeleteRefetches(t *testing.T) {
	api := seeded()
	c := New(api)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	require.NoError(t, c.Edit("bbb333"))

	api.calls = nil
	require.NoError(t, c.Delete(ctx, "bbb333"))
	assert.Equal(t, []string{"delete", "list"}, api.calls)
	assert.Equal(t, []string{"Write report", "Buy milk"}, titles(c.Tasks()))
	assert.Empty(t, c.Draft().EditingID, "deleting the edited task resets the draft")

	err := c.Delete(ctx, "bbb333")
	assert.True(t, client.IsStatus(err, http.StatusNotFound))
}

func TestSetTaskStatus(t *testing.T) {
	api := seeded()
	c := New(api)
	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	api.calls = nil
	_, err := c.SetTaskStatus(ctx, "aaa111", models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, []string{"update", "list"}, api.calls)
	assert.Equal(t, 2, c.Counts().Completed)

	_, err = c.SetTaskStatus(ctx, "aaa111", "done")
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	c := New(seeded())
	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.SetFilter(Filter(models.StatusCompleted)))

	tests := []struct {
		ref   string
		want  string
		isErr error
	}{
		{ref: "bbb333", want: "Call mom"},
		{ref: "1", want: "Buy milk"},
		{ref: "bbb", want: "Call mom"},
		{ref: "aab", want: "Buy milk"},
		{ref: "333", want: "Call mom"},
		{ref: "b222", want: "Buy milk"},
		{ref: "aa", isErr: ErrAmbiguous},
		{ref: "2", isErr: ErrNoMatch},
		{ref: "zzz", isErr: ErrNoMatch},
		{ref: "", isErr: ErrNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := c.Find(tt.ref)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Title)
		})
	}
}
