// Package view holds the client-side state of the task screen: the
// fetched list, the active filter and the create/edit draft.
package view

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"task-manager/internal/client"
	"task-manager/internal/models"
)

var (
	// ErrLoginRequired means the caller should send the user to login.
	ErrLoginRequired = errors.New("login required")
	ErrTitleRequired = errors.New("title is required")
	ErrNoMatch       = errors.New("no matching task")
	ErrAmbiguous     = errors.New("task reference is ambiguous")
	ErrUnknownFilter = errors.New("unknown filter")
)

// API is the subset of client.Client the controller drives.
type API interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Filter is "all" or one of the task statuses.
type Filter string

const FilterAll Filter = "all"

func ParseFilter(s string) (Filter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || Filter(s) == FilterAll {
		return FilterAll, nil
	}
	if models.Status(s).Valid() {
		return Filter(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

type Counts struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
}

// Draft is the form being edited. An empty EditingID means a new task.
type Draft struct {
	EditingID   string
	Title       string
	Description string
	Status      models.Status
	Tags        []string
}

func emptyDraft() Draft {
	return Draft{Status: models.StatusPending, Tags: []string{}}
}

type Controller struct {
	api    API
	tasks  []models.Task
	filter Filter
	draft  Draft
}

func New(api API) *Controller {
	return &Controller{
		api:    api,
		tasks:  []models.Task{},
		filter: FilterAll,
		draft:  emptyDraft(),
	}
}

func loginRequired(err error) bool {
	return errors.Is(err, client.ErrNotLoggedIn) || client.IsStatus(err, http.StatusUnauthorized)
}

func wrap(err error) error {
	if loginRequired(err) {
		return errors.Join(ErrLoginRequired, err)
	}
	return err
}

// Refresh replaces the local list with the server's.
func (c *Controller) Refresh(ctx context.Context) error {
	tasks, err := c.api.ListTasks(ctx)
	if err != nil {
		return wrap(err)
	}
	c.tasks = tasks
	return nil
}

// Tasks returns the full fetched list.
func (c *Controller) Tasks() []models.Task {
	return slices.Clone(c.tasks)
}

func (c *Controller) Filter() Filter { return c.filter }

func (c *Controller) SetFilter(f Filter) error {
	parsed, err := ParseFilter(string(f))
	if err != nil {
		return err
	}
	c.filter = parsed
	return nil
}

// Visible returns the tasks that pass the current filter.
func (c *Controller) Visible() []models.Task {
	if c.filter == FilterAll {
		return c.Tasks()
	}
	out := make([]models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if Filter(t.Status) == c.filter {
			out = append(out, t)
		}
	}
	return out
}

func (c *Controller) Counts() Counts {
	n := Counts{Total: len(c.tasks)}
	for _, t := range c.tasks {
		switch t.Status {
		case models.StatusPending:
			n.Pending++
		case models.StatusInProgress:
			n.InProgress++
		case models.StatusCompleted:
			n.Completed++
		}
	}
	return n
}

func (c *Controller) Draft() Draft {
	d := c.draft
	d.Tags = slices.Clone(c.draft.Tags)
	return d
}

// NewDraft discards the draft and starts a blank one.
func (c *Controller) NewDraft() {
	c.draft = emptyDraft()
}

// Edit loads the task with the given id into the draft.
func (c *Controller) Edit(id string) error {
	i := slices.IndexFunc(c.tasks, func(t models.Task) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoMatch, id)
	}
	t := c.tasks[i]
	c.draft = Draft{
		EditingID:   t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Tags:        slices.Clone(t.Tags),
	}
	if c.draft.Tags == nil {
		c.draft.Tags = []string{}
	}
	return nil
}

func (c *Controller) SetTitle(title string)      { c.draft.Title = title }
func (c *Controller) SetDescription(desc string) { c.draft.Description = desc }

func (c *Controller) SetStatus(s models.Status) error {
	if !s.Valid() {
		return fmt.Errorf("unknown status %q", s)
	}
	c.draft.Status = s
	return nil
}

// AddTag appends a trimmed tag to the draft. Blank and duplicate tags are
// ignored; the result reports whether the draft changed.
func (c *Controller) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || slices.Contains(c.draft.Tags, tag) {
		return false
	}
	c.draft.Tags = append(c.draft.Tags, tag)
	return true
}

func (c *Controller) RemoveTag(tag string) {
	c.draft.Tags = slices.DeleteFunc(c.draft.Tags, func(t string) bool { return t == tag })
}

// Save sends the draft to the server, resets it and refetches the list.
// A new task is always created pending, so a different draft status is
// applied with a follow-up update.
func (c *Controller) Save(ctx context.Context) (*models.Task, error) {
	d := c.Draft()
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	var (
		saved *models.Task
		err   error
	)
	if d.EditingID == "" {
		saved, err = c.api.CreateTask(ctx, models.CreateTaskRequest{
			Title:       title,
			Description: d.Description,
			Tags:        d.Tags,
		})
		if err == nil && d.Status != "" && d.Status != models.StatusPending {
			created := saved
			saved, err = c.api.UpdateTask(ctx, created.ID, models.UpdateTaskRequest{Status: &d.Status})
			if err != nil {
				// The task exists now; a retried Save must update it.
				c.draft.EditingID = created.ID
				_ = c.Refresh(ctx)
				return nil, wrap(err)
			}
		}
	} else {
		saved, err = c.api.UpdateTask(ctx, d.EditingID, models.UpdateTaskRequest{
			Title:       &title,
			Description: &d.Description,
			Status:      &d.Status,
			Tags:        &d.Tags,
		})
	}
	if err != nil {
		return nil, wrap(err)
	}

	c.NewDraft()
	if err := c.Refresh(ctx); err != nil {
		return saved, err
	}
	return saved, nil
}

// Delete removes the task on the server and refetches the list.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.api.DeleteTask(ctx, id); err != nil {
		return wrap(err)
	}
	if c.draft.EditingID == id {
		c.NewDraft()
	}
	return c.Refresh(ctx)
}

// SetTaskStatus updates only the status of one task, then refetches.
func (c *Controller) SetTaskStatus(ctx context.Context, id string, s models.Status) (*models.Task, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown status %q", s)
	}
	saved, err := c.api.UpdateTask(ctx, id, models.UpdateTaskRequest{Status: &s})
	if err != nil {
		return nil, wrap(err)
	}
	if err := c.Refresh(ctx); err != nil {
		return saved, err
	}
	return saved, nil
}

// Find resolves ref as an exact id, a 1-based position in the visible
// list, or an id prefix or suffix matching a single task, in that order.
func (c *Controller) Find(ref string) (models.Task, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Task{}, ErrNoMatch
	}
	for _, t := range c.tasks {
		if t.ID == ref {
			return t, nil
		}
	}

	if n, err := strconv.Atoi(ref); err == nil {
		visible := c.Visible()
		if n >= 1 && n <= len(visible) {
			return visible[n-1], nil
		}
	}

	var match []models.Task
	for _, t := range c.tasks {
		if strings.HasPrefix(t.ID, ref) || strings.HasSuffix(t.ID, ref) {
			match = append(match, t)
		}
	}
	switch len(match) {
	case 0:
		return models.Task{}, fmt.Errorf("%w: %s", ErrNoMatch, ref)
	case 1:
		return match[0], nil
	}
	return models.Task{}, fmt.Errorf("%w: %s matches %d tasks", ErrAmbiguous, ref, len(match))
}
