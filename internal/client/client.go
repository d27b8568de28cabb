// Package client talks to the task-manager REST API on behalf of one
// signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"task-manager/internal/models"
)

var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type Client struct {
	base    string
	http    *http.Client
	session *Session
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:5000/api".
func New(baseURL string, session *Session, timeout time.Duration) *Client {
	if session == nil {
		session = NewMemorySession()
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: session,
	}
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) Signup(ctx context.Context, creds models.Credentials) (models.Identity, error) {
	var resp struct {
		User models.Identity `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/signup", "", creds, &resp); err != nil {
		return models.Identity{}, err
	}
	return resp.User, nil
}

// Login authenticates and stores the returned token in the session.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.Identity, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", creds, &resp); err != nil {
		return models.Identity{}, err
	}
	if err := c.session.Save(SessionData{Token: resp.Token, User: resp.User}); err != nil {
		return models.Identity{}, err
	}
	return resp.User, nil
}

func (c *Client) Logout() error {
	return c.session.Clear()
}

func (c *Client) ListTasks(ctx context.Context) ([]models.Task, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	if err := c.do(ctx, http.MethodGet, "/tasks", tok, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", tok, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, req models.UpdateTaskRequest) (*models.Task, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), tok, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	tok, err := c.token()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), tok, nil, nil)
}

func (c *Client) token() (string, error) {
	tok := c.session.Token()
	if tok == "" {
		return "", ErrNotLoggedIn
	}
	return tok, nil
}

func (c *Client) do(ctx context.Context, method, path, tok string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
