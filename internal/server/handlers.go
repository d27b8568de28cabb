package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"task-manager/internal/auth"
	"task-manager/internal/logger"
	"task-manager/internal/manager"
	"task-manager/internal/models"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid request body")

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type signupResponse struct {
	User models.Identity `json:"user"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Details of unexpected
// failures are logged and never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		code = http.StatusInternalServerError
		msg  = "internal server error"
	)
	switch {
	case errors.Is(err, errBadBody):
		code, msg = http.StatusBadRequest, errBadBody.Error()
	case errors.Is(err, manager.ErrValidation):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, manager.ErrNotFound):
		code, msg = http.StatusNotFound, "task not found"
	case errors.Is(err, manager.ErrInvalidCredentials):
		code, msg = http.StatusUnauthorized, manager.ErrInvalidCredentials.Error()
	case errors.Is(err, manager.ErrEmailTaken):
		code, msg = http.StatusConflict, manager.ErrEmailTaken.Error()
	}

	if code == http.StatusInternalServerError {
		logger.Error(r.Context(), err, "request failed", "method", r.Method, "path", r.URL.Path)
	} else {
		logger.Debug(r.Context(), "request rejected", "status", code, "reason", err.Error())
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// requireIdentity re-checks what the auth gate put in the context.
func requireIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		auth.Reject(w)
	}
	return id, ok
}

type taskHandler struct {
	tasks *manager.TaskManager
}

func (h taskHandler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req models.CreateTaskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.tasks.Create(r.Context(), id.ID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h taskHandler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	tasks, err := h.tasks.List(r.Context(), id.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h taskHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req models.UpdateTaskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	task, err := h.tasks.Update(r.Context(), id.ID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h taskHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), id.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "task deleted"})
}

type authHandler struct {
	users *manager.UserManager
}

func (h authHandler) signup(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.users.Signup(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, signupResponse{User: user.Identity()})
}

func (h authHandler) login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.users.Login(r.Context(), creds)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func apiIndexHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Welcome to Task Manager API"})
}

func rootHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "Task Manager API running"})
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				logger.Error(r.Context(), err, "health check failed")
				writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Message: "storage unreachable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "healthy"})
	}
}
