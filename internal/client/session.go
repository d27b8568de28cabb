package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"task-manager/internal/models"
)

const (
	sessionFilePerms = 0o600
	sessionDirPerms  = 0o700
)

// SessionData is what a successful login leaves behind.
type SessionData struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// Session holds the access token between calls. A file-backed session
// survives restarts; a memory session lives as long as the process.
type Session struct {
	mu   sync.Mutex
	path string
	data SessionData
}

func NewMemorySession() *Session {
	return &Session{}
}

// OpenSession loads the session stored at path. A missing file is an
// empty session, not an error.
func OpenSession(path string) (*Session, error) {
	s := &Session{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	return s, nil
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Token
}

func (s *Session) User() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.User, s.data.Token != ""
}

func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

func (s *Session) Save(d SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = d
	return s.persist()
}

func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = SessionData{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (s *Session) persist() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), sessionDirPerms); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Chmod(s.path, sessionFilePerms); err != nil {
		return fmt.Errorf("chmod session: %w", err)
	}
	return nil
}
