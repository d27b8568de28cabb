package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"task-manager/internal/models"
)

// dialect captures what differs between the SQL engines behind SQLStorage.
type dialect struct {
	driver          string
	schema          []string
	numbered        bool // $1, $2 placeholders instead of ?
	uniqueViolation func(error) bool
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			tags TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks (owner_id, seq)`,
	},
	uniqueViolation: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

const taskColumns = "id, owner_id, title, description, status, tags, created_at, updated_at"

// SQLStorage implements Storage on database/sql. Tasks are ordered by an
// insertion sequence so List returns creation order.
type SQLStorage struct {
	db   *sql.DB
	d    dialect
	opts storeOptions
}

func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLStorage, error) {
	s, err := openSQL(sqliteDialect, dbPath, opts)
	if err != nil {
		return nil, err
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection.
	s.db.SetMaxOpenConns(1)
	return s, nil
}

func openSQL(d dialect, dsn string, opts []Option) (*SQLStorage, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.driver, err)
	}
	return &SQLStorage{db: db, d: d, opts: buildOptions(opts)}, nil
}

func (s *SQLStorage) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.driver, err)
		}
	}
	return nil
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for engines that number them.
func (s *SQLStorage) rebind(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) now() time.Time {
	return s.opts.now().UTC()
}

func (s *SQLStorage) CreateTask(ctx context.Context, task *models.Task) error {
	now := s.now()
	task.ID = s.opts.newID()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Tags = cloneTags(task.Tags)

	tags, err := encodeTags(task.Tags)
	if err != nil {
		return err
	}
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		task.ID, task.OwnerID, task.Title, task.Description, string(task.Status), tags, now, now,
	)
	if err != nil {
		return unavailable("create task", err)
	}
	return nil
}

func (s *SQLStorage) ListTasks(ctx context.Context, ownerID string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), ownerID)
	if err != nil {
		return nil, unavailable("list tasks", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, unavailable("list tasks", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tasks", err)
	}
	return tasks, nil
}

func (s *SQLStorage) UpdateTask(ctx context.Context, ownerID, taskID string, upd models.UpdateTaskRequest) (*models.Task, error) {
	var (
		sets []string
		args []any
	)
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Tags != nil {
		tags, err := encodeTags(cloneTags(*upd.Tags))
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), taskID, ownerID)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND owner_id = ? RETURNING ` + taskColumns
	t, err := scanTask(s.db.QueryRowContext(ctx, s.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("update task", err)
	}
	return t, nil
}

func (s *SQLStorage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`), taskID, ownerID)
	if err != nil {
		return unavailable("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete task", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) CreateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	user.ID = s.opts.newID()
	user.Email = NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.rebind(query), user.ID, user.Email, user.PasswordHash, now, now)
	if err != nil {
		if s.d.uniqueViolation(err) {
			return ErrDuplicate
		}
		return unavailable("create user", err)
	}
	return nil
}

func (s *SQLStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?`
	var u models.User
	err := s.db.QueryRowContext(ctx, s.rebind(query), NormalizeEmail(email)).Scan(
		&u.ID, &u.Email, &u.PasswordHash, sqlTime{&u.CreatedAt}, sqlTime{&u.UpdatedAt},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t      models.Task
		status string
		tags   string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &tags,
		sqlTime{&t.CreatedAt}, sqlTime{&t.UpdatedAt})
	if err != nil {
		return nil, err
	}
	t.Status = models.Status(status)
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of task %s: %w", t.ID, err)
	}
	t.Tags = cloneTags(t.Tags)
	return &t, nil
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// sqlTime scans a timestamp whether the driver hands back time.Time or
// text. SQLite only converts columns whose declared type it can see.
type sqlTime struct{ t *time.Time }

func (s sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (s sqlTime) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", v)
}
