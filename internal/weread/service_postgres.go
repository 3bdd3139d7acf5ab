package weread

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const tasksTable = "weread_signin_tasks"

var (
	psql        = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	taskColumns = []string{
		"id", "auth_code", "read_count", "schedule_time", "status",
		"headers", "cookies", "next_execution", "created_at", "modified_at",
	}
)

type PGService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPGService(db *sql.DB) (*PGService, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PGService{
		db:      db,
		nowFunc: time.Now,
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGService) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS weread_signin_tasks (
	id TEXT PRIMARY KEY,
	auth_code TEXT NOT NULL,
	read_count INTEGER NOT NULL,
	schedule_time TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	headers JSONB NOT NULL,
	cookies JSONB NOT NULL,
	next_execution TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS weread_signin_tasks_auth_code_idx ON weread_signin_tasks (auth_code)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure weread_signin_tasks schema: %w", err)
	}
	return nil
}

func (s *PGService) Create(req SigninRequest) (Task, error) {
	t, err := newTask(req, s.nowFunc())
	if err != nil {
		return Task{}, err
	}

	query, args, err := psql.Insert(tasksTable).
		Columns(taskColumns...).
		Values(t.ID, t.AuthCode, t.ReadCount, t.ScheduleTime, t.Status,
			string(t.Headers), string(t.Cookies), t.NextExecution, t.CreatedAt, t.ModifiedAt).
		ToSql()
	if err != nil {
		return Task{}, fmt.Errorf("build signin task insert: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return Task{}, fmt.Errorf("insert signin task: %w", err)
	}
	return t, nil
}

func (s *PGService) List(authCode string) ([]Task, error) {
	b := psql.Select(taskColumns...).From(tasksTable)
	if authCode = strings.TrimSpace(authCode); authCode != "" {
		b = b.Where(sq.Eq{"auth_code": authCode})
	}
	query, args, err := b.OrderBy("created_at ASC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build signin task list: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signin tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signin task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signin tasks: %w", err)
	}
	return out, nil
}

func (s *PGService) Get(id string) (Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Task{}, ErrTaskNotFound
	}
	query, args, err := psql.Select(taskColumns...).
		From(tasksTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Task{}, fmt.Errorf("build signin task query: %w", err)
	}
	t, err := scanTask(s.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, fmt.Errorf("get signin task: %w", err)
	}
	return t, nil
}

func (s *PGService) Delete(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrTaskNotFound
	}
	query, args, err := psql.Delete(tasksTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build signin task delete: %w", err)
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("delete signin task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read delete affected rows: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t                Task
		headers, cookies []byte
	)
	if err := row.Scan(&t.ID, &t.AuthCode, &t.ReadCount, &t.ScheduleTime, &t.Status,
		&headers, &cookies, &t.NextExecution, &t.CreatedAt, &t.ModifiedAt); err != nil {
		return Task{}, err
	}
	t.Headers = json.RawMessage(headers)
	t.Cookies = json.RawMessage(cookies)
	return t, nil
}
