package auth

import (
	"database/sql"
	"fmt"
)

const sessionsTable = "auth_sessions"

// sessionInsertBatch bounds rows per INSERT; six columns each keeps a batch
// well under Postgres' 65535 bind parameters.
var sessionInsertBatch = 1000

type SessionStore interface {
	Load() (map[string]Session, error)
	Save(sessions map[string]Session) error
}

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresSessionStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSessionStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS auth_sessions (
	token TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	email TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure auth_sessions schema: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Load() (map[string]Session, error) {
	query, args, err := psql.Select("token", "session_id", "user_id", "email", "created_at", "expires_at").
		From(sessionsTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sessions query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Session)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.Token, &sess.ID, &sess.UserID, &sess.Email, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out[sess.Token] = sess
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresSessionStore) Save(sessions map[string]Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	delQuery, delArgs, err := psql.Delete(sessionsTable).ToSql()
	if err != nil {
		return fmt.Errorf("build sessions delete: %w", err)
	}
	if _, err := tx.Exec(delQuery, delArgs...); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	tokens := make([]string, 0, len(sessions))
	for token := range sessions {
		tokens = append(tokens, token)
	}
	for start := 0; start < len(tokens); start += sessionInsertBatch {
		end := min(start+sessionInsertBatch, len(tokens))
		insert := psql.Insert(sessionsTable).
			Columns("token", "session_id", "user_id", "email", "created_at", "expires_at")
		for _, token := range tokens[start:end] {
			sess := sessions[token]
			insert = insert.Values(token, sess.ID, sess.UserID, sess.Email, sess.CreatedAt, sess.ExpiresAt)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build sessions insert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("insert sessions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}
