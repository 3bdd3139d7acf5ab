package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const (
	usersTable      = "auth_users"
	colID           = "id"
	colName         = "name"
	colEmail        = "email"
	colPasswordHash = "password_hash"
	colRole         = "role"
	colUpdatedAt    = "updated_at"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresUserStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresUserStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS auth_users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure auth_users schema: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) GetByEmail(email string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, ErrUserNotFound
	}
	return s.getOne(sq.Eq{colEmail: email})
}

func (s *PostgresUserStore) GetByID(id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrUserNotFound
	}
	return s.getOne(sq.Eq{colID: id})
}

func (s *PostgresUserStore) getOne(where sq.Eq) (User, error) {
	query, args, err := psql.Select(colID, colName, colEmail, colPasswordHash, colRole).
		From(usersTable).
		Where(where).
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build auth user query: %w", err)
	}

	var u User
	if err := s.db.QueryRow(query, args...).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query auth user: %w", err)
	}
	return u, nil
}

func (s *PostgresUserStore) Put(user User) error {
	user.Email = normalizeEmail(user.Email)
	if user.ID == "" || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("id, email, and password hash are required")
	}
	if user.Role == "" {
		user.Role = DefaultRole
	}

	query, args, err := psql.Insert(usersTable).
		Columns(colID, colName, colEmail, colPasswordHash, colRole, colUpdatedAt).
		Values(user.ID, user.Name, user.Email, user.PasswordHash, user.Role, sq.Expr("NOW()")).
		Suffix(`ON CONFLICT (email) DO UPDATE
SET name = EXCLUDED.name,
	password_hash = EXCLUDED.password_hash,
	role = EXCLUDED.role,
	updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build auth user upsert: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("upsert auth user: %w", err)
	}
	return nil
}
