package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"notiontools/dashboard-gateway/internal/apperr"
)

var (
	ErrMissingCredentials  error = apperr.Validation("Missing required parameters: email and password")
	ErrMissingRegistration error = apperr.Validation("Missing required parameters: name, email and password")
	ErrInvalidEmail        error = apperr.Validation("Invalid email address")
	ErrWeakPassword        error = apperr.Validation("Password must be at least 8 characters")
	ErrInvalidCredentials  error = apperr.Auth("Invalid email or password")
	ErrInvalidToken        error = apperr.Auth("Unauthorized")
	ErrUserNotFound        error = apperr.NotFound("User not found")
	ErrEmailTaken          error = apperr.Conflict("Email already registered")
)

type Service struct {
	users        UserStore
	tokens       *TokenIssuer
	nowFunc      func() time.Time
	stateFile    string
	sessionStore SessionStore

	sessMu   sync.RWMutex
	sessions map[string]Session
}

type ServiceConfig struct {
	Tokens           *TokenIssuer
	SessionStateFile string
	SessionStore     SessionStore
}

func NewService(userStore UserStore, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}

	return &Service{
		users:        userStore,
		tokens:       cfg.Tokens,
		nowFunc:      time.Now,
		stateFile:    cfg.SessionStateFile,
		sessionStore: cfg.SessionStore,
		sessions:     make(map[string]Session),
	}, nil
}

// Login checks credentials and opens a session. Unknown email and wrong
// password produce the same error.
func (s *Service) Login(email, password string) (Session, User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, User{}, ErrMissingCredentials
	}

	u, err := s.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword("", password)
			return Session{}, User{}, ErrInvalidCredentials
		}
		return Session{}, User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return Session{}, User{}, ErrInvalidCredentials
	}

	session, err := s.openSession(u)
	if err != nil {
		return Session{}, User{}, err
	}
	return session, u, nil
}

// Register creates a user with the default role and opens a session for it.
func (s *Service) Register(name, email, password string) (Session, User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return Session{}, User{}, ErrMissingRegistration
	}
	if !strings.Contains(email, "@") {
		return Session{}, User{}, ErrInvalidEmail
	}

	if _, err := s.users.GetByEmail(email); err == nil {
		return Session{}, User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return Session{}, User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, User{}, err
	}
	u := User{
		ID:           newID(),
		Name:         name,
		Email:        email,
		Role:         DefaultRole,
		PasswordHash: hash,
	}
	if err := s.users.Put(u); err != nil {
		return Session{}, User{}, fmt.Errorf("store user: %w", err)
	}

	session, err := s.openSession(u)
	if err != nil {
		return Session{}, User{}, err
	}
	return session, u, nil
}

func (s *Service) openSession(u User) (Session, error) {
	now := s.nowFunc()
	id := newID()
	token, expiresAt, err := s.tokens.Mint(id, u, now)
	if err != nil {
		return Session{}, fmt.Errorf("mint token: %w", err)
	}
	session := Session{
		ID:        id,
		Token:     token,
		UserID:    u.ID,
		Email:     u.Email,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[token] = session
	if err := s.persistSessionsLocked(); err != nil {
		delete(s.sessions, token)
		return Session{}, err
	}
	return session, nil
}

func (s *Service) ValidateToken(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidToken
	}

	s.sessMu.RLock()
	session, ok := s.sessions[token]
	s.sessMu.RUnlock()
	if !ok {
		return Session{}, ErrInvalidToken
	}

	if session.Expired(s.nowFunc()) {
		s.sessMu.Lock()
		delete(s.sessions, token)
		_ = s.persistSessionsLocked()
		s.sessMu.Unlock()
		return Session{}, ErrInvalidToken
	}
	if _, err := s.tokens.Parse(token); err != nil {
		return Session{}, ErrInvalidToken
	}

	return session, nil
}

// Me resolves the user behind a session token.
func (s *Service) Me(token string) (User, error) {
	session, err := s.ValidateToken(token)
	if err != nil {
		return User{}, err
	}
	u, err := s.users.GetByID(session.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// Logout drops the session for token. Unknown or empty tokens are not an error.
func (s *Service) Logout(token string) error {
	if token == "" {
		return nil
	}
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	prev, ok := s.sessions[token]
	if !ok {
		return nil
	}
	delete(s.sessions, token)
	if err := s.persistSessionsLocked(); err != nil {
		s.sessions[token] = prev
		return err
	}
	return nil
}

// PruneExpired removes expired sessions and returns how many were dropped.
func (s *Service) PruneExpired() (int, error) {
	now := s.nowFunc()

	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.persistSessionsLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *Service) ActiveSessions() int {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return len(s.sessions)
}

func (s *Service) LoadSessionState() error {
	if s.sessionStore != nil {
		state, err := s.sessionStore.Load()
		if err != nil {
			return fmt.Errorf("load session state: %w", err)
		}
		s.sessMu.Lock()
		s.sessions = state
		s.sessMu.Unlock()
		return nil
	}

	if s.stateFile == "" {
		return nil
	}
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	state := make(map[string]Session)
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}

	s.sessMu.Lock()
	s.sessions = state
	s.sessMu.Unlock()
	return nil
}

func (s *Service) persistSessionsLocked() error {
	if s.sessionStore != nil {
		if err := s.sessionStore.Save(s.sessions); err != nil {
			return fmt.Errorf("save session state: %w", err)
		}
		return nil
	}

	if s.stateFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir session state dir: %w", err)
	}
	b, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if err := os.WriteFile(s.stateFile, b, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
