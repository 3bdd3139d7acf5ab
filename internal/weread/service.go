// Package weread registers WeRead auto sign-in tasks and drives the QR-code
// login flow of the external WeRead backend.
package weread

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Service struct {
	nowFunc   func() time.Time
	stateFile string

	mu    sync.RWMutex
	tasks map[string]Task
}

func NewService() *Service {
	return &Service{
		nowFunc: time.Now,
		tasks:   make(map[string]Task),
	}
}

func NewServiceWithFile(stateFile string) (*Service, error) {
	s := &Service{
		nowFunc:   time.Now,
		stateFile: strings.TrimSpace(stateFile),
		tasks:     make(map[string]Task),
	}
	if s.stateFile == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := s.loadState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Create(req SigninRequest) (Task, error) {
	t, err := newTask(req, s.nowFunc())
	if err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := cloneTasks(s.tasks)
	s.tasks[t.ID] = t.Clone()
	if err := s.persistLocked(); err != nil {
		s.tasks = prev
		return Task{}, err
	}
	return t, nil
}

// List returns tasks oldest first, filtered by auth code when one is given.
func (s *Service) List(authCode string) ([]Task, error) {
	authCode = strings.TrimSpace(authCode)

	s.mu.RLock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if authCode != "" && t.AuthCode != authCode {
			continue
		}
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sortTasks(out)
	return out, nil
}

func (s *Service) Get(id string) (Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[strings.TrimSpace(id)]
	s.mu.RUnlock()
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *Service) Delete(id string) error {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	prev := cloneTasks(s.tasks)
	delete(s.tasks, id)
	if err := s.persistLocked(); err != nil {
		s.tasks = prev
		return err
	}
	return nil
}

func (s *Service) loadState() error {
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read signin task state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	var decoded []Task
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode signin task state: %w", err)
	}
	for _, t := range decoded {
		if t.ID == "" {
			continue
		}
		s.tasks[t.ID] = t.Clone()
	}
	return nil
}

func (s *Service) persistLocked() error {
	if s.stateFile == "" {
		return nil
	}
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sortTasks(out)

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode signin task state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir signin task state dir: %w", err)
	}
	// Tasks carry WeRead credentials.
	if err := os.WriteFile(s.stateFile, b, 0o600); err != nil {
		return fmt.Errorf("write signin task state: %w", err)
	}
	return nil
}

func cloneTasks(src map[string]Task) map[string]Task {
	out := make(map[string]Task, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
