package weread

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func steppingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestServiceCRUD(t *testing.T) {
	svc := NewService()
	svc.nowFunc = steppingClock(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))

	first, err := svc.Create(validRequest())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	other := validRequest()
	other.AuthCode = "code-2"
	if _, err := svc.Create(other); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	second, err := svc.Create(validRequest())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	all, err := svc.List("")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}

	mine, err := svc.List("code-1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != first.ID || mine[1].ID != second.ID {
		t.Fatalf("expected code-1 tasks oldest first, got %+v", mine)
	}

	got, err := svc.Get(first.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got.Cookies) != `{"wr_skey":"abc"}` {
		t.Fatalf("expected stored cookies, got %s", got.Cookies)
	}

	if err := svc.Delete(first.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := svc.Get(first.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := svc.Delete(first.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestServiceRejectsInvalidRequest(t *testing.T) {
	svc := NewService()
	req := validRequest()
	req.ReadCount = json.RawMessage(`500`)
	if _, err := svc.Create(req); !errors.Is(err, ErrInvalidReadCount) {
		t.Fatalf("expected ErrInvalidReadCount, got %v", err)
	}
	all, _ := svc.List("")
	if len(all) != 0 {
		t.Fatalf("invalid request must not be stored")
	}
}

func TestServiceWithFilePersistsState(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state", "signin_tasks.json")
	svc, err := NewServiceWithFile(stateFile)
	if err != nil {
		t.Fatalf("NewServiceWithFile() error: %v", err)
	}
	created, err := svc.Create(validRequest())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	info, err := os.Stat(stateFile)
	if err != nil {
		t.Fatalf("stat state file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 state file, got %v", info.Mode().Perm())
	}

	reloaded, err := NewServiceWithFile(stateFile)
	if err != nil {
		t.Fatalf("NewServiceWithFile() reload error: %v", err)
	}
	got, err := reloaded.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() after reload error: %v", err)
	}
	if got.ReadCount != 20 || got.AuthCode != "code-1" {
		t.Fatalf("unexpected reloaded task: %+v", got)
	}
}

func TestNewServiceWithFileRejectsCorruptState(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "signin_tasks.json")
	if err := os.WriteFile(stateFile, []byte("{"), 0o600); err != nil {
		t.Fatalf("write state: %v", err)
	}
	if _, err := NewServiceWithFile(stateFile); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := NewServiceWithFile(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
