package weread

import (
	"encoding/json"
	"time"
)

const (
	StatusActive   = "active"
	RandomSchedule = "random"
	SignedUpText   = "WeRead auto sign-in configured"

	executionDelay = 24 * time.Hour
)

// Task is a registered auto sign-in. Headers and Cookies hold the caller's
// WeRead credentials and are never returned through the API.
type Task struct {
	ID            string          `json:"id"`
	AuthCode      string          `json:"auth_code"`
	ReadCount     int             `json:"read_count"`
	ScheduleTime  string          `json:"schedule_time"`
	Status        string          `json:"status"`
	Headers       json.RawMessage `json:"headers"`
	Cookies       json.RawMessage `json:"cookies"`
	NextExecution time.Time       `json:"next_execution"`
	CreatedAt     time.Time       `json:"created_at"`
	ModifiedAt    time.Time       `json:"modified_at"`
}

func (t Task) Clone() Task {
	t.Headers = append(json.RawMessage(nil), t.Headers...)
	t.Cookies = append(json.RawMessage(nil), t.Cookies...)
	return t
}

type TaskView struct {
	ID            string    `json:"id"`
	AuthCode      string    `json:"auth_code"`
	ReadCount     int       `json:"read_count"`
	ScheduleTime  string    `json:"schedule_time"`
	Status        string    `json:"status"`
	NextExecution time.Time `json:"next_execution"`
	CreatedAt     time.Time `json:"created_at"`
}

func (t Task) View() TaskView {
	schedule := t.ScheduleTime
	if schedule == "" {
		schedule = RandomSchedule
	}
	return TaskView{
		ID:            t.ID,
		AuthCode:      t.AuthCode,
		ReadCount:     t.ReadCount,
		ScheduleTime:  schedule,
		Status:        t.Status,
		NextExecution: t.NextExecution,
		CreatedAt:     t.CreatedAt,
	}
}

// SigninResult is the data member of a successful registration.
type SigninResult struct {
	Message string `json:"message"`
	TaskView
}

func (t Task) Result() SigninResult {
	return SigninResult{Message: SignedUpText, TaskView: t.View()}
}

// TaskStore is implemented by the file-backed Service and the Postgres
// PGService.
type TaskStore interface {
	Create(req SigninRequest) (Task, error)
	List(authCode string) ([]Task, error)
	Get(id string) (Task, error)
	Delete(id string) error
}
