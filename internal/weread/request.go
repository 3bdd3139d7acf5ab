package weread

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"notiontools/dashboard-gateway/internal/apperr"
)

var (
	ErrMissingParams    error = apperr.Validation("Missing required parameters: auth_code, headers and cookies")
	ErrInvalidReadCount error = apperr.Validation("read_count must be a number between 1 and 100")
	ErrInvalidSchedule  error = apperr.Validation("schedule_time must use 24-hour HH:MM format")
	ErrTaskNotFound     error = apperr.NotFound("Task not found")

	scheduleRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
)

type SigninRequest struct {
	AuthCode     string          `json:"auth_code"`
	Headers      json.RawMessage `json:"headers"`
	Cookies      json.RawMessage `json:"cookies"`
	ReadCount    json.RawMessage `json:"read_count"`
	ScheduleTime string          `json:"schedule_time"`
}

// Validate checks the request and returns the parsed read count.
func (r SigninRequest) Validate() (int, error) {
	if strings.TrimSpace(r.AuthCode) == "" || !present(r.Headers) || !present(r.Cookies) {
		return 0, ErrMissingParams
	}
	n, ok := parseReadCount(r.ReadCount)
	if !ok || n < 1 || n > 100 {
		return 0, ErrInvalidReadCount
	}
	if r.ScheduleTime != "" && !scheduleRe.MatchString(r.ScheduleTime) {
		return 0, ErrInvalidSchedule
	}
	return n, nil
}

func newTask(req SigninRequest, now time.Time) (Task, error) {
	n, err := req.Validate()
	if err != nil {
		return Task{}, err
	}
	now = now.UTC()
	return Task{
		ID:            uuid.NewString(),
		AuthCode:      strings.TrimSpace(req.AuthCode),
		ReadCount:     n,
		ScheduleTime:  req.ScheduleTime,
		Status:        StatusActive,
		Headers:       append(json.RawMessage(nil), req.Headers...),
		Cookies:       append(json.RawMessage(nil), req.Cookies...),
		NextExecution: now.Add(executionDelay),
		CreatedAt:     now,
		ModifiedAt:    now,
	}, nil
}

// present rejects absent and falsy JSON values.
func present(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "false", "0":
		return false
	}
	return true
}

// parseReadCount accepts a JSON number or a numeric string holding a whole
// number.
func parseReadCount(raw json.RawMessage) (int, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
