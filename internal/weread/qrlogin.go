package weread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notiontools/dashboard-gateway/internal/envelope"
)

const DefaultPollInterval = 3 * time.Second

const (
	QRInitializing = "initializing"
	QRWaiting      = "waiting_for_scan"
	QRLoggedIn     = "logged_in"
	QRCompleted    = "completed"
	QRError        = "error"
	QRTimeout      = "timeout"
	QRCancelled    = "cancelled"
	QRUnknown      = "unknown"
)

var ErrQRLoginFailed = errors.New("qr login failed")

type QRSession struct {
	SessionID string `json:"session_id"`
	QRCode    string `json:"qrcode"`
}

type QRStatus struct {
	Success bool            `json:"success"`
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Headers json.RawMessage `json:"headers,omitempty"`
	Cookies json.RawMessage `json:"cookies,omitempty"`
}

func (s QRStatus) Terminal() bool {
	switch s.Status {
	case QRCompleted, QRError, QRTimeout, QRCancelled:
		return true
	}
	return false
}

// Requester is satisfied by *httpclient.Client.
type Requester interface {
	Request(ctx context.Context, method, target string, body any) envelope.Envelope
}

// QRLogin drives the WeRead backend's QR-code login. Polling has no local
// deadline; callers stop it through the context.
type QRLogin struct {
	http     Requester
	baseURL  string
	log      *slog.Logger
	Interval time.Duration
}

func NewQRLogin(http Requester, baseURL string, log *slog.Logger) *QRLogin {
	if log == nil {
		log = slog.Default()
	}
	return &QRLogin{
		http:     http,
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      log,
		Interval: DefaultPollInterval,
	}
}

func (q *QRLogin) Start(ctx context.Context) (QRSession, error) {
	env := q.http.Request(ctx, http.MethodPost, q.baseURL+"/api/config/qrcode", nil)
	if !env.Success {
		return QRSession{}, fmt.Errorf("%w: %s", ErrQRLoginFailed, orDefault(env.Error, "could not fetch QR code"))
	}
	var s QRSession
	if _, err := env.Field("session_id", &s.SessionID); err != nil {
		return QRSession{}, fmt.Errorf("decode session_id: %w", err)
	}
	if _, err := env.Field("qrcode", &s.QRCode); err != nil {
		return QRSession{}, fmt.Errorf("decode qrcode: %w", err)
	}
	if s.SessionID == "" {
		return QRSession{}, fmt.Errorf("%w: response carried no session_id", ErrQRLoginFailed)
	}
	return s, nil
}

// Status fetches the current login state once.
func (q *QRLogin) Status(ctx context.Context, sessionID string) QRStatus {
	env := q.http.Request(ctx, http.MethodGet, q.baseURL+"/api/config/qrcode/status/"+url.PathEscape(sessionID), nil)
	st := QRStatus{Success: env.Success, Error: env.Error}
	for name, dst := range map[string]*string{"status": &st.Status, "message": &st.Message} {
		if _, err := env.Field(name, dst); err != nil {
			q.log.Warn("decode qr status field", "field", name, "err", err)
		}
	}
	st.Headers = env.Fields["headers"]
	st.Cookies = env.Fields["cookies"]
	return st
}

// Poll checks the status every Interval until a terminal status, an
// unsuccessful response or ctx cancellation. onUpdate sees every status
// fetched. A completed login returns a nil error.
func (q *QRLogin) Poll(ctx context.Context, sessionID string, onUpdate func(QRStatus)) (QRStatus, error) {
	interval := q.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return QRStatus{}, ctx.Err()
		case <-ticker.C:
		}

		st := q.Status(ctx, sessionID)
		if ctx.Err() != nil {
			return QRStatus{}, ctx.Err()
		}
		if onUpdate != nil {
			onUpdate(st)
		}
		if !st.Success {
			return st, fmt.Errorf("%w: %s", ErrQRLoginFailed, orDefault(st.Error, "could not check login status"))
		}
		if st.Status == QRCompleted {
			return st, nil
		}
		if st.Terminal() {
			return st, fmt.Errorf("%w: %s", ErrQRLoginFailed, orDefault(st.Error, st.Status))
		}
	}
}

func (q *QRLogin) Cancel(ctx context.Context, sessionID string) error {
	env := q.http.Request(ctx, http.MethodPost, q.baseURL+"/api/config/qrcode/cancel/"+url.PathEscape(sessionID), nil)
	if !env.Success {
		return fmt.Errorf("%w: %s", ErrQRLoginFailed, orDefault(env.Error, "cancel failed"))
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
