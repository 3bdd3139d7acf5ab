package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"notiontools/dashboard-gateway/internal/apperr"
	"notiontools/dashboard-gateway/internal/audit"
	"notiontools/dashboard-gateway/internal/auth"
	"notiontools/dashboard-gateway/internal/config"
	"notiontools/dashboard-gateway/internal/envelope"
	"notiontools/dashboard-gateway/internal/guard"
	"notiontools/dashboard-gateway/internal/notion"
	"notiontools/dashboard-gateway/internal/observability"
	"notiontools/dashboard-gateway/internal/weread"
)

const serviceName = "dashboard-gateway"

type AuthService interface {
	Login(email, password string) (auth.Session, auth.User, error)
	Register(name, email, password string) (auth.Session, auth.User, error)
	ValidateToken(token string) (auth.Session, error)
	Me(token string) (auth.User, error)
	Logout(token string) error
}

type SigninTaskService interface {
	Create(req weread.SigninRequest) (weread.Task, error)
	List(authCode string) ([]weread.Task, error)
	Get(id string) (weread.Task, error)
	Delete(id string) error
}

type NotionService interface {
	SetupCoversAndIcons(ctx context.Context, p notion.Params) (notion.Result, error)
}

type AuditLogger interface {
	Log(e audit.Event) error
}

type Deps struct {
	Auth        AuthService
	SigninTasks SigninTaskService
	Notion      NotionService
	Audit       AuditLogger
	Guard       *guard.Guard
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Cookie      CookieConfig
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready              func(ctx context.Context) error
	Version            string
	CORSAllowedOrigins []string
	FrontendDistDir    string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewHandler(deps),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(guard.WithRecorder(deps.Metrics), guard.WithLogger(deps.Logger))
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	r := chi.NewRouter()
	r.Use(loggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(recoverMiddleware(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				deps.Logger.Warn("readiness check failed", "err", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/v1/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": serviceName,
			"version": deps.Version,
		})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	a := &api{Deps: deps}
	r.Route("/api", func(r chi.Router) {
		if len(deps.CORSAllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   deps.CORSAllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
				ExposedHeaders:   []string{"X-Request-Id"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		})

		r.Route("/auth", a.registerAuthRoutes)
		r.Route("/weread-signin", a.registerSigninRoutes)
		r.Post("/notion-setup", a.notionSetup)
	})

	registerFrontendRoutes(r, deps.Guard, deps.FrontendDistDir)

	return r
}

// api carries the dependencies shared by the /api handlers.
type api struct {
	Deps
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope.Fail(message))
}

// writeAppError maps err through the apperr taxonomy. Unclassified errors are
// 500 with their message surfaced.
func (a *api) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFromContext(r.Context()), "err", err)
	}
	writeError(w, status, apperr.Message(err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.status = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}

func loggingMiddleware(log *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if reqID == "" {
				reqID = newRequestID()
			}
			w.Header().Set("X-Request-Id", reqID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.ObserveHTTP(route, r.Method, rec.status, elapsed)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", reqID,
			)
		})
	}
}

// recoverMiddleware turns a panic into an UnknownError envelope.
func recoverMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				log.Error("handler panic",
					"path", r.URL.Path,
					"request_id", requestIDFromContext(r.Context()),
					"panic", fmt.Sprint(rv),
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, fmt.Sprint(rv))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

func newRequestID() string {
	return uuid.NewString()
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, actor, action, outcome, sessionID, detail string) {
	if a == nil {
		return
	}
	_ = a.Log(audit.Event{
		Actor:     actor,
		Action:    action,
		Outcome:   outcome,
		SessionID: sessionID,
		RequestID: requestIDFromContext(r.Context()),
		IP:        clientIP(r),
		UserAgent: strings.TrimSpace(r.UserAgent()),
		Detail:    strings.TrimSpace(detail),
	})
}
