package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notiontools/dashboard-gateway/internal/auth"
	"notiontools/dashboard-gateway/internal/envelope"
	"notiontools/dashboard-gateway/internal/guard"
)

const defaultCookieMaxAge = 7 * 24 * time.Hour

type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

func (c CookieConfig) session(token string) *http.Cookie {
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCookieMaxAge
	}
	return &http.Cookie{
		Name:     guard.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c CookieConfig) cleared() *http.Cookie {
	return &http.Cookie{
		Name:     guard.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

type loginResponse struct {
	User  auth.PublicUser `json:"user"`
	Token string          `json:"token"`
}

func (a *api) registerAuthRoutes(r chi.Router) {
	r.Use(middleware.NoCache)
	r.Use(a.requireService(a.Auth != nil, "auth service unavailable"))

	r.Post("/login", a.login)
	r.Post("/register", a.register)
	r.Post("/logout", a.logout)
	r.Get("/me", a.me)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}

	session, user, err := a.Auth.Login(req.Email, req.Password)
	if err != nil {
		a.Metrics.AuthEvent("login", "failed")
		auditReq(a.Audit, r, req.Email, "auth.login", "failed", "", err.Error())
		a.writeAppError(w, r, err)
		return
	}
	a.Metrics.AuthEvent("login", "success")
	auditReq(a.Audit, r, user.Email, "auth.login", "success", session.ID, "")

	http.SetCookie(w, a.Cookie.session(session.Token))
	writeJSON(w, http.StatusOK, envelope.OK(loginResponse{User: user.Public(), Token: session.Token}))
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		a.writeAppError(w, r, err)
		return
	}

	session, user, err := a.Auth.Register(req.Name, req.Email, req.Password)
	if err != nil {
		a.Metrics.AuthEvent("register", "failed")
		auditReq(a.Audit, r, req.Email, "auth.register", "failed", "", err.Error())
		a.writeAppError(w, r, err)
		return
	}
	a.Metrics.AuthEvent("register", "success")
	auditReq(a.Audit, r, user.Email, "auth.register", "success", session.ID, "")

	http.SetCookie(w, a.Cookie.session(session.Token))
	writeJSON(w, http.StatusCreated, envelope.OK(loginResponse{User: user.Public(), Token: session.Token}))
}

// logout always clears the cookie. Revoking the server-side session is best
// effort.
func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, a.Cookie.cleared())

	token := sessionToken(r)
	actor, sessionID := "", ""
	if token != "" {
		if session, err := a.Auth.ValidateToken(token); err == nil {
			actor, sessionID = session.Email, session.ID
		}
		if err := a.Auth.Logout(token); err != nil {
			a.Logger.Warn("revoke session failed", "request_id", requestIDFromContext(r.Context()), "err", err)
		}
	}
	a.Metrics.AuthEvent("logout", "success")
	auditReq(a.Audit, r, actor, "auth.logout", "success", sessionID, "")

	writeJSON(w, http.StatusOK, envelope.OK(map[string]bool{"success": true}))
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		a.writeAppError(w, r, auth.ErrInvalidToken)
		return
	}
	user, err := a.Auth.Me(token)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope.OK(user.Public()))
}

// requireSession rejects requests without a valid session with 401.
func (a *api) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Auth == nil {
			writeError(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}
		if _, err := a.Auth.ValidateToken(sessionToken(r)); err != nil {
			a.writeAppError(w, r, auth.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) requireService(ok bool, msg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ok {
				writeError(w, http.StatusServiceUnavailable, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionToken reads the session cookie, falling back to a bearer header for
// non-browser clients.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(guard.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return ""
	}
	return token
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
