// Package guard decides, per page request, whether to serve the page or
// redirect based on the route class and the session cookie.
//
// The decision is a pure function of the path and cookie presence. An optional
// TokenVerifier tightens "present" to "present and correctly signed"; it must
// not touch storage.
package guard

import (
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const (
	CookieName    = "auth_token"
	LoginPath     = "/login"
	RegisterPath  = "/register"
	DashboardPath = "/dashboard"
)

type RouteClass int

const (
	Public RouteClass = iota
	Protected
	AuthEntry
)

func (c RouteClass) String() string {
	switch c {
	case Protected:
		return "protected"
	case AuthEntry:
		return "auth-entry"
	default:
		return "public"
	}
}

var protectedPrefixes = []string{DashboardPath}

func Classify(path string) RouteClass {
	for _, p := range protectedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return Protected
		}
	}
	if path == LoginPath || path == RegisterPath {
		return AuthEntry
	}
	return Public
}

type Decision struct {
	Class    RouteClass
	Redirect string
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// CleanPath returns the rooted, cleaned form of p, the same path the page
// handlers resolve.
func CleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// Decide classifies the cleaned form of p, so "//dashboard" and
// "/x/../dashboard" are treated as "/dashboard".
func Decide(p string, hasSession bool) Decision {
	p = CleanPath(p)
	class := Classify(p)
	switch {
	case class == Protected && !hasSession:
		return Decision{Class: class, Redirect: LoginPath + "?from=" + url.QueryEscape(p)}
	case class == AuthEntry && hasSession:
		return Decision{Class: class, Redirect: DashboardPath}
	default:
		return Decision{Class: class}
	}
}

type TokenVerifier interface {
	Verify(token string) error
}

// RedirectRecorder observes redirects, e.g. a metrics counter.
type RedirectRecorder interface {
	GuardRedirect(class string)
}

type Guard struct {
	verifier TokenVerifier
	recorder RedirectRecorder
	log      *slog.Logger
}

type Option func(*Guard)

func WithVerifier(v TokenVerifier) Option {
	return func(g *Guard) { g.verifier = v }
}

func WithRecorder(r RedirectRecorder) Option {
	return func(g *Guard) { g.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.log = l }
}

func New(opts ...Option) *Guard {
	g := &Guard{log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) hasSession(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	if g.verifier == nil {
		return true
	}
	if err := g.verifier.Verify(c.Value); err != nil {
		g.log.Debug("session cookie rejected", "path", r.URL.Path, "err", err)
		return false
	}
	return true
}

func (g *Guard) Decide(r *http.Request) Decision {
	return Decide(r.URL.Path, g.hasSession(r))
}

func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		if !d.Allowed() {
			if g.recorder != nil {
				g.recorder.GuardRedirect(d.Class.String())
			}
			http.Redirect(w, r, d.Redirect, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}
