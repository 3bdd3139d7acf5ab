// Package view holds the auth-aware decisions a client surface makes: which
// navigation to offer and whether a protected view may render.
package view

import (
	"context"
	"log/slog"

	"notiontools/dashboard-gateway/internal/client/authclient"
	"notiontools/dashboard-gateway/internal/client/tokenstore"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type Navigation struct {
	Authenticated bool   `json:"authenticated"`
	Links         []Link `json:"links"`
	Account       Link   `json:"account"`
}

var baseLinks = []Link{
	{Label: "Home", Href: "/"},
	{Label: "Notion", Href: "/notion"},
	{Label: "WeRead", Href: "/weread"},
}

// NavigationFor reads token presence once.
func NavigationFor(tokens tokenstore.Reader) Navigation {
	nav := Navigation{Links: append([]Link(nil), baseLinks...)}
	if tokens != nil && tokens.IsActive() {
		nav.Authenticated = true
		nav.Account = Link{Label: "Dashboard", Href: DashboardPath}
		return nav
	}
	nav.Account = Link{Label: "Login", Href: LoginPath}
	return nav
}

type Identity interface {
	CurrentUser(ctx context.Context) (authclient.User, error)
}

type GateResult struct {
	User     authclient.User
	Redirect string
	Err      error
}

func (r GateResult) Allowed() bool { return r.Redirect == "" }

// ProtectedGate mirrors the route guard on the client. It decides on its own
// and may disagree with the server.
type ProtectedGate struct {
	identity Identity
	tokens   tokenstore.Store
	log      *slog.Logger
}

func NewProtectedGate(identity Identity, tokens tokenstore.Store, log *slog.Logger) *ProtectedGate {
	if log == nil {
		log = slog.Default()
	}
	return &ProtectedGate{identity: identity, tokens: tokens, log: log}
}

// Enter redirects to the login view when no token is held or the server
// rejects it. A rejected token is cleared before redirecting.
func (g *ProtectedGate) Enter(ctx context.Context) GateResult {
	if !g.tokens.IsActive() {
		return GateResult{Redirect: LoginPath}
	}
	u, err := g.identity.CurrentUser(ctx)
	if err != nil {
		g.log.Info("protected view rejected", "err", err)
		if clearErr := g.tokens.Clear(); clearErr != nil {
			g.log.Warn("clear token failed", "err", clearErr)
		}
		return GateResult{Redirect: LoginPath, Err: err}
	}
	return GateResult{User: u}
}
