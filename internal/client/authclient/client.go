// Package authclient talks to the gateway's /api/auth endpoints and keeps the
// local token store in step with the results.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"notiontools/dashboard-gateway/internal/client/tokenstore"
	"notiontools/dashboard-gateway/internal/envelope"
)

const basePath = "/api/auth"

var ErrRequestFailed = errors.New("auth request failed")

// Error carries the envelope's error message.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return ErrRequestFailed }

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type LoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Requester is satisfied by *httpclient.Client.
type Requester interface {
	Request(ctx context.Context, method, target string, body any) envelope.Envelope
}

type Client struct {
	http   Requester
	tokens tokenstore.Store
}

func New(http Requester, tokens tokenstore.Store) *Client {
	return &Client{http: http, tokens: tokens}
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	env := c.http.Request(ctx, http.MethodPost, basePath+"/login", map[string]string{
		"email":    email,
		"password": password,
	})
	return c.establish(env)
}

func (c *Client) Register(ctx context.Context, name, email, password string) (LoginResponse, error) {
	env := c.http.Request(ctx, http.MethodPost, basePath+"/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	return c.establish(env)
}

// Logout clears the local token even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	env := c.http.Request(ctx, http.MethodPost, basePath+"/logout", nil)
	var reqErr error
	if !env.Success {
		reqErr = failure(env)
	}
	if err := c.tokens.Clear(); err != nil {
		return errors.Join(reqErr, fmt.Errorf("clear token: %w", err))
	}
	return reqErr
}

func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	env := c.http.Request(ctx, http.MethodGet, basePath+"/me", nil)
	if !env.Success {
		return User{}, failure(env)
	}
	var u User
	if err := env.DecodeData(&u); err != nil {
		return User{}, &Error{Message: fmt.Sprintf("decode user: %v", err)}
	}
	return u, nil
}

func (c *Client) IsLoggedIn() bool {
	return c.tokens.IsActive()
}

func (c *Client) ClearToken() error {
	return c.tokens.Clear()
}

func (c *Client) establish(env envelope.Envelope) (LoginResponse, error) {
	if !env.Success {
		return LoginResponse{}, failure(env)
	}
	var out LoginResponse
	if err := env.DecodeData(&out); err != nil {
		return LoginResponse{}, &Error{Message: fmt.Sprintf("decode login response: %v", err)}
	}
	if out.Token == "" {
		return LoginResponse{}, &Error{Message: "login response carried no token"}
	}
	if err := c.tokens.Save(out.Token); err != nil {
		return LoginResponse{}, fmt.Errorf("save token: %w", err)
	}
	return out, nil
}

func failure(env envelope.Envelope) error {
	msg := env.Error
	if msg == "" {
		msg = "request failed"
	}
	return &Error{Message: msg}
}
