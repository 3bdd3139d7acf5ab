package httpserver

import (
	"encoding/json"
	"net/http"
	"reflect"
	"testing"
	"time"

	"notiontools/dashboard-gateway/internal/auth"
)

var adminUser = auth.User{ID: "u-1", Name: "Admin", Email: "admin@example.com", Role: "admin", PasswordHash: "$2a$hash"}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "auth_token" {
			return c
		}
	}
	t.Fatalf("expected auth_token cookie to be set")
	return nil
}

func TestLoginSuccess(t *testing.T) {
	recorder := &recordingAudit{}
	handler := NewHandler(Deps{
		Audit: recorder,
		Auth: fakeAuthService{loginFunc: func(email, password string) (auth.Session, auth.User, error) {
			if email != "admin@example.com" || password != "secret-password" {
				return auth.Session{}, auth.User{}, auth.ErrInvalidCredentials
			}
			return auth.Session{ID: "s1", Token: "token-123", UserID: "u-1", Email: email}, adminUser, nil
		}},
		Cookie: CookieConfig{Secure: true, MaxAge: 604800 * time.Second},
	})

	rec := serve(handler, http.MethodPost, "/api/auth/login", `{"email":"admin@example.com","password":"secret-password"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeEnvelope(t, rec)
	if !got.Success {
		t.Fatalf("expected success envelope, got %+v", got)
	}
	var data struct {
		User  map[string]any `json:"user"`
		Token string         `json:"token"`
	}
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if data.Token != "token-123" || data.User["email"] != "admin@example.com" {
		t.Fatalf("unexpected login data %+v", data)
	}
	if _, leaked := data.User["password_hash"]; leaked {
		t.Fatalf("password hash must not be returned")
	}

	c := sessionCookie(t, rec.Result())
	if c.Value != "token-123" || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode || c.Path != "/" || c.MaxAge != 604800 {
		t.Fatalf("unexpected session cookie %+v", c)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected auth responses to be marked uncacheable")
	}
	if want := []string{"auth.login:success"}; !reflect.DeepEqual(recorder.actions(), want) {
		t.Fatalf("expected audit %v, got %v", want, recorder.actions())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	recorder := &recordingAudit{}
	handler := NewHandler(Deps{Audit: recorder, Auth: fakeAuthService{loginFunc: func(_, _ string) (auth.Session, auth.User, error) {
		return auth.Session{}, auth.User{}, auth.ErrInvalidCredentials
	}}})

	rec := serve(handler, http.MethodPost, "/api/auth/login", `{"email":"admin@example.com","password":"nope"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if got := decodeEnvelope(t, rec); got.Error != "Invalid email or password" {
		t.Fatalf("unexpected error %q", got.Error)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("failed login must not set a cookie")
	}
	if want := []string{"auth.login:failed"}; !reflect.DeepEqual(recorder.actions(), want) {
		t.Fatalf("expected audit %v, got %v", want, recorder.actions())
	}
}

func TestLoginInvalidBody(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{}})
	rec := serve(handler, http.MethodPost, "/api/auth/login", `{"email":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if got := decodeEnvelope(t, rec); got.Error != "Invalid request body" {
		t.Fatalf("unexpected error %q", got.Error)
	}
}

func TestRegister(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{registerFunc: func(name, email, _ string) (auth.Session, auth.User, error) {
		if email == "taken@example.com" {
			return auth.Session{}, auth.User{}, auth.ErrEmailTaken
		}
		return auth.Session{ID: "s2", Token: "token-new"}, auth.User{ID: "u-2", Name: name, Email: email, Role: auth.DefaultRole}, nil
	}}})

	rec := serve(handler, http.MethodPost, "/api/auth/register", `{"name":"New","email":"new@example.com","password":"long-enough"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if c := sessionCookie(t, rec.Result()); c.Value != "token-new" || c.MaxAge != int((7*24*time.Hour)/time.Second) {
		t.Fatalf("unexpected cookie %+v", c)
	}

	rec = serve(handler, http.MethodPost, "/api/auth/register", `{"name":"Dup","email":"taken@example.com","password":"long-enough"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if got := decodeEnvelope(t, rec); got.Error != "Email already registered" {
		t.Fatalf("unexpected error %q", got.Error)
	}
}

func TestAuthMe(t *testing.T) {
	handler := NewHandler(Deps{Auth: fakeAuthService{meFunc: func(token string) (auth.User, error) {
		if token != "token-123" {
			return auth.User{}, auth.ErrInvalidToken
		}
		return adminUser, nil
	}}})

	tests := []struct {
		name   string
		mutate []func(*http.Request)
		want   int
	}{
		{name: "cookie", mutate: []func(*http.Request){withCookie("token-123")}, want: http.StatusOK},
		{name: "bearer", mutate: []func(*http.Request){withBearer("token-123")}, want: http.StatusOK},
		{name: "stale token", mutate: []func(*http.Request){withCookie("expired")}, want: http.StatusUnauthorized},
		{name: "no token", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(handler, http.MethodGet, "/api/auth/me", "", tc.mutate...)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d body=%s", tc.want, rec.Code, rec.Body.String())
			}
			got := decodeEnvelope(t, rec)
			if tc.want == http.StatusUnauthorized && got.Error != "Unauthorized" {
				t.Fatalf("unexpected error %q", got.Error)
			}
			if tc.want == http.StatusOK {
				var user auth.PublicUser
				if err := json.Unmarshal(got.Data, &user); err != nil || user.ID != "u-1" {
					t.Fatalf("unexpected user %s err=%v", got.Data, err)
				}
			}
		})
	}
}

func TestAuthLogoutIsIdempotent(t *testing.T) {
	var revoked []string
	recorder := &recordingAudit{}
	handler := NewHandler(Deps{Audit: recorder, Auth: fakeAuthService{
		validateFunc: validSession,
		logoutFunc: func(token string) error {
			revoked = append(revoked, token)
			return nil
		},
	}})

	for _, mutate := range [][]func(*http.Request){
		{withCookie("token-123")},
		{withCookie("token-123")},
		nil,
	} {
		rec := serve(handler, http.MethodPost, "/api/auth/logout", "", mutate...)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		c := sessionCookie(t, rec.Result())
		if c.MaxAge >= 0 || c.Value != "" {
			t.Fatalf("expected cookie to be cleared, got %+v", c)
		}
		if got := decodeEnvelope(t, rec); !got.Success {
			t.Fatalf("expected success envelope, got %+v", got)
		}
	}

	if want := []string{"token-123", "token-123"}; !reflect.DeepEqual(revoked, want) {
		t.Fatalf("expected revocations %v, got %v", want, revoked)
	}
	if len(recorder.actions()) != 3 {
		t.Fatalf("expected every logout audited, got %v", recorder.actions())
	}
}

func TestAuthServiceUnavailable(t *testing.T) {
	handler := NewHandler(Deps{})
	rec := serve(handler, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"x"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}
