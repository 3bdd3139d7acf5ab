package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notiontools/dashboard-gateway/internal/client/tokenstore"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

func newServer(t *testing.T, status int, body string, seen *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if seen != nil {
			*seen = captured{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.RawQuery,
				auth:   r.Header.Get("Authorization"),
				body:   string(b),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestAttachesStoredToken(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusOK, `{"success":true,"data":{"id":"1"}}`, &seen)

	tokens := tokenstore.NewMemory()
	require.NoError(t, tokens.Save("tok-1"))
	c := New(Config{BaseURL: srv.URL, Tokens: tokens})

	env := c.Get(context.Background(), "/api/auth/me", nil)
	require.True(t, env.Success)
	assert.Equal(t, "Bearer tok-1", seen.auth)
	assert.JSONEq(t, `{"id":"1"}`, string(env.Data))

	require.NoError(t, tokens.Clear())
	c.Get(context.Background(), "/api/auth/me", nil)
	assert.Empty(t, seen.auth)
}

func TestGetSendsParamsAsQuery(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusOK, `{"success":true}`, &seen)
	c := New(Config{BaseURL: srv.URL + "/"})

	env := c.Get(context.Background(), "api/weread-signin/tasks", map[string]any{"auth_code": "abc", "limit": 5})
	require.True(t, env.Success)
	assert.Equal(t, http.MethodGet, seen.method)
	assert.Equal(t, "/api/weread-signin/tasks", seen.path)
	assert.Equal(t, "auth_code=abc&limit=5", seen.query)
	assert.Empty(t, seen.body)
}

func TestDeleteSendsBody(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusOK, `{"success":true}`, &seen)
	c := New(Config{BaseURL: srv.URL})

	c.Delete(context.Background(), "/things", map[string]string{"id": "t1"})
	assert.Equal(t, http.MethodDelete, seen.method)
	assert.JSONEq(t, `{"id":"t1"}`, seen.body)
}

func TestUnsupportedMethod(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	env := c.Request(context.Background(), "PATCH", "/x", nil)
	assert.False(t, env.Success)
	assert.Equal(t, "Unsupported method: PATCH", env.Error)
}

func TestCannedMessagesWithoutServerBody(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:          MsgBadRequest,
		http.StatusUnauthorized:        MsgUnauthorized,
		http.StatusNotFound:            MsgNotFound,
		http.StatusInternalServerError: "Request failed with status code 500",
	}
	for status, want := range cases {
		srv := newServer(t, status, "", nil)
		c := New(Config{BaseURL: srv.URL})
		env := c.Post(context.Background(), "/api/notion-setup", map[string]string{})
		assert.False(t, env.Success, status)
		assert.Equal(t, want, env.Error, status)
	}
}

func TestServerBodyWinsOverCannedMessage(t *testing.T) {
	srv := newServer(t, http.StatusUnauthorized, `{"success":false,"error":"Invalid email or password","code":401}`, nil)
	c := New(Config{BaseURL: srv.URL})

	env := c.Post(context.Background(), "/api/auth/login", map[string]string{"email": "a", "password": "b"})
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid email or password", env.Error)
	var code int
	ok, err := env.Field("code", &code)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 401, code)
}

func TestServerBodyWithoutErrorGetsCannedMessage(t *testing.T) {
	srv := newServer(t, http.StatusNotFound, `{"detail":"no such database"}`, nil)
	c := New(Config{BaseURL: srv.URL})

	env := c.Get(context.Background(), "/x", nil)
	assert.False(t, env.Success)
	assert.Equal(t, MsgNotFound, env.Error)
	assert.Contains(t, env.Fields, "detail")
}

func TestSuccessBodyPassesThrough(t *testing.T) {
	body := `{"success":true,"qrcode":"data:image/png;base64,xx","session_id":"s1"}`
	srv := newServer(t, http.StatusOK, body, nil)
	c := New(Config{BaseURL: srv.URL})

	env := c.Post(context.Background(), "/api/config/qrcode", nil)
	require.True(t, env.Success)
	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestParseErrorBecomesFailure(t *testing.T) {
	srv := newServer(t, http.StatusOK, `<html>oops</html>`, nil)
	c := New(Config{BaseURL: srv.URL})

	env := c.Get(context.Background(), "/x", nil)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "decode response")
}

func TestNetworkErrorBecomesFailure(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Timeout: time.Second})
	env := c.Get(context.Background(), "/x", nil)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestTimeoutBecomesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	env := c.Get(context.Background(), "/slow", nil)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestAbsoluteTargetIgnoresBaseURL(t *testing.T) {
	var seen captured
	srv := newServer(t, http.StatusOK, `{"success":true}`, &seen)
	c := New(Config{BaseURL: "http://127.0.0.1:1"})

	env := c.Post(context.Background(), srv.URL+"/api/set-covers-icons", map[string]string{"token": "t"})
	require.True(t, env.Success)
	assert.Equal(t, "/api/set-covers-icons", seen.path)
}
