// Package httpclient wraps net/http for calls to the gateway and its
// collaborators. Every call returns an envelope; failures never surface as Go
// errors.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notiontools/dashboard-gateway/internal/client/tokenstore"
	"notiontools/dashboard-gateway/internal/envelope"
)

const (
	DefaultTimeout = 30 * time.Second

	MsgBadRequest   = "Bad request: Please check your input parameters"
	MsgUnauthorized = "Authentication failed: Please check your token"
	MsgNotFound     = "Resource not found: Please check your database ID"

	maxResponseBytes = 4 << 20
)

type Config struct {
	// BaseURL is prepended to relative targets.
	BaseURL    string
	Timeout    time.Duration
	Tokens     tokenstore.Reader
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

type Client struct {
	baseURL   string
	tokens    tokenstore.Reader
	http      *http.Client
	log       *slog.Logger
	userAgent string
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tokens:    cfg.Tokens,
		http:      hc,
		log:       log,
		userAgent: cfg.UserAgent,
	}
}

func (c *Client) Get(ctx context.Context, target string, params any) envelope.Envelope {
	return c.Request(ctx, http.MethodGet, target, params)
}

func (c *Client) Post(ctx context.Context, target string, body any) envelope.Envelope {
	return c.Request(ctx, http.MethodPost, target, body)
}

func (c *Client) Put(ctx context.Context, target string, body any) envelope.Envelope {
	return c.Request(ctx, http.MethodPut, target, body)
}

func (c *Client) Delete(ctx context.Context, target string, body any) envelope.Envelope {
	return c.Request(ctx, http.MethodDelete, target, body)
}

// Request sends body as query parameters for GET and as JSON otherwise. The
// stored token, when present, is attached as a bearer credential.
func (c *Client) Request(ctx context.Context, method, target string, body any) envelope.Envelope {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return envelope.Failure(fmt.Sprintf("Unsupported method: %s", method))
	}

	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		c.log.Warn("build request failed", "method", method, "target", target, "err", err)
		return envelope.Failure(err.Error())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", "method", method, "url", req.URL.String(), "err", err)
		return envelope.Failure(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.log.Warn("read response failed", "method", method, "url", req.URL.String(), "err", err)
		return envelope.Failure(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(bytes.TrimSpace(raw)) == 0 {
			return envelope.Envelope{Success: true}
		}
		var env envelope.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn("decode response failed", "method", method, "url", req.URL.String(), "err", err)
			return envelope.Failure(fmt.Sprintf("decode response: %v", err))
		}
		return env
	}

	c.log.Warn("request returned error status", "method", method, "url", req.URL.String(), "status", resp.StatusCode)
	return failureFromResponse(resp.StatusCode, raw)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	u, err := url.Parse(c.resolve(target))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var reader io.Reader
	if method == http.MethodGet {
		q, err := queryValues(body)
		if err != nil {
			return nil, err
		}
		if len(q) > 0 {
			merged := u.Query()
			for k, vs := range q {
				for _, v := range vs {
					merged.Add(k, v)
				}
			}
			u.RawQuery = merged.Encode()
		}
	} else if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Read(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) resolve(target string) string {
	if c.baseURL == "" || strings.Contains(target, "://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.baseURL + target
}

func queryValues(params any) (url.Values, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return v, nil
	case map[string]string:
		out := url.Values{}
		for k, s := range v {
			out.Set(k, s)
		}
		return out, nil
	}

	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode query params: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("query params must be an object: %w", err)
	}
	out := url.Values{}
	for k, val := range m {
		switch x := val.(type) {
		case nil:
		case string:
			out.Set(k, x)
		case []any:
			for _, item := range x {
				out.Add(k, fmt.Sprint(item))
			}
		default:
			out.Set(k, fmt.Sprint(x))
		}
	}
	return out, nil
}

// failureFromResponse prefers the server's own body and falls back to a
// canned message per status code.
func failureFromResponse(status int, raw []byte) envelope.Envelope {
	if len(bytes.TrimSpace(raw)) > 0 {
		var env envelope.Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			env.Success = false
			if env.Error == "" {
				env.Error = StatusMessage(status)
			}
			return env
		}
	}
	return envelope.Failure(StatusMessage(status))
}

func StatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return MsgBadRequest
	case http.StatusUnauthorized:
		return MsgUnauthorized
	case http.StatusNotFound:
		return MsgNotFound
	default:
		return fmt.Sprintf("Request failed with status code %d", status)
	}
}
