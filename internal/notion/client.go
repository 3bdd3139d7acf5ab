// Package notion forwards cover and icon setup requests to the Notion
// integration backend.
package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"notiontools/dashboard-gateway/internal/apperr"
	"notiontools/dashboard-gateway/internal/envelope"
)

const setupPath = "/api/set-covers-icons"

var ErrMissingParams error = apperr.Validation("Missing required parameters: token and database_id")

type Params struct {
	Token           string `json:"token"`
	DatabaseID      string `json:"database_id"`
	ActivationCode  string `json:"activation_code,omitempty"`
	SetCovers       *bool  `json:"set_covers,omitempty"`
	SetIcons        *bool  `json:"set_icons,omitempty"`
	OverwriteCovers *bool  `json:"overwrite_covers,omitempty"`
	OverwriteIcons  *bool  `json:"overwrite_icons,omitempty"`
}

func (p Params) Validate() error {
	if strings.TrimSpace(p.Token) == "" || strings.TrimSpace(p.DatabaseID) == "" {
		return ErrMissingParams
	}
	return nil
}

// Requester is satisfied by *httpclient.Client.
type Requester interface {
	Request(ctx context.Context, method, target string, body any) envelope.Envelope
}

// Result is the upstream outcome flattened to one object.
type Result struct {
	Success bool
	Error   string
	Fields  map[string]json.RawMessage
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

type Client struct {
	http    Requester
	baseURL string
}

func NewClient(http Requester, baseURL string) *Client {
	return &Client{http: http, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) SetupCoversAndIcons(ctx context.Context, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	env := c.http.Request(ctx, http.MethodPost, c.baseURL+setupPath, p)
	return flatten(env), nil
}

// flatten lifts the members of an object-valued data into the top level,
// keeping any extras the upstream put there itself.
func flatten(env envelope.Envelope) Result {
	res := Result{Success: env.Success, Error: env.Error, Fields: map[string]json.RawMessage{}}
	for k, v := range env.Fields {
		res.Fields[k] = v
	}
	if len(env.Data) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(env.Data, &obj); err == nil {
			for k, v := range obj {
				if k == "success" {
					continue
				}
				if k == "error" && res.Error == "" {
					var s string
					if json.Unmarshal(v, &s) == nil {
						res.Error = s
					}
					continue
				}
				res.Fields[k] = v
			}
		} else {
			res.Fields["data"] = env.Data
		}
	}
	if !res.Success && res.Error == "" {
		res.Error = "Failed to connect to Notion service"
	}
	return res
}
