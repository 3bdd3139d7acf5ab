// Package envelope holds the {success, data, error} wire shape shared by the
// API handlers and the client wrapper.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Body is what handlers write.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Body {
	return Body{Success: true, Data: data}
}

func Fail(msg string) Body {
	return Body{Success: false, Error: msg}
}

// Envelope is the decoded form seen by clients. Top-level keys other than
// success, data and error are kept in Fields so server-provided extras survive.
type Envelope struct {
	Success bool
	Data    json.RawMessage
	Error   string
	Fields  map[string]json.RawMessage
}

// Failure builds an unsuccessful envelope with msg as its error.
func Failure(msg string) Envelope {
	return Envelope{Success: false, Error: msg}
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Envelope{}
	for k, v := range raw {
		switch k {
		case "success":
			if err := json.Unmarshal(v, &out.Success); err != nil {
				return fmt.Errorf("decode success: %w", err)
			}
		case "data":
			out.Data = append(json.RawMessage(nil), v...)
		case "error":
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				out.Error = s
			} else {
				out.Error = string(v)
			}
		default:
			if out.Fields == nil {
				out.Fields = make(map[string]json.RawMessage)
			}
			out.Fields[k] = append(json.RawMessage(nil), v...)
		}
	}
	*e = out
	return nil
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["success"] = e.Success
	if len(e.Data) > 0 {
		out["data"] = e.Data
	}
	if e.Error != "" {
		out["error"] = e.Error
	}
	return json.Marshal(out)
}

// DecodeData unmarshals the data member into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope has no data")
	}
	return json.Unmarshal(e.Data, v)
}

// Field unmarshals the named extra top-level member into v and reports
// whether it was present.
func (e Envelope) Field(name string, v any) (bool, error) {
	raw, ok := e.Fields[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}
