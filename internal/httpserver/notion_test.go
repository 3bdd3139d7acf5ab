package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notiontools/dashboard-gateway/internal/client/httpclient"
	"notiontools/dashboard-gateway/internal/notion"
)

func TestNotionSetupMissingParams(t *testing.T) {
	called := false
	handler := NewHandler(Deps{Notion: fakeNotionService{setupFunc: func(_ context.Context, p notion.Params) (notion.Result, error) {
		called = true
		return notion.Result{}, p.Validate()
	}}})

	rec := serve(handler, http.MethodPost, "/api/notion-setup", `{"token":"secret_x"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if got := decodeEnvelope(t, rec); got.Error != "Missing required parameters: token and database_id" {
		t.Fatalf("unexpected error %q", got.Error)
	}
	if !called {
		t.Fatalf("expected service to validate params")
	}
}

func TestNotionSetupRelaysUpstream(t *testing.T) {
	var gotBody map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/set-covers-icons" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"updated":12,"skipped":3}}`))
	}))
	defer upstream.Close()

	client := notion.NewClient(httpclient.New(httpclient.Config{Timeout: time.Second}), upstream.URL)
	handler := NewHandler(Deps{Notion: client})

	rec := serve(handler, http.MethodPost, "/api/notion-setup", `{"token":"secret_x","database_id":"db-1","set_icons":false}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["success"] != true || got["updated"] != float64(12) || got["skipped"] != float64(3) {
		t.Fatalf("expected flattened result, got %v", got)
	}
	if gotBody["database_id"] != "db-1" || gotBody["set_icons"] != false {
		t.Fatalf("unexpected forwarded body %v", gotBody)
	}
	if _, ok := gotBody["set_covers"]; ok {
		t.Fatalf("unset options must not be forwarded: %v", gotBody)
	}
}

func TestNotionSetupUpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid activation code"}`))
	}))
	defer upstream.Close()

	client := notion.NewClient(httpclient.New(httpclient.Config{Timeout: time.Second}), upstream.URL)
	handler := NewHandler(Deps{Notion: client})

	rec := serve(handler, http.MethodPost, "/api/notion-setup", `{"token":"secret_x","database_id":"db-1"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	got := decodeEnvelope(t, rec)
	if got.Success || got.Error != "invalid activation code" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestNotionServiceUnavailable(t *testing.T) {
	handler := NewHandler(Deps{})
	rec := serve(handler, http.MethodPost, "/api/notion-setup", `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}
