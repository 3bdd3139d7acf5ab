package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notiontools/dashboard-gateway/internal/apperr"
	"notiontools/dashboard-gateway/internal/client/httpclient"
)

func TestSetupRequiresTokenAndDatabase(t *testing.T) {
	c := NewClient(httpclient.New(httpclient.Config{}), "http://127.0.0.1:1")

	_, err := c.SetupCoversAndIcons(context.Background(), Params{Token: "t"})
	require.ErrorIs(t, err, ErrMissingParams)
	assert.Equal(t, 400, apperr.Status(err))
	assert.Equal(t, "Missing required parameters: token and database_id", apperr.Message(err))
}

func TestSetupForwardsAndFlattens(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/set-covers-icons", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"pages_processed":4,"covers_updated":3,"icons_updated":2}}`))
	}))
	defer srv.Close()

	yes := true
	c := NewClient(httpclient.New(httpclient.Config{}), srv.URL+"/")
	res, err := c.SetupCoversAndIcons(context.Background(), Params{Token: "secret_x", DatabaseID: "db1", SetCovers: &yes})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "secret_x", got["token"])
	assert.Equal(t, true, got["set_covers"])
	assert.NotContains(t, got, "set_icons")

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"pages_processed":4,"covers_updated":3,"icons_updated":2}`, string(out))
}

func TestSetupUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(httpclient.New(httpclient.Config{}), srv.URL)
	res, err := c.SetupCoversAndIcons(context.Background(), Params{Token: "t", DatabaseID: "missing"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, httpclient.MsgNotFound, res.Error)
}
