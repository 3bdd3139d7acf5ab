package httpserver

import (
	"net/http"

	"notiontools/dashboard-gateway/internal/notion"
)

// notionSetup relays the upstream outcome flattened into one object. An
// unsuccessful upstream reply is a 502.
func (a *api) notionSetup(w http.ResponseWriter, r *http.Request) {
	if a.Notion == nil {
		writeError(w, http.StatusServiceUnavailable, "notion service unavailable")
		return
	}
	var p notion.Params
	if err := decodeBody(w, r, &p); err != nil {
		a.writeAppError(w, r, err)
		return
	}
	res, err := a.Notion.SetupCoversAndIcons(r.Context(), p)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if !res.Success {
		a.Logger.Warn("notion setup failed upstream", "request_id", requestIDFromContext(r.Context()), "err", res.Error)
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
