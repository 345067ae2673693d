package api

import (
	"net/http"
	"strings"
)

// Dashboard serves /api/v1/dashboard/{channelId}/stats and
// /api/v1/dashboard/{channelId}/videos.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, dashboardPath), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		h.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	channelID := parts[0]
	switch parts[1] {
	case "stats":
		stats, err := h.channels.Stats(r.Context(), channelID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, stats, "Success")
	case "videos":
		list, err := h.channels.Videos(r.Context(), channelID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, list, "Success")
	default:
		h.NotFound(w, r)
	}
}
