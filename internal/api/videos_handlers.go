package api

import (
	"net/http"
	"strconv"
	"strings"

	"vidhub/internal/apperr"
	"vidhub/internal/observability/logging"
	"vidhub/internal/videos"
)

// Videos serves the collection route: GET lists, POST uploads.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVideos(w, r)
	case http.MethodPost:
		h.uploadVideo(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// VideoByID serves /api/v1/videos/{id} and /api/v1/videos/{id}/views.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, videosPath+"/"), "/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		h.NotFound(w, r)
		return
	}
	r = r.WithContext(logging.ContextWithVideoID(r.Context(), id))

	if len(parts) == 2 && parts[1] == "views" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		h.incrementViews(w, r, id)
		return
	}
	if len(parts) > 1 {
		h.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getVideo(w, r, id)
	case http.MethodPut, http.MethodPatch:
		h.updateVideo(w, r, id)
	case http.MethodDelete:
		h.deleteVideo(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := h.videos.List(r.Context(), videos.ListInput{
		Search: strings.TrimSpace(query.Get("q")),
		Page:   queryInt(query.Get("page")),
		Limit:  queryInt(query.Get("limit")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, page, "Videos fetched")
}

func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, id string) {
	video, err := h.videos.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, video, "Video fetched")
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if !videos.ValidID(id) {
		h.fail(w, r, apperr.InvalidInput("Invalid video id"))
		return
	}
	if err := h.videos.Authorize(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	fields, err := decodeJSONObject(w, r, h.maxJSONBytes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	video, err := h.videos.Update(r.Context(), caller, id, fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, video, "Video updated")
}

func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.videos.Delete(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "Video deleted")
}

func (h *Handler) incrementViews(w http.ResponseWriter, r *http.Request, id string) {
	views, err := h.videos.IncrementView(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]int64{"views": views}, "View incremented")
}

// queryInt parses a pagination parameter. Anything unparseable is zero,
// which the service treats as the default.
func queryInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
