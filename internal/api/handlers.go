package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"vidhub/internal/apperr"
	"vidhub/internal/auth"
	"vidhub/internal/channels"
	"vidhub/internal/models"
	"vidhub/internal/observability/metrics"
	"vidhub/internal/videos"
)

const (
	DefaultMaxUploadBytes int64 = 512 << 20

	videosPath    = "/api/v1/videos"
	dashboardPath = "/api/v1/dashboard/"
)

// HealthCheck probes one dependency for the /healthz report.
type HealthCheck struct {
	Component string
	Check     func(ctx context.Context) error
}

type Config struct {
	Videos         *videos.Service
	Channels       *channels.Aggregator
	Auth           *auth.Authenticator
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	UploadDir      string
	MaxUploadBytes int64
	MaxJSONBytes   int64
	HealthChecks   []HealthCheck
}

type Handler struct {
	videos         *videos.Service
	channels       *channels.Aggregator
	auth           *auth.Authenticator
	logger         *slog.Logger
	metrics        *metrics.Recorder
	uploadDir      string
	maxUploadBytes int64
	maxJSONBytes   int64
	healthChecks   []HealthCheck
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Videos == nil {
		return nil, errors.New("video service is required")
	}
	if cfg.Channels == nil {
		return nil, errors.New("channel aggregator is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	h := &Handler{
		videos:         cfg.Videos,
		channels:       cfg.Channels,
		auth:           cfg.Auth,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		uploadDir:      strings.TrimSpace(cfg.UploadDir),
		maxUploadBytes: cfg.MaxUploadBytes,
		maxJSONBytes:   cfg.MaxJSONBytes,
		healthChecks:   append([]HealthCheck(nil), cfg.HealthChecks...),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = metrics.Default()
	}
	if h.uploadDir == "" {
		h.uploadDir = os.TempDir()
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return nil, err
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = DefaultMaxUploadBytes
	}
	if h.maxJSONBytes <= 0 {
		h.maxJSONBytes = DefaultMaxJSONBytes
	}
	return h, nil
}

// Authenticate resolves the caller of r. Middleware uses it to attach the
// user to the request context.
func (h *Handler) Authenticate(r *http.Request) (models.User, error) {
	return h.auth.Authenticate(r)
}

// RequiresAuth reports whether the route addressed by r is protected.
func RequiresAuth(r *http.Request) bool {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == videosPath:
		return r.Method == http.MethodPost
	case strings.HasPrefix(path, videosPath+"/"):
		rest := strings.TrimPrefix(path, videosPath+"/")
		if strings.Contains(rest, "/") {
			return false
		}
		switch r.Method {
		case http.MethodPut, http.MethodPatch, http.MethodDelete:
			return true
		}
	}
	return false
}

// requireUser returns the authenticated caller, writing the error response
// when there is none.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user, true
	}
	user, err := h.auth.Authenticate(r)
	if err != nil {
		h.fail(w, r, err)
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	components, overall, status := h.componentHealth(r.Context())
	writeJSON(w, status, map[string]any{
		"status":   overall,
		"services": components,
	})
}

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overall := "ok"
	statusCode := http.StatusOK
	components := make([]componentStatus, 0, len(h.healthChecks))
	for _, check := range h.healthChecks {
		if check.Check == nil {
			continue
		}
		entry := componentStatus{Component: check.Component, Status: "ok"}
		if err := check.Check(ctx); err != nil {
			entry.Status = "degraded"
			entry.Error = err.Error()
			overall = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		h.metrics.SetDependencyHealth(entry.Component, entry.Status)
		components = append(components, entry)
	}
	return components, overall, statusCode
}

// NotFound renders unknown API routes in the error envelope.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.fail(w, r, apperr.NotFound("route not found"))
}
