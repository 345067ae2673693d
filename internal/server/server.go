package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vidhub/internal/api"
	"vidhub/internal/auth"
	"vidhub/internal/observability/logging"
	"vidhub/internal/observability/metrics"
)

const mediaRoute = "/media/"

type Config struct {
	Addr      string
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	// MediaDir, when set, is served read-only under /media/.
	MediaDir string
}

type Server struct {
	httpServer  *http.Server
	rateLimiter *rateLimiter
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("api handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/v1/videos", handler.Videos)
	mux.HandleFunc("/api/v1/videos/", handler.VideoByID)
	mux.HandleFunc("/api/v1/dashboard/", handler.Dashboard)
	if dir := strings.TrimSpace(cfg.MediaDir); dir != "" {
		mux.Handle(mediaRoute, http.StripPrefix(mediaRoute, mediaFileServer(dir)))
	}
	mux.HandleFunc("/", handler.NotFound)

	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}
	rl := newRateLimiter(cfg.RateLimit, logger)

	handlerChain := http.Handler(mux)
	handlerChain = authMiddleware(handler, handlerChain)
	handlerChain = rateLimitMiddleware(rl, handlerChain)
	handlerChain = corsMiddleware(policy, logger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handlerChain)
	handlerChain = requestIDMiddleware(logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: httpServer, rateLimiter: rl}, nil
}

// HTTPServer exposes the configured server for serverutil.Run. Uploads
// stream large bodies, so no read or write timeout is set beyond the header
// timeout.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// authMiddleware resolves the caller on protected routes and rejects the
// request when no valid credential is present.
func authMiddleware(handler *api.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.RequiresAuth(r) {
			next.ServeHTTP(w, r)
			return
		}
		user, err := handler.Authenticate(r)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = logging.ContextWithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mediaFileServer serves stored objects without directory listings.
func mediaFileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			api.WriteStatus(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
			return
		}
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			api.WriteStatus(w, http.StatusNotFound, "Not found")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}
