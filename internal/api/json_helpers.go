package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"vidhub/internal/apperr"
	"vidhub/internal/observability/logging"
)

// DefaultMaxJSONBytes bounds JSON request bodies.
const DefaultMaxJSONBytes int64 = 16 << 10

type successEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data, Message: message})
}

// writeError renders err in the error envelope. Internal failures are logged
// with their cause and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal && logger != nil {
		ctx := r.Context()
		logging.WithContext(ctx, logger).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, kind.Status(), errorEnvelope{Success: false, Message: apperr.Message(err), Errors: []string{}})
}

// WriteStatus renders a bare error envelope for middleware that rejects a
// request before it reaches a handler.
func WriteStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Success: false, Message: message, Errors: []string{}})
}

// WriteError renders err in the error envelope using its apperr kind.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, nil, err)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	WriteStatus(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
}

// decodeJSONObject reads a JSON object of at most limit bytes. Numbers decode
// as float64 so duration values keep their fractional part.
func decodeJSONObject(w http.ResponseWriter, r *http.Request, limit int64) (map[string]any, error) {
	if r.Body == nil {
		return nil, apperr.InvalidInput("request body is required")
	}
	if limit <= 0 {
		limit = DefaultMaxJSONBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	var fields map[string]any
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&fields); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, apperr.InvalidInput("request body too large")
		case errors.Is(err, io.EOF):
			return nil, apperr.InvalidInput("request body is required")
		default:
			return nil, apperr.Wrap(apperr.KindInvalidInput, "invalid JSON body", err)
		}
	}
	if fields == nil {
		return nil, apperr.InvalidInput("request body must be a JSON object")
	}
	return fields, nil
}
