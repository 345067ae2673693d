// Package media moves locally spooled upload files into durable object
// storage and removes them again when their owning record is deleted.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"vidhub/internal/observability/metrics"
)

// uploadMarker separates the public base URL from the asset identifier in
// every URL the adapter hands out.
const uploadMarker = "upload/"

const (
	ResourceVideo = "video"
	ResourceImage = "image"
	ResourceRaw   = "raw"
)

// ObjectStore is the minimal contract a storage backend must satisfy.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// AssetRef locates an uploaded asset. The zero value means the upload did not
// happen.
type AssetRef struct {
	URL          string `json:"url"`
	PublicID     string `json:"publicId"`
	ResourceType string `json:"resourceType"`
	ContentType  string `json:"contentType"`
	Bytes        int64  `json:"bytes"`
}

func (r AssetRef) Empty() bool {
	return r.URL == ""
}

type Adapter struct {
	store   ObjectStore
	baseURL string
	logger  *slog.Logger
	metrics *metrics.Recorder
	newID   func() string
}

type AdapterOption func(*Adapter)

func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder counts store and delete outcomes on recorder instead of the
// default recorder.
func WithRecorder(recorder *metrics.Recorder) AdapterOption {
	return func(a *Adapter) {
		if recorder != nil {
			a.metrics = recorder
		}
	}
}

// WithIDGenerator overrides how asset identifiers are minted.
func WithIDGenerator(fn func() string) AdapterOption {
	return func(a *Adapter) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// NewAdapter builds an adapter that writes through store and renders URLs
// under publicBaseURL.
func NewAdapter(store ObjectStore, publicBaseURL string, opts ...AdapterOption) (*Adapter, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base == "" {
		return nil, errors.New("public base url is required")
	}
	adapter := &Adapter{
		store:   store,
		baseURL: base,
		logger:  slog.Default(),
		metrics: metrics.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter, nil
}

// Store uploads the file at localPath and reports whether it succeeded. The
// local file is removed before Store returns in every case.
func (a *Adapter) Store(ctx context.Context, localPath string) (AssetRef, bool) {
	if strings.TrimSpace(localPath) == "" {
		return AssetRef{}, false
	}
	defer a.removeLocal(localPath)

	ref, err := a.upload(ctx, localPath)
	a.metrics.ObserveMediaOperation("store", err == nil)
	if err != nil {
		a.logger.Warn("media upload failed", "path", filepath.Base(localPath), "error", err)
		return AssetRef{}, false
	}
	a.logger.Debug("media uploaded", "public_id", ref.PublicID, "bytes", ref.Bytes)
	return ref, true
}

func (a *Adapter) upload(ctx context.Context, localPath string) (AssetRef, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return AssetRef{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return AssetRef{}, fmt.Errorf("stat upload: %w", err)
	}
	if info.IsDir() {
		return AssetRef{}, fmt.Errorf("upload path %s is a directory", filepath.Base(localPath))
	}
	contentType, err := detectContentType(file, localPath)
	if err != nil {
		return AssetRef{}, err
	}

	resourceType := resourceTypeFor(contentType)
	publicID := resourceType + "/" + a.newID()
	key := uploadMarker + publicID + extensionFor(localPath, contentType)
	if err := a.store.Put(ctx, key, contentType, file, info.Size()); err != nil {
		return AssetRef{}, fmt.Errorf("put %s: %w", key, err)
	}
	return AssetRef{
		URL:          a.baseURL + "/" + key,
		PublicID:     publicID,
		ResourceType: resourceType,
		ContentType:  contentType,
		Bytes:        info.Size(),
	}, nil
}

func (a *Adapter) removeLocal(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("remove local upload", "path", filepath.Base(path), "error", err)
	}
}

// Delete removes the remote object behind assetURL. Unparseable references
// and provider failures are logged and otherwise ignored.
func (a *Adapter) Delete(ctx context.Context, assetURL string) {
	publicID, ok := ParseAssetID(assetURL)
	if !ok {
		return
	}
	err := a.store.DeletePrefix(ctx, uploadMarker+publicID+".")
	a.metrics.ObserveMediaOperation("delete", err == nil)
	if err != nil {
		a.logger.Warn("media delete failed", "public_id", publicID, "error", err)
	}
}

// ParseAssetID extracts the provider identifier from an asset URL: the path
// after the upload marker, minus an optional vNNN version segment and minus
// the file extension.
func ParseAssetID(assetURL string) (string, bool) {
	trimmed := strings.TrimSpace(assetURL)
	if trimmed == "" {
		return "", false
	}
	if cut := strings.IndexAny(trimmed, "?#"); cut >= 0 {
		trimmed = trimmed[:cut]
	}
	idx := strings.Index(trimmed, "/"+uploadMarker)
	if idx < 0 {
		return "", false
	}
	rest := trimmed[idx+len(uploadMarker)+1:]

	segments := strings.Split(rest, "/")
	if len(segments) > 1 && isVersionSegment(segments[0]) {
		segments = segments[1:]
	}
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return "", false
		}
	}
	last := segments[len(segments)-1]
	if dot := strings.LastIndex(last, "."); dot >= 0 {
		last = last[:dot]
	}
	if last == "" {
		return "", false
	}
	segments[len(segments)-1] = last
	return strings.Join(segments, "/"), true
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 || segment[0] != 'v' {
		return false
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// videoTypes covers containers missing from the builtin mime table.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
}

func detectContentType(file *os.File, path string) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	detected := http.DetectContentType(head[:n])
	if strings.HasPrefix(detected, "application/octet-stream") || strings.HasPrefix(detected, "text/plain") {
		ext := strings.ToLower(filepath.Ext(path))
		if byExt, ok := videoTypes[ext]; ok {
			return byExt, nil
		}
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt, nil
		}
	}
	return detected, nil
}

func resourceTypeFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return ResourceVideo
	case strings.HasPrefix(contentType, "image/"):
		return ResourceImage
	default:
		return ResourceRaw
	}
}

func extensionFor(path, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(path)); len(ext) > 1 && len(ext) <= 8 {
		return ext
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
