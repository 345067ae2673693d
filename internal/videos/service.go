// Package videos orchestrates the video lifecycle: upload, listing, owner
// edits, deletion with asset cleanup and view counting.
package videos

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"vidhub/internal/apperr"
	"vidhub/internal/events"
	"vidhub/internal/media"
	"vidhub/internal/models"
	"vidhub/internal/observability/logging"
	"vidhub/internal/observability/metrics"
	"vidhub/internal/storage"
)

const (
	DefaultLimit = storage.DefaultLimit
	MaxLimit     = 100
)

// MediaStore moves spooled files to remote storage and removes them again.
// Store always consumes the local file.
type MediaStore interface {
	Store(ctx context.Context, localPath string) (media.AssetRef, bool)
	Delete(ctx context.Context, assetURL string)
}

// StatsInvalidator drops cached per-channel aggregates after a change to the
// channel's videos.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, channelID string)
}

type Service struct {
	repo      storage.VideoRepository
	media     MediaStore
	publisher events.Publisher
	stats     StatsInvalidator
	logger    *slog.Logger
	metrics   *metrics.Recorder
	maxLimit  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

func WithRecorder(recorder *metrics.Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

func WithStatsInvalidator(stats StatsInvalidator) Option {
	return func(s *Service) {
		if stats != nil {
			s.stats = stats
		}
	}
}

// WithMaxLimit caps the page size callers may request.
func WithMaxLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxLimit = limit
		}
	}
}

func NewService(repo storage.VideoRepository, store MediaStore, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("video repository is required")
	}
	if store == nil {
		return nil, errors.New("media store is required")
	}
	svc := &Service{
		repo:      repo,
		media:     store,
		publisher: events.Noop{},
		logger:    slog.Default(),
		metrics:   metrics.Default(),
		maxLimit:  MaxLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// UploadInput carries the multipart fields of an upload. VideoPath and
// ThumbnailPath point at spooled local files the service takes ownership of.
type UploadInput struct {
	Title         string
	Description   string
	Duration      string
	VideoPath     string
	ThumbnailPath string
}

// Upload stores both files and records the new video. No record is created
// unless both assets were stored.
func (s *Service) Upload(ctx context.Context, caller models.User, in UploadInput) (models.Video, error) {
	pending := []string{in.VideoPath, in.ThumbnailPath}
	defer func() { s.discard(ctx, pending...) }()

	if caller.ID == "" {
		return models.Video{}, apperr.Unauthenticated("Authentication required")
	}
	if strings.TrimSpace(in.VideoPath) == "" || strings.TrimSpace(in.ThumbnailPath) == "" {
		return models.Video{}, apperr.InvalidInput("Videofile and thumbnail are required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.Duration) == "" {
		return models.Video{}, apperr.InvalidInput("title and duration are required")
	}

	s.metrics.UploadStarted()
	defer s.metrics.UploadFinished()

	logger := logging.WithContext(ctx, s.logger)
	pending = []string{in.ThumbnailPath}
	video, ok := s.media.Store(ctx, in.VideoPath)
	if !ok {
		return models.Video{}, apperr.UploadFailed("Failed to upload media")
	}
	pending = nil
	thumbnail, ok := s.media.Store(ctx, in.ThumbnailPath)
	if !ok {
		logger.Warn("thumbnail upload failed, video asset left orphaned", "asset_url", video.URL)
		return models.Video{}, apperr.UploadFailed("Failed to upload media")
	}

	created, err := s.repo.CreateVideo(ctx, storage.CreateVideoParams{
		OwnerID:      caller.ID,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		Duration:     coerceDuration(in.Duration),
		VideoURL:     video.URL,
		ThumbnailURL: thumbnail.URL,
		IsPublish:    true,
	})
	if err != nil {
		logger.Error("create video record failed, assets left orphaned", "video_url", video.URL, "thumbnail_url", thumbnail.URL, "error", err)
		return models.Video{}, s.mapError(err)
	}
	s.finish(ctx, events.VideoUploaded, created)
	return created, nil
}

// ListInput selects a page of videos. Zero page or limit means the default.
type ListInput struct {
	Search string
	Page   int
	Limit  int
}

func (s *Service) List(ctx context.Context, in ListInput) (storage.VideoPage, error) {
	query := storage.VideoQuery{Search: in.Search, Page: in.Page, Limit: in.Limit}
	if query.Page == 0 {
		query.Page = storage.DefaultPage
	}
	if query.Limit == 0 {
		query.Limit = DefaultLimit
	}
	query = query.Normalize()
	if query.Limit > s.maxLimit {
		query.Limit = s.maxLimit
	}
	page, err := s.repo.ListVideos(ctx, query)
	if err != nil {
		return storage.VideoPage{}, s.mapError(err)
	}
	if page.Items == nil {
		page.Items = []models.Video{}
	}
	return page, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Video, error) {
	if err := validateID(id); err != nil {
		return models.Video{}, err
	}
	video, err := s.repo.GetVideo(ctx, id)
	if err != nil {
		return models.Video{}, s.mapError(err)
	}
	return video, nil
}

// Update applies the allow-listed fields to a video the caller owns.
func (s *Service) Update(ctx context.Context, caller models.User, id string, fields map[string]any) (models.Video, error) {
	if _, err := s.ownedVideo(ctx, caller, id); err != nil {
		return models.Video{}, err
	}
	update, err := buildUpdate(fields)
	if err != nil {
		return models.Video{}, err
	}
	updated, err := s.repo.UpdateVideo(ctx, id, update)
	if err != nil {
		return models.Video{}, s.mapError(err)
	}
	if !update.Empty() {
		s.finish(ctx, events.VideoUpdated, updated)
	}
	return updated, nil
}

// Delete removes a video the caller owns. Remote asset cleanup is attempted
// first and never fails the call.
func (s *Service) Delete(ctx context.Context, caller models.User, id string) error {
	video, err := s.ownedVideo(ctx, caller, id)
	if err != nil {
		return err
	}
	for _, assetURL := range []string{video.VideoURL, video.ThumbnailURL} {
		if assetURL == "" {
			continue
		}
		s.advise(ctx, "delete_asset", func(ctx context.Context) error {
			s.media.Delete(ctx, assetURL)
			return nil
		})
	}
	if err := s.repo.DeleteVideo(ctx, id); err != nil {
		return s.mapError(err)
	}
	s.finish(ctx, events.VideoDeleted, video)
	return nil
}

// IncrementView adds one view and returns the new total.
func (s *Service) IncrementView(ctx context.Context, id string) (int64, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	views, err := s.repo.IncrementVideoViews(ctx, id)
	if err != nil {
		return 0, s.mapError(err)
	}
	s.metrics.ObserveVideoEvent("viewed")
	s.advise(ctx, "publish_event", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, events.Event{
			Type:    events.VideoViewed,
			VideoID: id,
			Data:    map[string]any{"views": views},
		})
	})
	return views, nil
}

// Authorize reports whether caller may modify the video id without changing
// it. Handlers use it to reject strangers before reading a request body.
func (s *Service) Authorize(ctx context.Context, caller models.User, id string) error {
	_, err := s.ownedVideo(ctx, caller, id)
	return err
}

func (s *Service) ownedVideo(ctx context.Context, caller models.User, id string) (models.Video, error) {
	if err := validateID(id); err != nil {
		return models.Video{}, err
	}
	if caller.ID == "" {
		return models.Video{}, apperr.Unauthenticated("Authentication required")
	}
	video, err := s.repo.GetVideo(ctx, id)
	if err != nil {
		return models.Video{}, s.mapError(err)
	}
	if video.OwnerID != caller.ID {
		return models.Video{}, apperr.Forbidden("Not authorized")
	}
	return video, nil
}

// finish records a completed lifecycle change and announces it.
func (s *Service) finish(ctx context.Context, eventType string, video models.Video) {
	s.metrics.ObserveVideoEvent(strings.TrimPrefix(eventType, "video."))
	if s.stats != nil && (eventType == events.VideoUploaded || eventType == events.VideoDeleted) {
		s.advise(ctx, "invalidate_stats", func(ctx context.Context) error {
			s.stats.Invalidate(ctx, video.OwnerID)
			return nil
		})
	}
	s.advise(ctx, "publish_event", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, events.Event{
			Type:    eventType,
			VideoID: video.ID,
			OwnerID: video.OwnerID,
		})
	})
}

// advise runs a side effect whose failure is logged and counted but never
// reaches the caller.
func (s *Service) advise(ctx context.Context, action string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ObserveAdvisoryFailure(action)
			logging.WithContext(ctx, s.logger).Error("advisory operation panicked", "action", action, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		s.metrics.ObserveAdvisoryFailure(action)
		logging.WithContext(ctx, s.logger).Warn("advisory operation failed", "action", action, "error", err)
	}
}

func (s *Service) discard(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WithContext(ctx, s.logger).Warn("remove spooled upload", "error", err)
		}
	}
}

func (s *Service) mapError(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "Video not found", err)
	default:
		return apperr.Internal(err)
	}
}

// validateID accepts only the canonical 36 character uuid form.
func validateID(id string) error {
	if len(id) != 36 {
		return apperr.InvalidInput("Invalid video id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.InvalidInput("Invalid video id")
	}
	return nil
}

// coerceDuration parses a duration in seconds. Unparseable, negative and
// non-finite values become zero.
func coerceDuration(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

// ValidID reports whether id could name a video.
func ValidID(id string) bool {
	return validateID(id) == nil
}
