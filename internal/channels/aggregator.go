// Package channels computes read-only dashboard data for a channel.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"vidhub/internal/apperr"
	"vidhub/internal/models"
	"vidhub/internal/observability/logging"
	"vidhub/internal/observability/metrics"
)

const (
	DefaultCacheTTL = 30 * time.Second
	cacheKeyPrefix  = "vidhub:channel-stats:"
)

// Source is the subset of the datastore the aggregator reads.
type Source interface {
	CountVideosByOwner(ctx context.Context, ownerID string) (int64, error)
	CountSubscribers(ctx context.Context, channelID string) (int64, error)
	CountLikesForChannel(ctx context.Context, channelID string) (int64, error)
	ListVideosByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
}

type Aggregator struct {
	source   Source
	cache    redis.Cmdable
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

type Option func(*Aggregator)

// WithCache stores computed stats in Redis for ttl. A non-positive ttl uses
// DefaultCacheTTL.
func WithCache(client redis.Cmdable, ttl time.Duration) Option {
	return func(a *Aggregator) {
		a.cache = client
		if ttl > 0 {
			a.cacheTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithRecorder(recorder *metrics.Recorder) Option {
	return func(a *Aggregator) {
		if recorder != nil {
			a.metrics = recorder
		}
	}
}

func NewAggregator(source Source, opts ...Option) (*Aggregator, error) {
	if source == nil {
		return nil, errors.New("channel data source is required")
	}
	agg := &Aggregator{
		source:   source,
		cacheTTL: DefaultCacheTTL,
		logger:   slog.Default(),
		metrics:  metrics.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(agg)
		}
	}
	return agg, nil
}

// Stats returns the video, subscriber and like totals for channelID. The
// three counts are read concurrently and are not a single snapshot.
func (a *Aggregator) Stats(ctx context.Context, channelID string) (models.ChannelStats, error) {
	if err := validateChannelID(channelID); err != nil {
		return models.ChannelStats{}, err
	}
	if stats, ok := a.cached(ctx, channelID); ok {
		return stats, nil
	}

	var stats models.ChannelStats
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		n, err := a.source.CountVideosByOwner(gctx, channelID)
		if err != nil {
			return fmt.Errorf("count videos: %w", err)
		}
		stats.TotalVideos = n
		return nil
	})
	group.Go(func() error {
		n, err := a.source.CountSubscribers(gctx, channelID)
		if err != nil {
			return fmt.Errorf("count subscribers: %w", err)
		}
		stats.TotalSubscribers = n
		return nil
	})
	group.Go(func() error {
		n, err := a.source.CountLikesForChannel(gctx, channelID)
		if err != nil {
			return fmt.Errorf("count likes: %w", err)
		}
		stats.TotalLikes = n
		return nil
	})
	if err := group.Wait(); err != nil {
		return models.ChannelStats{}, apperr.Internal(err)
	}
	a.store(ctx, channelID, stats)
	return stats, nil
}

// Videos lists every video owned by channelID without pagination.
func (a *Aggregator) Videos(ctx context.Context, channelID string) ([]models.Video, error) {
	if err := validateChannelID(channelID); err != nil {
		return nil, err
	}
	videos, err := a.source.ListVideosByOwner(ctx, channelID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list channel videos: %w", err))
	}
	if videos == nil {
		videos = []models.Video{}
	}
	return videos, nil
}

// Invalidate drops any cached stats for channelID.
func (a *Aggregator) Invalidate(ctx context.Context, channelID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Del(ctx, cacheKey(channelID)).Err(); err != nil {
		logging.WithContext(ctx, a.logger).Warn("invalidate channel stats", "channel_id", channelID, "error", err)
	}
}

func (a *Aggregator) cached(ctx context.Context, channelID string) (models.ChannelStats, bool) {
	if a.cache == nil {
		return models.ChannelStats{}, false
	}
	raw, err := a.cache.Get(ctx, cacheKey(channelID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		a.metrics.ObserveStatsCache("miss")
		return models.ChannelStats{}, false
	case err != nil:
		a.metrics.ObserveStatsCache("error")
		logging.WithContext(ctx, a.logger).Warn("read channel stats cache", "channel_id", channelID, "error", err)
		return models.ChannelStats{}, false
	}
	var stats models.ChannelStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		a.metrics.ObserveStatsCache("error")
		logging.WithContext(ctx, a.logger).Warn("decode channel stats cache", "channel_id", channelID, "error", err)
		return models.ChannelStats{}, false
	}
	a.metrics.ObserveStatsCache("hit")
	return stats, true
}

func (a *Aggregator) store(ctx context.Context, channelID string, stats models.ChannelStats) {
	if a.cache == nil {
		return
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, cacheKey(channelID), payload, a.cacheTTL).Err(); err != nil {
		a.metrics.ObserveStatsCache("error")
		logging.WithContext(ctx, a.logger).Warn("write channel stats cache", "channel_id", channelID, "error", err)
	}
}

func cacheKey(channelID string) string {
	return cacheKeyPrefix + channelID
}

func validateChannelID(id string) error {
	if len(id) != 36 {
		return apperr.InvalidInput("Invalid channel id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.InvalidInput("Invalid channel id")
	}
	return nil
}
