package storage

import (
	"context"
	"errors"
	"fmt"

	"vidhub/internal/models"
)

func (r *postgresRepository) AddSubscription(ctx context.Context, subscriberID, channelID string) (models.Subscription, error) {
	if subscriberID == "" || channelID == "" {
		return models.Subscription{}, errors.New("subscriber and channel are required")
	}
	if _, err := r.GetUser(ctx, channelID); err != nil {
		return models.Subscription{}, fmt.Errorf("channel %s: %w", channelID, err)
	}
	sub := models.Subscription{ID: newID(), SubscriberID: subscriberID, ChannelID: channelID, CreatedAt: r.cfg.Clock()}
	err := r.pool.QueryRow(ctx, `INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscriber_id, channel_id) DO UPDATE SET subscriber_id = EXCLUDED.subscriber_id
		RETURNING id, created_at`,
		sub.ID, sub.SubscriberID, sub.ChannelID, sub.CreatedAt).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	return sub, nil
}

func (r *postgresRepository) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1", channelID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) AddLike(ctx context.Context, videoID, userID string) (models.Like, error) {
	if videoID == "" || userID == "" {
		return models.Like{}, errors.New("video and user are required")
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)", videoID).Scan(&exists); err != nil {
		return models.Like{}, fmt.Errorf("check video %s: %w", videoID, err)
	}
	if !exists {
		return models.Like{}, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	like := models.Like{ID: newID(), VideoID: videoID, LikedByID: userID, CreatedAt: r.cfg.Clock()}
	err := r.pool.QueryRow(ctx, `INSERT INTO likes (id, video_id, liked_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id, liked_by) DO UPDATE SET liked_by = EXCLUDED.liked_by
		RETURNING id, created_at`,
		like.ID, like.VideoID, like.LikedByID, like.CreatedAt).Scan(&like.ID, &like.CreatedAt)
	if err != nil {
		return models.Like{}, fmt.Errorf("insert like: %w", err)
	}
	like.CreatedAt = like.CreatedAt.UTC()
	return like, nil
}

func (r *postgresRepository) CountLikesForChannel(ctx context.Context, channelID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM likes l
		JOIN videos v ON v.id = l.video_id
		WHERE v.owner_id = $1`, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count channel likes: %w", err)
	}
	return count, nil
}
