package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"vidhub/internal/models"
)

func (r *postgresRepository) importSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer rollbackTx(ctx, tx)

	if err := importSnapshotUsers(ctx, tx, snapshot.Users); err != nil {
		return err
	}
	if err := importSnapshotVideos(ctx, tx, snapshot.Videos); err != nil {
		return err
	}
	if err := importSnapshotSubscriptions(ctx, tx, snapshot.Subscriptions); err != nil {
		return err
	}
	if err := importSnapshotLikes(ctx, tx, snapshot.Likes); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot import: %w", err)
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func importTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func importID(id, key string) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	return key
}

func importSnapshotUsers(ctx context.Context, tx pgx.Tx, users map[string]models.User) error {
	for _, key := range sortedKeys(users) {
		user := users[key]
		id := importID(user.ID, key)
		_, err := tx.Exec(ctx, "INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING",
			id, strings.TrimSpace(user.Username), strings.TrimSpace(user.FullName), strings.TrimSpace(user.Email),
			strings.TrimSpace(user.Avatar), user.PasswordHash, user.RefreshToken, importTime(user.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert user %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotVideos(ctx context.Context, tx pgx.Tx, videos map[string]models.Video) error {
	for _, key := range sortedKeys(videos) {
		video := videos[key]
		id := importID(video.ID, key)
		createdAt := importTime(video.CreatedAt)
		updatedAt := video.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		_, err := tx.Exec(ctx, `INSERT INTO videos
			(id, owner_id, title, description, duration, video_url, thumbnail_url, is_publish, views, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) ON CONFLICT (id) DO NOTHING`,
			id, video.OwnerID, video.Title, video.Description, video.Duration, video.VideoURL, video.ThumbnailURL,
			video.IsPublish, video.Views, createdAt, updatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert video %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotSubscriptions(ctx context.Context, tx pgx.Tx, subs map[string]models.Subscription) error {
	for _, key := range sortedKeys(subs) {
		sub := subs[key]
		id := importID(sub.ID, key)
		_, err := tx.Exec(ctx, `INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			id, sub.SubscriberID, sub.ChannelID, importTime(sub.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert subscription %s: %w", id, err)
		}
	}
	return nil
}

func importSnapshotLikes(ctx context.Context, tx pgx.Tx, likes map[string]models.Like) error {
	for _, key := range sortedKeys(likes) {
		like := likes[key]
		id := importID(like.ID, key)
		_, err := tx.Exec(ctx, `INSERT INTO likes (id, video_id, liked_by, created_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			id, like.VideoID, like.LikedByID, importTime(like.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert like %s: %w", id, err)
		}
	}
	return nil
}
