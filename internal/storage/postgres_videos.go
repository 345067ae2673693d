package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"vidhub/internal/models"
)

const videoColumns = `v.id, v.owner_id, v.title, v.description, v.duration, v.video_url, v.thumbnail_url,
	v.is_publish, v.views, v.created_at, v.updated_at,
	u.id IS NOT NULL, COALESCE(u.username, ''), COALESCE(u.full_name, ''), COALESCE(u.avatar, '')`

const videoFrom = `FROM videos v LEFT JOIN users u ON u.id = v.owner_id`

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video    models.Video
		hasOwner bool
		owner    models.UserSummary
	)
	err := row.Scan(
		&video.ID, &video.OwnerID, &video.Title, &video.Description, &video.Duration,
		&video.VideoURL, &video.ThumbnailURL, &video.IsPublish, &video.Views,
		&video.CreatedAt, &video.UpdatedAt,
		&hasOwner, &owner.Username, &owner.FullName, &owner.Avatar,
	)
	if err != nil {
		return models.Video{}, err
	}
	video.CreatedAt = video.CreatedAt.UTC()
	video.UpdatedAt = video.UpdatedAt.UTC()
	if hasOwner {
		owner.ID = video.OwnerID
		video.Owner = &owner
	}
	return video, nil
}

func collectVideos(rows pgx.Rows) ([]models.Video, error) {
	defer rows.Close()
	videos := make([]models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

func (r *postgresRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	ownerID := strings.TrimSpace(params.OwnerID)
	if ownerID == "" {
		return models.Video{}, errors.New("owner is required")
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	id := newID()
	now := r.cfg.Clock()
	_, err := r.pool.Exec(ctx, `INSERT INTO videos
		(id, owner_id, title, description, duration, video_url, thumbnail_url, is_publish, views, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $9)`,
		id, ownerID, title, params.Description, params.Duration, params.VideoURL, params.ThumbnailURL, params.IsPublish, now)
	if err != nil {
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return r.GetVideo(ctx, id)
}

func (r *postgresRepository) GetVideo(ctx context.Context, id string) (models.Video, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+videoColumns+" "+videoFrom+" WHERE v.id = $1", id)
	video, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("load video %s: %w", id, err)
	}
	return video, nil
}

func (r *postgresRepository) ListVideos(ctx context.Context, query VideoQuery) (VideoPage, error) {
	query = query.Normalize()
	where := ""
	args := []any{}
	if query.Search != "" {
		where = ` WHERE (v.title ILIKE $1 OR v.description ILIKE $1)`
		args = append(args, likePattern(query.Search))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos v"+where, args...).Scan(&total); err != nil {
		return VideoPage{}, fmt.Errorf("count videos: %w", err)
	}
	if int64(query.Offset()) >= total {
		return VideoPage{Items: []models.Video{}, Page: query.Page, Limit: query.Limit, Total: total}, nil
	}

	limitArg := len(args) + 1
	sql := fmt.Sprintf("SELECT %s %s%s ORDER BY v.created_at DESC, v.id DESC LIMIT $%d OFFSET $%d",
		videoColumns, videoFrom, where, limitArg, limitArg+1)
	args = append(args, query.Limit, query.Offset())
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return VideoPage{}, fmt.Errorf("list videos: %w", err)
	}
	items, err := collectVideos(rows)
	if err != nil {
		return VideoPage{}, err
	}
	return VideoPage{Items: items, Page: query.Page, Limit: query.Limit, Total: total}, nil
}

func (r *postgresRepository) ListVideosByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+videoColumns+" "+videoFrom+
		" WHERE v.owner_id = $1 ORDER BY v.created_at DESC, v.id DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner videos: %w", err)
	}
	return collectVideos(rows)
}

func (r *postgresRepository) UpdateVideo(ctx context.Context, id string, update VideoUpdate) (models.Video, error) {
	if update.Empty() {
		return r.GetVideo(ctx, id)
	}
	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.IsPublish != nil {
		add("is_publish", *update.IsPublish)
	}
	if update.Duration != nil {
		add("duration", *update.Duration)
	}
	add("updated_at", r.cfg.Clock())

	tag, err := r.pool.Exec(ctx, "UPDATE videos SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return models.Video{}, fmt.Errorf("update video %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return r.GetVideo(ctx, id)
}

func (r *postgresRepository) DeleteVideo(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM videos WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) IncrementVideoViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := r.pool.QueryRow(ctx, "UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views", id).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment views %s: %w", id, err)
	}
	return views, nil
}

func (r *postgresRepository) CountVideosByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos WHERE owner_id = $1", ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count owner videos: %w", err)
	}
	return count, nil
}
