package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"vidhub/internal/models"
)

func (s *Storage) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	ownerID := strings.TrimSpace(params.OwnerID)
	if ownerID == "" {
		return models.Video{}, errors.New("owner is required")
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	video := models.Video{
		ID:           newID(),
		OwnerID:      ownerID,
		Title:        title,
		Description:  params.Description,
		Duration:     params.Duration,
		VideoURL:     params.VideoURL,
		ThumbnailURL: params.ThumbnailURL,
		IsPublish:    params.IsPublish,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.data.Videos[video.ID] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, video.ID)
		return models.Video{}, err
	}
	return s.populateOwnerLocked(video), nil
}

func (s *Storage) GetVideo(ctx context.Context, id string) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return s.populateOwnerLocked(video), nil
}

func (s *Storage) ListVideos(ctx context.Context, query VideoQuery) (VideoPage, error) {
	if err := ctx.Err(); err != nil {
		return VideoPage{}, err
	}
	query = query.Normalize()
	matcher := newTextMatcher(query.Search)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if matcher.matchesAny(video.Title, video.Description) {
			matched = append(matched, video)
		}
	}
	sortNewestFirst(matched)

	start, end := pageBounds(query, len(matched))
	items := make([]models.Video, 0, end-start)
	for _, video := range matched[start:end] {
		items = append(items, s.populateOwnerLocked(video))
	}
	return VideoPage{
		Items: items,
		Page:  query.Page,
		Limit: query.Limit,
		Total: int64(len(matched)),
	}, nil
}

func (s *Storage) ListVideosByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if video.OwnerID == ownerID {
			videos = append(videos, s.populateOwnerLocked(video))
		}
	}
	sortNewestFirst(videos)
	return videos, nil
}

func (s *Storage) UpdateVideo(ctx context.Context, id string, update VideoUpdate) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if update.Empty() {
		return s.populateOwnerLocked(original), nil
	}
	updated := original
	update.apply(&updated)
	updated.UpdatedAt = s.now()

	s.data.Videos[id] = updated
	if err := s.persist(); err != nil {
		s.data.Videos[id] = original
		return models.Video{}, err
	}
	return s.populateOwnerLocked(updated), nil
}

func (s *Storage) DeleteVideo(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.data.Videos[id]
	if !ok {
		return fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	removedLikes := make(map[string]models.Like)
	for likeID, like := range s.data.Likes {
		if like.VideoID == id {
			removedLikes[likeID] = like
			delete(s.data.Likes, likeID)
		}
	}
	delete(s.data.Videos, id)
	if err := s.persist(); err != nil {
		s.data.Videos[id] = original
		for likeID, like := range removedLikes {
			s.data.Likes[likeID] = like
		}
		return err
	}
	return nil
}

func (s *Storage) IncrementVideoViews(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.data.Videos[id]
	if !ok {
		return 0, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	updated := original
	updated.Views++
	s.data.Videos[id] = updated
	if err := s.persist(); err != nil {
		s.data.Videos[id] = original
		return 0, err
	}
	return updated.Views, nil
}

func (s *Storage) CountVideosByOwner(ctx context.Context, ownerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, video := range s.data.Videos {
		if video.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (s *Storage) populateOwnerLocked(video models.Video) models.Video {
	if owner, ok := s.data.Users[video.OwnerID]; ok {
		summary := owner.Summary()
		video.Owner = &summary
	} else {
		video.Owner = nil
	}
	return video
}

func sortNewestFirst(videos []models.Video) {
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].ID > videos[j].ID
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
}
