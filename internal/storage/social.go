package storage

import (
	"context"
	"errors"
	"fmt"

	"vidhub/internal/models"
)

func (s *Storage) AddSubscription(ctx context.Context, subscriberID, channelID string) (models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return models.Subscription{}, err
	}
	if subscriberID == "" || channelID == "" {
		return models.Subscription{}, errors.New("subscriber and channel are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[channelID]; !ok {
		return models.Subscription{}, fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	for _, existing := range s.data.Subscriptions {
		if existing.SubscriberID == subscriberID && existing.ChannelID == channelID {
			return existing, nil
		}
	}
	sub := models.Subscription{
		ID:           newID(),
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    s.now(),
	}
	s.data.Subscriptions[sub.ID] = sub
	if err := s.persist(); err != nil {
		delete(s.data.Subscriptions, sub.ID)
		return models.Subscription{}, err
	}
	return sub, nil
}

func (s *Storage) CountSubscribers(ctx context.Context, channelID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, sub := range s.data.Subscriptions {
		if sub.ChannelID == channelID {
			count++
		}
	}
	return count, nil
}

func (s *Storage) AddLike(ctx context.Context, videoID, userID string) (models.Like, error) {
	if err := ctx.Err(); err != nil {
		return models.Like{}, err
	}
	if videoID == "" || userID == "" {
		return models.Like{}, errors.New("video and user are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Like{}, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	for _, existing := range s.data.Likes {
		if existing.VideoID == videoID && existing.LikedByID == userID {
			return existing, nil
		}
	}
	like := models.Like{
		ID:        newID(),
		VideoID:   videoID,
		LikedByID: userID,
		CreatedAt: s.now(),
	}
	s.data.Likes[like.ID] = like
	if err := s.persist(); err != nil {
		delete(s.data.Likes, like.ID)
		return models.Like{}, err
	}
	return like, nil
}

func (s *Storage) CountLikesForChannel(ctx context.Context, channelID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, like := range s.data.Likes {
		video, ok := s.data.Videos[like.VideoID]
		if ok && video.OwnerID == channelID {
			count++
		}
	}
	return count, nil
}
