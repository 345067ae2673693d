package storage

import (
	"context"

	"vidhub/internal/models"
)

// VideoRepository owns persisted video records. Lookups of missing records
// return ErrNotFound.
type VideoRepository interface {
	CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error)
	GetVideo(ctx context.Context, id string) (models.Video, error)
	ListVideos(ctx context.Context, query VideoQuery) (VideoPage, error)
	ListVideosByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	UpdateVideo(ctx context.Context, id string, update VideoUpdate) (models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	// IncrementVideoViews atomically adds one view and returns the new count.
	IncrementVideoViews(ctx context.Context, id string) (int64, error)
	CountVideosByOwner(ctx context.Context, ownerID string) (int64, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
}

// SocialRepository covers the subscription and like collections. The video
// core only reads them; the write methods exist for seeding.
type SocialRepository interface {
	AddSubscription(ctx context.Context, subscriberID, channelID string) (models.Subscription, error)
	CountSubscribers(ctx context.Context, channelID string) (int64, error)
	AddLike(ctx context.Context, videoID, userID string) (models.Like, error)
	// CountLikesForChannel counts likes on videos owned by channelID.
	CountLikesForChannel(ctx context.Context, channelID string) (int64, error)
}

// Repository is the full datastore surface shared by the JSON, Postgres and
// Mongo drivers.
type Repository interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	VideoRepository
	UserRepository
	SocialRepository
}

var _ Repository = (*Storage)(nil)
