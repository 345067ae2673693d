package models

import "time"

// User is the full account record held by the datastore. Handlers never
// encode it directly; use Public or Summary instead.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public returns the user without credential material.
func (u User) Public() User {
	u.PasswordHash = ""
	u.RefreshToken = ""
	return u
}

// Summary returns the display projection embedded in video payloads.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Avatar:   u.Avatar,
	}
}

type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
}

type Video struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"ownerId"`
	Owner        *UserSummary `json:"owner,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Duration     float64      `json:"duration"`
	VideoURL     string       `json:"videofile"`
	ThumbnailURL string       `json:"thumbnail"`
	IsPublish    bool         `json:"isPublish"`
	Views        int64        `json:"views"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Subscription links a subscriber to the channel (owning user) they follow.
type Subscription struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriber"`
	ChannelID    string    `json:"channel"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Like struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video"`
	LikedByID string    `json:"likedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChannelStats aggregates counts for one channel. Each count reflects its own
// read time.
type ChannelStats struct {
	TotalVideos      int64 `json:"totalVideos"`
	TotalSubscribers int64 `json:"totalSubscribers"`
	TotalLikes       int64 `json:"totalLikes"`
}
