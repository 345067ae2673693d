package storage

import (
	"errors"
	"math"
	"strings"

	"vidhub/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

const (
	DefaultPage  = 1
	DefaultLimit = 12
)

type CreateVideoParams struct {
	OwnerID      string
	Title        string
	Description  string
	Duration     float64
	VideoURL     string
	ThumbnailURL string
	IsPublish    bool
}

// VideoUpdate holds the owner-mutable fields. Nil fields are left unchanged.
type VideoUpdate struct {
	Title       *string
	Description *string
	IsPublish   *bool
	Duration    *float64
}

// Empty reports whether the update would change nothing.
func (u VideoUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.IsPublish == nil && u.Duration == nil
}

func (u VideoUpdate) apply(video *models.Video) {
	if u.Title != nil {
		video.Title = *u.Title
	}
	if u.Description != nil {
		video.Description = *u.Description
	}
	if u.IsPublish != nil {
		video.IsPublish = *u.IsPublish
	}
	if u.Duration != nil {
		video.Duration = *u.Duration
	}
}

// VideoQuery filters and paginates video listings. Results are always ordered
// by creation time, newest first.
type VideoQuery struct {
	Search string
	Page   int
	Limit  int
}

// Normalize trims the search text and clamps page and limit to at least one.
func (q VideoQuery) Normalize() VideoQuery {
	q.Search = strings.TrimSpace(q.Search)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	return q
}

// Offset is the number of records skipped before the requested page. It
// saturates at math.MaxInt so that an absurd page yields an empty result.
func (q VideoQuery) Offset() int {
	n := q.Normalize()
	if n.Page-1 > math.MaxInt/n.Limit {
		return math.MaxInt
	}
	return (n.Page - 1) * n.Limit
}

type VideoPage struct {
	Items []models.Video `json:"videos"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int64          `json:"total"`
}

type CreateUserParams struct {
	Username string
	FullName string
	Email    string
	Avatar   string
	Password string
}

func (p CreateUserParams) normalized() (CreateUserParams, error) {
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Avatar = strings.TrimSpace(p.Avatar)
	if p.Username == "" {
		return p, errors.New("username is required")
	}
	if p.Email == "" {
		return p, errors.New("email is required")
	}
	return p, nil
}

// pageBounds converts a normalized query into slice bounds over total items.
func pageBounds(q VideoQuery, total int) (int, int) {
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Normalize().Limit
	if end > total {
		end = total
	}
	return start, end
}
