package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/models"
)

// steppingClock returns a clock that advances one second per call so
// createdAt ordering is deterministic.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func testOptions(extra ...Option) []Option {
	opts := []Option{WithClock(steppingClock()), WithPasswordCost(bcrypt.MinCost)}
	return append(opts, extra...)
}

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path, testOptions(extra...)...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func jsonRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path, testOptions(opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func mustCreateUser(t *testing.T, repo UserRepository, name string) models.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), CreateUserParams{
		Username: name,
		FullName: "User " + name,
		Email:    name + "@example.com",
		Password: "secret-" + name,
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", name, err)
	}
	return user
}

func mustCreateVideo(t *testing.T, repo VideoRepository, ownerID, title, description string) models.Video {
	t.Helper()
	video, err := repo.CreateVideo(context.Background(), CreateVideoParams{
		OwnerID:      ownerID,
		Title:        title,
		Description:  description,
		Duration:     42,
		VideoURL:     fmt.Sprintf("https://cdn.example.com/upload/video/%s.mp4", title),
		ThumbnailURL: fmt.Sprintf("https://cdn.example.com/upload/image/%s.png", title),
		IsPublish:    true,
	})
	if err != nil {
		t.Fatalf("CreateVideo %s: %v", title, err)
	}
	return video
}
