package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
)

// RepositoryFactory constructs a repository backed by one of the datastore
// drivers for cross-driver scenario assertions.
type RepositoryFactory func(t *testing.T, opts ...Option) (Repository, func(), error)

func runRepository(t *testing.T, factory RepositoryFactory, opts ...Option) Repository {
	t.Helper()
	if factory == nil {
		t.Fatal("repository factory is required")
	}
	repo, cleanup, err := factory(t, opts...)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if repo == nil {
		t.Fatal("repository factory returned nil repository")
	}
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return repo
}

func runAllRepositoryScenarios(t *testing.T, factory RepositoryFactory) {
	t.Run("VideoLifecycle", func(t *testing.T) { RunRepositoryVideoLifecycle(t, factory) })
	t.Run("Pagination", func(t *testing.T) { RunRepositoryPagination(t, factory) })
	t.Run("Search", func(t *testing.T) { RunRepositorySearch(t, factory) })
	t.Run("PageBeyondRange", func(t *testing.T) { RunRepositoryPageBeyondRange(t, factory) })
	t.Run("ConcurrentViews", func(t *testing.T) { RunRepositoryConcurrentViews(t, factory) })
	t.Run("ChannelCounts", func(t *testing.T) { RunRepositoryChannelCounts(t, factory) })
	t.Run("Users", func(t *testing.T) { RunRepositoryUsers(t, factory) })
}

func RunRepositoryVideoLifecycle(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	owner := mustCreateUser(t, repo, "owner")
	video := mustCreateVideo(t, repo, owner.ID, "first", "a description")
	if video.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if video.Views != 0 {
		t.Fatalf("expected zero views, got %d", video.Views)
	}
	if video.Owner == nil || video.Owner.Username != owner.Username {
		t.Fatalf("expected owner summary populated, got %+v", video.Owner)
	}

	fetched, err := repo.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if fetched.Title != "first" || fetched.OwnerID != owner.ID {
		t.Fatalf("unexpected video %+v", fetched)
	}

	title := "renamed"
	publish := false
	updated, err := repo.UpdateVideo(ctx, video.ID, VideoUpdate{Title: &title, IsPublish: &publish})
	if err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}
	if updated.Title != "renamed" || updated.IsPublish {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Description != "a description" {
		t.Fatalf("untouched field changed: %q", updated.Description)
	}
	if !updated.UpdatedAt.After(video.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance")
	}

	if err := repo.DeleteVideo(ctx, video.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if _, err := repo.GetVideo(ctx, video.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeleteVideo(ctx, video.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := repo.UpdateVideo(ctx, video.ID, VideoUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if _, err := repo.IncrementVideoViews(ctx, video.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on increment, got %v", err)
	}
}

func RunRepositoryPagination(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	owner := mustCreateUser(t, repo, "pager")

	created := make([]string, 0, 25)
	for i := 1; i <= 25; i++ {
		video := mustCreateVideo(t, repo, owner.ID, fmt.Sprintf("video-%02d", i), "")
		created = append(created, video.ID)
	}
	// newest first: index 0 of the listing is the last created video
	newestFirst := make([]string, len(created))
	for i, id := range created {
		newestFirst[len(created)-1-i] = id
	}

	page, err := repo.ListVideos(ctx, VideoQuery{Page: 2, Limit: 12})
	if err != nil {
		t.Fatalf("ListVideos page 2: %v", err)
	}
	if page.Total != 25 {
		t.Fatalf("expected total 25, got %d", page.Total)
	}
	if len(page.Items) != 12 {
		t.Fatalf("expected 12 items, got %d", len(page.Items))
	}
	for i, item := range page.Items {
		if want := newestFirst[12+i]; item.ID != want {
			t.Fatalf("item %d: expected %s, got %s", 13+i, want, item.ID)
		}
	}

	last, err := repo.ListVideos(ctx, VideoQuery{Page: 3, Limit: 12})
	if err != nil {
		t.Fatalf("ListVideos page 3: %v", err)
	}
	if len(last.Items) != 1 || last.Items[0].ID != newestFirst[24] {
		t.Fatalf("expected single oldest item on page 3, got %d items", len(last.Items))
	}

	beyond, err := repo.ListVideos(ctx, VideoQuery{Page: 9, Limit: 12})
	if err != nil {
		t.Fatalf("ListVideos page 9: %v", err)
	}
	if len(beyond.Items) != 0 || beyond.Total != 25 {
		t.Fatalf("expected empty page with total 25, got %d items total %d", len(beyond.Items), beyond.Total)
	}

	clamped, err := repo.ListVideos(ctx, VideoQuery{Page: -4, Limit: 0})
	if err != nil {
		t.Fatalf("ListVideos clamped: %v", err)
	}
	if clamped.Page != 1 || clamped.Limit != 1 || len(clamped.Items) != 1 {
		t.Fatalf("expected clamp to page 1 limit 1, got page %d limit %d items %d", clamped.Page, clamped.Limit, len(clamped.Items))
	}
	if clamped.Items[0].ID != newestFirst[0] {
		t.Fatalf("expected newest video first")
	}
}

func RunRepositorySearch(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	owner := mustCreateUser(t, repo, "searcher")

	mustCreateVideo(t, repo, owner.ID, "Cooking Pasta", "weeknight dinner")
	mustCreateVideo(t, repo, owner.ID, "Hiking", "a trip to the PASTA mountains")
	mustCreateVideo(t, repo, owner.ID, "Chess openings", "100% sicilian")
	mustCreateVideo(t, repo, owner.ID, "Unrelated", "nothing here")

	page, err := repo.ListVideos(ctx, VideoQuery{Search: "pasta", Page: 1, Limit: 12})
	if err != nil {
		t.Fatalf("ListVideos search: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 matches, got total %d items %d", page.Total, len(page.Items))
	}
	for _, item := range page.Items {
		if item.Title != "Cooking Pasta" && item.Title != "Hiking" {
			t.Fatalf("unexpected match %q", item.Title)
		}
	}

	literal, err := repo.ListVideos(ctx, VideoQuery{Search: "100%", Page: 1, Limit: 12})
	if err != nil {
		t.Fatalf("ListVideos literal: %v", err)
	}
	if literal.Total != 1 || literal.Items[0].Title != "Chess openings" {
		t.Fatalf("expected literal %% match, got total %d", literal.Total)
	}

	none, err := repo.ListVideos(ctx, VideoQuery{Search: "zzz-no-match", Page: 1, Limit: 12})
	if err != nil {
		t.Fatalf("ListVideos no match: %v", err)
	}
	if none.Total != 0 || len(none.Items) != 0 {
		t.Fatalf("expected empty result, got total %d items %d", none.Total, len(none.Items))
	}
}

func RunRepositoryPageBeyondRange(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	owner := mustCreateUser(t, repo, "pager")
	mustCreateVideo(t, repo, owner.ID, "first", "")
	mustCreateVideo(t, repo, owner.ID, "second", "")

	for _, page := range []int{3, math.MaxInt / 10, math.MaxInt} {
		result, err := repo.ListVideos(ctx, VideoQuery{Page: page, Limit: 100})
		if err != nil {
			t.Fatalf("ListVideos page %d: %v", page, err)
		}
		if len(result.Items) != 0 {
			t.Fatalf("page %d: expected no items, got %d", page, len(result.Items))
		}
		if result.Total != 2 {
			t.Fatalf("page %d: expected total 2, got %d", page, result.Total)
		}
		if result.Page != page {
			t.Fatalf("expected page %d echoed, got %d", page, result.Page)
		}
	}
}

func RunRepositoryConcurrentViews(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()
	owner := mustCreateUser(t, repo, "viewer")
	video := mustCreateVideo(t, repo, owner.ID, "popular", "")

	if _, err := repo.IncrementVideoViews(ctx, video.ID); err != nil {
		t.Fatalf("initial increment: %v", err)
	}

	const workers = 40
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementVideoViews(ctx, video.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent increment: %v", err)
	}

	fetched, err := repo.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if fetched.Views != workers+1 {
		t.Fatalf("expected %d views, got %d", workers+1, fetched.Views)
	}
}

func RunRepositoryChannelCounts(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	channel := mustCreateUser(t, repo, "channel")
	other := mustCreateUser(t, repo, "other")
	fan := mustCreateUser(t, repo, "fan")

	first := mustCreateVideo(t, repo, channel.ID, "one", "")
	second := mustCreateVideo(t, repo, channel.ID, "two", "")
	foreign := mustCreateVideo(t, repo, other.ID, "three", "")

	for _, pair := range [][2]string{
		{first.ID, fan.ID},
		{first.ID, other.ID},
		{second.ID, fan.ID},
		{foreign.ID, fan.ID},
	} {
		if _, err := repo.AddLike(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("AddLike: %v", err)
		}
	}
	// duplicate likes are idempotent
	if _, err := repo.AddLike(ctx, first.ID, fan.ID); err != nil {
		t.Fatalf("AddLike duplicate: %v", err)
	}
	if _, err := repo.AddSubscription(ctx, fan.ID, channel.ID); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if _, err := repo.AddSubscription(ctx, other.ID, channel.ID); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	if _, err := repo.AddSubscription(ctx, fan.ID, channel.ID); err != nil {
		t.Fatalf("AddSubscription duplicate: %v", err)
	}

	videos, err := repo.CountVideosByOwner(ctx, channel.ID)
	if err != nil || videos != 2 {
		t.Fatalf("CountVideosByOwner = %d, %v; want 2", videos, err)
	}
	subs, err := repo.CountSubscribers(ctx, channel.ID)
	if err != nil || subs != 2 {
		t.Fatalf("CountSubscribers = %d, %v; want 2", subs, err)
	}
	likes, err := repo.CountLikesForChannel(ctx, channel.ID)
	if err != nil || likes != 3 {
		t.Fatalf("CountLikesForChannel = %d, %v; want 3", likes, err)
	}

	listed, err := repo.ListVideosByOwner(ctx, channel.ID)
	if err != nil {
		t.Fatalf("ListVideosByOwner: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != second.ID {
		t.Fatalf("expected two channel videos newest first, got %d", len(listed))
	}

	if err := repo.DeleteVideo(ctx, first.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	likes, err = repo.CountLikesForChannel(ctx, channel.ID)
	if err != nil || likes != 1 {
		t.Fatalf("CountLikesForChannel after delete = %d, %v; want 1", likes, err)
	}
}

func RunRepositoryUsers(t *testing.T, factory RepositoryFactory) {
	repo := runRepository(t, factory)
	ctx := context.Background()

	user := mustCreateUser(t, repo, "Alice")
	if user.Username != "alice" {
		t.Fatalf("expected username normalised, got %q", user.Username)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret-Alice" {
		t.Fatalf("expected hashed password")
	}
	if !CheckPassword(user, "secret-Alice") {
		t.Fatalf("expected password to verify")
	}
	if CheckPassword(user, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}

	fetched, err := repo.GetUser(ctx, user.ID)
	if err != nil || fetched.Email != "alice@example.com" {
		t.Fatalf("GetUser = %+v, %v", fetched, err)
	}
	byEmail, err := repo.FindUserByEmail(ctx, " ALICE@example.com ")
	if err != nil || byEmail.ID != user.ID {
		t.Fatalf("FindUserByEmail = %+v, %v", byEmail, err)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = repo.CreateUser(ctx, CreateUserParams{Username: "alice2", Email: "alice@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
