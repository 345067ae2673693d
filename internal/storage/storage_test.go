package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestJSONRepositoryScenarios(t *testing.T) {
	runAllRepositoryScenarios(t, jsonRepositoryFactory)
}

func TestStorageReloadsPersistedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	store, err := NewStorage(path, testOptions()...)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	owner := mustCreateUser(t, store, "persisted")
	video := mustCreateVideo(t, store, owner.ID, "kept", "on disk")
	if _, err := store.IncrementVideoViews(context.Background(), video.ID); err != nil {
		t.Fatalf("IncrementVideoViews: %v", err)
	}

	reloaded, err := NewStorage(path, testOptions()...)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.GetVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("GetVideo after reload: %v", err)
	}
	if got.Views != 1 || got.Description != "on disk" {
		t.Fatalf("unexpected reloaded video %+v", got)
	}
	if got.Owner == nil || got.Owner.ID != owner.ID {
		t.Fatalf("expected owner populated after reload")
	}
}

func TestStorageEmptyFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	store, err := NewStorage(path, testOptions()...)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	page, err := store.ListVideos(context.Background(), VideoQuery{})
	if err != nil || page.Total != 0 {
		t.Fatalf("expected empty store, got %d, %v", page.Total, err)
	}
}

func TestStorageCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := NewStorage(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCreateVideoPersistFailureLeavesNoRecord(t *testing.T) {
	store := newTestStore(t)
	owner := mustCreateUser(t, store, "owner")

	store.persistOverride = func(dataset) error { return errors.New("disk full") }
	_, err := store.CreateVideo(context.Background(), CreateVideoParams{OwnerID: owner.ID, Title: "lost"})
	if err == nil {
		t.Fatal("expected persist error")
	}
	store.persistOverride = nil

	page, err := store.ListVideos(context.Background(), VideoQuery{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected rollback, found %d videos", page.Total)
	}
}

func TestUpdateVideoPersistFailureRestoresOriginal(t *testing.T) {
	store := newTestStore(t)
	owner := mustCreateUser(t, store, "owner")
	video := mustCreateVideo(t, store, owner.ID, "original", "")

	store.persistOverride = func(dataset) error { return errors.New("disk full") }
	title := "changed"
	if _, err := store.UpdateVideo(context.Background(), video.ID, VideoUpdate{Title: &title}); err == nil {
		t.Fatal("expected persist error")
	}
	if _, err := store.IncrementVideoViews(context.Background(), video.ID); err == nil {
		t.Fatal("expected persist error on increment")
	}
	if err := store.DeleteVideo(context.Background(), video.ID); err == nil {
		t.Fatal("expected persist error on delete")
	}
	store.persistOverride = nil

	got, err := store.GetVideo(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Title != "original" || got.Views != 0 {
		t.Fatalf("expected untouched record, got %+v", got)
	}
}

func TestCreateVideoValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateVideo(ctx, CreateVideoParams{Title: "no owner"}); err == nil {
		t.Fatal("expected owner validation error")
	}
	if _, err := store.CreateVideo(ctx, CreateVideoParams{OwnerID: "o", Title: "   "}); err == nil {
		t.Fatal("expected title validation error")
	}
}

func TestVideoWithoutKnownOwnerHasNoSummary(t *testing.T) {
	store := newTestStore(t)
	video := mustCreateVideo(t, store, "ghost-owner", "orphan", "")
	if video.Owner != nil {
		t.Fatalf("expected no owner summary, got %+v", video.Owner)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	owner := mustCreateUser(t, store, "exporter")
	video := mustCreateVideo(t, store, owner.ID, "exported", "")
	if _, err := store.AddLike(context.Background(), video.ID, owner.ID); err != nil {
		t.Fatalf("AddLike: %v", err)
	}

	loaded, err := LoadSnapshotFromJSON(store.filePath)
	if err != nil {
		t.Fatalf("LoadSnapshotFromJSON: %v", err)
	}
	counts := loaded.Counts()
	if counts.Users != 1 || counts.Videos != 1 || counts.Likes != 1 || counts.Subscriptions != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if store.Snapshot().Counts() != counts {
		t.Fatalf("in-memory snapshot disagrees with file")
	}
}

func TestImportSnapshotRequiresPostgres(t *testing.T) {
	store := newTestStore(t)
	if err := ImportSnapshotToPostgres(context.Background(), store, &Snapshot{}); err == nil {
		t.Fatal("expected error for non-postgres repository")
	}
}
