package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"vidhub/internal/models"
)

// Snapshot is the JSON datastore's on-disk layout, keyed by record id. It is
// the interchange format for moving data between drivers.
type Snapshot struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	Subscriptions map[string]models.Subscription `json:"subscriptions"`
	Likes         map[string]models.Like         `json:"likes"`
}

type SnapshotCounts struct {
	Users         int
	Videos        int
	Subscriptions int
	Likes         int
}

// LoadSnapshotFromJSON reads a datastore file written by Storage.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	var snapshot Snapshot
	if err := json.NewDecoder(file).Decode(&snapshot); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	if s.Users == nil {
		s.Users = make(map[string]models.User)
	}
	if s.Videos == nil {
		s.Videos = make(map[string]models.Video)
	}
	if s.Subscriptions == nil {
		s.Subscriptions = make(map[string]models.Subscription)
	}
	if s.Likes == nil {
		s.Likes = make(map[string]models.Like)
	}
}

func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Users:         len(s.Users),
		Videos:        len(s.Videos),
		Subscriptions: len(s.Subscriptions),
		Likes:         len(s.Likes),
	}
}

// ImportSnapshotToPostgres copies every record in snapshot into a Postgres
// repository inside one transaction. Existing ids are left untouched.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for snapshot import")
	}
	snapshot.ensureInitialized()
	return pgRepo.importSnapshot(ctx, snapshot)
}
