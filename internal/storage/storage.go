package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/models"
)

type dataset struct {
	Users         map[string]models.User         `json:"users"`
	Videos        map[string]models.Video        `json:"videos"`
	Subscriptions map[string]models.Subscription `json:"subscriptions"`
	Likes         map[string]models.Like         `json:"likes"`
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Videos:        make(map[string]models.Video),
		Subscriptions: make(map[string]models.Subscription),
		Likes:         make(map[string]models.Like),
	}
}

func (d *dataset) ensureInitialized() {
	if d.Users == nil {
		d.Users = make(map[string]models.User)
	}
	if d.Videos == nil {
		d.Videos = make(map[string]models.Video)
	}
	if d.Subscriptions == nil {
		d.Subscriptions = make(map[string]models.Subscription)
	}
	if d.Likes == nil {
		d.Likes = make(map[string]models.Like)
	}
}

// Storage is a file-backed datastore. Every mutation rewrites the file and
// rolls the in-memory state back when the write fails.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset

	now          func() time.Time
	passwordCost int
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath:     path,
		now:          func() time.Time { return time.Now().UTC() },
		passwordCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) Close(context.Context) error {
	return nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}
	s.data.ensureInitialized()
	return nil
}

func (s *Storage) persist() error {
	data := s.data
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// Snapshot returns a copy of the persisted collections for export.
func (s *Storage) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := &Snapshot{
		Users:         make(map[string]models.User, len(s.data.Users)),
		Videos:        make(map[string]models.Video, len(s.data.Videos)),
		Subscriptions: make(map[string]models.Subscription, len(s.data.Subscriptions)),
		Likes:         make(map[string]models.Like, len(s.data.Likes)),
	}
	for id, user := range s.data.Users {
		snapshot.Users[id] = user
	}
	for id, video := range s.data.Videos {
		snapshot.Videos[id] = video
	}
	for id, sub := range s.data.Subscriptions {
		snapshot.Subscriptions[id] = sub
	}
	for id, like := range s.data.Likes {
		snapshot.Likes[id] = like
	}
	return snapshot
}

func newID() string {
	return uuid.NewString()
}
