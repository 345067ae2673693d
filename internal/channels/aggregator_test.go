package channels

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/apperr"
	"vidhub/internal/models"
	"vidhub/internal/observability/metrics"
	"vidhub/internal/storage"
	"vidhub/internal/testsupport/redisstub"
)

type seeded struct {
	store   *storage.Storage
	channel models.User
	fans    []models.User
	videos  []models.Video
	other   models.Video
}

func seedStore(t *testing.T) *seeded {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"), storage.WithPasswordCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	createUser := func(name string) models.User {
		user, err := store.CreateUser(ctx, storage.CreateUserParams{Username: name, Email: name + "@example.com", Password: "pw-" + name})
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", name, err)
		}
		return user
	}
	createVideo := func(owner, title string) models.Video {
		video, err := store.CreateVideo(ctx, storage.CreateVideoParams{
			OwnerID:      owner,
			Title:        title,
			VideoURL:     "https://cdn.example.com/upload/video/" + title + ".mp4",
			ThumbnailURL: "https://cdn.example.com/upload/image/" + title + ".png",
			IsPublish:    true,
		})
		if err != nil {
			t.Fatalf("CreateVideo(%s): %v", title, err)
		}
		return video
	}

	s := &seeded{store: store, channel: createUser("channel")}
	other := createUser("other")
	s.fans = []models.User{createUser("fan1"), createUser("fan2")}
	s.videos = []models.Video{createVideo(s.channel.ID, "first"), createVideo(s.channel.ID, "second")}
	s.other = createVideo(other.ID, "elsewhere")

	for _, fan := range s.fans {
		if _, err := store.AddSubscription(ctx, fan.ID, s.channel.ID); err != nil {
			t.Fatalf("AddSubscription: %v", err)
		}
	}
	for _, like := range []struct{ video, user string }{
		{s.videos[0].ID, s.fans[0].ID},
		{s.videos[0].ID, s.fans[1].ID},
		{s.videos[1].ID, s.fans[0].ID},
		{s.other.ID, s.fans[0].ID},
	} {
		if _, err := store.AddLike(ctx, like.video, like.user); err != nil {
			t.Fatalf("AddLike: %v", err)
		}
	}
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatsCountsChannelScope(t *testing.T) {
	s := seedStore(t)
	agg, err := NewAggregator(s.store, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	stats, err := agg.Stats(context.Background(), s.channel.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := models.ChannelStats{TotalVideos: 2, TotalSubscribers: 2, TotalLikes: 3}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

func TestStatsUnknownChannelIsZero(t *testing.T) {
	s := seedStore(t)
	agg, _ := NewAggregator(s.store)
	stats, err := agg.Stats(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (models.ChannelStats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	videos, err := agg.Videos(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("Videos: %v", err)
	}
	if videos == nil || len(videos) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", videos)
	}
}

func TestMalformedChannelID(t *testing.T) {
	s := seedStore(t)
	agg, _ := NewAggregator(s.store)
	for _, id := range []string{"", "abc", "not-a-uuid-but-thirty-six-chars-long"} {
		if _, err := agg.Stats(context.Background(), id); !apperr.Is(err, apperr.KindInvalidInput) {
			t.Fatalf("Stats(%q): expected invalid input, got %v", id, err)
		}
		if _, err := agg.Videos(context.Background(), id); !apperr.Is(err, apperr.KindInvalidInput) {
			t.Fatalf("Videos(%q): expected invalid input, got %v", id, err)
		}
	}
}

func TestVideosListsOnlyChannel(t *testing.T) {
	s := seedStore(t)
	agg, _ := NewAggregator(s.store)
	videos, err := agg.Videos(context.Background(), s.channel.ID)
	if err != nil {
		t.Fatalf("Videos: %v", err)
	}
	if len(videos) != len(s.videos) {
		t.Fatalf("expected %d videos, got %d", len(s.videos), len(videos))
	}
	for _, video := range videos {
		if video.OwnerID != s.channel.ID {
			t.Fatalf("video %s belongs to %s", video.ID, video.OwnerID)
		}
	}
}

type brokenSource struct {
	Source
}

func (brokenSource) CountVideosByOwner(context.Context, string) (int64, error) { return 0, nil }
func (brokenSource) CountSubscribers(context.Context, string) (int64, error)   { return 0, nil }
func (brokenSource) CountLikesForChannel(context.Context, string) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestStatsSourceFailureIsInternal(t *testing.T) {
	agg, _ := NewAggregator(brokenSource{})
	_, err := agg.Stats(context.Background(), uuid.NewString())
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if apperr.Message(err) == "connection reset" {
		t.Fatal("raw error leaked into message")
	}
}

func newRedisClient(t *testing.T) (*redisstub.Server, *redis.Client) {
	t.Helper()
	server, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func TestStatsCachedInRedis(t *testing.T) {
	s := seedStore(t)
	_, client := newRedisClient(t)
	recorder := metrics.New()
	agg, _ := NewAggregator(s.store, WithCache(client, time.Minute), WithRecorder(recorder), WithLogger(quietLogger()))
	ctx := context.Background()

	first, err := agg.Stats(ctx, s.channel.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	late, err := s.store.CreateUser(ctx, storage.CreateUserParams{Username: "late", Email: "late@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.store.AddSubscription(ctx, late.ID, s.channel.ID); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	second, err := agg.Stats(ctx, s.channel.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if second != first {
		t.Fatalf("expected cached %+v, got %+v", first, second)
	}

	agg.Invalidate(ctx, s.channel.ID)
	third, err := agg.Stats(ctx, s.channel.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if third.TotalSubscribers != first.TotalSubscribers+1 {
		t.Fatalf("expected fresh subscriber count, got %+v", third)
	}

	counts := recorder.StatsCacheCounts()
	if counts["hit"] != 1 || counts["miss"] != 2 {
		t.Fatalf("unexpected cache counters %v", counts)
	}
}

func TestStatsFallsThroughWhenRedisFails(t *testing.T) {
	s := seedStore(t)
	server, client := newRedisClient(t)
	server.SetFailing(true)
	recorder := metrics.New()
	agg, _ := NewAggregator(s.store, WithCache(client, time.Minute), WithRecorder(recorder), WithLogger(quietLogger()))

	stats, err := agg.Stats(context.Background(), s.channel.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalVideos != 2 {
		t.Fatalf("expected computed stats, got %+v", stats)
	}
	if recorder.StatsCacheCounts()["error"] == 0 {
		t.Fatal("expected cache error to be counted")
	}
}

func TestNewAggregatorRequiresSource(t *testing.T) {
	if _, err := NewAggregator(nil); err == nil {
		t.Fatal("expected error")
	}
}
