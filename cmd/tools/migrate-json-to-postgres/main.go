// Command migrate-json-to-postgres copies a JSON datastore into Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"vidhub/internal/storage"
)

func main() {
	jsonPath := flag.String("json", "data/store.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := resolveDSN(*postgresDSN, os.LookupEnv)
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, VIDHUB_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}
	if err := migrate(context.Background(), logger, *jsonPath, dsn); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func resolveDSN(flagValue string, lookupEnv func(string) (string, bool)) string {
	if dsn := strings.TrimSpace(flagValue); dsn != "" {
		return dsn
	}
	for _, key := range []string{"VIDHUB_POSTGRES_DSN", "DATABASE_URL"} {
		if value, ok := lookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func migrate(ctx context.Context, logger *slog.Logger, jsonPath, dsn string) error {
	snapshot, err := storage.LoadSnapshotFromJSON(jsonPath)
	if err != nil {
		return err
	}
	counts := snapshot.Counts()
	logger.Info("loaded JSON snapshot", "path", jsonPath, "users", counts.Users, "videos", counts.Videos)

	repo, err := storage.NewPostgresRepository(dsn)
	if err != nil {
		return fmt.Errorf("open postgres repository: %w", err)
	}
	defer func() { _ = repo.Close(context.Background()) }()

	if err := storage.ApplyPostgresSchema(ctx, repo); err != nil {
		return err
	}
	if err := storage.ImportSnapshotToPostgres(ctx, repo, snapshot); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	if err := verifyCounts(ctx, dsn, counts); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	logger.Info("migration completed",
		"users", counts.Users,
		"videos", counts.Videos,
		"subscriptions", counts.Subscriptions,
		"likes", counts.Likes,
	)
	return nil
}

// verifyCounts checks that every imported table holds at least as many rows
// as the snapshot. Rows that already existed are kept, so the target may hold
// more.
func verifyCounts(ctx context.Context, dsn string, counts storage.SnapshotCounts) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	checks := []struct {
		name     string
		query    string
		expected int
	}{
		{"users", "SELECT COUNT(*) FROM users", counts.Users},
		{"videos", "SELECT COUNT(*) FROM videos", counts.Videos},
		{"subscriptions", "SELECT COUNT(*) FROM subscriptions", counts.Subscriptions},
		{"likes", "SELECT COUNT(*) FROM likes", counts.Likes},
	}
	for _, check := range checks {
		var actual int
		if err := pool.QueryRow(ctx, check.query).Scan(&actual); err != nil {
			return fmt.Errorf("query %s: %w", check.name, err)
		}
		if actual < check.expected {
			return fmt.Errorf("mismatch for %s: expected at least %d, got %d", check.name, check.expected, actual)
		}
	}
	return nil
}
