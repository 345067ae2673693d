// Command bootstrap-user seeds a channel owner and prints an access token for
// it, so a fresh deployment can be exercised before any signup flow exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vidhub/internal/auth"
	"vidhub/internal/models"
	"vidhub/internal/storage"
)

type options struct {
	jsonPath    string
	postgresDSN string
	mongoURI    string
	username    string
	fullName    string
	email       string
	password    string
	jwtSecret   string
	jwtTTL      time.Duration
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if err != nil {
		fatalf("%v", err)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fatalf("bootstrap user: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func parseOptions(args []string, lookupEnv func(string) (string, bool)) (options, error) {
	var opts options
	fs := flag.NewFlagSet("bootstrap-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.jsonPath, "json", "", "path to the JSON datastore (store.json)")
	fs.StringVar(&opts.postgresDSN, "postgres-dsn", "", "Postgres connection string")
	fs.StringVar(&opts.mongoURI, "mongo-uri", "", "MongoDB connection URI")
	fs.StringVar(&opts.username, "username", "", "username for the account")
	fs.StringVar(&opts.fullName, "name", "", "display name for the account")
	fs.StringVar(&opts.email, "email", "", "email address for the account")
	fs.StringVar(&opts.password, "password", "", "password for the account")
	fs.StringVar(&opts.jwtSecret, "jwt-secret", "", "token signing secret (defaults to VIDHUB_JWT_SECRET)")
	fs.DurationVar(&opts.jwtTTL, "jwt-ttl", 24*time.Hour, "lifetime of the printed token")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.jwtSecret == "" && lookupEnv != nil {
		if secret, ok := lookupEnv("VIDHUB_JWT_SECRET"); ok {
			opts.jwtSecret = strings.TrimSpace(secret)
		}
	}

	selected := 0
	for _, value := range []string{opts.jsonPath, opts.postgresDSN, opts.mongoURI} {
		if strings.TrimSpace(value) != "" {
			selected++
		}
	}
	switch {
	case selected == 0:
		return options{}, errors.New("one of --json, --postgres-dsn or --mongo-uri must be provided")
	case selected > 1:
		return options{}, errors.New("only one datastore option may be provided")
	case strings.TrimSpace(opts.email) == "":
		return options{}, errors.New("--email is required")
	case strings.TrimSpace(opts.username) == "":
		return options{}, errors.New("--username is required")
	case len(opts.password) < 8:
		return options{}, errors.New("--password must be at least 8 characters")
	case opts.jwtSecret == "":
		return options{}, errors.New("--jwt-secret or VIDHUB_JWT_SECRET is required")
	}
	return opts, nil
}

func openRepository(ctx context.Context, opts options) (storage.Repository, error) {
	switch {
	case opts.jsonPath != "":
		return storage.NewStorage(opts.jsonPath)
	case opts.postgresDSN != "":
		repo, err := storage.NewPostgresRepository(opts.postgresDSN)
		if err != nil {
			return nil, err
		}
		if err := storage.ApplyPostgresSchema(ctx, repo); err != nil {
			_ = repo.Close(ctx)
			return nil, err
		}
		return repo, nil
	default:
		return storage.NewMongoRepository(ctx, opts.mongoURI)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	repo, err := openRepository(ctx, opts)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = repo.Close(closeCtx)
	}()

	user, created, err := ensureUser(ctx, repo, opts)
	if err != nil {
		return err
	}
	verifier, err := auth.NewTokenVerifier(auth.Config{Secret: opts.jwtSecret, TTL: opts.jwtTTL})
	if err != nil {
		return err
	}
	token, expiresAt, err := verifier.Issue(user.ID)
	if err != nil {
		return err
	}

	state := "existing"
	if created {
		state = "created"
	}
	fmt.Fprintf(out, "User %s (%s) %s with id %s.\n", user.Username, user.Email, state, user.ID)
	fmt.Fprintf(out, "Access token (expires %s):\n%s\n", expiresAt.Format(time.RFC3339), token)
	return nil
}

// ensureUser returns the account registered under opts.email, creating it
// when absent. An existing account keeps its password.
func ensureUser(ctx context.Context, repo storage.UserRepository, opts options) (models.User, bool, error) {
	existing, err := repo.FindUserByEmail(ctx, opts.email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.User{}, false, err
	}
	user, err := repo.CreateUser(ctx, storage.CreateUserParams{
		Username: opts.username,
		FullName: opts.fullName,
		Email:    opts.email,
		Password: opts.password,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}
