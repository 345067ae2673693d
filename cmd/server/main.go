// Command server starts the vidhub video API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"vidhub/internal/api"
	"vidhub/internal/auth"
	"vidhub/internal/channels"
	"vidhub/internal/events"
	"vidhub/internal/media"
	"vidhub/internal/observability/logging"
	"vidhub/internal/observability/metrics"
	"vidhub/internal/server"
	"vidhub/internal/serverutil"
	"vidhub/internal/storage"
	"vidhub/internal/videos"
)

const dependencyTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	app, err := buildApp(ctx, cfg, logger, metrics.Default())
	if err != nil {
		return err
	}
	stopSweeper := startTempSweepWorker(ctx, app.sweeper, cfg.SweepInterval)
	defer stopSweeper()

	return serverutil.Run(ctx, serverutil.Config{
		Server:          app.server.HTTPServer(),
		TLS:             serverutil.TLSConfig{CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
		OnReady: func(addr net.Addr) {
			logger.Info("vidhub API ready", "addr", addr.String(), "storage", cfg.Storage.Driver, "media", cfg.Media.Driver)
		},
		Closers: app.closers,
	})
}

// app is the wired service graph. Closers release its dependencies in the
// order they should be shut down.
type app struct {
	server  *server.Server
	sweeper tempSweeper
	closers []serverutil.Closer
}

func buildApp(ctx context.Context, cfg config, logger *slog.Logger, recorder *metrics.Recorder) (_ *app, err error) {
	var closers []serverutil.Closer
	defer func() {
		if err == nil {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), dependencyTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if closeErr := closers[i].Close(closeCtx); closeErr != nil {
				logger.Warn("failed to release dependency", "component", closers[i].Name, "error", closeErr)
			}
		}
	}()

	store, err := openDatastore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	closers = append(closers, serverutil.Closer{Name: "datastore", Close: store.Close})
	healthChecks := []api.HealthCheck{{Component: "datastore", Check: store.Ping}}

	rdb, err := openRedis(ctx, cfg, logging.WithComponent(logger, "redis"))
	if err != nil {
		return nil, err
	}
	var cache redis.Cmdable
	if rdb != nil {
		cache = rdb
		closers = append(closers, serverutil.Closer{Name: "redis", Close: func(context.Context) error { return rdb.Close() }})
		healthChecks = append(healthChecks, api.HealthCheck{Component: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	publisher, err := openPublisher(cfg, logging.WithComponent(logger, "events"))
	if err != nil {
		return nil, err
	}
	closers = append(closers, serverutil.Closer{Name: "events", Close: func(context.Context) error { return publisher.Close() }})

	objects, err := media.NewObjectStore(ctx, cfg.Media)
	if err != nil {
		return nil, fmt.Errorf("open media store: %w", err)
	}
	adapter, err := media.NewAdapter(objects, cfg.Media.PublicBaseURL,
		media.WithLogger(logging.WithComponent(logger, "media")),
		media.WithRecorder(recorder),
	)
	if err != nil {
		return nil, err
	}

	aggOpts := []channels.Option{
		channels.WithLogger(logging.WithComponent(logger, "channels")),
		channels.WithRecorder(recorder),
	}
	if cache != nil {
		aggOpts = append(aggOpts, channels.WithCache(cache, cfg.StatsCacheTTL))
	}
	aggregator, err := channels.NewAggregator(store, aggOpts...)
	if err != nil {
		return nil, err
	}

	svc, err := videos.NewService(store, adapter,
		videos.WithLogger(logging.WithComponent(logger, "videos")),
		videos.WithPublisher(publisher),
		videos.WithRecorder(recorder),
		videos.WithStatsInvalidator(aggregator),
		videos.WithMaxLimit(cfg.MaxPageLimit),
	)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewTokenVerifier(auth.Config{Secret: cfg.JWTSecret, TTL: cfg.JWTTTL})
	if err != nil {
		return nil, fmt.Errorf("configure tokens: %w", err)
	}
	authenticator, err := auth.NewAuthenticator(verifier, store)
	if err != nil {
		return nil, err
	}

	handler, err := api.NewHandler(api.Config{
		Videos:         svc,
		Channels:       aggregator,
		Auth:           authenticator,
		Logger:         logging.WithComponent(logger, "api"),
		Metrics:        recorder,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxJSONBytes:   cfg.MaxJSONBytes,
		HealthChecks:   healthChecks,
	})
	if err != nil {
		return nil, err
	}

	srv, err := server.New(handler, server.Config{
		Addr:    cfg.Addr,
		Logger:  logger,
		Metrics: recorder,
		RateLimit: server.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitPerMinute,
			Window:            time.Minute,
			Redis:             cache,
			TrustForwardedFor: cfg.TrustForwardedFor,
		},
		CORS:     server.CORSConfig{Origins: cfg.CORSOrigins},
		MediaDir: cfg.mediaDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("initialise server: %w", err)
	}

	return &app{
		server: srv,
		sweeper: tempSweeper{
			dir:     cfg.UploadDir,
			maxAge:  cfg.SweepAge,
			now:     time.Now,
			logger:  logging.WithComponent(logger, "temp-sweeper"),
			metrics: recorder,
		},
		closers: reverseClosers(closers),
	}, nil
}

// reverseClosers orders shutdown so the datastore, opened first, is closed
// last.
func reverseClosers(closers []serverutil.Closer) []serverutil.Closer {
	out := make([]serverutil.Closer, 0, len(closers))
	for i := len(closers) - 1; i >= 0; i-- {
		out = append(out, closers[i])
	}
	return out
}

func openDatastore(ctx context.Context, cfg storageConfig) (storage.Repository, error) {
	switch cfg.Driver {
	case "json":
		return storage.NewStorage(cfg.DataPath)
	case "postgres":
		var opts []storage.Option
		if cfg.PostgresMaxConns > 0 || cfg.PostgresMinConns > 0 {
			opts = append(opts, storage.WithPostgresPoolLimits(int32(cfg.PostgresMaxConns), int32(cfg.PostgresMinConns)))
		}
		if cfg.PostgresAcquireTimeout > 0 {
			opts = append(opts, storage.WithPostgresAcquireTimeout(cfg.PostgresAcquireTimeout))
		}
		if cfg.PostgresAppName != "" {
			opts = append(opts, storage.WithPostgresApplicationName(cfg.PostgresAppName))
		}
		repo, err := storage.NewPostgresRepository(cfg.PostgresDSN, opts...)
		if err != nil {
			return nil, err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
		defer cancel()
		if err := storage.ApplyPostgresSchema(schemaCtx, repo); err != nil {
			_ = repo.Close(context.Background())
			return nil, err
		}
		return repo, nil
	case "mongo":
		var opts []storage.Option
		if cfg.MongoDatabase != "" {
			opts = append(opts, storage.WithMongoDatabase(cfg.MongoDatabase))
		}
		return storage.NewMongoRepository(ctx, cfg.MongoURI, opts...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// openRedis returns nil when no address is configured. An unreachable server
// is logged and kept: the rate limiter and stats cache degrade on their own.
func openRedis(ctx context.Context, cfg config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DialTimeout:  dependencyTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			_ = client.Close()
			return nil, err
		}
		logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}
	return client, nil
}

func openPublisher(cfg config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		return events.Noop{}, nil
	}
	publisher, err := events.NewAMQPPublisher(events.AMQPConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect event broker: %w", err)
	}
	return publisher, nil
}
