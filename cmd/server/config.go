package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidhub/internal/api"
	"vidhub/internal/media"
	"vidhub/internal/serverutil"
	"vidhub/internal/videos"
)

const envPrefix = "VIDHUB_"

const (
	defaultListenAddr     = ":8080"
	defaultDataPath       = "data/store.json"
	defaultMediaRoot      = "data/media"
	defaultUploadDir      = "data/tmp"
	defaultPublicMediaURL = "http://localhost:8080/media"
	defaultCORSOrigin     = "http://localhost:5173"
	defaultTokenTTL       = 24 * time.Hour
	defaultSweepInterval  = 15 * time.Minute
	defaultSweepAge       = time.Hour
	defaultRateLimit      = 120
	defaultStatsCacheTTL  = 30 * time.Second
)

type storageConfig struct {
	Driver                 string
	DataPath               string
	PostgresDSN            string
	PostgresMaxConns       int
	PostgresMinConns       int
	PostgresAcquireTimeout time.Duration
	PostgresAppName        string
	MongoURI               string
	MongoDatabase          string
}

type config struct {
	Addr      string
	TLSCert   string
	TLSKey    string
	LogLevel  string
	LogFormat string

	Storage storageConfig
	Media   media.Config

	JWTSecret string
	JWTTTL    time.Duration

	UploadDir      string
	MaxUploadBytes int64
	SweepInterval  time.Duration
	SweepAge       time.Duration

	RedisAddr          string
	RedisPassword      string
	RateLimitPerMinute int
	TrustForwardedFor  bool
	StatsCacheTTL      time.Duration

	AMQPURL      string
	AMQPExchange string

	CORSOrigins     []string
	MaxJSONBytes    int64
	MaxPageLimit    int
	ShutdownTimeout time.Duration
}

// envResolver fills settings that were not given on the command line from
// VIDHUB_* variables.
type envResolver struct {
	lookup func(string) (string, bool)
	set    map[string]bool
	errs   []error
}

func (e *envResolver) env(key string) string {
	if e.lookup == nil {
		return ""
	}
	value, _ := e.lookup(envPrefix + key)
	return strings.TrimSpace(value)
}

func (e *envResolver) stringValue(flagName, flagValue, key, fallback string) string {
	if e.set[flagName] {
		return strings.TrimSpace(flagValue)
	}
	return firstNonEmpty(e.env(key), flagValue, fallback)
}

func (e *envResolver) intValue(flagName string, flagValue int, key string, fallback int) int {
	if e.set[flagName] {
		return flagValue
	}
	if raw := e.env(key); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return fallback
		}
		return value
	}
	return fallback
}

func (e *envResolver) int64Value(flagName string, flagValue int64, key string, fallback int64) int64 {
	if e.set[flagName] {
		return flagValue
	}
	if raw := e.env(key); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return fallback
		}
		return value
	}
	return fallback
}

func (e *envResolver) durationValue(flagName string, flagValue time.Duration, key string, fallback time.Duration) time.Duration {
	if e.set[flagName] {
		return flagValue
	}
	if raw := e.env(key); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return fallback
		}
		return value
	}
	return fallback
}

func (e *envResolver) boolValue(flagName string, flagValue bool, key string) bool {
	if e.set[flagName] {
		return flagValue
	}
	if raw := e.env(key); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
			return flagValue
		}
		return value
	}
	return flagValue
}

// loadConfig parses args and fills the rest from lookupEnv. Flags win over
// the environment, which wins over defaults.
func loadConfig(args []string, lookupEnv func(string) (string, bool)) (config, error) {
	fs := flag.NewFlagSet("vidhub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	addr := fs.String("addr", "", "HTTP listen address")
	tlsCert := fs.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := fs.String("tls-key", "", "path to TLS private key file")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "log format (json or text)")

	storageDriver := fs.String("storage-driver", "", "datastore driver (json, postgres or mongo)")
	dataPath := fs.String("data", "", "path to JSON datastore")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := fs.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := fs.Int("postgres-min-conns", 0, "minimum idle connections in the Postgres pool")
	postgresAcquireTimeout := fs.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection")
	postgresAppName := fs.String("postgres-app-name", "", "application_name reported to Postgres")
	mongoURI := fs.String("mongo-uri", "", "MongoDB connection URI")
	mongoDatabase := fs.String("mongo-database", "", "MongoDB database name")

	jwtSecret := fs.String("jwt-secret", "", "HMAC secret used to sign access tokens")
	jwtTTL := fs.Duration("jwt-ttl", 0, "access token lifetime")

	mediaDriver := fs.String("media-driver", "", "media storage driver (fs, minio or s3)")
	mediaEndpoint := fs.String("media-endpoint", "", "object storage endpoint")
	mediaRegion := fs.String("media-region", "", "object storage region")
	mediaAccessKey := fs.String("media-access-key", "", "object storage access key")
	mediaSecretKey := fs.String("media-secret-key", "", "object storage secret key")
	mediaBucket := fs.String("media-bucket", "", "object storage bucket")
	mediaUseSSL := fs.Bool("media-use-ssl", false, "use TLS for object storage requests")
	mediaPublicURL := fs.String("media-public-url", "", "public base URL for stored assets")
	mediaRoot := fs.String("media-root", "", "directory used by the fs media driver")

	uploadDir := fs.String("upload-dir", "", "directory for spooled uploads")
	maxUploadBytes := fs.Int64("max-upload-bytes", 0, "maximum multipart upload size in bytes")
	sweepInterval := fs.Duration("temp-sweep-interval", 0, "interval between abandoned upload sweeps")
	sweepAge := fs.Duration("temp-sweep-age", 0, "age after which a spooled upload is abandoned")

	redisAddr := fs.String("redis-addr", "", "Redis address for rate limiting and stats cache")
	redisPassword := fs.String("redis-password", "", "Redis password")
	rateLimit := fs.Int("rate-limit-per-minute", 0, "API requests allowed per client per minute (0 disables)")
	trustForwarded := fs.Bool("trust-forwarded-for", false, "key rate limits on X-Forwarded-For")
	statsCacheTTL := fs.Duration("stats-cache-ttl", 0, "channel statistics cache lifetime")

	amqpURL := fs.String("amqp-url", "", "AMQP broker URL for lifecycle events")
	amqpExchange := fs.String("amqp-exchange", "", "AMQP exchange for lifecycle events")

	corsOrigins := fs.String("cors-origins", "", "comma separated list of allowed origins")
	maxJSONBytes := fs.Int64("max-json-bytes", 0, "maximum JSON request body size in bytes")
	maxPageLimit := fs.Int("max-page-limit", 0, "largest page size a list request may ask for")
	shutdownTimeout := fs.Duration("shutdown-timeout", 0, "graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	env := &envResolver{lookup: lookupEnv, set: set}

	cfg := config{
		Addr:      env.stringValue("addr", *addr, "ADDR", defaultListenAddr),
		TLSCert:   env.stringValue("tls-cert", *tlsCert, "TLS_CERT", ""),
		TLSKey:    env.stringValue("tls-key", *tlsKey, "TLS_KEY", ""),
		LogLevel:  env.stringValue("log-level", *logLevel, "LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(env.stringValue("log-format", *logFormat, "LOG_FORMAT", "json")),
		Storage: storageConfig{
			Driver:                 strings.ToLower(env.stringValue("storage-driver", *storageDriver, "STORAGE_DRIVER", "json")),
			DataPath:               env.stringValue("data", *dataPath, "DATA", defaultDataPath),
			PostgresDSN:            env.stringValue("postgres-dsn", *postgresDSN, "POSTGRES_DSN", ""),
			PostgresMaxConns:       env.intValue("postgres-max-conns", *postgresMaxConns, "POSTGRES_MAX_CONNS", 0),
			PostgresMinConns:       env.intValue("postgres-min-conns", *postgresMinConns, "POSTGRES_MIN_CONNS", 0),
			PostgresAcquireTimeout: env.durationValue("postgres-acquire-timeout", *postgresAcquireTimeout, "POSTGRES_ACQUIRE_TIMEOUT", 0),
			PostgresAppName:        env.stringValue("postgres-app-name", *postgresAppName, "POSTGRES_APP_NAME", "vidhub"),
			MongoURI:               env.stringValue("mongo-uri", *mongoURI, "MONGO_URI", ""),
			MongoDatabase:          env.stringValue("mongo-database", *mongoDatabase, "MONGO_DATABASE", ""),
		},
		Media: media.Config{
			Driver:        strings.ToLower(env.stringValue("media-driver", *mediaDriver, "MEDIA_DRIVER", media.DriverFS)),
			Endpoint:      env.stringValue("media-endpoint", *mediaEndpoint, "MEDIA_ENDPOINT", ""),
			Region:        env.stringValue("media-region", *mediaRegion, "MEDIA_REGION", ""),
			AccessKey:     env.stringValue("media-access-key", *mediaAccessKey, "MEDIA_ACCESS_KEY", ""),
			SecretKey:     env.stringValue("media-secret-key", *mediaSecretKey, "MEDIA_SECRET_KEY", ""),
			Bucket:        env.stringValue("media-bucket", *mediaBucket, "MEDIA_BUCKET", ""),
			UseSSL:        env.boolValue("media-use-ssl", *mediaUseSSL, "MEDIA_USE_SSL"),
			PublicBaseURL: env.stringValue("media-public-url", *mediaPublicURL, "MEDIA_PUBLIC_URL", defaultPublicMediaURL),
			RootDir:       env.stringValue("media-root", *mediaRoot, "MEDIA_ROOT", defaultMediaRoot),
		},
		JWTSecret:          env.stringValue("jwt-secret", *jwtSecret, "JWT_SECRET", ""),
		JWTTTL:             env.durationValue("jwt-ttl", *jwtTTL, "JWT_TTL", defaultTokenTTL),
		UploadDir:          env.stringValue("upload-dir", *uploadDir, "UPLOAD_DIR", defaultUploadDir),
		MaxUploadBytes:     env.int64Value("max-upload-bytes", *maxUploadBytes, "MAX_UPLOAD_BYTES", api.DefaultMaxUploadBytes),
		SweepInterval:      env.durationValue("temp-sweep-interval", *sweepInterval, "TEMP_SWEEP_INTERVAL", defaultSweepInterval),
		SweepAge:           env.durationValue("temp-sweep-age", *sweepAge, "TEMP_SWEEP_AGE", defaultSweepAge),
		RedisAddr:          env.stringValue("redis-addr", *redisAddr, "REDIS_ADDR", ""),
		RedisPassword:      env.stringValue("redis-password", *redisPassword, "REDIS_PASSWORD", ""),
		RateLimitPerMinute: env.intValue("rate-limit-per-minute", *rateLimit, "RATE_LIMIT_PER_MINUTE", defaultRateLimit),
		TrustForwardedFor:  env.boolValue("trust-forwarded-for", *trustForwarded, "TRUST_FORWARDED_FOR"),
		StatsCacheTTL:      env.durationValue("stats-cache-ttl", *statsCacheTTL, "STATS_CACHE_TTL", defaultStatsCacheTTL),
		AMQPURL:            env.stringValue("amqp-url", *amqpURL, "AMQP_URL", ""),
		AMQPExchange:       env.stringValue("amqp-exchange", *amqpExchange, "AMQP_EXCHANGE", ""),
		CORSOrigins:        splitList(env.stringValue("cors-origins", *corsOrigins, "CORS_ORIGINS", defaultCORSOrigin)),
		MaxJSONBytes:       env.int64Value("max-json-bytes", *maxJSONBytes, "MAX_JSON_BYTES", api.DefaultMaxJSONBytes),
		MaxPageLimit:       env.intValue("max-page-limit", *maxPageLimit, "MAX_PAGE_LIMIT", videos.MaxLimit),
		ShutdownTimeout:    env.durationValue("shutdown-timeout", *shutdownTimeout, "SHUTDOWN_TIMEOUT", serverutil.DefaultShutdownTimeout),
	}
	if cfg.Storage.Driver == "postgres" && cfg.Storage.PostgresDSN == "" && lookupEnv != nil {
		if dsn, ok := lookupEnv("DATABASE_URL"); ok {
			cfg.Storage.PostgresDSN = strings.TrimSpace(dsn)
		}
	}
	if len(env.errs) > 0 {
		return config{}, errors.Join(env.errs...)
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required (set VIDHUB_JWT_SECRET or --jwt-secret)"))
	}
	switch c.Storage.Driver {
	case "json":
		if c.Storage.DataPath == "" {
			errs = append(errs, errors.New("json datastore requires a data path"))
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres datastore selected without DSN"))
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("mongo datastore selected without URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}
	switch c.Media.Driver {
	case media.DriverFS:
	case media.DriverMinio, media.DriverS3:
		if c.Media.Bucket == "" {
			errs = append(errs, fmt.Errorf("%s media driver requires a bucket", c.Media.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported media driver %q", c.Media.Driver))
	}
	if parsed, err := url.Parse(c.Media.PublicBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("media public url %q must include scheme and host", c.Media.PublicBaseURL))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("both TLS cert and key must be provided"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if c.MaxJSONBytes <= 0 {
		errs = append(errs, errors.New("max json bytes must be positive"))
	}
	if c.MaxPageLimit <= 0 {
		errs = append(errs, errors.New("max page limit must be positive"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	return errors.Join(errs...)
}

// mediaDir reports the directory to serve under /media/ when objects live on
// local disk.
func (c config) mediaDir() string {
	if c.Media.Driver == media.DriverFS {
		return c.Media.RootDir
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
