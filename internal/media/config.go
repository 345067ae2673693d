package media

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DriverMinio = "minio"
	DriverS3    = "s3"
	DriverFS    = "fs"
)

const defaultRequestTimeout = 2 * time.Minute

// Config selects and configures the object storage backend.
type Config struct {
	Driver        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
	// RootDir is where the fs driver keeps objects.
	RootDir        string
	RequestTimeout time.Duration
}

func (cfg Config) requestTimeout() time.Duration {
	if cfg.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return cfg.RequestTimeout
}

// NewObjectStore constructs the backend named by cfg.Driver.
func NewObjectStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMinio:
		return NewMinioStore(ctx, cfg)
	case DriverS3:
		return NewS3Store(ctx, cfg)
	case DriverFS, "":
		return NewFileStore(cfg.RootDir)
	default:
		return nil, fmt.Errorf("unsupported media driver %q", cfg.Driver)
	}
}
