// Package serverutil runs an HTTP server until its context ends and then
// drains it together with the resources it depends on.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// TLSConfig names the certificate and key used for a TLS listener.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Closer releases a dependency during shutdown.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	// OnReady is called with the bound address once the listener is open.
	OnReady func(addr net.Addr)
	// Closers run in order after the HTTP server has drained.
	Closers []Closer
}

const DefaultShutdownTimeout = 15 * time.Second

// Run serves until ctx is cancelled or the server fails. On cancellation it
// stops accepting connections, waits for in-flight requests up to
// ShutdownTimeout, then runs every closer within the same deadline.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Server == nil {
		return fmt.Errorf("server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("both TLS cert file and key file must be provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Join(err, runClosers(context.Background(), logger, cfg.Closers))
	}
	if cfg.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			_ = ln.Close()
			return errors.Join(err, runClosers(context.Background(), logger, cfg.Closers))
		}
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.Server.TLSConfig != nil {
			tlsCfg = cfg.Server.TLSConfig.Clone()
		}
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		cfg.Server.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	logger.Info("http server listening", "addr", ln.Addr().String(), "tls", cfg.TLS.CertFile != "")
	if cfg.OnReady != nil {
		cfg.OnReady(ln.Addr())
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- cfg.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		closeErr := runClosers(context.Background(), logger, cfg.Closers)
		if errors.Is(err, http.ErrServerClosed) {
			return closeErr
		}
		return errors.Join(err, closeErr)
	case <-ctx.Done():
	}

	logger.Info("shutting down http server", "timeout", timeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := cfg.Server.Shutdown(shutdownCtx)
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	return errors.Join(shutdownErr, runClosers(shutdownCtx, logger, cfg.Closers))
}

func runClosers(ctx context.Context, logger *slog.Logger, closers []Closer) error {
	var errs []error
	for _, closer := range closers {
		if closer.Close == nil {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			logger.Warn("shutdown step failed", "component", closer.Name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", closer.Name, err))
		}
	}
	return errors.Join(errs...)
}
