package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vidhub/internal/api"
	"vidhub/internal/observability/metrics"
)

type sweepTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) sweepTicker

// tempSweeper removes spooled uploads that a crashed or aborted request left
// behind in the upload directory.
type tempSweeper struct {
	dir     string
	maxAge  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// sweep deletes every spooled upload older than maxAge and reports how many
// files it removed.
func (s tempSweeper) sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), api.TempFilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if s.metrics != nil && removed > 0 {
		s.metrics.ObserveTempSweep(removed)
	}
	return removed, errors.Join(errs...)
}

func startTempSweepWorker(ctx context.Context, sweeper tempSweeper, interval time.Duration) func() {
	return startTempSweepWorkerWithTicker(ctx, sweeper, interval, func(d time.Duration) sweepTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startTempSweepWorkerWithTicker(ctx context.Context, sweeper tempSweeper, interval time.Duration, newTicker tickerFactory) func() {
	if strings.TrimSpace(sweeper.dir) == "" || interval <= 0 || sweeper.maxAge <= 0 {
		return func() {}
	}
	if sweeper.now == nil {
		sweeper.now = time.Now
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				removed, err := sweeper.sweep()
				if sweeper.logger == nil {
					continue
				}
				if err != nil {
					sweeper.logger.Error("failed to sweep abandoned uploads", "dir", sweeper.dir, "error", err)
				}
				if removed > 0 {
					sweeper.logger.Info("removed abandoned uploads", "count", removed)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
