package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when Sweeper.Interval is zero.
const DefaultSweepInterval = 5 * time.Minute

// SweepRecorder receives the size of every sweep, typically a
// time-series writer.
type SweepRecorder interface {
	WriteSweep(removed int, at time.Time)
}

// Sweeper periodically removes expired sessions.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
	Logger   *slog.Logger
	Recorder SweepRecorder // optional
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.sweep(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, logger)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context, logger *slog.Logger) {
	n, err := w.Service.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("session sweep failed", "error", err)
		}
		return
	}
	if w.Recorder != nil {
		w.Recorder.WriteSweep(int(n), w.Service.clock.Now())
	}
}
