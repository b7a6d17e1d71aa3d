package workers

import (
	"context"
	"log/slog"
	"time"
)

type reconciler interface {
	Run(ctx context.Context) (int, error)
}

// PresenceSweeper repeats the startup reconciliation so an online flag left
// behind by a failed offline write does not outlive its connection.
type PresenceSweeper struct {
	log        *slog.Logger
	reconciler reconciler
	interval   time.Duration
}

func NewPresenceSweeper(log *slog.Logger, reconciler reconciler, interval time.Duration) *PresenceSweeper {
	return &PresenceSweeper{log: log, reconciler: reconciler, interval: interval}
}

func (w *PresenceSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cleared, err := w.reconciler.Run(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.log.Error("Presence sweep failed", "error", err)
				continue
			}
			if cleared > 0 {
				w.log.Debug("Presence sweep done", "cleared", cleared)
			}
		}
	}
}
