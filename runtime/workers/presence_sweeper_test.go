package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type countingReconciler struct {
	runs atomic.Int32
	err  error
}

func (c *countingReconciler) Run(context.Context) (int, error) {
	c.runs.Add(1)
	return 1, c.err
}

func TestPresenceSweeper_RunsPeriodically(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reconciler := &countingReconciler{}
	sweeper := NewPresenceSweeper(log, reconciler, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// When the sweeper runs until its context ends
	err := sweeper.Run(ctx)

	// Then it swept several times and exited cleanly
	req.NoError(err)
	req.GreaterOrEqual(reconciler.runs.Load(), int32(2))
}

func TestPresenceSweeper_KeepsGoingAfterFailure(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reconciler := &countingReconciler{err: fmt.Errorf("store closed")}
	sweeper := NewPresenceSweeper(log, reconciler, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req.NoError(sweeper.Run(ctx))
	req.GreaterOrEqual(reconciler.runs.Load(), int32(2))
}
