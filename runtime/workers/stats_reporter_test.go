package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type staticCounter int

func (s staticCounter) OnlineCount() int { return int(s) }

func TestStatsReporter_PublishesGauges(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reporter := NewStatsReporter(log, staticCounter(3), 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	req.NoError(reporter.Run(ctx))

	// Then the sampled values reached the registry
	req.Equal(float64(3), testutil.ToFloat64(observability.OnlineUsers))
	req.Greater(testutil.ToFloat64(observability.ProcessResidentMemory), float64(0))
}
