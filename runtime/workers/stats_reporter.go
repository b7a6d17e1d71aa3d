package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type onlineCounter interface {
	OnlineCount() int
}

// StatsReporter samples the process footprint and the number of reachable
// users into the Prometheus gauges.
type StatsReporter struct {
	log      *slog.Logger
	presence onlineCounter
	interval time.Duration
}

func NewStatsReporter(log *slog.Logger, presence onlineCounter, interval time.Duration) *StatsReporter {
	return &StatsReporter{log: log, presence: presence, interval: interval}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			online := w.presence.OnlineCount()
			observability.OnlineUsers.Set(float64(online))

			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			observability.ProcessResidentMemory.Set(float64(rss))
			observability.ProcessCPUPercent.Set(cpu)
			w.log.Debug("Stats", "online", online, "rss", rss, "cpu", cpu)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
