package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	_ "github.com/shirou/gopsutil"
	"github.com/shirou/gopsutil/process"
)

// HealthWorker samples the service's own process on a ticker and logs
// memory and CPU figures. Purely observational; it never touches
// negotiation state.
type HealthWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
}

func NewHealthWorker(log *slog.Logger, metricInterval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, metricInterval: metricInterval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			mem, err := proc.MemoryInfo()
			if err != nil {
				w.log.Debug("Error while reading memory info", "err", err)
				continue
			}
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Debug("Error while reading cpu usage", "err", err)
				continue
			}
			w.log.Info("Process health", "rss_bytes", mem.RSS, "cpu_percent", cpu)
		}
	}
}
