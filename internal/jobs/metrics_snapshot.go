// metrics_snapshot.go implements the MetricsSnapshot background job, which
// copies the store's daily counters into Prometheus gauges. Counters in the
// store survive process restarts; the gauges make them scrapeable without
// giving Prometheus access to the store itself.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

// MetricsSnapshot periodically mirrors store counters into gauges.
type MetricsSnapshot struct {
	recorder *security.Recorder
	interval time.Duration
	stopChan chan struct{}
}

// NewMetricsSnapshot creates a MetricsSnapshot job (default interval 1h).
func NewMetricsSnapshot(recorder *security.Recorder, interval time.Duration) *MetricsSnapshot {
	if interval <= 0 {
		interval = time.Hour
	}
	return &MetricsSnapshot{
		recorder: recorder,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the snapshot loop. It runs an initial snapshot immediately,
// then repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop() is called.
func (m *MetricsSnapshot) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("metrics snapshot started", "interval", m.interval)

	m.runSnapshot(ctx)

	for {
		select {
		case <-ticker.C:
			m.runSnapshot(ctx)
		case <-m.stopChan:
			slog.Info("metrics snapshot stopped")
			return
		case <-ctx.Done():
			slog.Info("metrics snapshot context cancelled")
			return
		}
	}
}

// Stop signals the snapshot loop to exit.
func (m *MetricsSnapshot) Stop() {
	close(m.stopChan)
}

func (m *MetricsSnapshot) runSnapshot(ctx context.Context) {
	today := time.Now().UTC()
	telemetry.EventsTodayGauge.Set(float64(m.recorder.DailyCounter(ctx, "events", today)))
	telemetry.AlertsTodayGauge.Set(float64(m.recorder.DailyCounter(ctx, "alerts", today)))
}
