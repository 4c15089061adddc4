// daily_reporter.go implements the DailyReporter background job, which
// generates the previous day's security report and hands it to the email
// channel. The job is a no-op when notifications are disabled, so it is
// always safe to start regardless of deployment environment.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/notify"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// DailyReporter periodically emails a security activity summary.
type DailyReporter struct {
	recorder *security.Recorder
	alerts   *security.AlertManager
	router   *notify.AlertRouter
	enabled  bool
	interval time.Duration
	stopChan chan struct{}
}

// NewDailyReporter creates a DailyReporter. interval controls how often the
// report is generated (default 24h); enabled mirrors notifications.enabled.
func NewDailyReporter(recorder *security.Recorder, alerts *security.AlertManager, router *notify.AlertRouter, enabled bool, interval time.Duration) *DailyReporter {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DailyReporter{
		recorder: recorder,
		alerts:   alerts,
		router:   router,
		enabled:  enabled,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the reporting loop. Unlike the other jobs it does not run
// immediately on startup — a restart should not mail a duplicate report.
// The loop exits when ctx is cancelled or Stop() is called.
func (d *DailyReporter) Start(ctx context.Context) {
	if !d.enabled {
		slog.Info("daily reporter: disabled (notifications.enabled=false)")
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("daily reporter started", "interval", d.interval)

	for {
		select {
		case <-ticker.C:
			d.runReport(ctx)
		case <-d.stopChan:
			slog.Info("daily reporter stopped")
			return
		case <-ctx.Done():
			slog.Info("daily reporter context cancelled")
			return
		}
	}
}

// Stop signals the reporting loop to exit.
func (d *DailyReporter) Stop() {
	close(d.stopChan)
}

func (d *DailyReporter) runReport(ctx context.Context) {
	end := time.Now().UTC()
	start := end.Add(-d.interval)

	report := d.recorder.GenerateReport(ctx, d.alerts, start, end)
	if err := d.router.SendReport(ctx, report); err != nil {
		slog.Error("daily report delivery failed", "error", err)
		return
	}
	slog.Info("daily report sent",
		"events", report.TotalEvents, "alerts", report.TotalAlerts,
		"active_alerts", report.ActiveAlerts)
}
