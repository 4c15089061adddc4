// pattern_sweeper.go implements the PatternSweeper background job, which
// periodically runs the threat pattern engine over the recent-event sample.
// Sweeps are idempotent at the job level and assume at-least-once execution;
// no distributed lock prevents two instances sweeping concurrently, which is
// acceptable because a duplicate sweep only refreshes alerts.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// PatternSweeper periodically evaluates the threat pattern library.
type PatternSweeper struct {
	engine   *security.PatternEngine
	interval time.Duration
	stopChan chan struct{}
}

// NewPatternSweeper creates a PatternSweeper. interval controls how often
// the sweep runs (default 5m).
func NewPatternSweeper(engine *security.PatternEngine, interval time.Duration) *PatternSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PatternSweeper{
		engine:   engine,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. It runs an initial sweep immediately, then
// repeats on the configured interval. The loop exits when ctx is cancelled
// or Stop() is called.
func (s *PatternSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("pattern sweeper started", "interval", s.interval)

	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			slog.Info("pattern sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("pattern sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweep loop to exit.
func (s *PatternSweeper) Stop() {
	close(s.stopChan)
}

func (s *PatternSweeper) runSweep(ctx context.Context) {
	if err := s.engine.Sweep(ctx); err != nil {
		slog.Error("pattern sweep failed", "error", err)
	}
}
