// key_maintenance.go implements the KeyMaintenance background job. Each run
// deactivates expired keys and sweeps pending rotation deactivations; on the
// (less frequent) rotation interval it additionally triggers the fleet-wide
// rotation sweep. All three sweeps are idempotent, so at-least-once execution
// and concurrent runs across instances are safe.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/keys"
)

// KeyMaintenance runs the periodic key hygiene sweeps.
type KeyMaintenance struct {
	manager          *keys.Manager
	interval         time.Duration
	rotationInterval time.Duration
	lastRotation     time.Time
	stopChan         chan struct{}
}

// NewKeyMaintenance creates a KeyMaintenance job. interval drives cleanup
// and the pending-deactivation sweep (default 1h); rotationInterval drives
// the fleet-wide rotation sweep (default 168h).
func NewKeyMaintenance(manager *keys.Manager, interval, rotationInterval time.Duration) *KeyMaintenance {
	if interval <= 0 {
		interval = time.Hour
	}
	if rotationInterval <= 0 {
		rotationInterval = 168 * time.Hour
	}
	return &KeyMaintenance{
		manager:          manager,
		interval:         interval,
		rotationInterval: rotationInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start begins the maintenance loop. It runs an initial pass immediately,
// then repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop() is called.
func (k *KeyMaintenance) Start(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	slog.Info("key maintenance started",
		"interval", k.interval, "rotation_interval", k.rotationInterval)

	k.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			k.runPass(ctx)
		case <-k.stopChan:
			slog.Info("key maintenance stopped")
			return
		case <-ctx.Done():
			slog.Info("key maintenance context cancelled")
			return
		}
	}
}

// Stop signals the maintenance loop to exit.
func (k *KeyMaintenance) Stop() {
	close(k.stopChan)
}

func (k *KeyMaintenance) runPass(ctx context.Context) {
	cleaned, err := k.manager.CleanupExpired(ctx)
	if err != nil {
		slog.Error("expired key cleanup failed", "error", err)
	} else if cleaned > 0 {
		slog.Info("expired keys deactivated", "count", cleaned)
	}

	dropped, err := k.manager.SweepPendingDrops(ctx)
	if err != nil {
		slog.Error("pending deactivation sweep failed", "error", err)
	} else if dropped > 0 {
		slog.Info("rotation grace periods expired", "count", dropped)
	}

	if time.Since(k.lastRotation) >= k.rotationInterval {
		if err := k.manager.RotateAll(ctx); err != nil {
			slog.Error("rotation sweep failed", "error", err)
			return
		}
		k.lastRotation = time.Now()
	}
}
