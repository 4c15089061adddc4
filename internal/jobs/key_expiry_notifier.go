// key_expiry_notifier.go implements the KeyExpiryNotifier background job,
// which periodically scans for API keys approaching expiry and sends a
// warning through the notification channels. The warned state is persisted
// in the store (keynotice marker) so each key is warned exactly once even
// across restarts. The job is constructed only when notifications are
// enabled, so it never needs its own disabled path.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/keys"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/notify"
)

// MessageSender is the slice of the notifier the job needs.
type MessageSender interface {
	Send(ctx context.Context, msg *notify.Message) error
}

// KeyExpiryNotifier periodically warns key owners about upcoming expiry.
type KeyExpiryNotifier struct {
	manager     *keys.Manager
	sender      MessageSender
	interval    time.Duration
	warningDays int
	stopChan    chan struct{}
}

// NewKeyExpiryNotifier creates a KeyExpiryNotifier. interval controls how
// often the scan runs (default 24h); warningDays is how far ahead of expiry
// the warning goes out (default 7).
func NewKeyExpiryNotifier(manager *keys.Manager, sender MessageSender, interval time.Duration, warningDays int) *KeyExpiryNotifier {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if warningDays <= 0 {
		warningDays = 7
	}
	return &KeyExpiryNotifier{
		manager:     manager,
		sender:      sender,
		interval:    interval,
		warningDays: warningDays,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the expiry-warning loop. It runs an initial scan immediately,
// then repeats on the configured interval. The loop exits when ctx is
// cancelled or Stop() is called.
func (n *KeyExpiryNotifier) Start(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("key expiry notifier started",
		"interval", n.interval, "warning_days", n.warningDays)

	n.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			n.runCheck(ctx)
		case <-n.stopChan:
			slog.Info("key expiry notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("key expiry notifier context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit.
func (n *KeyExpiryNotifier) Stop() {
	close(n.stopChan)
}

// runCheck finds unwarned expiring keys and dispatches one warning each.
func (n *KeyExpiryNotifier) runCheck(ctx context.Context) {
	window := time.Duration(n.warningDays) * 24 * time.Hour
	expiring, err := n.manager.ExpiringKeys(ctx, window)
	if err != nil {
		slog.Error("expiring key scan failed", "error", err)
		return
	}
	if len(expiring) == 0 {
		return
	}

	slog.Info("keys approaching expiry", "count", len(expiring))

	for _, key := range expiring {
		daysLeft := int(key.ExpiresAt.Sub(time.Now().UTC()).Hours()/24) + 1
		if daysLeft < 0 {
			daysLeft = 0
		}

		msg := &notify.Message{
			Timestamp: time.Now().UTC(),
			Channel:   notify.ChannelEmail,
			Severity:  "medium",
			Title:     fmt.Sprintf("API key %q expires in %d day(s)", key.Name, daysLeft),
			Body: fmt.Sprintf("Key %s (%s...) owned by user %s expires at %s. "+
				"Rotate or regenerate it before then to avoid disruption.",
				key.ID, key.DisplayPrefix, key.UserID, key.ExpiresAt.UTC().Format(time.RFC1123)),
			Payload: map[string]any{
				"key_id":     key.ID,
				"user_id":    key.UserID,
				"expires_at": key.ExpiresAt,
			},
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			slog.Warn("expiry warning delivery failed", "key_id", key.ID, "error", err)
			continue
		}
		if err := n.manager.MarkExpiryNotified(ctx, key.ID); err != nil {
			slog.Warn("expiry warning marker failed", "key_id", key.ID, "error", err)
		}
	}
}
