package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/keys"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/notify"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
)

// fakeSender records dispatched messages and optionally fails.
type fakeSender struct {
	sent []*notify.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg *notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestKeyExpiryNotifierWarnsOnce(t *testing.T) {
	ctx := context.Background()
	manager := keys.NewManager(store.NewMemoryStore(), config.APIKeysConfig{})
	sender := &fakeSender{}
	notifier := NewKeyExpiryNotifier(manager, sender, 0, 7)

	soon, err := manager.Generate(ctx, "ci-token", "alice", nil, 3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := manager.Generate(ctx, "fresh-token", "bob", nil, 60); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	notifier.runCheck(ctx)

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d warnings, want 1 (only the key inside the window)", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Channel != notify.ChannelEmail {
		t.Errorf("channel = %q, want email", msg.Channel)
	}
	if !strings.Contains(msg.Title, "ci-token") {
		t.Errorf("title missing key name: %q", msg.Title)
	}
	if msg.Payload.(map[string]any)["key_id"] != soon.ID {
		t.Errorf("payload key_id = %v, want %s", msg.Payload.(map[string]any)["key_id"], soon.ID)
	}

	// Second pass must be silent: the warned marker persists.
	notifier.runCheck(ctx)
	if len(sender.sent) != 1 {
		t.Errorf("sent %d warnings after second pass, want still 1", len(sender.sent))
	}
}

func TestKeyExpiryNotifierRetriesFailedDelivery(t *testing.T) {
	ctx := context.Background()
	manager := keys.NewManager(store.NewMemoryStore(), config.APIKeysConfig{})
	sender := &fakeSender{err: errors.New("smtp bridge down")}
	notifier := NewKeyExpiryNotifier(manager, sender, 0, 7)

	if _, err := manager.Generate(ctx, "ci-token", "alice", nil, 3); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Delivery fails, so the key must not be marked as warned.
	notifier.runCheck(ctx)

	sender.err = nil
	notifier.runCheck(ctx)
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d warnings after recovery, want 1", len(sender.sent))
	}
}

func TestKeyExpiryNotifierDefaults(t *testing.T) {
	n := NewKeyExpiryNotifier(nil, nil, 0, 0)
	if n.interval != 24*time.Hour {
		t.Errorf("default interval = %v, want 24h", n.interval)
	}
	if n.warningDays != 7 {
		t.Errorf("default warning days = %d, want 7", n.warningDays)
	}
}
