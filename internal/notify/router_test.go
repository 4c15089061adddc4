package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// chanNotifier hands delivered messages to a channel so tests can wait on
// the router's asynchronous dispatch.
type chanNotifier struct {
	delivered chan *Message
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{delivered: make(chan *Message, 10)}
}

func (c *chanNotifier) Send(ctx context.Context, msg *Message) error {
	c.delivered <- msg
	return nil
}

func (c *chanNotifier) Close() error { return nil }

func (c *chanNotifier) wait(t *testing.T) *Message {
	t.Helper()
	select {
	case msg := <-c.delivered:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered within 2s")
		return nil
	}
}

func (c *chanNotifier) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case msg := <-c.delivered:
		t.Fatalf("unexpected delivery to channel %s: %s", msg.Channel, msg.Title)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestRouter() (*AlertRouter, *chanNotifier, *chanNotifier, *chanNotifier) {
	pager := newChanNotifier()
	chat := newChanNotifier()
	email := newChanNotifier()
	mn := &MultiNotifier{channels: []channelNotifier{
		{name: ChannelPager, notifier: pager},
		{name: ChannelChat, notifier: chat},
		{name: ChannelEmail, notifier: email},
	}}
	return NewAlertRouter(mn), pager, chat, email
}

// ---------------------------------------------------------------------------
// Severity routing
// ---------------------------------------------------------------------------

func TestAlertCreatedRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("critical pages", func(t *testing.T) {
		router, pager, chat, _ := newTestRouter()
		router.AlertCreated(ctx, &security.SecurityAlert{
			ID:       "a1",
			Type:     "data_exfiltration",
			Title:    "Large export detected",
			Severity: security.SeverityCritical,
			EventIDs: []string{"e1", "e2"},
		})

		msg := pager.wait(t)
		if msg.Channel != ChannelPager {
			t.Errorf("channel = %q, want pager", msg.Channel)
		}
		if msg.Severity != string(security.SeverityCritical) {
			t.Errorf("severity = %q, want critical", msg.Severity)
		}
		if !strings.Contains(msg.Body, "a1") || !strings.Contains(msg.Body, "2 event(s)") {
			t.Errorf("body missing alert context: %q", msg.Body)
		}
		chat.expectSilence(t)
	})

	t.Run("high goes to chat", func(t *testing.T) {
		router, pager, chat, _ := newTestRouter()
		router.AlertCreated(ctx, &security.SecurityAlert{
			ID:       "a2",
			Type:     "failed_login_attempts",
			Title:    "Repeated login failures",
			Severity: security.SeverityHigh,
		})

		msg := chat.wait(t)
		if msg.Channel != ChannelChat {
			t.Errorf("channel = %q, want chat", msg.Channel)
		}
		pager.expectSilence(t)
	})

	t.Run("medium stays quiet", func(t *testing.T) {
		router, pager, chat, email := newTestRouter()
		router.AlertCreated(ctx, &security.SecurityAlert{
			ID:       "a3",
			Type:     "excessive_data_access",
			Title:    "Heavy reader",
			Severity: security.SeverityMedium,
		})
		pager.expectSilence(t)
		chat.expectSilence(t)
		email.expectSilence(t)
	})
}

// ---------------------------------------------------------------------------
// Report delivery
// ---------------------------------------------------------------------------

func TestSendReport(t *testing.T) {
	router, _, _, email := newTestRouter()

	report := &security.Report{
		GeneratedAt:      time.Date(2026, 8, 2, 6, 0, 0, 0, time.UTC),
		Start:            time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
		TotalEvents:      42,
		TotalAlerts:      3,
		ActiveAlerts:     1,
		AverageRiskScore: 18.5,
	}
	if err := router.SendReport(context.Background(), report); err != nil {
		t.Fatalf("SendReport() error = %v", err)
	}

	// SendReport is synchronous, so the message is already queued.
	msg := email.wait(t)
	if msg.Channel != ChannelEmail {
		t.Errorf("channel = %q, want email", msg.Channel)
	}
	if !strings.Contains(msg.Title, "2026-08-01") {
		t.Errorf("title missing report window: %q", msg.Title)
	}
	if !strings.Contains(msg.Body, "42 events") {
		t.Errorf("body missing event count: %q", msg.Body)
	}
}
