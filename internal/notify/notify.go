// Package notify handles outbound delivery of security alerts and reports.
// The engine decides whether and what to send; this package owns delivery
// mechanics only. Notifications are intentionally separate from application
// logs because they have different consumers — logs are ephemeral debug
// output for on-call engineers, while alert notifications page humans and
// feed ticketing systems. The package supports multiple simultaneous
// channels (webhook-backed email/chat/pager bridges, local file) via the
// Notifier interface so the same alert can fan out to several destinations
// independently of the logging pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

// Message is one outbound notification. Channel is the logical route
// (email, chat, pager); Payload carries the structured alert or report.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Payload   any       `json:"payload,omitempty"`
}

// Notifier delivers messages to one destination.
type Notifier interface {
	// Send delivers a message to the destination.
	Send(ctx context.Context, msg *Message) error
	// Close cleans up any resources.
	Close() error
}

// channelNotifier pairs a Notifier with its routing configuration.
type channelNotifier struct {
	name        string
	minSeverity string
	notifier    Notifier
}

// MultiNotifier routes messages to every configured channel whose name and
// minimum severity match.
type MultiNotifier struct {
	channels []channelNotifier
	mu       sync.RWMutex
}

// severityRank orders the severity strings used for channel filtering.
func severityRank(s string) int {
	switch s {
	case "critical":
		return 3
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}

// NewMultiNotifier builds a MultiNotifier from channel configs. Unknown
// channel types are a configuration error.
func NewMultiNotifier(cfg config.NotificationsConfig) (*MultiNotifier, error) {
	mn := &MultiNotifier{}
	if !cfg.Enabled {
		return mn, nil
	}

	for _, ch := range cfg.Channels {
		var notifier Notifier
		var err error

		switch ch.Type {
		case "webhook":
			if ch.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for channel %q", ch.Name)
			}
			notifier, err = NewWebhookNotifier(ch.Webhook)
		case "file":
			if ch.File == nil {
				return nil, fmt.Errorf("file config is required for channel %q", ch.Name)
			}
			notifier, err = NewFileNotifier(ch.File)
		default:
			return nil, fmt.Errorf("unknown notifier type %q for channel %q", ch.Type, ch.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s notifier for channel %q: %w", ch.Type, ch.Name, err)
		}

		mn.channels = append(mn.channels, channelNotifier{
			name:        ch.Name,
			minSeverity: ch.MinSeverity,
			notifier:    notifier,
		})
	}
	return mn, nil
}

// Send routes msg to every channel matching its Channel name and severity
// floor. Delivery errors are counted and logged per channel; the last error
// is returned so callers can observe total failure without any channel
// blocking another.
func (mn *MultiNotifier) Send(ctx context.Context, msg *Message) error {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	var lastErr error
	for _, ch := range mn.channels {
		if ch.name != msg.Channel {
			continue
		}
		if severityRank(msg.Severity) < severityRank(ch.minSeverity) {
			continue
		}
		if err := ch.notifier.Send(ctx, msg); err != nil {
			lastErr = err
			telemetry.NotificationsSentTotal.WithLabelValues(ch.name, "error").Inc()
			slog.Error("notification delivery failed", "channel", ch.name, "error", err)
			continue
		}
		telemetry.NotificationsSentTotal.WithLabelValues(ch.name, "ok").Inc()
	}
	return lastErr
}

// Close closes all channel notifiers.
func (mn *MultiNotifier) Close() error {
	mn.mu.Lock()
	defer mn.mu.Unlock()

	var lastErr error
	for _, ch := range mn.channels {
		if err := ch.notifier.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookNotifier posts messages to an HTTP endpoint. With BatchSize > 0,
// messages are queued and flushed as JSON arrays either when the batch fills
// or on the flush interval, whichever comes first.
type WebhookNotifier struct {
	cfg       *config.WebhookChannelConfig
	client    *http.Client
	batchCh   chan *Message
	batch     []*Message
	batchMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebhookNotifier creates a WebhookNotifier, starting the batch processor
// when batching is configured.
func NewWebhookNotifier(cfg *config.WebhookChannelConfig) (*WebhookNotifier, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	wn := &WebhookNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		batchCh: make(chan *Message, 1000),
		closeCh: make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		go wn.processBatches()
	}
	return wn, nil
}

// processBatches handles batched sending.
func (wn *WebhookNotifier) processBatches() {
	flushInterval := time.Duration(wn.cfg.FlushInterval) * time.Second
	if flushInterval == 0 {
		flushInterval = 5 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-wn.batchCh:
			wn.batchMu.Lock()
			wn.batch = append(wn.batch, msg)
			if len(wn.batch) >= wn.cfg.BatchSize {
				wn.flushBatch()
			}
			wn.batchMu.Unlock()
		case <-ticker.C:
			wn.batchMu.Lock()
			if len(wn.batch) > 0 {
				wn.flushBatch()
			}
			wn.batchMu.Unlock()
		case <-wn.closeCh:
			wn.batchMu.Lock()
			if len(wn.batch) > 0 {
				wn.flushBatch()
			}
			wn.batchMu.Unlock()
			return
		}
	}
}

// flushBatch sends the current batch. Caller holds batchMu.
func (wn *WebhookNotifier) flushBatch() {
	if len(wn.batch) == 0 {
		return
	}

	data, err := json.Marshal(wn.batch)
	if err != nil {
		slog.Error("failed to marshal notification batch", "error", err)
		wn.batch = wn.batch[:0]
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wn.client.Timeout)
	defer cancel()

	if err := wn.post(ctx, data); err != nil {
		slog.Error("failed to send notification batch", "error", err)
	}
	wn.batch = wn.batch[:0]
}

// Send delivers one message, queuing it when batching is enabled.
func (wn *WebhookNotifier) Send(ctx context.Context, msg *Message) error {
	if wn.cfg.BatchSize > 0 {
		select {
		case wn.batchCh <- msg:
			return nil
		default:
			// Queue full; fall through to a direct send.
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return wn.post(ctx, data)
}

// post sends the HTTP request.
func (wn *WebhookNotifier) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range wn.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the batch processor after a final flush.
func (wn *WebhookNotifier) Close() error {
	wn.closeOnce.Do(func() {
		close(wn.closeCh)
	})
	return nil
}

// FileNotifier appends messages as JSON lines to a local file with
// size-based rotation. Useful as a dead-simple audit trail of everything
// the engine decided to send.
type FileNotifier struct {
	cfg  *config.FileChannelConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileNotifier opens (or creates) the notification file.
func NewFileNotifier(cfg *config.FileChannelConfig) (*FileNotifier, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open notification file: %w", err)
	}
	return &FileNotifier{cfg: cfg, file: file}, nil
}

// Send appends one message as a JSON line, rotating first if the file has
// outgrown its size limit.
func (fn *FileNotifier) Send(ctx context.Context, msg *Message) error {
	fn.mu.Lock()
	defer fn.mu.Unlock()

	if fn.cfg.MaxSizeMB > 0 {
		info, err := fn.file.Stat()
		if err == nil && info.Size() > int64(fn.cfg.MaxSizeMB)*1024*1024 {
			if err := fn.rotate(); err != nil {
				slog.Error("failed to rotate notification file", "error", err)
			}
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if _, err := fn.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// rotate rotates the notification file.
func (fn *FileNotifier) rotate() error {
	if err := fn.file.Close(); err != nil {
		return err
	}

	for i := fn.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", fn.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", fn.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}
	_ = os.Rename(fn.cfg.Path, fn.cfg.Path+".1")
	if fn.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fn.cfg.Path, fn.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fn.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fn.file = file
	return nil
}

// Close closes the file.
func (fn *FileNotifier) Close() error {
	fn.mu.Lock()
	defer fn.mu.Unlock()
	return fn.file.Close()
}
