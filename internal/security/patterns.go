// patterns.go implements the signature-based threat pattern engine. A
// pattern's predicate is an explicit sum of two variants: a structural check
// over the decoded event, or a regular expression tested against the
// JSON-serialized event. The engine sweeps a bounded sample of recent events
// on a schedule, evaluates every pattern against every event, and emits one
// alert per matching pattern — not one per event — to avoid alert storms.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

// PatternAction is advisory triage metadata on a pattern. Only alerting is
// ever performed; block and log inform downstream consumers, nothing here
// enforces them.
type PatternAction string

const (
	PatternActionLog   PatternAction = "log"
	PatternActionAlert PatternAction = "alert"
	PatternActionBlock PatternAction = "block"
)

// Predicate is the tagged union over the two pattern variants. Exactly one
// of Structural or TextMatch is set.
type Predicate struct {
	// Structural evaluates multi-field conditions on the decoded event.
	Structural func(*AuditEvent) bool
	// TextMatch is tested against the event's JSON serialization.
	TextMatch *regexp.Regexp
}

// Matches dispatches on the set variant. raw is the event's JSON form,
// serialized once per event by the sweep rather than per pattern.
func (p Predicate) Matches(event *AuditEvent, raw []byte) bool {
	switch {
	case p.Structural != nil:
		return p.Structural(event)
	case p.TextMatch != nil:
		return p.TextMatch.Match(raw)
	default:
		return false
	}
}

// ThreatPattern is one named detection rule in the library.
type ThreatPattern struct {
	ID          string
	Name        string
	Description string
	Predicate   Predicate
	Severity    Severity
	Action      PatternAction
	Metadata    map[string]any
}

// DefaultPatterns returns the shipped signature library. Order is stable so
// sweep output is deterministic for a given event sample.
func DefaultPatterns() []ThreatPattern {
	return []ThreatPattern{
		{
			ID:          "sql_injection",
			Name:        "SQL injection attempt",
			Description: "Request payload contains SQL keywords in suspicious positions",
			Predicate: Predicate{
				TextMatch: regexp.MustCompile(`(?i)(union\s+select|or\s+1\s*=\s*1|;\s*drop\s+table|'\s*or\s*'|--\s|/\*.*\*/|xp_cmdshell)`),
			},
			Severity: SeverityHigh,
			Action:   PatternActionAlert,
			Metadata: map[string]any{
				"category":   "injection",
				"mitigation": "parameterize queries; reject raw SQL metacharacters at the edge",
			},
		},
		{
			ID:          "xss_attempt",
			Name:        "Cross-site scripting attempt",
			Description: "Request payload contains script tags or JavaScript event handlers",
			Predicate: Predicate{
				TextMatch: regexp.MustCompile(`(?i)(<script|javascript:|onerror\s*=|onload\s*=|\beval\s*\(|document\.cookie)`),
			},
			Severity: SeverityHigh,
			Action:   PatternActionAlert,
			Metadata: map[string]any{
				"category":   "injection",
				"mitigation": "encode output; enforce a content security policy",
			},
		},
		{
			ID:          "brute_force",
			Name:        "Brute force pattern",
			Description: "Failed authentication event carrying repeated-failure markers",
			Predicate: Predicate{
				Structural: func(e *AuditEvent) bool {
					return e.Outcome == OutcomeFailure &&
						strings.Contains(strings.ToLower(e.Action), "login") &&
						flagSet(e.Metadata, FlagMultipleFailures)
				},
			},
			Severity: SeverityHigh,
			Action:   PatternActionBlock,
			Metadata: map[string]any{
				"category":   "authentication",
				"mitigation": "rate-limit the source; require step-up authentication",
			},
		},
		{
			ID:          "data_exfiltration",
			Name:        "Possible data exfiltration",
			Description: "Export or download moving 10MB or more in one operation",
			Predicate: Predicate{
				Structural: func(e *AuditEvent) bool {
					a := strings.ToLower(e.Action)
					if !strings.Contains(a, "export") && !strings.Contains(a, "download") {
						return false
					}
					return metadataBytes(e.Metadata, "bytes") >= 10*1024*1024
				},
			},
			Severity: SeverityCritical,
			Action:   PatternActionAlert,
			Metadata: map[string]any{
				"category":   "exfiltration",
				"mitigation": "review the account's recent exports; consider suspending credentials",
			},
		},
		{
			ID:          "unauthorized_admin_access",
			Name:        "Unauthorized admin path access",
			Description: "Denied or failed request against an /admin path",
			Predicate: Predicate{
				Structural: func(e *AuditEvent) bool {
					if e.Outcome != OutcomeDenied && e.Outcome != OutcomeFailure {
						return false
					}
					return strings.HasPrefix(e.Source.Path, "/admin")
				},
			},
			Severity: SeverityHigh,
			Action:   PatternActionAlert,
			Metadata: map[string]any{
				"category":   "access_control",
				"mitigation": "verify the caller's role assignments; audit the admin surface",
			},
		},
	}
}

// metadataBytes reads a numeric metadata value, tolerating the float64 that
// JSON decoding produces as well as native ints.
func metadataBytes(metadata map[string]any, key string) int64 {
	v, ok := metadata[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

// PatternEngine sweeps recent events against the pattern library.
type PatternEngine struct {
	recorder *Recorder
	alerts   *AlertManager
	patterns []ThreatPattern
	cfg      config.PatternsConfig
}

// NewPatternEngine creates a PatternEngine over the given library, applying
// reference defaults (window 1h, sample 500) for unset config values.
func NewPatternEngine(r *Recorder, a *AlertManager, patterns []ThreatPattern, cfg config.PatternsConfig) *PatternEngine {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 500
	}
	return &PatternEngine{recorder: r, alerts: a, patterns: patterns, cfg: cfg}
}

// Sweep evaluates every pattern against a bounded sample of events from the
// trailing window and emits one alert per matching pattern, referencing all
// matched event ids. Safe to run concurrently with ingestion and idempotent
// at the job level (a re-run over the same events raises duplicate alerts,
// which triage treats as a refresh, not corruption).
func (e *PatternEngine) Sweep(ctx context.Context) error {
	started := time.Now()
	defer func() {
		telemetry.PatternSweepDuration.Observe(time.Since(started).Seconds())
	}()

	events := e.recorder.RecentEvents(ctx, e.cfg.SampleSize)
	cutoff := time.Now().UTC().Add(-e.cfg.Window)

	// Serialize each event once; text patterns all match against this form.
	type candidate struct {
		event *AuditEvent
		raw   []byte
	}
	candidates := make([]candidate, 0, len(events))
	for _, event := range events {
		if event.Timestamp.Before(cutoff) {
			continue
		}
		raw, err := json.Marshal(event)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{event: event, raw: raw})
	}

	for _, pattern := range e.patterns {
		var matched []string
		var sample *AuditEvent
		for _, c := range candidates {
			if pattern.Predicate.Matches(c.event, c.raw) {
				matched = append(matched, c.event.ID)
				if sample == nil {
					sample = c.event
				}
			}
		}
		if len(matched) == 0 {
			continue
		}

		telemetry.PatternSweepMatchesTotal.WithLabelValues(pattern.ID).Add(float64(len(matched)))

		metadata := map[string]any{
			"pattern_action": string(pattern.Action),
			"match_count":    len(matched),
		}
		for k, v := range pattern.Metadata {
			metadata[k] = v
		}

		alert := &SecurityAlert{
			Type:     pattern.ID,
			Severity: pattern.Severity,
			Title:    pattern.Name,
			Description: fmt.Sprintf("%s: %d matching event(s) in the last %s",
				pattern.Description, len(matched), e.cfg.Window),
			EventIDs: matched,
			Metadata: metadata,
		}
		if sample != nil {
			alert.UserID = sample.UserID
			alert.SourceIP = sample.Source.IP
		}
		if _, err := e.alerts.CreateAlert(ctx, alert); err != nil {
			slog.Error("pattern sweep alert creation failed", "pattern", pattern.ID, "error", err)
		}
	}
	return nil
}
