// manager.go implements the key lifecycle against the key-value store.
//
// Store layout:
//
//	key:{id}        ApiKey record (Secret field holds the digest), TTL = time to expiry
//	keyhash:{hex}   digest -> key id reverse index, same TTL as the record
//	keys:user:{id}  list of key ids ever issued to the user
//	keydrop:{id}    pending-deactivation marker written by rotation; swept by
//	                the key maintenance job after the grace period elapses.
//	                Durable across restarts, unlike an in-process timer.
//	keynotice:{id}  expiry-warning-sent marker so each key is warned about
//	                exactly once, surviving restarts.
//
// Multi-key invariants (one live digest mapping per secret, per-user active
// cap) span several non-transactional writes; concurrent generation and
// deactivation can transiently violate them. The user key list is the source
// of truth for ownership; the digest index is a rebuildable cache.
package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

var (
	// ErrKeyNotFound is returned when a key id resolves to nothing.
	ErrKeyNotFound = errors.New("keys: key not found")

	// ErrInvalidKey is returned when a presented secret matches no active,
	// unexpired key.
	ErrInvalidKey = errors.New("keys: invalid or inactive key")

	// ErrInvalidInput is returned for malformed generation requests.
	ErrInvalidInput = errors.New("keys: invalid input")
)

const (
	keyPrefix      = "key:"
	hashPrefix     = "keyhash:"
	userKeysPrefix = "keys:user:"
	dropPrefix     = "keydrop:"
	noticePrefix   = "keynotice:"
)

func recordKey(id string) string   { return keyPrefix + id }
func hashKey(digest string) string { return hashPrefix + digest }
func userKeysKey(id string) string { return userKeysPrefix + id }
func dropKey(id string) string     { return dropPrefix + id }
func noticeKey(id string) string   { return noticePrefix + id }

// ApiKey is the stored credential record. Secret holds the SHA-256 digest at
// rest; Validate substitutes the presented plaintext before returning the
// record to the caller.
type ApiKey struct {
	ID            string         `json:"id"`
	Secret        string         `json:"secret"`
	Name          string         `json:"name"`
	UserID        string         `json:"user_id,omitempty"`
	Permissions   []string       `json:"permissions,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	LastUsedAt    *time.Time     `json:"last_used_at,omitempty"`
	IsActive      bool           `json:"is_active"`
	DisplayPrefix string         `json:"display_prefix,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// pendingDrop is the durable rotation grace-period marker.
type pendingDrop struct {
	KeyID  string    `json:"key_id"`
	DropAt time.Time `json:"drop_at"`
	NewKey string    `json:"new_key_id"`
}

// Manager owns the key lifecycle. Safe for concurrent use; all state lives
// in the store.
type Manager struct {
	store store.Store
	cfg   config.APIKeysConfig
	now   func() time.Time
}

// NewManager creates a Manager, applying reference defaults for unset
// config values (prefix atp, expiry 90d, cap 5, rotation 30d, grace 7d,
// residual TTL 5m).
func NewManager(s store.Store, cfg config.APIKeysConfig) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "atp"
	}
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = 90
	}
	if cfg.MaxActivePerUser <= 0 {
		cfg.MaxActivePerUser = 5
	}
	if cfg.RotationIntervalDays <= 0 {
		cfg.RotationIntervalDays = 30
	}
	if cfg.GracePeriodDays <= 0 {
		cfg.GracePeriodDays = 7
	}
	if cfg.DeactivatedTTL <= 0 {
		cfg.DeactivatedTTL = 5 * time.Minute
	}
	return &Manager{store: s, cfg: cfg, now: time.Now}
}

// SetClock overrides the manager's notion of "now"; tests use it to cross
// rotation and expiry boundaries without sleeping.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Generate creates a new key owned by userID (optional), valid for
// expiryDays (0 selects the configured default). The returned record's
// Secret field contains the plaintext — the only time it is ever available.
func (m *Manager) Generate(ctx context.Context, name, userID string, permissions []string, expiryDays int) (*ApiKey, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if expiryDays <= 0 {
		expiryDays = m.cfg.ExpiryDays
	}

	secret, digest, display, err := generateSecret(m.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	now := m.now().UTC()
	key := &ApiKey{
		ID:            uuid.New().String(),
		Secret:        digest,
		Name:          name,
		UserID:        userID,
		Permissions:   permissions,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(expiryDays) * 24 * time.Hour),
		IsActive:      true,
		DisplayPrefix: display,
	}

	ttl := key.ExpiresAt.Sub(now)
	if err := m.persist(ctx, key, ttl); err != nil {
		return nil, err
	}
	if err := m.store.Set(ctx, hashKey(digest), key.ID, ttl); err != nil {
		return nil, fmt.Errorf("index key digest: %w", err)
	}

	if userID != "" {
		if err := m.store.PushFront(ctx, userKeysKey(userID), key.ID, 0); err != nil {
			return nil, fmt.Errorf("index user key: %w", err)
		}
		m.enforceUserCap(ctx, userID)
	}

	telemetry.APIKeysGeneratedTotal.Inc()
	slog.Info("api key generated", "key_id", key.ID, "name", name, "user_id", userID,
		"expires_at", key.ExpiresAt)

	// Hand the plaintext back in the returned copy only.
	out := *key
	out.Secret = secret
	return &out, nil
}

// Validate resolves a presented secret to its key record. Inactive and
// expired keys are rejected (expired ones are opportunistically
// deactivated); success refreshes LastUsedAt and re-persists with the
// remaining TTL. The returned record carries the presented plaintext in
// place of the stored digest.
func (m *Manager) Validate(ctx context.Context, secret string) (*ApiKey, error) {
	if secret == "" || !strings.HasPrefix(secret, m.cfg.Prefix+"_") {
		telemetry.APIKeyValidationsTotal.WithLabelValues("no_match").Inc()
		return nil, ErrInvalidKey
	}

	digest := hashSecret(secret)
	id, err := m.store.Get(ctx, hashKey(digest))
	if err != nil {
		telemetry.APIKeyValidationsTotal.WithLabelValues("no_match").Inc()
		return nil, ErrInvalidKey
	}

	key, err := m.load(ctx, id)
	if err != nil {
		telemetry.APIKeyValidationsTotal.WithLabelValues("no_match").Inc()
		return nil, ErrInvalidKey
	}

	now := m.now().UTC()
	if now.After(key.ExpiresAt) {
		// Found past expiry (TTL lag or clock skew): clean it up now.
		if err := m.Deactivate(ctx, key.ID, "expired"); err != nil {
			slog.Warn("opportunistic deactivation failed", "key_id", key.ID, "error", err)
		}
		telemetry.APIKeyValidationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrInvalidKey
	}
	if !key.IsActive {
		telemetry.APIKeyValidationsTotal.WithLabelValues("inactive").Inc()
		return nil, ErrInvalidKey
	}

	key.LastUsedAt = &now
	ttl, err := m.store.TTL(ctx, recordKey(key.ID))
	if err != nil || ttl <= 0 {
		ttl = key.ExpiresAt.Sub(now)
	}
	if err := m.persist(ctx, key, ttl); err != nil {
		slog.Warn("last-used refresh failed", "key_id", key.ID, "error", err)
	}

	telemetry.APIKeyValidationsTotal.WithLabelValues("ok").Inc()
	out := *key
	out.Secret = secret
	return &out, nil
}

// Deactivate marks the key inactive, shrinks its TTL to the residual audit
// window, removes the digest mapping immediately, and removes the id from
// the owner's key list. reason feeds the deactivation metric.
func (m *Manager) Deactivate(ctx context.Context, id, reason string) error {
	key, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	key.IsActive = false
	if err := m.persist(ctx, key, m.cfg.DeactivatedTTL); err != nil {
		return fmt.Errorf("persist deactivated key %s: %w", id, err)
	}
	if err := m.store.Delete(ctx, hashKey(key.Secret)); err != nil {
		slog.Warn("digest mapping removal failed", "key_id", id, "error", err)
	}
	if key.UserID != "" {
		if err := m.store.RemoveFromList(ctx, userKeysKey(key.UserID), id); err != nil {
			slog.Warn("user key list removal failed", "key_id", id, "error", err)
		}
	}

	if reason == "" {
		reason = "explicit"
	}
	telemetry.APIKeysDeactivatedTotal.WithLabelValues(reason).Inc()
	slog.Info("api key deactivated", "key_id", id, "reason", reason)
	return nil
}

// UserKeys lists the user's key records, newest first. Store failures
// degrade to an empty result.
func (m *Manager) UserKeys(ctx context.Context, userID string) []*ApiKey {
	ids, err := m.store.Range(ctx, userKeysKey(userID), 0, -1)
	if err != nil {
		slog.Warn("user key listing degraded to empty", "user_id", userID, "error", err)
		return nil
	}
	out := make([]*ApiKey, 0, len(ids))
	for _, id := range ids {
		key, err := m.load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, key)
	}
	return out
}

// RotateUserKeys replaces each of the user's active keys older than the
// rotation interval with a same-permission successor and schedules the old
// key's deactivation after the grace period. During the overlap both keys
// validate, so callers can migrate without downtime. Returns the newly
// generated keys with their plaintext secrets.
func (m *Manager) RotateUserKeys(ctx context.Context, userID string) ([]*ApiKey, error) {
	rotateBefore := m.now().UTC().Add(-time.Duration(m.cfg.RotationIntervalDays) * 24 * time.Hour)
	grace := time.Duration(m.cfg.GracePeriodDays) * 24 * time.Hour

	var rotated []*ApiKey
	for _, key := range m.UserKeys(ctx, userID) {
		if !key.IsActive || key.CreatedAt.After(rotateBefore) {
			continue
		}

		replacement, err := m.Generate(ctx, key.Name, key.UserID, key.Permissions, 0)
		if err != nil {
			return rotated, fmt.Errorf("rotate key %s: %w", key.ID, err)
		}

		drop := pendingDrop{
			KeyID:  key.ID,
			DropAt: m.now().UTC().Add(grace),
			NewKey: replacement.ID,
		}
		data, err := json.Marshal(drop)
		if err != nil {
			return rotated, fmt.Errorf("marshal pending drop: %w", err)
		}
		// Marker outlives its due time by a day so a delayed sweep still sees it.
		if err := m.store.Set(ctx, dropKey(key.ID), string(data), grace+24*time.Hour); err != nil {
			return rotated, fmt.Errorf("schedule deactivation of %s: %w", key.ID, err)
		}

		telemetry.APIKeysRotatedTotal.Inc()
		slog.Info("api key rotated", "old_key_id", key.ID, "new_key_id", replacement.ID,
			"user_id", userID, "grace_until", drop.DropAt)
		rotated = append(rotated, replacement)
	}
	return rotated, nil
}

// RotateAll sweeps every stored key record and triggers per-user rotation
// for each owner found. Idempotent: users whose keys are young enough are
// untouched, and re-running after a partial failure only retries the
// remainder.
func (m *Manager) RotateAll(ctx context.Context) error {
	ids, err := m.keyIDs(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		key, err := m.load(ctx, id)
		if err != nil || key.UserID == "" || seen[key.UserID] {
			continue
		}
		seen[key.UserID] = true
		if _, err := m.RotateUserKeys(ctx, key.UserID); err != nil {
			slog.Error("rotation sweep failed for user", "user_id", key.UserID, "error", err)
		}
	}
	return nil
}

// CleanupExpired sweeps every stored key record and deactivates anything
// past its expiry. The TTL normally handles this; the sweep catches records
// whose TTL was extended by validation refreshes near the boundary.
// Idempotent and safe to run concurrently with validation.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := m.keyIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now().UTC()
	cleaned := 0
	for _, id := range ids {
		key, err := m.load(ctx, id)
		if err != nil {
			continue
		}
		if key.IsActive && now.After(key.ExpiresAt) {
			if err := m.Deactivate(ctx, id, "expired"); err != nil {
				slog.Warn("cleanup deactivation failed", "key_id", id, "error", err)
				continue
			}
			cleaned++
		}
	}
	return cleaned, nil
}

// SweepPendingDrops deactivates rotated-out keys whose grace period has
// elapsed. Called by the key maintenance job; idempotent (a re-run finds the
// marker deleted or the key already inactive).
func (m *Manager) SweepPendingDrops(ctx context.Context) (int, error) {
	markers, err := m.store.Keys(ctx, dropPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("list pending drops: %w", err)
	}

	now := m.now().UTC()
	dropped := 0
	for _, marker := range markers {
		data, err := m.store.Get(ctx, marker)
		if err != nil {
			continue
		}
		var drop pendingDrop
		if err := json.Unmarshal([]byte(data), &drop); err != nil {
			slog.Warn("corrupt pending drop marker", "key", marker, "error", err)
			_ = m.store.Delete(ctx, marker)
			continue
		}
		if now.Before(drop.DropAt) {
			continue
		}

		if err := m.Deactivate(ctx, drop.KeyID, "rotation_grace"); err != nil && !errors.Is(err, ErrKeyNotFound) {
			slog.Warn("grace period deactivation failed", "key_id", drop.KeyID, "error", err)
			continue
		}
		_ = m.store.Delete(ctx, marker)
		dropped++
	}
	return dropped, nil
}

// ExpiringKeys sweeps every stored key record and returns the active,
// user-owned keys that expire within the given window and have not yet been
// flagged for an expiry warning. Background jobs only — full keyspace scan.
func (m *Manager) ExpiringKeys(ctx context.Context, within time.Duration) ([]*ApiKey, error) {
	ids, err := m.keyIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	deadline := now.Add(within)
	var expiring []*ApiKey
	for _, id := range ids {
		key, err := m.load(ctx, id)
		if err != nil || !key.IsActive || key.UserID == "" {
			continue
		}
		if key.ExpiresAt.Before(now) || key.ExpiresAt.After(deadline) {
			continue
		}
		if _, err := m.store.Get(ctx, noticeKey(id)); err == nil {
			continue
		}
		expiring = append(expiring, key)
	}
	return expiring, nil
}

// MarkExpiryNotified records that an expiry warning went out for the key.
// The marker lives until a day past expiry, after which it is moot.
func (m *Manager) MarkExpiryNotified(ctx context.Context, id string) error {
	key, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	ttl := key.ExpiresAt.Sub(m.now().UTC()) + 24*time.Hour
	return m.store.Set(ctx, noticeKey(id), m.now().UTC().Format(time.RFC3339), ttl)
}

// enforceUserCap deactivates the oldest active keys beyond the per-user cap.
// Eviction order is by CreatedAt ascending.
func (m *Manager) enforceUserCap(ctx context.Context, userID string) {
	active := make([]*ApiKey, 0)
	for _, key := range m.UserKeys(ctx, userID) {
		if key.IsActive {
			active = append(active, key)
		}
	}
	if len(active) <= m.cfg.MaxActivePerUser {
		return
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	for _, key := range active[:len(active)-m.cfg.MaxActivePerUser] {
		if err := m.Deactivate(ctx, key.ID, "evicted"); err != nil {
			slog.Warn("cap eviction failed", "key_id", key.ID, "error", err)
		}
	}
}

// load reads and decodes a key record.
func (m *Manager) load(ctx context.Context, id string) (*ApiKey, error) {
	data, err := m.store.Get(ctx, recordKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("load key %s: %w", id, err)
	}
	var key ApiKey
	if err := json.Unmarshal([]byte(data), &key); err != nil {
		return nil, fmt.Errorf("decode key %s: %w", id, err)
	}
	return &key, nil
}

// persist writes a key record with the given TTL.
func (m *Manager) persist(ctx context.Context, key *ApiKey, ttl time.Duration) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	return m.store.Set(ctx, recordKey(key.ID), string(data), ttl)
}

// keyIDs lists every stored key id via a pattern scan. Background jobs
// only — this is a full keyspace scan on the store.
func (m *Manager) keyIDs(ctx context.Context) ([]string, error) {
	keys, err := m.store.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}
