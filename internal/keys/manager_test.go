package keys

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
)

func newTestManager(cfg config.APIKeysConfig) *Manager {
	return NewManager(store.NewMemoryStore(), cfg)
}

// ---------------------------------------------------------------------------
// Generate and Validate
// ---------------------------------------------------------------------------

func TestGenerateAndValidate(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(config.APIKeysConfig{Prefix: "atp"})

	key, err := m.Generate(ctx, "ci-pipeline", "u1", []string{"events:read"}, 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	t.Run("returned secret is plaintext with prefix", func(t *testing.T) {
		if !strings.HasPrefix(key.Secret, "atp_") {
			t.Errorf("secret = %q, want atp_ prefix", key.Secret)
		}
		if key.DisplayPrefix == "" || !strings.HasPrefix(key.Secret, key.DisplayPrefix) {
			t.Errorf("display prefix %q is not a prefix of the secret", key.DisplayPrefix)
		}
		if !key.IsActive {
			t.Error("new key should be active")
		}
	})

	t.Run("validate resolves the secret", func(t *testing.T) {
		got, err := m.Validate(ctx, key.Secret)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if got.ID != key.ID {
			t.Errorf("Validate() resolved key %s, want %s", got.ID, key.ID)
		}
		if got.Secret != key.Secret {
			t.Error("Validate() should return the presented plaintext, not the digest")
		}
		if got.LastUsedAt == nil {
			t.Error("Validate() should stamp LastUsedAt")
		}
		if len(got.Permissions) != 1 || got.Permissions[0] != "events:read" {
			t.Errorf("permissions = %v", got.Permissions)
		}
	})

	t.Run("stored record never holds the plaintext", func(t *testing.T) {
		stored, err := m.load(ctx, key.ID)
		if err != nil {
			t.Fatalf("load() error = %v", err)
		}
		if stored.Secret == key.Secret {
			t.Error("plaintext secret found at rest")
		}
	})

	t.Run("rejects bad secrets", func(t *testing.T) {
		for _, secret := range []string{"", "wrongprefix_abc", "atp_notarealsecret"} {
			if _, err := m.Validate(ctx, secret); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Validate(%q) error = %v, want ErrInvalidKey", secret, err)
			}
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		if _, err := m.Generate(ctx, "", "u1", nil, 0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Generate() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(config.APIKeysConfig{})

	key, _ := m.Generate(ctx, "short-lived", "u1", nil, 0)

	if err := m.Deactivate(ctx, key.ID, "manual"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	t.Run("secret no longer validates", func(t *testing.T) {
		if _, err := m.Validate(ctx, key.Secret); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Validate() error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("removed from the user's list", func(t *testing.T) {
		for _, k := range m.UserKeys(ctx, "u1") {
			if k.ID == key.ID {
				t.Error("deactivated key still in user list")
			}
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if err := m.Deactivate(ctx, "ghost", "manual"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Deactivate() error = %v, want ErrKeyNotFound", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Per-user cap
// ---------------------------------------------------------------------------

func TestUserCapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(config.APIKeysConfig{MaxActivePerUser: 2})

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	first, _ := m.Generate(ctx, "first", "u1", nil, 0)
	now = now.Add(time.Minute)
	second, _ := m.Generate(ctx, "second", "u1", nil, 0)
	now = now.Add(time.Minute)
	third, _ := m.Generate(ctx, "third", "u1", nil, 0)

	if _, err := m.Validate(ctx, first.Secret); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("oldest key should be evicted, Validate() error = %v", err)
	}
	for _, key := range []*ApiKey{second, third} {
		if _, err := m.Validate(ctx, key.Secret); err != nil {
			t.Errorf("key %q should survive the cap, Validate() error = %v", key.Name, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Rotation and grace period
// ---------------------------------------------------------------------------

func TestRotationLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(config.APIKeysConfig{
		RotationIntervalDays: 30,
		GracePeriodDays:      7,
	})

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	old, err := m.Generate(ctx, "service-account", "u1", []string{"events:read", "keys:manage"}, 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	t.Run("young keys are not rotated", func(t *testing.T) {
		rotated, err := m.RotateUserKeys(ctx, "u1")
		if err != nil {
			t.Fatalf("RotateUserKeys() error = %v", err)
		}
		if len(rotated) != 0 {
			t.Errorf("rotated %d keys, want 0", len(rotated))
		}
	})

	// Cross the rotation interval.
	now = now.Add(31 * 24 * time.Hour)

	var replacement *ApiKey
	t.Run("old key is replaced", func(t *testing.T) {
		rotated, err := m.RotateUserKeys(ctx, "u1")
		if err != nil {
			t.Fatalf("RotateUserKeys() error = %v", err)
		}
		if len(rotated) != 1 {
			t.Fatalf("rotated %d keys, want 1", len(rotated))
		}
		replacement = rotated[0]
		if replacement.Name != old.Name {
			t.Errorf("replacement name = %q, want %q", replacement.Name, old.Name)
		}
		if len(replacement.Permissions) != 2 {
			t.Errorf("replacement permissions = %v, want inherited pair", replacement.Permissions)
		}
		if !strings.HasPrefix(replacement.Secret, "atp_") {
			t.Error("replacement secret should be plaintext in the rotation response")
		}
	})

	t.Run("both keys validate during the grace period", func(t *testing.T) {
		if _, err := m.Validate(ctx, old.Secret); err != nil {
			t.Errorf("old key should validate during grace, error = %v", err)
		}
		if _, err := m.Validate(ctx, replacement.Secret); err != nil {
			t.Errorf("replacement should validate, error = %v", err)
		}
	})

	t.Run("grace expiry deactivates only the old key", func(t *testing.T) {
		now = now.Add(8 * 24 * time.Hour)
		dropped, err := m.SweepPendingDrops(ctx)
		if err != nil {
			t.Fatalf("SweepPendingDrops() error = %v", err)
		}
		if dropped != 1 {
			t.Errorf("dropped %d keys, want 1", dropped)
		}
		if _, err := m.Validate(ctx, old.Secret); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("old key should be invalid after grace, error = %v", err)
		}
		if _, err := m.Validate(ctx, replacement.Secret); err != nil {
			t.Errorf("replacement should still validate, error = %v", err)
		}
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		dropped, err := m.SweepPendingDrops(ctx)
		if err != nil {
			t.Fatalf("SweepPendingDrops() error = %v", err)
		}
		if dropped != 0 {
			t.Errorf("second sweep dropped %d keys, want 0", dropped)
		}
	})
}

// ---------------------------------------------------------------------------
// Expiry
// ---------------------------------------------------------------------------

func TestExpiredKeyRejectedAndCleaned(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(config.APIKeysConfig{})

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	key, _ := m.Generate(ctx, "ephemeral", "u1", nil, 1)

	now = now.Add(2 * 24 * time.Hour)

	t.Run("validate rejects and deactivates", func(t *testing.T) {
		if _, err := m.Validate(ctx, key.Secret); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Validate() error = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("cleanup sweep counts remaining expired keys", func(t *testing.T) {
		other, _ := m.Generate(ctx, "also-ephemeral", "u2", nil, 1)
		now = now.Add(2 * 24 * time.Hour)
		cleaned, err := m.CleanupExpired(ctx)
		if err != nil {
			t.Fatalf("CleanupExpired() error = %v", err)
		}
		if cleaned != 1 {
			t.Errorf("CleanupExpired() = %d, want 1", cleaned)
		}
		if _, err := m.Validate(ctx, other.Secret); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expired key should be invalid, error = %v", err)
		}
	})
}

func TestRotateAllCoversEveryOwner(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(config.APIKeysConfig{RotationIntervalDays: 30, GracePeriodDays: 7})

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	_, _ = m.Generate(ctx, "a-key", "alice", nil, 0)
	_, _ = m.Generate(ctx, "b-key", "bob", nil, 0)

	now = now.Add(31 * 24 * time.Hour)
	if err := m.RotateAll(ctx); err != nil {
		t.Fatalf("RotateAll() error = %v", err)
	}

	for _, user := range []string{"alice", "bob"} {
		keys := m.UserKeys(ctx, user)
		if len(keys) != 2 {
			t.Errorf("user %s has %d keys after sweep, want 2 (old + replacement)", user, len(keys))
		}
	}
}
