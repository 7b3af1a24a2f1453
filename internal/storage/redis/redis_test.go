package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero.
	cfg := Config{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestStore_Defaults(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if got, err := store.GetString(ctx, "missing", "fallback"); err != nil || got != "fallback" {
		t.Errorf("GetString = (%q, %v), want (\"fallback\", nil)", got, err)
	}
	if got, err := store.GetInt(ctx, "missing", 60); err != nil || got != 60 {
		t.Errorf("GetInt = (%d, %v), want (60, nil)", got, err)
	}
	if got, err := store.GetBool(ctx, "missing", true); err != nil || !got {
		t.Errorf("GetBool = (%v, %v), want (true, nil)", got, err)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.SetString(ctx, "pin", "654321"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := store.SetInt(ctx, "added_time_minutes", -1500); err != nil {
		t.Fatalf("SetInt failed: %v", err)
	}
	if err := store.SetInt64(ctx, "last_reset_unix", 1710028800); err != nil {
		t.Fatalf("SetInt64 failed: %v", err)
	}
	if err := store.SetBool(ctx, "unlocked_until_tomorrow", true); err != nil {
		t.Fatalf("SetBool failed: %v", err)
	}

	if got, _ := store.GetString(ctx, "pin", ""); got != "654321" {
		t.Errorf("GetString = %q, want %q", got, "654321")
	}
	if got, _ := store.GetInt(ctx, "added_time_minutes", 0); got != -1500 {
		t.Errorf("GetInt = %d, want -1500", got)
	}
	if got, _ := store.GetInt64(ctx, "last_reset_unix", 0); got != 1710028800 {
		t.Errorf("GetInt64 = %d, want 1710028800", got)
	}
	if got, _ := store.GetBool(ctx, "unlocked_until_tomorrow", false); !got {
		t.Error("GetBool = false, want true")
	}
}

func TestStore_KeysArePrefixed(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	if err := store.SetString(ctx, "pin", "000000"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}

	if !mr.Exists("kidlock:pin") {
		t.Error("expected key kidlock:pin in Redis")
	}
}

func TestStore_DeleteAndCommit(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.SetString(ctx, "codes", "payload"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if err := store.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := store.Delete(ctx, "codes"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := store.GetString(ctx, "codes", "absent"); got != "absent" {
		t.Errorf("GetString after Delete = %q, want default", got)
	}
}
