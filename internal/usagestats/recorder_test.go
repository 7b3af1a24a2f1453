package usagestats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/storage/bolt"
)

func newTestRecorder(t *testing.T) (*Recorder, *clock.TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "usage.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock.TestClock{CurrentTime: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewRecorder(store, clk, 0, zerolog.Nop()), clk
}

func TestRecorder_CreditsContinuousSamples(t *testing.T) {
	rec, clk := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 13; i++ {
		if err := rec.Observe(ctx, gamePkg); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
		clk.CurrentTime = clk.CurrentTime.Add(5 * time.Second)
	}

	usages, err := rec.QueryForeground(ctx, clk.CurrentTime, clk.CurrentTime)
	if err != nil {
		t.Fatalf("QueryForeground failed: %v", err)
	}
	if len(usages) != 1 {
		t.Fatalf("got %d packages, want 1", len(usages))
	}
	// 12 credited gaps of 5 s each; the first sample opens the session.
	if want := 60 * time.Second; usages[0].ForegroundTime != want {
		t.Errorf("ForegroundTime = %v, want %v", usages[0].ForegroundTime, want)
	}
}

func TestRecorder_PackageChangeStartsFresh(t *testing.T) {
	rec, clk := newTestRecorder(t)
	ctx := context.Background()

	_ = rec.Observe(ctx, gamePkg)
	clk.CurrentTime = clk.CurrentTime.Add(10 * time.Second)
	_ = rec.Observe(ctx, streamPkg) // switch: no gap credited to either
	clk.CurrentTime = clk.CurrentTime.Add(10 * time.Second)
	_ = rec.Observe(ctx, streamPkg)

	usages, err := rec.QueryForeground(ctx, clk.CurrentTime, clk.CurrentTime)
	if err != nil {
		t.Fatalf("QueryForeground failed: %v", err)
	}
	if len(usages) != 1 || usages[0].Package != streamPkg {
		t.Fatalf("usages = %+v, want only %s", usages, streamPkg)
	}
	if want := 10 * time.Second; usages[0].ForegroundTime != want {
		t.Errorf("ForegroundTime = %v, want %v", usages[0].ForegroundTime, want)
	}
}

func TestRecorder_StaleGapNotCredited(t *testing.T) {
	rec, clk := newTestRecorder(t)
	ctx := context.Background()

	_ = rec.Observe(ctx, gamePkg)
	clk.CurrentTime = clk.CurrentTime.Add(10 * time.Minute) // past the sample timeout
	_ = rec.Observe(ctx, gamePkg)

	usages, err := rec.QueryForeground(ctx, clk.CurrentTime, clk.CurrentTime)
	if err != nil {
		t.Fatalf("QueryForeground failed: %v", err)
	}
	if len(usages) != 0 {
		t.Errorf("usages = %+v, want none", usages)
	}
}

func TestRecorder_EmptyPackageClearsTracking(t *testing.T) {
	rec, clk := newTestRecorder(t)
	ctx := context.Background()

	_ = rec.Observe(ctx, gamePkg)
	_ = rec.Observe(ctx, "")

	if pkg, ok := rec.MostRecentPackage(ctx); ok {
		t.Errorf("MostRecentPackage = %q, want none", pkg)
	}

	clk.CurrentTime = clk.CurrentTime.Add(5 * time.Second)
	_ = rec.Observe(ctx, gamePkg)
	clk.CurrentTime = clk.CurrentTime.Add(5 * time.Second)

	if pkg, ok := rec.MostRecentPackage(ctx); !ok || pkg != gamePkg {
		t.Errorf("MostRecentPackage = (%q, %v), want (%q, true)", pkg, ok, gamePkg)
	}
}

func TestRecorder_MostRecentExpires(t *testing.T) {
	rec, clk := newTestRecorder(t)
	ctx := context.Background()

	_ = rec.Observe(ctx, gamePkg)
	clk.CurrentTime = clk.CurrentTime.Add(3 * time.Minute)

	if pkg, ok := rec.MostRecentPackage(ctx); ok {
		t.Errorf("MostRecentPackage = %q after timeout, want none", pkg)
	}
}
