package launcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestUnconfiguredCommandsAreNoOps(t *testing.T) {
	l := New(Config{}, zerolog.Nop())
	ctx := context.Background()

	if err := l.BringToFront(ctx); err != nil {
		t.Errorf("BringToFront: %v", err)
	}
	if err := l.TerminateBackground(ctx, "com.example.game"); err != nil {
		t.Errorf("TerminateBackground: %v", err)
	}
	if err := l.Notify(ctx, 0); err != nil {
		t.Errorf("Notify: %v", err)
	}
}

func TestTerminateSubstitutesPackage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	l := New(Config{TerminateCommand: "touch " + out + ".%PKG%"}, zerolog.Nop())

	if err := l.TerminateBackground(context.Background(), "com.example.game"); err != nil {
		t.Fatalf("TerminateBackground: %v", err)
	}
	if _, err := os.Stat(out + ".com.example.game"); err != nil {
		t.Errorf("substituted command did not run: %v", err)
	}
}

func TestFailedCommandReturnsError(t *testing.T) {
	l := New(Config{BringToFrontCommand: "false"}, zerolog.Nop())

	err := l.BringToFront(context.Background())
	if err == nil {
		t.Fatal("expected an error from a failing command")
	}
	if !strings.Contains(err.Error(), "bring_to_front") {
		t.Errorf("error %q does not name the action", err)
	}
}
