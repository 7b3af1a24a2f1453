// Package launcher executes the block action through configured shell
// commands: one to bring the lock screen to the front, one to terminate a
// package, one to show a notification. Unconfigured commands are logged
// no-ops so the daemon can run in observe-only mode.
package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// commandTimeout bounds a single block command. A hung helper must not
// stall the enforcement loop.
const commandTimeout = 10 * time.Second

// Config holds the command lines. In each command %PKG% is replaced by the
// target package and %REMAINING% by the remaining minutes.
type Config struct {
	BringToFrontCommand string
	TerminateCommand    string
	NotifyCommand       string
}

// CommandLauncher runs block actions as external commands.
type CommandLauncher struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a command launcher.
func New(cfg Config, logger zerolog.Logger) *CommandLauncher {
	return &CommandLauncher{
		cfg:    cfg,
		logger: logger.With().Str("component", "launcher").Logger(),
	}
}

// BringToFront raises the lock surface.
func (l *CommandLauncher) BringToFront(ctx context.Context) error {
	return l.run(ctx, "bring_to_front", l.cfg.BringToFrontCommand, nil)
}

// TerminateBackground stops the given package.
func (l *CommandLauncher) TerminateBackground(ctx context.Context, pkg string) error {
	return l.run(ctx, "terminate", l.cfg.TerminateCommand, map[string]string{"%PKG%": pkg})
}

// Notify shows the out-of-time notice.
func (l *CommandLauncher) Notify(ctx context.Context, remaining int) error {
	return l.run(ctx, "notify", l.cfg.NotifyCommand, map[string]string{
		"%REMAINING%": strconv.Itoa(remaining),
	})
}

func (l *CommandLauncher) run(ctx context.Context, action, command string, subs map[string]string) error {
	if command == "" {
		l.logger.Debug().Str("action", action).Msg("No command configured, skipping")
		return nil
	}
	for from, to := range subs {
		command = strings.ReplaceAll(command, from, to)
	}

	args := strings.Fields(command)
	if len(args) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s command failed: %w (output: %s)", action, err, strings.TrimSpace(string(out)))
	}
	l.logger.Debug().Str("action", action).Str("command", args[0]).Msg("Block action executed")
	return nil
}
