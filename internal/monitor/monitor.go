// Package monitor runs the enforcement loop: it resolves the foreground
// package, tracks the active session, and fires the block action once the
// remaining allowance is gone. A cycle that fails logs and moves on; the
// monitor itself never stops on errors.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/ledger"
	"github.com/yanmasharski/kidlock-tv/internal/metrics"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

const (
	// DefaultPollInterval is how often the monitor re-evaluates between
	// foreground events.
	DefaultPollInterval = 5 * time.Second

	// DefaultBlockCooldown suppresses repeat block actions while the
	// previous one is still taking effect.
	DefaultBlockCooldown = 500 * time.Millisecond

	// maxSessionAge bounds a tracked session. Older starts mean the
	// process slept through a suspend or a clock jump and must resync.
	maxSessionAge = 24 * time.Hour
)

// State is the monitor's tracking state.
type State int

const (
	// StateIdle means no budgeted app is in the foreground.
	StateIdle State = iota
	// StateTracking means a budgeted app is in the foreground and its
	// session is being timed.
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "idle"
}

// ForegroundSource resolves the current foreground package. Sources are
// consulted in order; a source that cannot answer returns ok=false and the
// next one is tried.
type ForegroundSource interface {
	Name() string
	Current(ctx context.Context) (pkg string, ok bool)
}

// Blocker performs the block action when the allowance is exhausted.
type Blocker interface {
	BringToFront(ctx context.Context) error
	TerminateBackground(ctx context.Context, pkg string) error
	Notify(ctx context.Context, remaining int) error
}

// UsageReader is the slice of usage accounting the monitor needs.
type UsageReader interface {
	TodayUsageMinutes(ctx context.Context, activePackage string, sessionStart time.Time) (int, error)
	DenyList() *usagestats.DenyList
}

// Budget is the slice of the budget ledger the monitor needs.
type Budget interface {
	EnsureDailyReset(ctx context.Context) (bool, error)
	Remaining(ctx context.Context, usedMinutes int, usageErr error) (ledger.RemainingBreakdown, error)
	BlockingEnabled(ctx context.Context) (bool, error)
}

// Config holds monitor tuning.
type Config struct {
	PollInterval  time.Duration
	BlockCooldown time.Duration
	SelfPackage   string
}

// Monitor is the enforcement loop.
type Monitor struct {
	cfg     Config
	sources []ForegroundSource
	usage   UsageReader
	budget  Budget
	blocker Blocker
	clk     clock.Clock
	logger  zerolog.Logger

	mu           sync.Mutex
	state        State
	tracked      string
	sessionStart time.Time
	lastBlock    time.Time
	lastKnown    string

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a monitor. Sources are tried in the given order when
// resolving the foreground package.
func New(cfg Config, sources []ForegroundSource, usage UsageReader, budget Budget, blocker Blocker, clk clock.Clock, logger zerolog.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = DefaultBlockCooldown
	}
	return &Monitor{
		cfg:      cfg,
		sources:  sources,
		usage:    usage,
		budget:   budget,
		blocker:  blocker,
		clk:      clk,
		logger:   logger.With().Str("component", "monitor").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info().
		Dur("poll_interval", m.cfg.PollInterval).
		Msg("Starting enforcement monitor")

	go func() {
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Evaluate(ctx)
			case <-m.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the poll loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info().Msg("Stopping enforcement monitor")
		close(m.stopChan)
	})
}

// HandleForegroundEvent triggers an immediate evaluation after a pushed
// foreground change, without waiting for the next poll tick.
func (m *Monitor) HandleForegroundEvent(ctx context.Context) {
	m.Evaluate(ctx)
}

// Snapshot returns the current tracking state and package.
func (m *Monitor) Snapshot() (State, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.tracked
}

// Evaluate runs one enforcement cycle. Errors are logged and counted, never
// propagated: a broken cycle must not take enforcement down with it.
func (m *Monitor) Evaluate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.evaluateLocked(ctx); err != nil {
		metrics.MonitorCycleErrors.Inc()
		m.logger.Warn().Err(err).Msg("Evaluation cycle failed")
	}
}

func (m *Monitor) evaluateLocked(ctx context.Context) error {
	if _, err := m.budget.EnsureDailyReset(ctx); err != nil {
		return err
	}

	pkg, ok := m.resolveForeground(ctx)
	if !ok {
		m.toIdle()
		return nil
	}
	m.lastKnown = pkg

	// The budget app itself is never tracked or blocked.
	if pkg == m.cfg.SelfPackage {
		m.toIdle()
		return nil
	}
	if m.usage.DenyList().IsSystemSurface(pkg) {
		m.toIdle()
		return nil
	}

	now := m.clk.Now()
	if m.state != StateTracking || m.tracked != pkg {
		m.state = StateTracking
		m.tracked = pkg
		m.sessionStart = now
		m.logger.Debug().Str("package", pkg).Msg("Tracking new session")
	} else if now.Sub(m.sessionStart) > maxSessionAge || m.sessionStart.After(now) {
		// Suspend or clock jump: the recorded start is useless.
		m.logger.Info().
			Str("package", pkg).
			Time("session_start", m.sessionStart).
			Msg("Resyncing stale session")
		m.sessionStart = now
	}

	used, usageErr := m.usage.TodayUsageMinutes(ctx, m.tracked, m.sessionStart)
	if usageErr != nil && !errors.Is(usageErr, usagestats.ErrUsageAccessDenied) {
		return usageErr
	}
	breakdown, err := m.budget.Remaining(ctx, used, usageErr)
	if err != nil {
		return err
	}
	metrics.UsageMinutesToday.Set(float64(used))
	metrics.RemainingMinutes.Set(float64(breakdown.Total))

	enabled, err := m.budget.BlockingEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled || breakdown.Total > 0 {
		return nil
	}

	if now.Sub(m.lastBlock) < m.cfg.BlockCooldown {
		return nil
	}
	m.lastBlock = now
	m.block(ctx, m.tracked, breakdown.Total)
	m.toIdle()
	return nil
}

// resolveForeground walks the source chain and falls back to the last
// package any source ever reported.
func (m *Monitor) resolveForeground(ctx context.Context) (string, bool) {
	for _, src := range m.sources {
		if pkg, ok := src.Current(ctx); ok && pkg != "" {
			return pkg, true
		}
	}
	if m.lastKnown != "" {
		return m.lastKnown, true
	}
	return "", false
}

// block fires the block action. Each step is best effort: a failed
// notification must not stop the termination and vice versa.
func (m *Monitor) block(ctx context.Context, pkg string, remaining int) {
	m.logger.Info().
		Str("package", pkg).
		Int("remaining", remaining).
		Msg("Allowance exhausted, blocking")
	metrics.BlockActionsTotal.WithLabelValues(pkg).Inc()

	if err := m.blocker.BringToFront(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Bring-to-front failed")
	}
	if err := m.blocker.TerminateBackground(ctx, pkg); err != nil {
		m.logger.Warn().Err(err).Str("package", pkg).Msg("Terminate failed")
	}
	if err := m.blocker.Notify(ctx, remaining); err != nil {
		m.logger.Warn().Err(err).Msg("Notify failed")
	}
}

func (m *Monitor) toIdle() {
	if m.state != StateIdle {
		m.logger.Debug().Str("package", m.tracked).Msg("Session ended")
	}
	m.state = StateIdle
	m.tracked = ""
	m.sessionStart = time.Time{}
}
