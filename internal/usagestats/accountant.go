package usagestats

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/yanmasharski/kidlock-tv/internal/clock"
)

// queryCacheTTL bounds how stale a cached ledger query may be. The monitor
// polls every few seconds; caching the aggregate between ticks keeps the
// ledger query off the hot path without affecting the block decision.
const queryCacheTTL = 2 * time.Second

// Accountant computes today's aggregate foreground usage from the OS usage
// ledger, excluding deny-listed packages and topping up the live session the
// ledger has not flushed yet.
type Accountant struct {
	provider Provider
	deny     *DenyList
	clk      clock.Clock
	cache    *expirable.LRU[string, []AppUsage]
	logger   zerolog.Logger
}

// NewAccountant creates a usage accountant over the given ledger provider.
func NewAccountant(provider Provider, deny *DenyList, clk clock.Clock, logger zerolog.Logger) *Accountant {
	return &Accountant{
		provider: provider,
		deny:     deny,
		clk:      clk,
		cache:    expirable.NewLRU[string, []AppUsage](4, nil, queryCacheTTL),
		logger:   logger.With().Str("component", "usage-accounting").Logger(),
	}
}

// HasPermission reports whether the underlying ledger may be read.
func (a *Accountant) HasPermission() bool {
	return a.provider.HasPermission()
}

// TodayUsage returns today's total tracked foreground time. For activePackage
// (the currently foregrounded app, if any), the in-progress session since
// sessionStart is added on top of the ledger figure so an unflushed session is
// never under-counted. The ledger may already cover part of the live interval;
// that duplication only ever shortens remaining time, so it is accepted.
//
// Returns ErrUsageAccessDenied when the ledger permission is absent.
func (a *Accountant) TodayUsage(ctx context.Context, activePackage string, sessionStart time.Time) (time.Duration, error) {
	if !a.provider.HasPermission() {
		return 0, ErrUsageAccessDenied
	}

	now := a.clk.Now()
	todayStart := clock.StartOfDay(now)

	usages, err := a.queryCached(ctx, todayStart, now)
	if err != nil {
		return 0, err
	}

	var liveDelta time.Duration
	if activePackage != "" && !sessionStart.IsZero() {
		liveDelta = now.Sub(sessionStart)
		if liveDelta < 0 {
			liveDelta = 0
		}
	}

	var total time.Duration
	activeIncluded := false

	for _, u := range usages {
		if a.deny.Contains(u.Package) {
			continue
		}
		pkgTime := u.ForegroundTime
		if u.Package == activePackage && liveDelta > 0 {
			pkgTime += liveDelta
			activeIncluded = true
		}
		total += pkgTime
	}

	if !activeIncluded && liveDelta > 0 && !a.deny.Contains(activePackage) {
		total += liveDelta
	}

	return total, nil
}

// TodayUsageMinutes is TodayUsage truncated to whole minutes.
func (a *Accountant) TodayUsageMinutes(ctx context.Context, activePackage string, sessionStart time.Time) (int, error) {
	d, err := a.TodayUsage(ctx, activePackage, sessionStart)
	if err != nil {
		return 0, err
	}
	return int(d / time.Minute), nil
}

// DenyList exposes the accounting deny-list for the enforcement monitor.
func (a *Accountant) DenyList() *DenyList {
	return a.deny
}

func (a *Accountant) queryCached(ctx context.Context, from, to time.Time) ([]AppUsage, error) {
	key := from.Format("2006-01-02")
	if cached, ok := a.cache.Get(key); ok {
		return cached, nil
	}

	usages, err := a.provider.QueryForeground(ctx, from, to)
	if err != nil {
		return nil, err
	}

	a.cache.Add(key, usages)
	return usages, nil
}
