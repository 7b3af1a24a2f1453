// Package ledger holds the per-day screen-time budget: the daily limit,
// bonus (added) time, the unlock-until-tomorrow switch, and the admin PIN.
// All state lives in the settings store so it survives restarts; reads of
// absent keys return defaults so a fresh install works without migration.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/metrics"
	"github.com/yanmasharski/kidlock-tv/internal/storage"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

// Storage keys for budget state.
const (
	keyPin              = "pin"
	keyDailyLimit       = "daily_limit_minutes"
	keyAddedTime        = "added_time_minutes"
	keyLastReset        = "last_reset_unix"
	keyUnlockedToday    = "unlocked_until_tomorrow"
	keyBlockingEnabled  = "blocking_enabled"
	keyAutostartEnabled = "autostart_enabled"
)

const (
	// DefaultPin is the factory PIN until the admin changes it.
	DefaultPin = "000000"

	// DefaultDailyLimitMinutes applies when no limit was ever configured.
	DefaultDailyLimitMinutes = 60

	// PinLength is the required PIN length in digits.
	PinLength = 6

	// lockNowExtraMinutes is added to the daily limit when computing the
	// lock-now overshoot, so the negative bonus drains both today's limit
	// and any unlock carry-over well past midnight.
	lockNowExtraMinutes = 1440
)

var (
	// ErrInvalidInput reports a rejected parameter, such as a negative
	// daily limit or a malformed PIN.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrPermissionRequired reports that enforcement cannot be enabled
	// because usage visibility is missing.
	ErrPermissionRequired = errors.New("ledger: usage access permission required")
)

// RemainingBreakdown splits the remaining allowance into the share covered
// by the daily limit and the share covered by bonus time. All fields are
// clamped at zero; debt shows up as a zero total, never a negative one.
type RemainingBreakdown struct {
	DailyRemaining int `json:"daily_remaining"`
	BonusRemaining int `json:"bonus_remaining"`
	Total          int `json:"total"`
}

// Ledger manages the daily screen-time budget over a settings store.
type Ledger struct {
	mu           sync.Mutex
	kv           storage.KV
	clk          clock.Clock
	defaultLimit int
	logger       zerolog.Logger
}

// New creates a budget ledger backed by the given store. defaultLimit is
// the daily limit reported before the admin configures one; values below 1
// fall back to DefaultDailyLimitMinutes.
func New(kv storage.KV, clk clock.Clock, defaultLimit int, logger zerolog.Logger) *Ledger {
	if defaultLimit <= 0 {
		defaultLimit = DefaultDailyLimitMinutes
	}
	return &Ledger{
		kv:           kv,
		clk:          clk,
		defaultLimit: defaultLimit,
		logger:       logger.With().Str("component", "ledger").Logger(),
	}
}

// InitializeIfNeeded prepares budget state on first run and resets legacy
// four-digit PINs from older installs back to the default.
func (l *Ledger) InitializeIfNeeded(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lastReset, err := l.kv.GetInt64(ctx, keyLastReset, 0)
	if err != nil {
		return fmt.Errorf("reading last reset: %w", err)
	}
	if lastReset == 0 {
		l.logger.Info().Msg("First run, initializing budget state")
		l.put(ctx, keyLastReset, clock.StartOfDay(l.clk.Now()).Unix())
	}

	pin, err := l.kv.GetString(ctx, keyPin, "")
	if err != nil {
		return fmt.Errorf("reading pin: %w", err)
	}
	switch {
	case pin == "":
		l.put(ctx, keyPin, DefaultPin)
	case len(pin) < PinLength:
		// Legacy four-digit PINs from older installs cannot be kept: the
		// lock screen only accepts six digits, so reset to the factory PIN.
		l.logger.Info().Msg("Resetting obsolete short PIN to the default")
		l.put(ctx, keyPin, DefaultPin)
	}

	return l.kv.Commit(ctx)
}

// EnsureDailyReset zeroes bonus time and clears the unlock switch if the
// recorded reset day is before today. It reports whether a reset was
// performed; within the same day the second call is a no-op returning false.
func (l *Ledger) EnsureDailyReset(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureDailyResetLocked(ctx)
}

func (l *Ledger) ensureDailyResetLocked(ctx context.Context) (bool, error) {
	lastResetUnix, err := l.kv.GetInt64(ctx, keyLastReset, 0)
	if err != nil {
		return false, fmt.Errorf("reading last reset: %w", err)
	}

	now := l.clk.Now()
	lastReset := unixOrZero(lastResetUnix)
	if !clock.ResetDue(lastReset, now) {
		return false, nil
	}

	l.logger.Info().
		Time("last_reset", lastReset).
		Msg("Performing daily budget reset")

	l.put(ctx, keyAddedTime, 0)
	l.put(ctx, keyUnlockedToday, false)
	l.put(ctx, keyLastReset, clock.StartOfDay(now).Unix())
	metrics.DailyResetsTotal.Inc()

	return true, l.kv.Commit(ctx)
}

// Remaining computes the remaining allowance for today. usedMinutes comes
// from usage accounting; pass the accounting error so a missing permission
// falls open to the full configured budget instead of zero.
func (l *Ledger) Remaining(ctx context.Context, usedMinutes int, usageErr error) (RemainingBreakdown, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.ensureDailyResetLocked(ctx); err != nil {
		return RemainingBreakdown{}, err
	}

	limit, err := l.kv.GetInt(ctx, keyDailyLimit, l.defaultLimit)
	if err != nil {
		return RemainingBreakdown{}, fmt.Errorf("reading daily limit: %w", err)
	}
	added, err := l.kv.GetInt(ctx, keyAddedTime, 0)
	if err != nil {
		return RemainingBreakdown{}, fmt.Errorf("reading added time: %w", err)
	}

	if errors.Is(usageErr, usagestats.ErrUsageAccessDenied) {
		// Without usage visibility we cannot attribute consumption, so
		// report the full budget rather than locking the device out.
		return RemainingBreakdown{
			DailyRemaining: limit,
			BonusRemaining: added,
			Total:          limit + added,
		}, nil
	}
	if usageErr != nil {
		return RemainingBreakdown{}, usageErr
	}

	dailyRemaining := limit - usedMinutes
	if dailyRemaining < 0 {
		dailyRemaining = 0
	}
	bonusRemaining := added
	if overshoot := usedMinutes - limit; overshoot > 0 {
		bonusRemaining = added - overshoot
	}
	if bonusRemaining < 0 {
		bonusRemaining = 0
	}

	return RemainingBreakdown{
		DailyRemaining: dailyRemaining,
		BonusRemaining: bonusRemaining,
		Total:          dailyRemaining + bonusRemaining,
	}, nil
}

// DailyLimitMinutes returns the configured daily limit.
func (l *Ledger) DailyLimitMinutes(ctx context.Context) (int, error) {
	return l.kv.GetInt(ctx, keyDailyLimit, l.defaultLimit)
}

// SetDailyLimitMinutes updates the configured daily limit.
func (l *Ledger) SetDailyLimitMinutes(ctx context.Context, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: daily limit must not be negative", ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.put(ctx, keyDailyLimit, minutes)
	l.logger.Info().Int("minutes", minutes).Msg("Daily limit updated")
	return l.kv.Commit(ctx)
}

// AddedTimeMinutes returns today's bonus time. It may be negative after a
// lock-now action.
func (l *Ledger) AddedTimeMinutes(ctx context.Context) (int, error) {
	return l.kv.GetInt(ctx, keyAddedTime, 0)
}

// AddBonusMinutes increases today's bonus time by the given amount.
func (l *Ledger) AddBonusMinutes(ctx context.Context, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: bonus minutes must not be negative", ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	added, err := l.kv.GetInt(ctx, keyAddedTime, 0)
	if err != nil {
		return fmt.Errorf("reading added time: %w", err)
	}
	l.put(ctx, keyAddedTime, added+minutes)
	return l.kv.Commit(ctx)
}

// UnlockedUntilTomorrow reports whether the unlock switch is on.
func (l *Ledger) UnlockedUntilTomorrow(ctx context.Context) (bool, error) {
	return l.kv.GetBool(ctx, keyUnlockedToday, false)
}

// ToggleUnlockUntilTomorrow flips the unlock switch. Turning it on grants
// bonus time through midnight; turning it off (lock now) drives the bonus
// far enough negative that no realistic usage can reopen the device today.
func (l *Ledger) ToggleUnlockUntilTomorrow(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.ensureDailyResetLocked(ctx); err != nil {
		return false, err
	}

	unlocked, err := l.kv.GetBool(ctx, keyUnlockedToday, false)
	if err != nil {
		return false, fmt.Errorf("reading unlock state: %w", err)
	}

	if !unlocked {
		minutes := clock.MinutesUntilMidnight(l.clk.Now())
		l.put(ctx, keyAddedTime, minutes)
		l.put(ctx, keyUnlockedToday, true)
		l.logger.Info().Int("minutes", minutes).Msg("Unlocked until tomorrow")
	} else {
		limit, err := l.kv.GetInt(ctx, keyDailyLimit, l.defaultLimit)
		if err != nil {
			return false, fmt.Errorf("reading daily limit: %w", err)
		}
		overshoot := -(limit + lockNowExtraMinutes)
		l.put(ctx, keyAddedTime, overshoot)
		l.put(ctx, keyUnlockedToday, false)
		l.logger.Info().Int("added_time", overshoot).Msg("Locked for the rest of the day")
	}

	if err := l.kv.Commit(ctx); err != nil {
		return false, err
	}
	return !unlocked, nil
}

// Pin returns the current admin PIN.
func (l *Ledger) Pin(ctx context.Context) (string, error) {
	return l.kv.GetString(ctx, keyPin, DefaultPin)
}

// SetPin replaces the admin PIN. The PIN must be exactly six digits.
func (l *Ledger) SetPin(ctx context.Context, pin string) error {
	if !validPin(pin) {
		return fmt.Errorf("%w: PIN must be %d digits", ErrInvalidInput, PinLength)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.put(ctx, keyPin, pin)
	l.logger.Info().Msg("Admin PIN changed")
	return l.kv.Commit(ctx)
}

// BlockingEnabled reports whether enforcement is switched on. The switch
// defaults to on; without usage visibility the monitor fails open anyway,
// so a fresh install is armed but harmless until permission is granted.
func (l *Ledger) BlockingEnabled(ctx context.Context) (bool, error) {
	return l.kv.GetBool(ctx, keyBlockingEnabled, true)
}

// SetBlockingEnabled switches enforcement on or off. Enabling requires
// usage visibility: without it the monitor could never attribute time and
// would block on stale data.
func (l *Ledger) SetBlockingEnabled(ctx context.Context, enabled bool, hasUsageAccess bool) error {
	if enabled && !hasUsageAccess {
		return ErrPermissionRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.put(ctx, keyBlockingEnabled, enabled)
	l.logger.Info().Bool("enabled", enabled).Msg("Blocking toggled")
	return l.kv.Commit(ctx)
}

// AutostartEnabled reports whether the daemon should arm enforcement on boot.
func (l *Ledger) AutostartEnabled(ctx context.Context) (bool, error) {
	return l.kv.GetBool(ctx, keyAutostartEnabled, false)
}

// SetAutostartEnabled flips the boot-time arming flag.
func (l *Ledger) SetAutostartEnabled(ctx context.Context, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.put(ctx, keyAutostartEnabled, enabled)
	return l.kv.Commit(ctx)
}

// put writes a value, retrying once through a Commit barrier on failure.
// A second failure is logged and swallowed so a flaky store degrades the
// budget rather than crashing enforcement.
func (l *Ledger) put(ctx context.Context, key string, value any) {
	if err := l.set(ctx, key, value); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("Store write failed, retrying")
		if cerr := l.kv.Commit(ctx); cerr != nil {
			l.logger.Warn().Err(cerr).Msg("Store commit during retry failed")
		}
		if err := l.set(ctx, key, value); err != nil {
			l.logger.Error().Err(err).Str("key", key).Msg("Store write failed after retry")
		}
	}
}

func (l *Ledger) set(ctx context.Context, key string, value any) error {
	switch v := value.(type) {
	case string:
		return l.kv.SetString(ctx, key, v)
	case int:
		return l.kv.SetInt(ctx, key, v)
	case int64:
		return l.kv.SetInt64(ctx, key, v)
	case bool:
		return l.kv.SetBool(ctx, key, v)
	default:
		return fmt.Errorf("%w: unsupported value type %T", ErrInvalidInput, value)
	}
}

func validPin(pin string) bool {
	if len(pin) != PinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
