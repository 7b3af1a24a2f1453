// Package codes implements single-use redemption codes that grant bonus
// screen time. Codes are generated in batches, stored alongside the budget
// state, and redeemed exactly once.
package codes

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/metrics"
	"github.com/yanmasharski/kidlock-tv/internal/storage"
)

const (
	keyCodes = "codes"

	// CodeLength is the number of digits in a redemption code.
	CodeLength = 6

	// MaxBatchSize bounds one generation request.
	MaxBatchSize = 100

	// maxDrawAttempts bounds the rejection loop when drawing a code that
	// collides with the batch or the admin PIN.
	maxDrawAttempts = 1000
)

var (
	// ErrInvalidInput reports a rejected generation request.
	ErrInvalidInput = errors.New("codes: invalid input")
)

// Code is a single redemption code.
type Code struct {
	Value        string     `json:"value"`
	GrantMinutes int        `json:"grant_minutes"`
	Used         bool       `json:"used"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

// Outcome classifies the result of a redemption attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeAlreadyUsed Outcome = "already_used"
	OutcomeAdminAccess Outcome = "admin_access"
)

// Result describes a redemption attempt. GrantMinutes carries the code's
// nominal grant on success; any debt compensation applied on top is an
// internal budget adjustment and is not reported here.
type Result struct {
	Outcome      Outcome `json:"outcome"`
	GrantMinutes int     `json:"grant_minutes,omitempty"`
}

// Budget is the slice of the budget ledger the code subsystem needs.
type Budget interface {
	EnsureDailyReset(ctx context.Context) (bool, error)
	Pin(ctx context.Context) (string, error)
	DailyLimitMinutes(ctx context.Context) (int, error)
	AddedTimeMinutes(ctx context.Context) (int, error)
	AddBonusMinutes(ctx context.Context, minutes int) error
}

// Manager generates and redeems codes over a settings store.
type Manager struct {
	mu     sync.Mutex
	kv     storage.KV
	budget Budget
	clk    clock.Clock
	logger zerolog.Logger
}

// NewManager creates a code manager.
func NewManager(kv storage.KV, budget Budget, clk clock.Clock, logger zerolog.Logger) *Manager {
	return &Manager{
		kv:     kv,
		budget: budget,
		clk:    clk,
		logger: logger.With().Str("component", "codes").Logger(),
	}
}

// MigrateLegacy clears stored batches that still contain four-digit codes
// from older installs. Short codes cannot be entered on the six-digit lock
// screen, so the whole batch is discarded and the admin generates a new one.
func (m *Manager) MigrateLegacy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return err
	}
	stale := false
	for _, c := range all {
		if len(c.Value) > 0 && len(c.Value) < CodeLength {
			stale = true
			break
		}
	}
	if !stale {
		return nil
	}
	m.logger.Info().Int("count", len(all)).Msg("Clearing obsolete short codes")
	if err := m.persist(ctx, nil); err != nil {
		return err
	}
	return m.kv.Commit(ctx)
}

// Generate replaces all stored codes with a fresh batch, one code per grant.
// Values are drawn randomly and never collide within the batch or with the
// current admin PIN, so every code input stays unambiguous.
func (m *Manager) Generate(ctx context.Context, grants []int) ([]Code, error) {
	if len(grants) == 0 || len(grants) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size must be between 1 and %d", ErrInvalidInput, MaxBatchSize)
	}
	for _, g := range grants {
		if g < 0 {
			return nil, fmt.Errorf("%w: grant minutes must not be negative", ErrInvalidInput)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pin, err := m.budget.Pin(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading pin: %w", err)
	}

	taken := map[string]bool{pin: true}
	batch := make([]Code, 0, len(grants))
	for _, grant := range grants {
		value, err := drawCode(taken)
		if err != nil {
			return nil, err
		}
		taken[value] = true
		batch = append(batch, Code{Value: value, GrantMinutes: grant})
	}

	if err := m.persist(ctx, batch); err != nil {
		return nil, err
	}
	if err := m.kv.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.CodesGeneratedTotal.Add(float64(len(batch)))
	m.logger.Info().Int("count", len(batch)).Msg("Generated code batch")
	return batch, nil
}

// List returns all stored codes, used and unused.
func (m *Manager) List(ctx context.Context) ([]Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx)
}

// Delete removes a single code by value. Deleting an absent code is a no-op.
func (m *Manager) Delete(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, c := range all {
		if c.Value != value {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(all) {
		return nil
	}
	if err := m.persist(ctx, kept); err != nil {
		return err
	}
	return m.kv.Commit(ctx)
}

// Redeem consumes an unused code and credits its grant to the budget. If
// the device is already in debt, the credit also covers the uncovered part
// of the debt so the grant buys real time instead of paying off overshoot.
// usedMinutes is today's tracked usage; pass zero when usage visibility is
// missing.
func (m *Manager) Redeem(ctx context.Context, value string, usedMinutes int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redeemLocked(ctx, value, usedMinutes)
}

func (m *Manager) redeemLocked(ctx context.Context, value string, usedMinutes int) (Result, error) {
	if _, err := m.budget.EnsureDailyReset(ctx); err != nil {
		return Result{}, err
	}

	all, err := m.load(ctx)
	if err != nil {
		return Result{}, err
	}

	idx := -1
	for i, c := range all {
		if c.Value == value {
			idx = i
			break
		}
	}
	if idx == -1 {
		metrics.RedemptionsTotal.WithLabelValues(string(OutcomeNotFound)).Inc()
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if all[idx].Used {
		metrics.RedemptionsTotal.WithLabelValues(string(OutcomeAlreadyUsed)).Inc()
		return Result{Outcome: OutcomeAlreadyUsed}, nil
	}

	grant := all[idx].GrantMinutes
	totalToAdd, err := m.compensatedGrant(ctx, grant, usedMinutes)
	if err != nil {
		return Result{}, err
	}

	// Mark the code used before crediting so a crash between the two
	// steps loses minutes, never duplicates them.
	now := m.clk.Now()
	all[idx].Used = true
	all[idx].UsedAt = &now
	if err := m.persist(ctx, all); err != nil {
		return Result{}, err
	}
	if err := m.kv.Commit(ctx); err != nil {
		return Result{}, err
	}

	if err := m.budget.AddBonusMinutes(ctx, totalToAdd); err != nil {
		return Result{}, err
	}

	metrics.RedemptionsTotal.WithLabelValues(string(OutcomeSuccess)).Inc()
	m.logger.Info().
		Int("grant", grant).
		Int("credited", totalToAdd).
		Msg("Code redeemed")
	return Result{Outcome: OutcomeSuccess, GrantMinutes: grant}, nil
}

// Submit handles dual-purpose input from the lock screen: input matching a
// stored code is treated as a redemption attempt, even when the code was
// already spent; only input matching no code at all falls back to the admin
// PIN comparison.
func (m *Manager) Submit(ctx context.Context, input string, usedMinutes int) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.load(ctx)
	if err != nil {
		return Result{}, err
	}
	for _, c := range all {
		if c.Value == input {
			return m.redeemLocked(ctx, input, usedMinutes)
		}
	}

	pin, err := m.budget.Pin(ctx)
	if err != nil {
		return Result{}, err
	}
	if input == pin {
		return Result{Outcome: OutcomeAdminAccess}, nil
	}
	metrics.RedemptionsTotal.WithLabelValues(string(OutcomeNotFound)).Inc()
	return Result{Outcome: OutcomeNotFound}, nil
}

// compensatedGrant returns the grant plus any part of today's debt that the
// current bonus does not already cover.
func (m *Manager) compensatedGrant(ctx context.Context, grant, usedMinutes int) (int, error) {
	limit, err := m.budget.DailyLimitMinutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading daily limit: %w", err)
	}
	added, err := m.budget.AddedTimeMinutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading added time: %w", err)
	}

	extraUsed := usedMinutes - limit
	if extraUsed < 0 {
		extraUsed = 0
	}
	uncoveredDebt := extraUsed - added
	if uncoveredDebt < 0 {
		uncoveredDebt = 0
	}
	return grant + uncoveredDebt, nil
}

func (m *Manager) load(ctx context.Context) ([]Code, error) {
	raw, err := m.kv.GetString(ctx, keyCodes, "")
	if err != nil {
		return nil, fmt.Errorf("reading codes: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var all []Code
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("decoding codes: %w", err)
	}
	return all, nil
}

func (m *Manager) persist(ctx context.Context, all []Code) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encoding codes: %w", err)
	}
	return m.kv.SetString(ctx, keyCodes, string(data))
}

// drawCode draws a random six-digit value not present in taken.
func drawCode(taken map[string]bool) (string, error) {
	max := big.NewInt(1000000)
	for i := 0; i < maxDrawAttempts; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("drawing code: %w", err)
		}
		value := fmt.Sprintf("%06d", n.Int64())
		if !taken[value] {
			return value, nil
		}
	}
	return "", errors.New("codes: could not draw a unique code")
}
