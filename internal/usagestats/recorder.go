package usagestats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/storage"
)

// DefaultSampleTimeout is the maximum gap between two foreground samples of
// the same package that is still credited as continuous use.
const DefaultSampleTimeout = 2 * time.Minute

const (
	keyUsagePrefix = "usage:"      // usage:<date>:<pkg> -> seconds
	keyUsageIndex  = "usage_pkgs:" // usage_pkgs:<date>  -> JSON package list
)

// Recorder is a storage-backed usage ledger fed by pushed foreground samples.
// It plays the role the OS usage-stats service plays on a TV device: each
// sample of the same package within the sample timeout credits the elapsed
// gap to that package's daily aggregate.
type Recorder struct {
	kv            storage.KV
	clk           clock.Clock
	sampleTimeout time.Duration
	logger        zerolog.Logger

	mu          sync.Mutex
	lastPackage string
	lastSeen    time.Time
}

// NewRecorder creates a recorder over the durable store. A zero sampleTimeout
// selects DefaultSampleTimeout.
func NewRecorder(kv storage.KV, clk clock.Clock, sampleTimeout time.Duration, logger zerolog.Logger) *Recorder {
	if sampleTimeout == 0 {
		sampleTimeout = DefaultSampleTimeout
	}
	return &Recorder{
		kv:            kv,
		clk:           clk,
		sampleTimeout: sampleTimeout,
		logger:        logger.With().Str("component", "usage-recorder").Logger(),
	}
}

// Observe records that pkg is in the foreground now. Consecutive samples of
// the same package within the sample timeout credit the gap between them.
// An empty pkg clears the tracked state (user returned to an idle surface).
func (r *Recorder) Observe(ctx context.Context, pkg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	defer func() {
		r.lastPackage = pkg
		r.lastSeen = now
	}()

	if pkg == "" || pkg != r.lastPackage || r.lastSeen.IsZero() {
		return nil
	}

	gap := now.Sub(r.lastSeen)
	if gap <= 0 || gap > r.sampleTimeout {
		return nil
	}

	// Credit the gap to the sample's calendar day. A gap spanning midnight is
	// credited to the day it started in; the error is bounded by one sample.
	date := clock.StartOfDay(r.lastSeen).Format("2006-01-02")
	if err := r.credit(ctx, date, pkg, int64(gap/time.Second)); err != nil {
		r.logger.Error().Err(err).Str("package", pkg).Msg("Failed to credit usage sample")
		return err
	}
	return nil
}

// HasPermission always holds for the in-process recorder.
func (r *Recorder) HasPermission() bool {
	return true
}

// QueryForeground returns the per-package aggregates for the calendar day
// containing from. Aggregation is daily, matching the OS ledger's daily
// interval query.
func (r *Recorder) QueryForeground(ctx context.Context, from, _ time.Time) ([]AppUsage, error) {
	date := clock.StartOfDay(from).Format("2006-01-02")

	packages, err := r.readIndex(ctx, date)
	if err != nil {
		return nil, err
	}

	usages := make([]AppUsage, 0, len(packages))
	for _, pkg := range packages {
		seconds, err := r.kv.GetInt64(ctx, keyUsagePrefix+date+":"+pkg, 0)
		if err != nil {
			return nil, fmt.Errorf("read usage for %s: %w", pkg, err)
		}
		usages = append(usages, AppUsage{
			Package:        pkg,
			ForegroundTime: time.Duration(seconds) * time.Second,
		})
	}
	return usages, nil
}

// MostRecentPackage returns the last observed foreground package if the
// observation is fresh enough to still be meaningful.
func (r *Recorder) MostRecentPackage(_ context.Context) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastPackage == "" || r.lastSeen.IsZero() {
		return "", false
	}
	if r.clk.Now().Sub(r.lastSeen) > r.sampleTimeout {
		return "", false
	}
	return r.lastPackage, true
}

func (r *Recorder) credit(ctx context.Context, date, pkg string, seconds int64) error {
	key := keyUsagePrefix + date + ":" + pkg
	current, err := r.kv.GetInt64(ctx, key, 0)
	if err != nil {
		return err
	}
	if current == 0 {
		if err := r.addToIndex(ctx, date, pkg); err != nil {
			return err
		}
	}
	return r.kv.SetInt64(ctx, key, current+seconds)
}

func (r *Recorder) readIndex(ctx context.Context, date string) ([]string, error) {
	raw, err := r.kv.GetString(ctx, keyUsageIndex+date, "")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var packages []string
	if err := json.Unmarshal([]byte(raw), &packages); err != nil {
		return nil, fmt.Errorf("decode usage index: %w", err)
	}
	return packages, nil
}

func (r *Recorder) addToIndex(ctx context.Context, date, pkg string) error {
	packages, err := r.readIndex(ctx, date)
	if err != nil {
		return err
	}
	for _, existing := range packages {
		if existing == pkg {
			return nil
		}
	}
	packages = append(packages, pkg)
	data, err := json.Marshal(packages)
	if err != nil {
		return fmt.Errorf("encode usage index: %w", err)
	}
	return r.kv.SetString(ctx, keyUsageIndex+date, string(data))
}
