package usagestats

import (
	"context"
	"errors"
	"time"
)

// ErrUsageAccessDenied is returned when the usage ledger cannot be read
// because the required permission has not been granted.
var ErrUsageAccessDenied = errors.New("usagestats: usage access not granted")

// AppUsage is one package's aggregate foreground time within a query window.
type AppUsage struct {
	Package        string        `json:"package"`
	ForegroundTime time.Duration `json:"foreground_time"`
}

// Provider is the OS usage ledger collaborator. Implementations may be
// permission-gated; HasPermission must be checked before querying.
type Provider interface {
	// HasPermission reports whether the usage ledger may be read at all.
	HasPermission() bool

	// QueryForeground returns per-package aggregate foreground time for the
	// [from, to) window. The figures may lag behind a session still in
	// progress; callers top up the live session themselves.
	QueryForeground(ctx context.Context, from, to time.Time) ([]AppUsage, error)

	// MostRecentPackage returns the package most recently seen in the
	// foreground, if the ledger knows one.
	MostRecentPackage(ctx context.Context) (string, bool)
}
