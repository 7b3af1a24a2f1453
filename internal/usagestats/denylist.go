package usagestats

import "strings"

// knownSystemPackages are launcher and system-UI surfaces that never count
// against the budget on TV devices.
var knownSystemPackages = []string{
	"com.google.android.leanbacklauncher",
	"com.google.android.tvlauncher",
	"com.android.systemui",
	"android",
	"com.google.android.tv.settings",
	"com.android.settings",
	"com.google.android.backdrop", // screensaver
}

// DenyList is the fixed set of packages excluded from usage accounting and
// from block decisions: the engine itself, the default home screen, known
// TV launchers and system UI.
type DenyList struct {
	exact map[string]struct{}
}

// NewDenyList builds a deny-list around the engine's own package and the
// resolved default home-screen package. extra entries come from config.
func NewDenyList(selfPackage, homePackage string, extra []string) *DenyList {
	exact := make(map[string]struct{}, len(knownSystemPackages)+len(extra)+2)
	for _, pkg := range knownSystemPackages {
		exact[pkg] = struct{}{}
	}
	for _, pkg := range extra {
		if pkg != "" {
			exact[pkg] = struct{}{}
		}
	}
	if selfPackage != "" {
		exact[selfPackage] = struct{}{}
	}
	if homePackage != "" {
		exact[homePackage] = struct{}{}
	}
	return &DenyList{exact: exact}
}

// Contains reports whether pkg is excluded from usage accounting.
func (d *DenyList) Contains(pkg string) bool {
	_, ok := d.exact[pkg]
	return ok
}

// IsSystemSurface reports whether pkg is a system/launcher surface for block
// decisions. Broader than Contains: any com.android.* or android* package
// counts as a system surface even if it is not in the exact accounting set.
func (d *DenyList) IsSystemSurface(pkg string) bool {
	if d.Contains(pkg) {
		return true
	}
	return strings.HasPrefix(pkg, "com.android") || strings.HasPrefix(pkg, "android")
}
