package pose

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/optotrak/internal/geom"
)

// DefaultVisibilityThreshold is the per-axis magnitude above which the
// tracker is reporting a marker it cannot see.
const DefaultVisibilityThreshold = 10000.0

// IsVisible reports whether every component of p lies within
// [-threshold, threshold]. The bound is inclusive. NaN components are
// invisible.
func IsVisible(p geom.Point3, threshold float64) bool {
	for _, c := range geom.Components(p) {
		if math.IsNaN(c) || math.Abs(c) > threshold {
			return false
		}
	}
	return true
}

// VisibilityPolicy selects who owns the Snapshot.Visible flag.
type VisibilityPolicy int

const (
	// VisibilityHost leaves the flag to the host; the receiver loop never
	// writes it.
	VisibilityHost VisibilityPolicy = iota
	// VisibilityDerived makes the receiver loop set the flag to true only
	// when all three markers in the latest packet were visible.
	VisibilityDerived
)

func (p VisibilityPolicy) String() string {
	switch p {
	case VisibilityHost:
		return "host"
	case VisibilityDerived:
		return "derived"
	default:
		return fmt.Sprintf("VisibilityPolicy(%d)", int(p))
	}
}

// ParseVisibilityPolicy parses "host" or "derived". Empty means host.
func ParseVisibilityPolicy(s string) (VisibilityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "host":
		return VisibilityHost, nil
	case "derived":
		return VisibilityDerived, nil
	default:
		return VisibilityHost, fmt.Errorf("unknown visibility policy %q (want host or derived)", s)
	}
}
