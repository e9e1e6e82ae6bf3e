package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/optotrak/internal/geom"
)

func TestIsVisible_Boundary(t *testing.T) {
	th := DefaultVisibilityThreshold

	tests := []struct {
		name string
		p    geom.Point3
		want bool
	}{
		{"origin", geom.Point3{}, true},
		{"x at threshold", geom.Point3{X: 10000}, true},
		{"x at negative threshold", geom.Point3{X: -10000}, true},
		{"y at threshold", geom.Point3{Y: 10000}, true},
		{"z at threshold", geom.Point3{Z: -10000}, true},
		{"x just over", geom.Point3{X: 10000.0001}, false},
		{"x just under negative", geom.Point3{X: -10000.0001}, false},
		{"y just over", geom.Point3{Y: 10000.0001}, false},
		{"z just over", geom.Point3{Z: -10000.0001}, false},
		{"next float32 above", geom.Point3{X: float64(math.Nextafter32(10000, 20000))}, false},
		{"inf", geom.Point3{Y: math.Inf(1)}, false},
		{"nan", geom.Point3{Z: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVisible(tt.p, th))
		})
	}
}

func TestParseVisibilityPolicy(t *testing.T) {
	p, err := ParseVisibilityPolicy("")
	require.NoError(t, err)
	assert.Equal(t, VisibilityHost, p)

	p, err = ParseVisibilityPolicy("Derived")
	require.NoError(t, err)
	assert.Equal(t, VisibilityDerived, p)
	assert.Equal(t, "derived", p.String())

	_, err = ParseVisibilityPolicy("sometimes")
	assert.Error(t, err)
}

func TestTrackerToHost(t *testing.T) {
	in := geom.Point3{X: 1, Y: 2, Z: 3}
	assert.Equal(t, geom.Point3{X: 2, Y: 3, Z: 1}, TrackerToHost(in))
	assert.Equal(t, in, HostToTracker(TrackerToHost(in)))
	assert.Equal(t, in, TrackerToHost(HostToTracker(in)))
}
