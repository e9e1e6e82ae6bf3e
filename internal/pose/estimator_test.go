package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/optotrak/internal/geom"
)

const angleTol = 1e-4

// rigAt places an equilateral marker triangle of the given radius with the
// given orientation and centroid. At zero rotation marker A sits on +Y and
// the winding makes the normal point along +Z.
func rigAt(yaw, pitch, roll float64, center geom.Point3, radius float64) Snapshot {
	s := math.Sqrt(3) / 2
	local := [3]geom.Point3{
		{X: 0, Y: radius},
		{X: -s * radius, Y: -radius / 2},
		{X: s * radius, Y: -radius / 2},
	}
	rot := geom.NewRotation(yaw, pitch, roll)
	var world [3]geom.Point3
	for i, p := range local {
		world[i] = r3.Add(rot.Rotate(p), center)
	}
	return Snapshot{MarkerA: world[0], MarkerB: world[1], MarkerC: world[2]}
}

func angleDiff(a, b float64) float64 {
	return math.Abs(WrapAngle(a - b))
}

func TestPosition_IsCentroid(t *testing.T) {
	s := Snapshot{
		MarkerA: geom.Point3{X: 3, Y: 0, Z: 0},
		MarkerB: geom.Point3{X: 0, Y: 6, Z: 0},
		MarkerC: geom.Point3{X: 0, Y: 0, Z: 9},
	}
	assert.Equal(t, geom.Point3{X: 1, Y: 2, Z: 3}, Position(s))
	assert.Equal(t, geom.Translation(geom.Point3{X: 1, Y: 2, Z: 3}), Translation(s))
}

func TestNormal_RightHanded(t *testing.T) {
	s := Snapshot{
		MarkerA: geom.Point3{},
		MarkerB: geom.Point3{X: 5},
		MarkerC: geom.Point3{Y: 2},
	}
	n := Normal(s)
	assert.InDelta(t, 0, n.X, 1e-12)
	assert.InDelta(t, 0, n.Y, 1e-12)
	assert.InDelta(t, 1, n.Z, 1e-12)
}

func TestNormal_DegenerateIsNaN(t *testing.T) {
	p := geom.Point3{X: 1, Y: 2, Z: 3}
	assert.True(t, geom.HasNaN(Normal(Snapshot{MarkerA: p, MarkerB: p, MarkerC: p})))

	collinear := Snapshot{
		MarkerA: geom.Point3{},
		MarkerB: geom.Point3{X: 1, Y: 1, Z: 1},
		MarkerC: geom.Point3{X: 2, Y: 2, Z: 2},
	}
	assert.True(t, geom.HasNaN(Normal(collinear)))
}

func TestNormalToPitchYaw(t *testing.T) {
	pitch, yaw := NormalToPitchYaw(geom.Point3{Z: 1})
	assert.Equal(t, 0.0, pitch)
	assert.Equal(t, 0.0, yaw)

	pitch, yaw = NormalToPitchYaw(geom.Point3{X: 1})
	assert.InDelta(t, 0, pitch, 1e-12)
	assert.InDelta(t, math.Pi/2, yaw, 1e-12)

	pitch, _ = NormalToPitchYaw(geom.Point3{Y: -1.0000000000000002})
	assert.InDelta(t, math.Pi/2, pitch, 1e-12)

	pitch, yaw = NormalToPitchYaw(geom.Point3{X: math.NaN(), Y: math.NaN(), Z: math.NaN()})
	assert.True(t, math.IsNaN(pitch))
	assert.True(t, math.IsNaN(yaw))
}

func TestRotationAngles_RoundTrip(t *testing.T) {
	yaws := []float64{-3.0, -1.2, 0, 0.4, 1.7, 3.1}
	pitches := []float64{-1.4, -0.6, 0, 0.25, 1.1, 1.4}
	rolls := []float64{-3.1, -1.5, -0.2, 0, 0.9, 2.8}
	center := geom.Point3{X: 120, Y: -45, Z: 310}

	for _, yaw := range yaws {
		for _, pitch := range pitches {
			for _, roll := range rolls {
				s := rigAt(yaw, pitch, roll, center, 50)
				gotYaw, gotPitch, gotRoll := RotationAngles(s)
				assert.LessOrEqual(t, angleDiff(yaw, gotYaw), angleTol, "yaw for (%v,%v,%v)", yaw, pitch, roll)
				assert.LessOrEqual(t, angleDiff(pitch, gotPitch), angleTol, "pitch for (%v,%v,%v)", yaw, pitch, roll)
				assert.LessOrEqual(t, angleDiff(roll, gotRoll), angleTol, "roll for (%v,%v,%v)", yaw, pitch, roll)
			}
		}
	}
}

func TestRotation_ReconstructsRig(t *testing.T) {
	center := geom.Point3{X: -10, Y: 20, Z: 30}
	s := rigAt(0.8, -0.3, 2.0, center, 40)

	rot := Rotation(s)
	require.True(t, rot.IsRigid())

	// Rotating the reference rig and translating to the position must put
	// every marker back where it was observed.
	ref := rigAt(0, 0, 0, geom.Point3{}, 40)
	full := Translation(s).Mul(rot)
	for i, want := range s.Markers() {
		got := full.Apply(ref.Markers()[i])
		assert.InDelta(t, want.X, got.X, 1e-6)
		assert.InDelta(t, want.Y, got.Y, 1e-6)
		assert.InDelta(t, want.Z, got.Z, 1e-6)
	}
}

func TestRotationAngles_Coincident(t *testing.T) {
	p := geom.Point3{X: 7, Y: -3, Z: 100}
	yaw, pitch, roll := RotationAngles(Snapshot{MarkerA: p, MarkerB: p, MarkerC: p})
	assert.Equal(t, 0.0, yaw)
	assert.Equal(t, 0.0, pitch)
	assert.InDelta(t, math.Pi/2, roll, 1e-12)
}

func TestRotationAngles_ZeroState(t *testing.T) {
	yaw, pitch, roll := RotationAngles(Snapshot{})
	assert.False(t, math.IsNaN(yaw) || math.IsNaN(pitch) || math.IsNaN(roll))
	assert.Equal(t, 0.0, yaw)
	assert.Equal(t, 0.0, pitch)
}

func TestRotationAngles_NonFiniteMarkersDoNotLeakNaN(t *testing.T) {
	s := Snapshot{
		MarkerA: geom.Point3{X: math.NaN()},
		MarkerB: geom.Point3{X: 1},
		MarkerC: geom.Point3{Y: 1},
	}
	yaw, pitch, roll := RotationAngles(s)
	assert.Equal(t, 0.0, yaw)
	assert.Equal(t, 0.0, pitch)
	assert.Equal(t, 0.0, roll)
}

func TestEstimate(t *testing.T) {
	s := rigAt(0.5, 0.2, -0.7, geom.Point3{X: 1, Y: 2, Z: 3}, 25)
	s.Visible = true
	s.Seq = 42

	p := Estimate(s)
	assert.True(t, p.Visible)
	assert.Equal(t, uint64(42), p.Seq)
	assert.InDelta(t, 1, p.Position.X, 1e-9)
	assert.InDelta(t, 2, p.Position.Y, 1e-9)
	assert.InDelta(t, 3, p.Position.Z, 1e-9)
	assert.InDelta(t, 1, r3.Norm(p.Normal), 1e-9)
	assert.LessOrEqual(t, angleDiff(0.5, p.Yaw), angleTol)
	assert.LessOrEqual(t, angleDiff(0.2, p.Pitch), angleTol)
	assert.LessOrEqual(t, angleDiff(-0.7, p.Roll), angleTol)
	assert.Equal(t, geom.YawPitchRoll(p.Yaw, p.Pitch, p.Roll), p.Rotation)
}

func TestEstimate_DegenerateNormalIsZero(t *testing.T) {
	p := Estimate(Snapshot{})
	assert.Equal(t, geom.Point3{}, p.Normal)
}

func TestWrapAngle(t *testing.T) {
	cases := map[float64]float64{
		0:               0,
		math.Pi:         math.Pi,
		-math.Pi:        math.Pi,
		3 * math.Pi / 2: -math.Pi / 2,
		-3 * math.Pi:    math.Pi,
		5:               5 - 2*math.Pi,
	}
	for in, want := range cases {
		assert.InDelta(t, want, WrapAngle(in), 1e-12, "WrapAngle(%v)", in)
	}
}
