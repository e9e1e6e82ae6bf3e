package pose

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/optotrak/internal/geom"
)

// Orientation convention (host frame, radians):
//
//	R(yaw, pitch, roll) = Ry(yaw) · Rx(pitch) · Rz(roll)
//
// A rig at yaw = pitch = roll = 0 lies in the XY plane with its normal along
// +Z and marker A straight above the centroid (+Y). Yaw and pitch come from
// the plane normal; roll is the in-plane twist of marker A about the
// centroid once yaw and pitch have been removed.

// Position returns the unweighted centroid of the three markers.
func Position(s Snapshot) geom.Point3 {
	return geom.Mean(s.MarkerA, s.MarkerB, s.MarkerC)
}

// Normal returns unit((B-A) × (C-A)). Collinear or coincident markers give
// NaN components; callers must guard.
func Normal(s Snapshot) geom.Point3 {
	u := r3.Sub(s.MarkerB, s.MarkerA)
	v := r3.Sub(s.MarkerC, s.MarkerA)
	n := r3.Cross(u, v)
	return geom.Div(n, r3.Norm(n))
}

// NormalToPitchYaw returns the pitch and yaw for which R(yaw, pitch, 0)
// maps +Z onto n:
//
//	pitch = asin(-n.y)
//	yaw   = atan2(n.x, n.z)
//
// NaN input gives NaN output.
func NormalToPitchYaw(n geom.Point3) (pitch, yaw float64) {
	ny := n.Y
	// Unit vectors can overshoot ±1 by an ulp.
	if ny > 1 {
		ny = 1
	} else if ny < -1 {
		ny = -1
	}
	return math.Asin(-ny), math.Atan2(n.X, n.Z)
}

// RotationAngles returns yaw, pitch and roll for s. Degenerate marker
// layouts never produce NaN: pitch and yaw fall back to 0, and roll to 0 if
// it cannot be computed either. Coincident markers give (0, 0, π/2).
func RotationAngles(s Snapshot) (yaw, pitch, roll float64) {
	pitch, yaw = NormalToPitchYaw(Normal(s))
	if math.IsNaN(pitch) {
		pitch = 0
	}
	if math.IsNaN(yaw) {
		yaw = 0
	}

	inv := geom.YawPitchRoll(yaw, pitch, 0).Inverse()
	a := inv.Apply(s.MarkerA)
	b := inv.Apply(s.MarkerB)
	c := inv.Apply(s.MarkerC)
	center := geom.Mean(a, b, c)

	roll = WrapAngle(math.Atan2(center.Y-a.Y, center.X-a.X) + math.Pi/2)
	if math.IsNaN(roll) {
		roll = 0
	}
	return yaw, pitch, roll
}

// Rotation returns the full yaw/pitch/roll transform for s.
func Rotation(s Snapshot) geom.Transform {
	return geom.YawPitchRoll(RotationAngles(s))
}

// Translation returns the translation to Position(s).
func Translation(s Snapshot) geom.Transform {
	return geom.Translation(Position(s))
}

// WrapAngle maps a to the interval (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Pose bundles everything the estimator derives from one snapshot. Normal is
// the zero vector when the markers are degenerate.
type Pose struct {
	MarkerA     geom.Point3
	MarkerB     geom.Point3
	MarkerC     geom.Point3
	Visible     bool
	Seq         uint64
	UpdatedAt   time.Time
	Position    geom.Point3
	Normal      geom.Point3
	Yaw         float64
	Pitch       float64
	Roll        float64
	Rotation    geom.Transform
	Translation geom.Transform
}

// Estimate computes the full pose for s.
func Estimate(s Snapshot) Pose {
	yaw, pitch, roll := RotationAngles(s)
	n := Normal(s)
	if geom.HasNaN(n) {
		n = geom.Point3{}
	}
	return Pose{
		MarkerA:     s.MarkerA,
		MarkerB:     s.MarkerB,
		MarkerC:     s.MarkerC,
		Visible:     s.Visible,
		Seq:         s.Seq,
		UpdatedAt:   s.UpdatedAt,
		Position:    Position(s),
		Normal:      n,
		Yaw:         yaw,
		Pitch:       pitch,
		Roll:        roll,
		Rotation:    geom.YawPitchRoll(yaw, pitch, roll),
		Translation: Translation(s),
	}
}
