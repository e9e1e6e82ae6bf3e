// Package geom holds the vector and rigid-transform types shared by the
// marker pipeline and the pose estimator.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point3 is a position or direction. It is gonum's r3.Vec so the r3 helpers
// (Add, Sub, Cross, Unit, ...) apply directly.
type Point3 = r3.Vec

// Mean returns the arithmetic mean of pts, or the zero vector when pts is empty.
func Mean(pts ...Point3) Point3 {
	if len(pts) == 0 {
		return Point3{}
	}
	var sum Point3
	for _, p := range pts {
		sum = r3.Add(sum, p)
	}
	return Div(sum, float64(len(pts)))
}

// Div divides every component of p by d.
func Div(p Point3, d float64) Point3 {
	return Point3{X: p.X / d, Y: p.Y / d, Z: p.Z / d}
}

// HasNaN reports whether any component of p is NaN.
func HasNaN(p Point3) bool {
	return math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z)
}

// Components returns p as an array, x first.
func Components(p Point3) [3]float64 {
	return [3]float64{p.X, p.Y, p.Z}
}
