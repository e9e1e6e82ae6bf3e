package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RigidTolerance is the tolerance used by IsRigid when checking the rotation
// block of a transform.
const RigidTolerance = 0.01

// Transform is a 4x4 homogeneous transform in row-major order:
// m00,m01,m02,m03, m10,m11,m12,m13, m20,... The last row of a rigid
// transform is always [0 0 0 1].
type Transform [16]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation by p.
func Translation(p Point3) Transform {
	t := Identity()
	t[3], t[7], t[11] = p.X, p.Y, p.Z
	return t
}

// NewRotation returns the rotation R = Ry(yaw)·Rx(pitch)·Rz(roll) acting on
// column vectors: roll about +Z is applied first, then pitch about +X, then
// yaw about +Y. All angles are radians, right-handed.
func NewRotation(yaw, pitch, roll float64) r3.Rotation {
	ry := quat.Number(r3.NewRotation(yaw, r3.Vec{Y: 1}))
	rx := quat.Number(r3.NewRotation(pitch, r3.Vec{X: 1}))
	rz := quat.Number(r3.NewRotation(roll, r3.Vec{Z: 1}))
	return r3.Rotation(quat.Mul(quat.Mul(ry, rx), rz))
}

// FromRotation returns the transform whose rotation block applies r and whose
// translation is zero.
func FromRotation(r r3.Rotation) Transform {
	cx := r.Rotate(r3.Vec{X: 1})
	cy := r.Rotate(r3.Vec{Y: 1})
	cz := r.Rotate(r3.Vec{Z: 1})
	return Transform{
		cx.X, cy.X, cz.X, 0,
		cx.Y, cy.Y, cz.Y, 0,
		cx.Z, cy.Z, cz.Z, 0,
		0, 0, 0, 1,
	}
}

// YawPitchRoll returns the rotation transform for NewRotation(yaw, pitch, roll).
func YawPitchRoll(yaw, pitch, roll float64) Transform {
	return FromRotation(NewRotation(yaw, pitch, roll))
}

// Apply transforms point p by t.
func (t Transform) Apply(p Point3) Point3 {
	return Point3{
		X: t[0]*p.X + t[1]*p.Y + t[2]*p.Z + t[3],
		Y: t[4]*p.X + t[5]*p.Y + t[6]*p.Z + t[7],
		Z: t[8]*p.X + t[9]*p.Y + t[10]*p.Z + t[11],
	}
}

// Mul returns t·o, the transform that applies o first and then t.
func (t Transform) Mul(o Transform) Transform {
	var out Transform
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += t[i*4+k] * o[k*4+j]
			}
			out[i*4+j] = sum
		}
	}
	return out
}

// Inverse returns the inverse of a rigid transform: the rotation block is
// transposed and the translation becomes -Rᵀt. The result is meaningless for
// transforms that scale or shear.
func (t Transform) Inverse() Transform {
	tx, ty, tz := t[3], t[7], t[11]
	return Transform{
		t[0], t[4], t[8], -(t[0]*tx + t[4]*ty + t[8]*tz),
		t[1], t[5], t[9], -(t[1]*tx + t[5]*ty + t[9]*tz),
		t[2], t[6], t[10], -(t[2]*tx + t[6]*ty + t[10]*tz),
		0, 0, 0, 1,
	}
}

// TranslationPart returns the translation column of t.
func (t Transform) TranslationPart() Point3 {
	return Point3{X: t[3], Y: t[7], Z: t[11]}
}

// IsRigid reports whether t is a proper rigid transform: the rotation block
// has determinant 1 within RigidTolerance and the last row is [0 0 0 1].
func (t Transform) IsRigid() bool {
	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > RigidTolerance {
		return false
	}
	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1.0) > 0.001 {
		return false
	}
	return true
}
