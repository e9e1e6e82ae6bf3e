// Package packet encodes and decodes the marker datagram sent by the
// tracker host: three consecutive (x, y, z) float32 records for markers A,
// B and C, little-endian, with no header, checksum or sequence number.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/optotrak/internal/geom"
)

const (
	// Size is the exact length of a marker datagram in bytes.
	Size = 3 * recordSize

	recordSize = 3 * 4
)

// ErrDecode matches every *DecodeError via errors.Is.
var ErrDecode = errors.New("invalid marker packet")

// DecodeError reports a datagram that is not exactly Size bytes.
type DecodeError struct {
	Len int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("marker packet must be %d bytes, got %d", Size, e.Len)
}

// Is makes errors.Is(err, ErrDecode) true for any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Markers holds one raw sample per marker, in wire order.
type Markers struct {
	A, B, C geom.Point3
}

// Array returns the samples as [A, B, C].
func (m Markers) Array() [3]geom.Point3 {
	return [3]geom.Point3{m.A, m.B, m.C}
}

// Decode parses a marker datagram. Values are not validated: NaN and Inf are
// passed through for the visibility filter to reject.
func Decode(b []byte) (Markers, error) {
	if len(b) != Size {
		return Markers{}, &DecodeError{Len: len(b)}
	}
	return Markers{
		A: readPoint(b[0:recordSize]),
		B: readPoint(b[recordSize : 2*recordSize]),
		C: readPoint(b[2*recordSize : 3*recordSize]),
	}, nil
}

func readPoint(b []byte) geom.Point3 {
	return geom.Point3{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))),
	}
}

// Encode returns the datagram for m. Components are narrowed to float32.
func Encode(m Markers) [Size]byte {
	var out [Size]byte
	AppendEncode(out[:0], m)
	return out
}

// AppendEncode appends the datagram for m to dst and returns the extended slice.
func AppendEncode(dst []byte, m Markers) []byte {
	for _, p := range m.Array() {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(p.X)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(p.Y)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(p.Z)))
	}
	return dst
}
