// Package smoothing implements the fixed-window moving average applied to
// each marker stream before it reaches the pose state.
package smoothing

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/optotrak/internal/geom"
)

// Capacity is the number of samples averaged per marker.
const Capacity = 10

// Buffer is a fixed-capacity ring of points. Average always divides by the
// full capacity: slots that were never written count as zero vectors, so the
// reported mean is pulled toward the origin until Capacity samples have been
// pushed. Buffer is not safe for concurrent use; the receiver loop owns it.
type Buffer struct {
	slots  []geom.Point3
	next   int
	filled int
}

// New returns a Buffer with the default Capacity.
func New() *Buffer {
	return NewWithCapacity(Capacity)
}

// NewWithCapacity returns a Buffer holding n samples. n below 1 is clamped to 1.
func NewWithCapacity(n int) *Buffer {
	if n < 1 {
		n = 1
	}
	return &Buffer{slots: make([]geom.Point3, n)}
}

// Push overwrites the slot at the write index and advances it, wrapping at
// the capacity.
func (b *Buffer) Push(v geom.Point3) {
	b.slots[b.next] = v
	b.next++
	if b.next >= len(b.slots) {
		b.next = 0
	}
	if b.filled < len(b.slots) {
		b.filled++
	}
}

// Average returns the mean of every slot, written or not.
func (b *Buffer) Average() geom.Point3 {
	var sum geom.Point3
	for _, v := range b.slots {
		sum = r3.Add(sum, v)
	}
	return geom.Div(sum, float64(len(b.slots)))
}

// PushAverage pushes v and returns the new average.
func (b *Buffer) PushAverage(v geom.Point3) geom.Point3 {
	b.Push(v)
	return b.Average()
}

// Len returns the capacity. It never changes.
func (b *Buffer) Len() int {
	return len(b.slots)
}

// Filled returns how many slots have been written, saturating at Len.
func (b *Buffer) Filled() int {
	return b.filled
}

// Reset zeroes every slot and rewinds the write index.
func (b *Buffer) Reset() {
	for i := range b.slots {
		b.slots[i] = geom.Point3{}
	}
	b.next = 0
	b.filled = 0
}
