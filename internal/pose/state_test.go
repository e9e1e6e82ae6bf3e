package pose

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/optotrak/internal/geom"
)

func TestStore_ZeroValue(t *testing.T) {
	var s Store
	assert.Equal(t, Snapshot{}, s.Load())
}

func TestStore_UpdateAndSetVisible(t *testing.T) {
	s := NewStore()
	got := s.Update(func(snap *Snapshot) {
		snap.MarkerA = geom.Point3{X: 1}
		snap.Seq++
	})
	assert.Equal(t, uint64(1), got.Seq)
	assert.Equal(t, got, s.Load())

	s.SetVisible(true)
	loaded := s.Load()
	assert.True(t, loaded.Visible)
	assert.Equal(t, uint64(1), loaded.Seq, "SetVisible must not count as a commit")
	assert.Equal(t, geom.Point3{X: 1}, loaded.MarkerA)
}

func TestStore_SingleWriterManyReadersSeeWholePackets(t *testing.T) {
	s := NewStore()
	const writes = 20000
	const readers = 8

	var done atomic.Bool
	var torn atomic.Int64
	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				snap := s.Load()
				// Every commit writes the same value k into all nine
				// components, k being the commit number.
				k := float64(snap.Seq)
				for _, m := range snap.Markers() {
					if m.X != k || m.Y != k || m.Z != k {
						torn.Add(1)
					}
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		v := float64(i)
		s.Update(func(snap *Snapshot) {
			p := geom.Point3{X: v, Y: v, Z: v}
			snap.MarkerA, snap.MarkerB, snap.MarkerC = p, p, p
			snap.Seq = uint64(i)
		})
	}
	done.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load())
	assert.Equal(t, uint64(writes), s.Load().Seq)
}
