// Package pose holds the shared marker state written by the receiver loop
// and the estimator that turns a snapshot of it into position and
// orientation.
package pose

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/optotrak/internal/geom"
)

// Snapshot is an immutable view of the three marker positions in the host
// frame. A Snapshot is never modified after it has been published.
type Snapshot struct {
	MarkerA geom.Point3
	MarkerB geom.Point3
	MarkerC geom.Point3
	// Visible is the rig-level visibility flag. Who sets it depends on the
	// tracker's VisibilityPolicy.
	Visible bool
	// Seq counts commits from the receiver loop. Zero means no packet has
	// been accepted yet.
	Seq       uint64
	UpdatedAt time.Time
}

// Markers returns the three markers as [A, B, C].
func (s Snapshot) Markers() [3]geom.Point3 {
	return [3]geom.Point3{s.MarkerA, s.MarkerB, s.MarkerC}
}

// Store publishes snapshots to any number of readers. Writers are serialised
// and each write replaces the whole snapshot with one pointer swap, so a
// reader sees either the previous packet or the next one, never a mix.
// The zero value is ready to use and reads as the zero Snapshot.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Load returns the current snapshot.
func (s *Store) Load() Snapshot {
	if p := s.cur.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// Update copies the current snapshot, lets fn modify the copy, then
// publishes it and returns it.
func (s *Store) Update(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Load()
	fn(&next)
	s.cur.Store(&next)
	return next
}

// SetVisible publishes a copy of the current snapshot with Visible set to v.
// Seq is left unchanged.
func (s *Store) SetVisible(v bool) {
	s.Update(func(snap *Snapshot) {
		snap.Visible = v
	})
}
