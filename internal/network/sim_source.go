package network

import (
	"context"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/packet"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/timeutil"
)

// Simulated rig geometry, host-frame millimetres.
const (
	SimRadius      = 50.0
	SimOrbitRadius = 300.0
	SimHeight      = 100.0
)

// DefaultSimulationTick is roughly one sample per 60 Hz frame.
const DefaultSimulationTick = 16 * time.Millisecond

// SimulatedSource emits a rig orbiting the origin once every 2π seconds,
// turning so its yaw equals the orbit angle. It needs no hardware.
type SimulatedSource struct {
	clock  timeutil.Clock
	ticker timeutil.Ticker
	start  time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewSimulatedSource starts a source that produces one datagram per tick.
func NewSimulatedSource(clock timeutil.Clock, tick time.Duration) *SimulatedSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if tick <= 0 {
		tick = DefaultSimulationTick
	}
	return &SimulatedSource{
		clock:  clock,
		ticker: clock.NewTicker(tick),
		start:  clock.Now(),
		done:   make(chan struct{}),
	}
}

// SampleAt returns the raw tracker-frame markers elapsed into the orbit.
func SampleAt(elapsed time.Duration) packet.Markers {
	theta := elapsed.Seconds()
	center := geom.Point3{
		X: math.Sin(theta) * SimOrbitRadius,
		Y: SimHeight,
		Z: math.Cos(theta) * SimOrbitRadius,
	}
	s := math.Sqrt(3) / 2
	local := [3]geom.Point3{
		{X: 0, Y: SimRadius},
		{X: -s * SimRadius, Y: -SimRadius / 2},
		{X: s * SimRadius, Y: -SimRadius / 2},
	}
	rot := geom.NewRotation(theta, 0, 0)
	var out [3]geom.Point3
	for i, p := range local {
		out[i] = pose.HostToTracker(r3.Add(rot.Rotate(p), center))
	}
	return packet.Markers{A: out[0], B: out[1], C: out[2]}
}

// Next implements Source.
func (s *SimulatedSource) Next(ctx context.Context, buf []byte) (int, error) {
	if len(buf) < packet.Size {
		return 0, io.ErrShortBuffer
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		return 0, net.ErrClosed
	case now := <-s.ticker.C():
		b := packet.Encode(SampleAt(now.Sub(s.start)))
		return copy(buf, b[:]), nil
	}
}

// Close stops the ticker.
func (s *SimulatedSource) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
