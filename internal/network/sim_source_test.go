package network

import (
	"context"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/packet"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/timeutil"
)

func TestSampleAt_Origin(t *testing.T) {
	m := SampleAt(0)

	// Marker A sits SimRadius above the orbit point at (0, 100, 300).
	a := pose.TrackerToHost(m.A)
	assert.InDelta(t, 0, a.X, 1e-9)
	assert.InDelta(t, SimHeight+SimRadius, a.Y, 1e-9)
	assert.InDelta(t, SimOrbitRadius, a.Z, 1e-9)
}

func TestSampleAt_YawFollowsOrbit(t *testing.T) {
	for _, sec := range []float64{0, 0.5, 1, 2, 3, -2.5} {
		elapsed := time.Duration(sec * float64(time.Second))
		m := SampleAt(elapsed)

		// Round-trip through the wire format to include float32 quantisation.
		wire := packet.Encode(m)
		decoded, err := packet.Decode(wire[:])
		require.NoError(t, err)

		s := pose.Snapshot{
			MarkerA: pose.TrackerToHost(decoded.A),
			MarkerB: pose.TrackerToHost(decoded.B),
			MarkerC: pose.TrackerToHost(decoded.C),
		}
		yaw, pitch, roll := pose.RotationAngles(s)
		assert.InDelta(t, 0, math.Abs(pose.WrapAngle(yaw-sec)), 1e-3, "yaw at %vs", sec)
		assert.InDelta(t, 0, pitch, 1e-3, "pitch at %vs", sec)
		assert.InDelta(t, 0, math.Abs(pose.WrapAngle(roll)), 1e-3, "roll at %vs", sec)

		center := pose.Position(s)
		want := geom.Point3{X: math.Sin(sec) * SimOrbitRadius, Y: SimHeight, Z: math.Cos(sec) * SimOrbitRadius}
		assert.InDelta(t, want.X, center.X, 1e-3)
		assert.InDelta(t, want.Y, center.Y, 1e-3)
		assert.InDelta(t, want.Z, center.Z, 1e-3)
	}
}

func TestSimulatedSource_EmitsOnTick(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	src := NewSimulatedSource(clock, 10*time.Millisecond)
	defer src.Close()

	clock.Advance(10 * time.Millisecond)

	buf := make([]byte, 64)
	n, err := src.Next(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, packet.Size, n)

	want := packet.Encode(SampleAt(10 * time.Millisecond))
	assert.Equal(t, want[:], buf[:n])
}

func TestSimulatedSource_ShortBuffer(t *testing.T) {
	src := NewSimulatedSource(timeutil.NewMockClock(time.Unix(0, 0)), time.Millisecond)
	defer src.Close()

	_, err := src.Next(context.Background(), make([]byte, packet.Size-1))
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestSimulatedSource_CloseAndCancel(t *testing.T) {
	src := NewSimulatedSource(timeutil.NewMockClock(time.Unix(0, 0)), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx, make([]byte, packet.Size))
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err = src.Next(context.Background(), make([]byte, packet.Size))
	assert.ErrorIs(t, err, net.ErrClosed)
}
