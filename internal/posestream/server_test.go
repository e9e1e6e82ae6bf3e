package posestream

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/pose"
)

type fakeSource struct {
	cur atomic.Pointer[pose.Pose]
}

func (f *fakeSource) set(p pose.Pose) { f.cur.Store(&p) }

func (f *fakeSource) Estimate() pose.Pose {
	if p := f.cur.Load(); p != nil {
		return *p
	}
	return pose.Pose{}
}

func startServer(t *testing.T, src PoseSource) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewServer(src, 2*time.Millisecond)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, conn
}

func TestFrameRoundTrip(t *testing.T) {
	want := Frame{
		MarkerA:   geom.Point3{X: 1, Y: 2, Z: 3},
		MarkerB:   geom.Point3{X: -4.5, Y: 0, Z: 1e-3},
		MarkerC:   geom.Point3{X: 9999, Y: -9999, Z: 0.125},
		Visible:   true,
		Seq:       123456,
		UpdatedAt: time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC),
		Position:  geom.Point3{X: 10, Y: 20, Z: 30},
		Normal:    geom.Point3{Z: 1},
		Yaw:       0.1,
		Pitch:     -0.2,
		Roll:      3.0,
	}
	msg, err := EncodeFrame(want)
	require.NoError(t, err)
	got, err := DecodeFrame(msg)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	empty, err := EncodeFrame(Frame{})
	require.NoError(t, err)
	zero, err := DecodeFrame(empty)
	require.NoError(t, err)
	assert.True(t, zero.UpdatedAt.IsZero())
}

func TestDecodeFrame_Malformed(t *testing.T) {
	msg, err := EncodeFrame(Frame{})
	require.NoError(t, err)
	delete(msg.Fields, "marker_b")
	_, err = DecodeFrame(msg)
	assert.Error(t, err)
}

var errDone = errors.New("done")

func TestSubscribe_SendsOnSeqChange(t *testing.T) {
	src := &fakeSource{}
	src.set(pose.Pose{Seq: 1, Position: geom.Point3{X: 1}})
	s, conn := startServer(t, src)

	frames := make(chan Frame, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- Subscribe(context.Background(), conn, func(f Frame) error {
			frames <- f
			if f.Seq == 2 {
				return errDone
			}
			return nil
		})
	}()

	first := <-frames
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, geom.Point3{X: 1}, first.Position)
	require.Eventually(t, func() bool { return s.Subscribers() == 1 }, 2*time.Second, time.Millisecond)

	// Unchanged Seq sends nothing new.
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame with seq %d", f.Seq)
	case <-time.After(30 * time.Millisecond):
	}

	src.set(pose.Pose{Seq: 2, Position: geom.Point3{X: 2}})
	select {
	case f := <-frames:
		assert.Equal(t, uint64(2), f.Seq)
		assert.Equal(t, geom.Point3{X: 2}, f.Position)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after seq change")
	}

	assert.ErrorIs(t, <-errc, errDone)
	require.Eventually(t, func() bool { return s.Subscribers() == 0 }, 2*time.Second, time.Millisecond)
}

func TestSubscribe_ServerStopEndsStream(t *testing.T) {
	src := &fakeSource{}
	s, conn := startServer(t, src)

	got := make(chan struct{}, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- Subscribe(context.Background(), conn, func(Frame) error {
			select {
			case got <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	<-got
	s.Stop()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Stop")
	}
}

func TestSubscribe_ContextCancel(t *testing.T) {
	src := &fakeSource{}
	_, conn := startServer(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Subscribe(ctx, conn, func(Frame) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}
