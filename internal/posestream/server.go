// Package posestream publishes the tracker pose to gRPC subscribers. The
// service is described by hand and carries google.protobuf.Struct frames, so
// no generated code is needed on either side.
package posestream

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/pose"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "optotrak.PoseStream"

// DefaultInterval polls the pose at roughly 60 Hz.
const DefaultInterval = 16 * time.Millisecond

const subscribeMethod = "/" + ServiceName + "/Subscribe"

// PoseSource is the part of *tracker.Tracker the stream reads.
type PoseSource interface {
	Estimate() pose.Pose
}

type poseStreamServer interface {
	subscribe(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*poseStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "optotrak/posestream.proto",
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(poseStreamServer).subscribe(in, stream)
}

// Server streams the current pose to every subscriber whenever its Seq
// changes, checking every interval.
type Server struct {
	src      PoseSource
	interval time.Duration
	grpc     *grpc.Server

	stopOnce sync.Once
	stopCh   chan struct{}

	mu          sync.Mutex
	subscribers map[string]time.Time
}

// NewServer returns a Server polling src every interval.
func NewServer(src PoseSource, interval time.Duration, opts ...grpc.ServerOption) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Server{
		src:         src,
		interval:    interval,
		grpc:        grpc.NewServer(opts...),
		stopCh:      make(chan struct{}),
		subscribers: make(map[string]time.Time),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	log := monitoring.Component("posestream")
	log.Info().Str("address", lis.Addr().String()).Dur("interval", s.interval).Msg("pose stream listening")
	return s.grpc.Serve(lis)
}

// Stop ends every subscription cleanly and shuts the server down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.grpc.GracefulStop()
	})
}

// Subscribers returns the number of open subscriptions.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Server) subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	id := uuid.NewString()
	log := monitoring.Component("posestream").With().Str("subscriber", id).Logger()

	s.mu.Lock()
	s.subscribers[id] = time.Now()
	s.mu.Unlock()
	log.Info().Msg("subscriber connected")
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
		log.Info().Msg("subscriber disconnected")
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	sent := false
	var lastSeq uint64
	for {
		p := s.src.Estimate()
		if !sent || p.Seq != lastSeq {
			msg, err := EncodeFrame(FrameFromPose(p))
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
			sent = true
			lastSeq = p.Seq
		}

		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

// Subscribe opens a pose stream on cc and calls fn for every frame until
// the server ends the stream (nil), ctx ends, or fn returns an error, which
// Subscribe then returns.
func Subscribe(ctx context.Context, cc grpc.ClientConnInterface, fn func(Frame) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := cc.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		f, err := DecodeFrame(msg)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}
