// Package tracker runs the marker receiver loop and answers pose queries
// from the host. A Tracker owns one worker goroutine that reads datagrams
// from a network.Source, smooths and filters them, and publishes one
// pose.Snapshot per packet.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/network"
	"github.com/banshee-data/optotrak/internal/packet"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/smoothing"
	"github.com/banshee-data/optotrak/internal/timeutil"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("tracker already started")

// State is the lifecycle state of the receiver loop.
type State int

const (
	StateUninitialized State = iota
	StateListening
	StateRunning
	StateReconnecting
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateListening:
		return "listening"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StatusEvent describes a state change. Attempt is set while reconnecting;
// Err carries the cause of Reconnecting and Failed.
type StatusEvent struct {
	State   State
	Attempt int
	Err     error
	At      time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for timestamps, simulation, replay pacing
// and reconnect backoff.
func WithClock(c timeutil.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithSocketFactory replaces the UDP socket factory used in live mode.
func WithSocketFactory(f network.UDPSocketFactory) Option {
	return func(t *Tracker) { t.factory = f }
}

// WithSource bypasses Mode and reads from src.
func WithSource(src network.Source) Option {
	return func(t *Tracker) { t.source = src }
}

// WithStatusHandler registers fn for every state change. fn runs on the
// goroutine that caused the change and must not block.
func WithStatusHandler(fn func(StatusEvent)) Option {
	return func(t *Tracker) { t.onStatus = fn }
}

// WithFirstDataHandler registers fn to run once, after the first datagram
// is decoded and committed.
func WithFirstDataHandler(fn func(pose.Snapshot)) Option {
	return func(t *Tracker) { t.onFirstData = fn }
}

// WithMeter sets the OpenTelemetry meter for the packet counters.
func WithMeter(m metric.Meter) Option {
	return func(t *Tracker) { t.meter = m }
}

// Tracker is the host's handle on the receiver. Query methods are safe to
// call from any goroutine at any time, including before Start.
type Tracker struct {
	cfg         Config
	clock       timeutil.Clock
	factory     network.UDPSocketFactory
	source      network.Source
	onStatus    func(StatusEvent)
	onFirstData func(pose.Snapshot)
	meter       metric.Meter

	sessionID string
	store     *pose.Store
	buffers   [3]*smoothing.Buffer
	stats     *packetStats
	gotData   atomic.Bool

	mu      sync.Mutex
	status  StatusEvent
	err     error
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a Tracker for cfg. Nothing is bound until Start.
func New(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		store:     pose.NewStore(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.clock == nil {
		t.clock = timeutil.RealClock{}
	}
	for i := range t.buffers {
		t.buffers[i] = smoothing.NewWithCapacity(cfg.SmoothingWindow)
	}
	t.stats = newPacketStats(t.meter)
	t.status = StatusEvent{State: StateUninitialized, At: t.clock.Now()}
	return t
}

// Start opens the source and launches the receiver loop. A bind failure is
// returned here, wrapping *network.BindError, and leaves the tracker Failed.
// The loop runs until ctx is cancelled, Stop is called, a finite source ends
// or the source fails for good.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if err := t.cfg.Validate(); err != nil {
		t.fail(err)
		close(t.done)
		return err
	}

	src, err := t.openSource()
	if err != nil {
		err = fmt.Errorf("failed to start tracker: %w", err)
		t.fail(err)
		close(t.done)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.source = src
	t.cancel = cancel
	t.mu.Unlock()

	log := monitoring.Component("tracker")
	log.Info().Str("mode", t.cfg.Mode.String()).Str("session", t.sessionID).
		Int("smoothing_window", t.cfg.SmoothingWindow).Msg("tracker listening")
	t.setStatus(StatusEvent{State: StateListening})

	go t.run(runCtx, src)
	return nil
}

func (t *Tracker) openSource() (network.Source, error) {
	if t.source != nil {
		return t.source, nil
	}
	switch t.cfg.Mode {
	case ModeSimulated:
		return network.NewSimulatedSource(t.clock, t.cfg.SimulationTick), nil
	case ModeReplay:
		return network.OpenPcapFile(t.cfg.ReplayFile, t.cfg.Port, t.clock, t.cfg.ReplayRealtime)
	default:
		return network.ListenUDP(network.UDPSourceConfig{
			Address:     t.cfg.ListenAddress(),
			RcvBuf:      t.cfg.RcvBuf,
			Retry:       t.cfg.Retry,
			Factory:     t.factory,
			Clock:       t.clock,
			OnReconnect: t.onReconnect,
			OnRecovered: t.onRecovered,
		})
	}
}

func (t *Tracker) run(ctx context.Context, src network.Source) {
	defer close(t.done)
	defer src.Close()

	buf := make([]byte, 2048)
	for {
		n, err := src.Next(ctx, buf)
		if err != nil {
			t.finish(err)
			return
		}
		t.handlePacket(ctx, buf[:n])
	}
}

func (t *Tracker) finish(err error) {
	log := monitoring.Component("tracker")
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, net.ErrClosed):
		log.Info().Msg("tracker stopped")
		t.setStatus(StatusEvent{State: StateStopped})
	case errors.Is(err, io.EOF):
		log.Info().Msg("source exhausted, tracker stopped")
		t.setStatus(StatusEvent{State: StateStopped})
	default:
		log.Error().Err(err).Msg("tracker failed")
		t.fail(err)
	}
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	t.setStatus(StatusEvent{State: StateFailed, Err: err})
}

// handlePacket runs one datagram through decode, offset, smoothing,
// visibility and the axis swap, then commits all three markers at once.
func (t *Tracker) handlePacket(ctx context.Context, b []byte) {
	t.stats.addPacket(ctx, len(b))

	m, err := packet.Decode(b)
	if err != nil {
		t.stats.addDropped(ctx)
		log := monitoring.Component("tracker")
		log.Debug().Err(err).Msg("dropping packet")
		return
	}

	raw := m.Array()
	var (
		host    [3]geom.Point3
		visible [3]bool
	)
	for i := range raw {
		avg := t.buffers[i].PushAverage(r3.Add(raw[i], t.cfg.Offset))
		visible[i] = pose.IsVisible(avg, t.cfg.VisibilityThreshold)
		if !visible[i] {
			t.stats.addInvisible(ctx, i)
			continue
		}
		host[i] = pose.TrackerToHost(avg)
	}

	now := t.clock.Now()
	snap := t.store.Update(func(s *pose.Snapshot) {
		if visible[0] {
			s.MarkerA = host[0]
		}
		if visible[1] {
			s.MarkerB = host[1]
		}
		if visible[2] {
			s.MarkerC = host[2]
		}
		if t.cfg.VisibilityPolicy == pose.VisibilityDerived {
			s.Visible = visible[0] && visible[1] && visible[2]
		}
		s.Seq++
		s.UpdatedAt = now
	})

	if t.gotData.CompareAndSwap(false, true) {
		log := monitoring.Component("tracker")
		log.Info().Msg("first marker data received")
		t.setStatus(StatusEvent{State: StateRunning})
		if t.onFirstData != nil {
			t.onFirstData(snap)
		}
	}
}

func (t *Tracker) onReconnect(attempt int, cause error) {
	t.stats.addReconnect(context.Background())
	t.setStatus(StatusEvent{State: StateReconnecting, Attempt: attempt, Err: cause})
}

func (t *Tracker) onRecovered(attempts int) {
	state := StateListening
	if t.gotData.Load() {
		state = StateRunning
	}
	t.setStatus(StatusEvent{State: state, Attempt: attempts})
}

func (t *Tracker) setStatus(ev StatusEvent) {
	ev.At = t.clock.Now()
	t.mu.Lock()
	t.status = ev
	fn := t.onStatus
	t.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Stop cancels the receiver loop. It does not wait; call Wait for that.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the receiver loop has exited. It returns immediately if
// Start was never called.
func (t *Tracker) Wait() {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if started {
		<-t.done
	}
}

// Done is closed when the receiver loop exits.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the tracker, or nil.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Status returns the latest status event.
func (t *Tracker) Status() StatusEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Stats returns the packet counters.
func (t *Tracker) Stats() Stats {
	return t.stats.snapshot()
}

// SessionID identifies this Tracker instance in logs and API output.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Snapshot returns the latest committed marker state.
func (t *Tracker) Snapshot() pose.Snapshot {
	return t.store.Load()
}

// SetVisible sets the rig visibility flag. Under VisibilityDerived the next
// packet overwrites it.
func (t *Tracker) SetVisible(v bool) {
	t.store.SetVisible(v)
}

// Position returns the rig centroid.
func (t *Tracker) Position() geom.Point3 {
	return pose.Position(t.store.Load())
}

// Normal returns the rig plane normal. Degenerate layouts give NaN.
func (t *Tracker) Normal() geom.Point3 {
	return pose.Normal(t.store.Load())
}

// RotationAngles returns yaw, pitch and roll in radians.
func (t *Tracker) RotationAngles() (yaw, pitch, roll float64) {
	return pose.RotationAngles(t.store.Load())
}

// Rotation returns the rig orientation as a rigid transform.
func (t *Tracker) Rotation() geom.Transform {
	return pose.Rotation(t.store.Load())
}

// Translation returns the translation to the rig centroid.
func (t *Tracker) Translation() geom.Transform {
	return pose.Translation(t.store.Load())
}

// Estimate returns every derived quantity from one snapshot.
func (t *Tracker) Estimate() pose.Pose {
	return pose.Estimate(t.store.Load())
}
