package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/timeutil"
)

// DefaultPollInterval is the read deadline used to notice cancellation.
const DefaultPollInterval = 100 * time.Millisecond

// ErrConnectionLost is returned by UDPSource.Next once the socket failed and
// every re-bind attempt was used up.
var ErrConnectionLost = errors.New("udp connection lost")

// BindError reports a failure to resolve or bind the listening address.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind UDP address %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// RetryPolicy bounds re-binding after a socket error. The wait before
// attempt n is InitialBackoff doubled n-1 times, capped at MaxBackoff.
// MaxAttempts <= 0 disables re-binding.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns five attempts from 250ms up to 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Backoff returns the wait before the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// UDPSourceConfig contains configuration options for ListenUDP.
type UDPSourceConfig struct {
	Address      string
	RcvBuf       int
	PollInterval time.Duration
	Retry        RetryPolicy
	Factory      UDPSocketFactory
	Clock        timeutil.Clock
	// OnReconnect is called before each re-bind attempt with the 1-based
	// attempt number and the error that caused it.
	OnReconnect func(attempt int, cause error)
	// OnRecovered is called once a re-bind succeeds.
	OnRecovered func(attempts int)
}

// UDPSource reads marker datagrams from a bound UDP socket.
type UDPSource struct {
	address string
	laddr   *net.UDPAddr
	rcvBuf  int
	poll    time.Duration
	retry   RetryPolicy
	factory UDPSocketFactory
	clock   timeutil.Clock

	onReconnect func(int, error)
	onRecovered func(int)

	mu     sync.Mutex
	sock   UDPSocket
	closed bool
}

// ListenUDP resolves and binds cfg.Address. Failures are returned as
// *BindError.
func ListenUDP(cfg UDPSourceConfig) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, &BindError{Address: cfg.Address, Err: err}
	}

	s := &UDPSource{
		address:     cfg.Address,
		laddr:       addr,
		rcvBuf:      cfg.RcvBuf,
		poll:        cfg.PollInterval,
		retry:       cfg.Retry,
		factory:     cfg.Factory,
		clock:       cfg.Clock,
		onReconnect: cfg.OnReconnect,
		onRecovered: cfg.OnRecovered,
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if s.factory == nil {
		s.factory = NewRealUDPSocketFactory()
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}

	sock, err := s.bind()
	if err != nil {
		return nil, err
	}
	s.sock = sock

	log := monitoring.Component("network")
	log.Info().Str("address", sock.LocalAddr().String()).Int("rcvbuf", s.rcvBuf).Msg("UDP listener started")
	return s, nil
}

func (s *UDPSource) bind() (UDPSocket, error) {
	sock, err := s.factory.ListenUDP("udp", s.laddr)
	if err != nil {
		return nil, &BindError{Address: s.address, Err: err}
	}
	if s.rcvBuf > 0 {
		if err := sock.SetReadBuffer(s.rcvBuf); err != nil {
			log := monitoring.Component("network")
			log.Warn().Err(err).Int("rcvbuf", s.rcvBuf).Msg("failed to set UDP receive buffer size")
		}
	}
	return sock, nil
}

// LocalAddr returns the bound address, or nil after Close.
func (s *UDPSource) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock == nil {
		return nil
	}
	return s.sock.LocalAddr()
}

// Next implements Source.
func (s *UDPSource) Next(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		s.mu.Lock()
		sock, closed := s.sock, s.closed
		s.mu.Unlock()
		if closed || sock == nil {
			return 0, net.ErrClosed
		}

		// Socket deadlines are wall-clock, whatever clock drives backoff.
		sock.SetReadDeadline(time.Now().Add(s.poll))
		n, _, err := sock.ReadFromUDP(buf)
		if err == nil {
			return n, nil
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if s.isClosed() {
			return 0, net.ErrClosed
		}

		if err := s.reconnect(ctx, err); err != nil {
			return 0, err
		}
	}
}

func (s *UDPSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// reconnect closes the failed socket and re-binds with backoff.
func (s *UDPSource) reconnect(ctx context.Context, cause error) error {
	log := monitoring.Component("network")

	s.mu.Lock()
	if s.sock != nil {
		s.sock.Close()
		s.sock = nil
	}
	s.mu.Unlock()

	lastErr := cause
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if s.onReconnect != nil {
			s.onReconnect(attempt, lastErr)
		}
		wait := s.retry.Backoff(attempt)
		log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", wait).Msg("UDP socket error, re-binding")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}

		sock, err := s.bind()
		if err != nil {
			lastErr = err
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			sock.Close()
			return net.ErrClosed
		}
		s.sock = sock
		s.mu.Unlock()

		log.Info().Int("attempts", attempt).Msg("UDP socket recovered")
		if s.onRecovered != nil {
			s.onRecovered(attempt)
		}
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConnectionLost, s.retry.MaxAttempts, lastErr)
}

// Close releases the socket. A blocked Next returns net.ErrClosed.
func (s *UDPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sock == nil {
		return nil
	}
	err := s.sock.Close()
	s.sock = nil
	return err
}
