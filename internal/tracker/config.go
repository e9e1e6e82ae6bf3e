package tracker

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/network"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/smoothing"
)

// DefaultPort is the UDP port the tracker host streams to.
const DefaultPort = 40023

// Mode selects where marker datagrams come from.
type Mode int

const (
	// ModeLive reads datagrams from a UDP socket.
	ModeLive Mode = iota
	// ModeSimulated synthesises a moving rig from the clock.
	ModeSimulated
	// ModeReplay reads datagrams from a pcap capture.
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulated:
		return "simulated"
	case ModeReplay:
		return "replay"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "live", "simulated" or "replay".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "live":
		return ModeLive, nil
	case "simulated", "simulation", "sim":
		return ModeSimulated, nil
	case "replay", "pcap":
		return ModeReplay, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Config holds the receiver settings. Address is the local host to bind;
// empty binds every interface. Offset is added to every raw sample before
// smoothing.
type Config struct {
	Address string
	Port    uint16
	RcvBuf  int
	Offset  geom.Point3
	Mode    Mode

	SmoothingWindow     int
	VisibilityThreshold float64
	VisibilityPolicy    pose.VisibilityPolicy

	SimulationTick time.Duration
	ReplayFile     string
	ReplayRealtime bool

	Retry network.RetryPolicy
}

// DefaultConfig returns a live receiver on DefaultPort.
func DefaultConfig() Config {
	return Config{
		Port:                DefaultPort,
		RcvBuf:              1 << 20,
		Mode:                ModeLive,
		SmoothingWindow:     smoothing.Capacity,
		VisibilityThreshold: pose.DefaultVisibilityThreshold,
		VisibilityPolicy:    pose.VisibilityHost,
		SimulationTick:      network.DefaultSimulationTick,
		ReplayRealtime:      true,
		Retry:               network.DefaultRetryPolicy(),
	}
}

// ListenAddress returns Address and Port joined for net.ResolveUDPAddr.
func (c Config) ListenAddress() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

// Validate checks the config for values the receiver cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.SmoothingWindow < 1 {
		errs = append(errs, fmt.Errorf("smoothing window must be at least 1, got %d", c.SmoothingWindow))
	}
	if math.IsNaN(c.VisibilityThreshold) || c.VisibilityThreshold <= 0 {
		errs = append(errs, fmt.Errorf("visibility threshold must be positive, got %v", c.VisibilityThreshold))
	}
	if geom.HasNaN(c.Offset) {
		errs = append(errs, errors.New("offset must not contain NaN"))
	}
	if c.VisibilityPolicy != pose.VisibilityHost && c.VisibilityPolicy != pose.VisibilityDerived {
		errs = append(errs, fmt.Errorf("invalid visibility policy %s", c.VisibilityPolicy))
	}
	if c.RcvBuf < 0 {
		errs = append(errs, fmt.Errorf("receive buffer must not be negative, got %d", c.RcvBuf))
	}
	switch c.Mode {
	case ModeLive:
	case ModeSimulated:
		if c.SimulationTick < 0 {
			errs = append(errs, fmt.Errorf("simulation tick must not be negative, got %s", c.SimulationTick))
		}
	case ModeReplay:
		if c.ReplayFile == "" {
			errs = append(errs, errors.New("replay mode requires a capture file"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid mode %s", c.Mode))
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		errs = append(errs, errors.New("retry policy values must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid tracker config: %w", errors.Join(errs...))
	}
	return nil
}
