// Package config loads the optotrak runtime configuration from defaults, an
// optional JSON or YAML file and OPTOTRAK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/banshee-data/optotrak/internal/geom"
	"github.com/banshee-data/optotrak/internal/network"
	"github.com/banshee-data/optotrak/internal/pose"
	"github.com/banshee-data/optotrak/internal/rigdb"
	"github.com/banshee-data/optotrak/internal/tracker"
)

// EnvPrefix prefixes every environment override, e.g. OPTOTRAK_UDP_PORT.
const EnvPrefix = "OPTOTRAK"

// UDPConfig holds the listening socket settings.
type UDPConfig struct {
	Port    int    `json:"port" mapstructure:"port"`
	Address string `json:"address" mapstructure:"address"`
	RcvBuf  int    `json:"rcvbuf" mapstructure:"rcvbuf"`
}

// OffsetConfig is the constant added to every raw marker sample.
type OffsetConfig struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	Z float64 `json:"z" mapstructure:"z"`
}

// SimulationConfig holds simulated-mode settings.
type SimulationConfig struct {
	Tick time.Duration `json:"tick" mapstructure:"tick"`
}

// ReplayConfig holds replay-mode settings.
type ReplayConfig struct {
	File     string `json:"file" mapstructure:"file"`
	Realtime bool   `json:"realtime" mapstructure:"realtime"`
}

// VisibilityConfig holds the visibility filter settings.
type VisibilityConfig struct {
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
	Policy    string  `json:"policy" mapstructure:"policy"`
}

// SmoothingConfig holds the moving-average window.
type SmoothingConfig struct {
	Window int `json:"window" mapstructure:"window"`
}

// RetryConfig bounds socket re-binding.
type RetryConfig struct {
	MaxAttempts    int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" mapstructure:"max_backoff"`
}

// HTTPConfig holds the JSON API listener. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `json:"listen" mapstructure:"listen"`
}

// GRPCConfig holds the pose stream listener. Empty Listen disables it.
type GRPCConfig struct {
	Listen   string        `json:"listen" mapstructure:"listen"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// DBConfig locates the rig profile database. Empty Path disables it.
type DBConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LogConfig configures monitoring.Setup.
type LogConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	Graylog string `json:"graylog" mapstructure:"graylog"`
}

// Config is the full runtime configuration.
type Config struct {
	UDP        UDPConfig        `json:"udp" mapstructure:"udp"`
	Offset     OffsetConfig     `json:"offset" mapstructure:"offset"`
	Mode       string           `json:"mode" mapstructure:"mode"`
	Simulation SimulationConfig `json:"simulation" mapstructure:"simulation"`
	Replay     ReplayConfig     `json:"replay" mapstructure:"replay"`
	Visibility VisibilityConfig `json:"visibility" mapstructure:"visibility"`
	Smoothing  SmoothingConfig  `json:"smoothing" mapstructure:"smoothing"`
	Retry      RetryConfig      `json:"retry" mapstructure:"retry"`
	HTTP       HTTPConfig       `json:"http" mapstructure:"http"`
	GRPC       GRPCConfig       `json:"grpc" mapstructure:"grpc"`
	DB         DBConfig         `json:"db" mapstructure:"db"`
	Rig        string           `json:"rig" mapstructure:"rig"`
	Log        LogConfig        `json:"log" mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	t := tracker.DefaultConfig()
	retry := network.DefaultRetryPolicy()

	v.SetDefault("udp.port", tracker.DefaultPort)
	v.SetDefault("udp.address", "")
	v.SetDefault("udp.rcvbuf", t.RcvBuf)

	v.SetDefault("offset.x", 0.0)
	v.SetDefault("offset.y", 0.0)
	v.SetDefault("offset.z", 0.0)

	v.SetDefault("mode", tracker.ModeLive.String())
	v.SetDefault("simulation.tick", network.DefaultSimulationTick)
	v.SetDefault("replay.file", "")
	v.SetDefault("replay.realtime", true)

	v.SetDefault("visibility.threshold", pose.DefaultVisibilityThreshold)
	v.SetDefault("visibility.policy", pose.VisibilityHost.String())
	v.SetDefault("smoothing.window", t.SmoothingWindow)

	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", retry.MaxBackoff)

	v.SetDefault("http.listen", "localhost:8023")
	v.SetDefault("grpc.listen", "localhost:50051")
	v.SetDefault("grpc.interval", 16*time.Millisecond)

	v.SetDefault("db.path", "optotrak.db")
	v.SetDefault("rig", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.graylog", "")
}

// New returns a viper instance carrying the defaults and environment
// binding, for callers that want to bind flags before Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. path may be empty to use only defaults and
// the environment; otherwise the file must exist and its extension selects
// the format.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the binary cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.UDP.Port < 1 || c.UDP.Port > 65535 {
		errs = append(errs, fmt.Errorf("udp.port must be in 1..65535, got %d", c.UDP.Port))
	}
	if _, err := tracker.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := pose.ParseVisibilityPolicy(c.Visibility.Policy); err != nil {
		errs = append(errs, err)
	}
	if math.IsNaN(c.Visibility.Threshold) || c.Visibility.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("visibility.threshold must be positive, got %v", c.Visibility.Threshold))
	}
	if c.Smoothing.Window < 1 {
		errs = append(errs, fmt.Errorf("smoothing.window must be at least 1, got %d", c.Smoothing.Window))
	}
	if c.GRPC.Listen != "" && c.GRPC.Interval <= 0 {
		errs = append(errs, fmt.Errorf("grpc.interval must be positive, got %s", c.GRPC.Interval))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must not be negative, got %d", c.Retry.MaxAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Tracker converts c into a tracker.Config.
func (c *Config) Tracker() (tracker.Config, error) {
	mode, err := tracker.ParseMode(c.Mode)
	if err != nil {
		return tracker.Config{}, err
	}
	policy, err := pose.ParseVisibilityPolicy(c.Visibility.Policy)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{
		Address:             c.UDP.Address,
		Port:                uint16(c.UDP.Port),
		RcvBuf:              c.UDP.RcvBuf,
		Offset:              geom.Point3{X: c.Offset.X, Y: c.Offset.Y, Z: c.Offset.Z},
		Mode:                mode,
		SmoothingWindow:     c.Smoothing.Window,
		VisibilityThreshold: c.Visibility.Threshold,
		VisibilityPolicy:    policy,
		SimulationTick:      c.Simulation.Tick,
		ReplayFile:          c.Replay.File,
		ReplayRealtime:      c.Replay.Realtime,
		Retry: network.RetryPolicy{
			MaxAttempts:    c.Retry.MaxAttempts,
			InitialBackoff: c.Retry.InitialBackoff,
			MaxBackoff:     c.Retry.MaxBackoff,
		},
	}, nil
}

// ApplyRig overlays a stored rig profile. Zero-valued profile fields leave
// the current setting alone.
func (c *Config) ApplyRig(r *rigdb.RigConfig) {
	if r == nil {
		return
	}
	c.Rig = r.Name
	if r.UDPPort != 0 {
		c.UDP.Port = r.UDPPort
	}
	c.Offset = OffsetConfig{X: r.OffsetX, Y: r.OffsetY, Z: r.OffsetZ}
	if r.Mode != "" {
		c.Mode = r.Mode
	}
	if r.VisibilityThreshold > 0 {
		c.Visibility.Threshold = r.VisibilityThreshold
	}
}
