// Package monitoring owns the process-wide structured logger. Packages either
// take a component logger from Component or use the printf-style Logf.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = newConsoleLogger(os.Stderr, zerolog.InfoLevel)
)

// Logf is the package-level printf-style diagnostic logger. It writes at info
// level through the current zerolog logger, and may be replaced by SetLogf.
// Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = defaultLogf

func defaultLogf(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, v...)
}

// SetLogf replaces Logf. Passing nil sets a no-op logger.
func SetLogf(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Logger returns the current process logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process logger and resets Logf to write through it.
// Passing nil installs zerolog.Nop().
func SetLogger(l *zerolog.Logger) {
	mu.Lock()
	if l == nil {
		logger = zerolog.Nop()
	} else {
		logger = *l
	}
	mu.Unlock()
	Logf = defaultLogf
}

// Component returns a child of the process logger tagged with the component
// name. The child keeps the writer in place at the time of the call.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Options configures Setup.
type Options struct {
	// Level is a zerolog level name: trace, debug, info, warn, error. Empty
	// means info.
	Level string
	// Console receives human-readable output. Nil means os.Stderr.
	Console io.Writer
	// GraylogAddr, when set, also ships every entry as GELF over UDP to
	// host:port.
	GraylogAddr string
}

// Setup builds the process logger from opts and installs it. The returned
// closer releases the Graylog connection, if any.
func Setup(opts Options) (io.Closer, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}

	var closer io.Closer = nopCloser{}
	if opts.GraylogAddr != "" {
		gw, err := gelf.NewWriter(opts.GraylogAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create graylog writer for %s: %w", opts.GraylogAddr, err)
		}
		writers = append(writers, gw)
		closer = gw
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	SetLogger(&l)
	return closer, nil
}

func newConsoleLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
