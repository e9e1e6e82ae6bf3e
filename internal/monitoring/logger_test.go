package monitoring

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	original := Logger()
	originalLogf := Logf
	t.Cleanup(func() {
		SetLogger(&original)
		Logf = originalLogf
	})
}

func TestSetLogf(t *testing.T) {
	restoreLogger(t)

	called := false
	SetLogf(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	// A nil logger becomes a no-op and must not call the previous one.
	called = false
	SetLogf(nil)
	Logf("test")
	assert.False(t, called)
}

func TestLogf_WritesThroughLogger(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	SetLogger(&l)

	Logf("listening on %s", ":40023")
	assert.Contains(t, buf.String(), `"message":"listening on :40023"`)
	assert.Contains(t, buf.String(), `"level":"info"`)
}

func TestComponent(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	SetLogger(&l)

	c := Component("tracker")
	c.Warn().Msg("socket closed")
	assert.Contains(t, buf.String(), `"component":"tracker"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestSetLogger_NilIsNop(t *testing.T) {
	restoreLogger(t)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("dropped %d", 1) })
}

func TestSetup(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	closer, err := Setup(Options{Level: "debug", Console: &buf})
	require.NoError(t, err)
	defer closer.Close()

	l := Logger()
	l.Debug().Msg("debug visible")
	assert.Contains(t, buf.String(), "debug visible")
}

func TestSetup_LevelFilters(t *testing.T) {
	restoreLogger(t)

	var buf bytes.Buffer
	_, err := Setup(Options{Level: "warn", Console: &buf})
	require.NoError(t, err)

	Logf("info hidden")
	assert.NotContains(t, buf.String(), "info hidden")
}

func TestSetup_InvalidLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}
