package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// These tests swap the package-level logger and must not run in parallel.

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("replan from %v", 1)
	assert.Equal(t, "replan from %v", got)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted %d", 1) })
}

func TestUseZap(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	core, logs := observer.New(zapcore.InfoLevel)
	UseZap(zap.New(core))

	Logf("planner: no path from %d to %d", 10, 20)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "planner: no path from 10 to 20", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	UseZap(nil)
	assert.NotNil(t, Logf)
}

func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		l, err := NewLogger(debug)
		require.NoError(t, err)
		assert.Equal(t, debug, l.Core().Enabled(zapcore.DebugLevel))
	}
}
