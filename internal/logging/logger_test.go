package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFromCoreWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromCore(core).Named("accumulate").With(String("run_id", "01ABC"))

	log.Info("checkpoint written",
		Int("documents", 50),
		Int64("bytes", 1024),
		Float64("threshold", 0.7),
		Bool("final", false),
		Duration("took", time.Second),
		Err(errors.New("boom")),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "checkpoint written", e.Message)
	assert.Equal(t, "accumulate", e.LoggerName)

	fields := e.ContextMap()
	assert.Equal(t, "01ABC", fields["run_id"])
	assert.EqualValues(t, 50, fields["documents"])
	assert.Equal(t, false, fields["final"])
	assert.Equal(t, "boom", fields["error"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestNewDefaultsAndNop(t *testing.T) {
	log, err := New(Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	log.Debug("hello")

	nop := NewNop()
	nop.Info("ignored", Err(nil))
	assert.NoError(t, nop.With(String("k", "v")).Named("x").Sync())
}

func TestNewRejectsBadOutputPath(t *testing.T) {
	_, err := New(Config{OutputPaths: []string{"/nonexistent-dir/sub/log.txt"}})
	assert.Error(t, err)
}
