package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
	}{
		{"JSON output mode", true, VerbosityUser},
		{"Console output mode", false, VerbosityInfo},
		{"Console debug", false, VerbosityDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := Logger
			defer func() { Logger = saved }()

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
			assert.Equal(t, tt.verbosity, Verbosity)
			assert.True(t, Logger.Desugar().Core().Enabled(VerbosityToLevel(tt.verbosity)))
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{7, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func TestShouldOutput(t *testing.T) {
	assert.True(t, ShouldOutput(0, OutputResults))
	assert.False(t, ShouldOutput(0, OutputProgress))
	assert.True(t, ShouldOutput(1, OutputProgress))
	assert.False(t, ShouldOutput(1, OutputHTTPCalls))
	assert.True(t, ShouldOutput(3, OutputIngestTree))
	assert.False(t, ShouldOutput(2, OutputCategory(99)))
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithComponent(ctx, "engine")

	LoggerFromContext(ctx, base).Infow("started")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields[FieldRunID])
	assert.Equal(t, "engine", fields[FieldComponent])

	assert.Same(t, base, LoggerFromContext(context.Background(), base))
}

func TestChildLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	parent := zap.New(core).Sugar()

	ChildLogger(parent, FieldPID, "123").Warnw("skipped")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "123", logs.All()[0].ContextMap()[FieldPID])
}
