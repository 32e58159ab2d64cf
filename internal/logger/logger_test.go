package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/hwcontrol/internal/errors"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		require.NoError(t, logger.SetLogLevel(tt.in), tt.in)
		assert.Equal(t, tt.want, zerolog.GlobalLevel(), tt.in)
	}

	err := logger.SetLogLevel("loud")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestComponentFields(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, logger.InitWriter(&buf, "debug", true))

	logger.Component("snapshot").With("sensor", "/ram/load/0").Info().Msg("refreshed")

	out := buf.String()
	assert.Contains(t, out, "refreshed")
	assert.Contains(t, out, "component=snapshot")
	assert.Contains(t, out, "sensor=/ram/load/0")
}

func TestErrorWithCode(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, logger.InitWriter(&buf, "info", true))

	logger.ErrorWithCode(errors.New().New(errors.ErrTimeout)).Msg("mutex")

	assert.Contains(t, buf.String(), "error_code=operation_timeout")
}

func TestNopDiscards(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWriter(&buf, "debug", true))
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger.Nop().Error().Msg("hidden")

	assert.Empty(t, buf.String())
}
