package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := New(level, "json")
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
}

func TestNewConsoleFormat(t *testing.T) {
	logger, err := New("info", "console")
	require.NoError(t, err)
	logger.Info("format smoke test")
}
