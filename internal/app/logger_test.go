package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/get2knowme/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() { logger.Replace(nil) })

	require.NoError(t, ConfigureLogging(ServerConfig{LogLevel: "debug"}))
	require.True(t, logger.Logger().Core().Enabled(-1))

	require.NoError(t, ConfigureLogging(ServerConfig{LogFormat: "console"}))
	require.False(t, logger.Logger().Core().Enabled(-1))
}
