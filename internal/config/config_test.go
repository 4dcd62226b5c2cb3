package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	c := Default()
	require.Equal(t, "/tmp/xdg/everyday", c.DataDir)
	require.Equal(t, filepath.Join("/tmp/xdg/everyday", "everyday.db"), c.DBPath())
	require.Equal(t, c.DataDir, c.MediaRoot())
	require.NoError(t, c.Validate())
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(Default(), env(map[string]string{
		"EVERYDAY_DATA_DIR":      "/data",
		"EVERYDAY_MEDIA_DIR":     "/media",
		"EVERYDAY_SYNC_INTERVAL": "5s",
		"EVERYDAY_MAX_ATTEMPTS":  "7",
		"EVERYDAY_SKIP_SYNC":     "true",
	}))
	require.NoError(t, err)
	require.Equal(t, "/data", c.DataDir)
	require.Equal(t, "/media", c.MediaRoot())
	require.Equal(t, 5*time.Second, c.SyncInterval)
	require.Equal(t, 7, c.MaxAttempts)
	require.True(t, c.SkipSync)
	require.Equal(t, 20, c.SyncBatch)

	_, err = FromEnv(Default(), env(map[string]string{"EVERYDAY_SYNC_BATCH": "many"}))
	require.ErrorContains(t, err, "EVERYDAY_SYNC_BATCH")
	_, err = FromEnv(Default(), env(map[string]string{"EVERYDAY_COLOR_TIMEOUT": "soon"}))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.SyncBatch = 0
	require.Error(t, c.Validate())
}
