package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	require.Equal(t, 5328, cfg.Server.Port)
	require.Equal(t, 100, cfg.Analysis.BinCount)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `server:
  port: 9000
  maxUploadMB: 8
analysis:
  binCount: 64
  denoiseSigma: 2.5
results:
  capacity: 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, 64, cfg.Analysis.BinCount)
	require.Equal(t, 2.5, cfg.Analysis.DenoiseSigma)
	require.Equal(t, 10, cfg.Results.Capacity)
	// Untouched values keep their defaults.
	require.Equal(t, Default().Analysis.MaxPixels, cfg.Analysis.MaxPixels)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("POROMET_PORT", "7777")
	t.Setenv("POROMET_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Server.Port)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("POROMET_PORT", "not-a-number")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("results:\n  capacity: 0\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
