package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
sources:
  static:
    - "https://example.com/channels/1/100"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 3, cfg.Engine.BatchMin)
	require.Equal(t, 5, cfg.Engine.BatchMax)
	require.Equal(t, 200, cfg.Engine.DedupWindowSize)
	require.Equal(t, 0.10, cfg.Pacing.IdleBreakChance)
	require.Equal(t, 15, cfg.Pacing.ForcedBreakChecks)
	require.Equal(t, "data", cfg.Storage.DataDir)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
engine:
  batch_min: 2
  batch_max: 4
pacing:
  idle_break_chance: 0.25
sources:
  file: "sources.json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2, cfg.Engine.BatchMin)
	require.Equal(t, 0.25, cfg.Pacing.IdleBreakChance)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeConfig(t, `
engine:
  batch_min: 5
  batch_max: 3
sources:
  file: "sources.json"
`)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, `
pacing:
  idle_break_chance: 1.5
sources:
  file: "sources.json"
`)
	_, err = Load(path)
	require.Error(t, err)

	path = writeConfig(t, ``)
	_, err = Load(path)
	require.Error(t, err, "a source list is required")
}
