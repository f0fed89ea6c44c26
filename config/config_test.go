package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evalcoord.yaml")
	data := `
engine:
  path: /opt/stockfish/sf16
  threads: 2
  stopping_timeout: 250ms
  options:
    - name: Skill Level
      value: "10"
evaluation:
  multipv: 4
  game_move_time: 2s
  viable_move_cp: 30
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/stockfish/sf16", cfg.Engine.Path)
	assert.Equal(t, 2, cfg.Engine.Threads)
	assert.Equal(t, 16, cfg.Engine.HashMB)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.StoppingTimeout)
	require.Len(t, cfg.Engine.Options, 1)
	assert.Equal(t, "Skill Level", cfg.Engine.Options[0].Name)
	assert.Equal(t, 4, cfg.Evaluation.MultiPV)
	assert.Equal(t, time.Second, cfg.Evaluation.LineMoveTime)
	assert.Equal(t, 2*time.Second, cfg.Evaluation.GameMoveTime)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())

	sf := cfg.Stockfish(zerolog.Nop())
	assert.Equal(t, "/opt/stockfish/sf16", sf.BinaryPath)
	assert.Equal(t, 250*time.Millisecond, sf.StoppingTimeout)

	coord := cfg.Coordinator(zerolog.Nop())
	assert.Equal(t, 4, coord.MultiPV)
	assert.Equal(t, 30, coord.ViableMoveCP)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evalcoord.yaml")
	require.NoError(t, os.WriteFile(path, []byte("evaluation:\n  multipv: 9\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "exceeds engine.max_multipv")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "evalcoord.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())
}
