package cube

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output: /data/cube.fits
overwrite: true
object: Abell 85
inputs:
  I: "/data/images/*I.fits"
  V: "/data/images/*V.fits"
workers: 8
chunk_size: 1048576
rms_threshold: 45
statistics_file: /data/cube_noise.tsv
log:
  logfile: /var/log/fitscube.log
  max_log_size: 100
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/cube.fits", cfg.Output)
	assert.True(t, cfg.Overwrite)
	assert.Equal(t, "Abell 85", cfg.Object)
	assert.Equal(t, "/data/images/*I.fits", cfg.Inputs["I"])
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 1048576, cfg.ChunkSize)
	assert.Equal(t, 45.0, cfg.RMSThreshold)
	assert.Equal(t, "/data/cube_noise.tsv", cfg.StatisticsFile)
	assert.Equal(t, "/var/log/fitscube.log", cfg.Log.Logfile)
	assert.Equal(t, 100, cfg.Log.MaxSize)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inputs: [not: a: map"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestResolveInputsCanonicalOrder(t *testing.T) {
	dir := t.TempDir()
	touchFiles(t, dir,
		"chan0-I.fits", "chan1-I.fits",
		"chan0-Q.fits", "chan1-Q.fits",
		"chan0-V.fits", "chan1-V.fits",
	)

	cfg := &Config{Inputs: map[string]string{
		"V": filepath.Join(dir, "*-V.fits"),
		"I": filepath.Join(dir, "*-I.fits"),
		"Q": filepath.Join(dir, "*-Q.fits"),
	}}
	plan, err := cfg.resolveInputs()
	require.NoError(t, err)

	assert.Equal(t, []string{"I", "Q", "V"}, plan.pols, "map order never decides the Stokes axis")
	assert.Equal(t, 2, plan.channels)
	assert.Equal(t, []string{
		filepath.Join(dir, "chan0-I.fits"),
		filepath.Join(dir, "chan1-I.fits"),
	}, plan.paths["I"], "matches are channel-sorted")
}

func TestResolveInputsExplicitOrder(t *testing.T) {
	dir := t.TempDir()
	touchFiles(t, dir, "a-I.fits", "a-V.fits")

	cfg := &Config{
		Inputs: map[string]string{
			"I": filepath.Join(dir, "*-I.fits"),
			"V": filepath.Join(dir, "*-V.fits"),
		},
		Polarizations: []string{"V", "I"},
	}
	plan, err := cfg.resolveInputs()
	require.NoError(t, err)
	assert.Equal(t, []string{"V", "I"}, plan.pols)
}

func TestResolveInputsChannelMismatch(t *testing.T) {
	dir := t.TempDir()
	touchFiles(t, dir, "chan0-I.fits", "chan1-I.fits", "chan0-V.fits")

	cfg := &Config{Inputs: map[string]string{
		"I": filepath.Join(dir, "*-I.fits"),
		"V": filepath.Join(dir, "*-V.fits"),
	}}
	_, err := cfg.resolveInputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channels")
}

func TestResolveInputsEmptyGlob(t *testing.T) {
	cfg := &Config{Inputs: map[string]string{
		"I": filepath.Join(t.TempDir(), "*.fits"),
	}}
	_, err := cfg.resolveInputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched no files")
}

func TestResolveInputsNoInputs(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.resolveInputs()
	assert.Error(t, err)
}
