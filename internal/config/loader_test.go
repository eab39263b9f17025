package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDefaultWritesOnce(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nested", ".gitnext.yaml"))

	created, err := loader.EnsureDefault()
	require.NoError(t, err)
	require.True(t, created)

	created, err = loader.EnsureDefault()
	require.NoError(t, err)
	require.False(t, created)

	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, Version, cfg.Version)
	require.Equal(t, []Source{{Username: SelfUsername}}, cfg.Sources)
	require.Equal(t, BackboneNetwork, cfg.Settings.Backbone)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gitnext.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: []\n"), 0644))

	err := NewLoader(path).Init()
	require.ErrorIs(t, err, ErrExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sources: []\n", string(data))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".gitnext.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: []\n"), 0644))

	_, err := NewLoader(path).Load()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"'sources' must be an array of non-zero length."}, verr.Messages)
}

func TestReadEnvDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITNEXT_CONFIG", "")
	t.Setenv("GITNEXT_LOG_FILE", "")

	env, err := ReadEnv()
	require.NoError(t, err)
	require.Equal(t, 8099, env.Port)
	require.Equal(t, ".gitnext.yaml", filepath.Base(env.ConfigPath))
	require.Equal(t, ".gitnext.log", filepath.Base(env.Logger.File))
	require.Equal(t, "info", env.Logger.Level)
}
