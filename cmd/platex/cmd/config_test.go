package cmd

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/config"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")
	out, _, err := runCLI(t, "config", "generate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+path)
	require.True(t, testutil.FileExists(path))

	cfg, err := config.NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestConfigShow(t *testing.T) {
	out, _, err := runCLI(t, "--models-dir", "/opt/platex/models", "config", "show")
	require.NoError(t, err)

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "/opt/platex/models", shown.ModelsDir)
	assert.True(t, shown.Plate.Enabled)
	assert.Equal(t, "plate", shown.Batch.Kind)
}

func TestConfigInfo(t *testing.T) {
	out, _, err := runCLI(t, "config", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file used: ")
	assert.Contains(t, out, "platex.yaml")
	assert.Contains(t, out, "Environment prefix: PLATEX")
}
