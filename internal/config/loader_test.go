package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	require.NoError(t, err)
	assertDefaults(t, cfg)
}

func assertDefaults(t *testing.T, cfg *Config) {
	t.Helper()
	def := DefaultConfig()
	assert.Equal(t, def.ModelsDir, cfg.ModelsDir)
	assert.Equal(t, def.Plate.Localizer.Threshold, cfg.Plate.Localizer.Threshold)
	assert.Equal(t, def.Plate.Fields.AllowList, cfg.Plate.Fields.AllowList)
	assert.Equal(t, def.Plate.OCR, cfg.Plate.OCR)
	assert.Equal(t, def.Plate.Deskew, cfg.Plate.Deskew)
	assert.Equal(t, def.Document.Roles, cfg.Document.Roles)
	assert.Equal(t, def.Document.OCR, cfg.Document.OCR)
	assert.Equal(t, def.OCR, cfg.OCR)
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Parallel, cfg.Parallel)
	assert.Equal(t, def.Batch.Extensions, cfg.Batch.Extensions)
	assert.Equal(t, def.GPU, cfg.GPU)
}

func TestLoader_File(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "platex.yaml", []byte(`
log_level: debug
plate:
  localizer:
    threshold: 0.6
  incomplete_is_success: true
document:
  enabled: true
  roles:
    id_number: id_no
ocr:
  engine: remote
  remote_url: http://ocr:8000/read
parallel:
  max_workers: 4
`))

	l := NewLoaderWithViper(viper.New())
	cfg, err := l.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.GetConfigFileUsed())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.6, cfg.Plate.Localizer.Threshold, 1e-9)
	assert.InDelta(t, 0.54, cfg.Plate.Fields.Threshold, 1e-9)
	assert.True(t, cfg.Plate.IncompleteIsSuccess)
	assert.True(t, cfg.Document.Enabled)
	assert.Equal(t, "id_no", cfg.Document.Roles.IDNumber)
	assert.Equal(t, "name", cfg.Document.Roles.Name)
	assert.Equal(t, EngineRemote, cfg.OCR.Engine)
	assert.Equal(t, 4, cfg.Parallel.MaxWorkers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoader_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "platex.yaml", []byte("log_level: warn\n"))
	t.Setenv("PLATEX_PLATE_FIELDS_THRESHOLD", "0.7")
	t.Setenv("PLATEX_SERVER_PORT", "9090")
	t.Setenv("PLATEX_LOG_LEVEL", "error")

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.Plate.Fields.Threshold, 1e-9)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoaderWithViper(viper.New()).LoadWithFile("/nonexistent/platex.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	dir := t.TempDir()
	bad := testutil.WriteFile(t, dir, "bad.yaml", []byte("plate: [unclosed\n"))
	_, err = NewLoaderWithViper(viper.New()).LoadWithFile(bad)
	assert.Error(t, err)

	invalid := testutil.WriteFile(t, dir, "invalid.yaml", []byte("log_level: loud\n"))
	_, err = NewLoaderWithViper(viper.New()).LoadWithFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFileWithoutValidation(invalid)
	require.NoError(t, err)
	assert.Equal(t, "loud", cfg.LogLevel)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, ".env", []byte("PLATEX_TEST_DOTENV=from-file\nPLATEX_TEST_PRESET=from-file\n"))
	t.Setenv("PLATEX_TEST_PRESET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("PLATEX_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("PLATEX_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("PLATEX_TEST_PRESET"))
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platex.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))
	require.True(t, testutil.FileExists(path))

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assertDefaults(t, cfg)
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, filepath.Join("/xdg", "platex"))
	assert.Equal(t, "/etc/platex", paths[len(paths)-1])
}

func TestLoader_PrintConfigInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platex.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	l := NewLoaderWithViper(viper.New())
	var buf bytes.Buffer
	l.PrintConfigInfo(&buf)
	assert.Contains(t, buf.String(), "(none, using defaults)")

	_, err := l.LoadWithFile(path)
	require.NoError(t, err)
	buf.Reset()
	l.PrintConfigInfo(&buf)
	assert.Contains(t, buf.String(), "Configuration file used: "+path)
	assert.Contains(t, buf.String(), "Environment prefix: PLATEX")
}
