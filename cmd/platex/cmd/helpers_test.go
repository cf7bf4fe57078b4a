package cmd

import (
	"bytes"
	"image"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/config"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/MeKo-Tech/platex/internal/testutil/fixtures"
	"github.com/stretchr/testify/require"
)

// useFixtures makes commands run on scripted detectors and OCR.
func useFixtures(t *testing.T, ocr recognizer.Engine) {
	t.Helper()
	old := openContext
	openContext = func(*config.Config) (*pipeline.Context, error) {
		return fixtures.Context(t, fixtures.PlateScene(), fixtures.DocumentScene(), ocr), nil
	}
	t.Cleanup(func() { openContext = old })
}

// runCLI executes the command line against a generated default config file.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "platex.yaml")
	require.NoError(t, config.GenerateDefaultConfigFile(cfgPath))

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func saveFrame(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.SaveImage(t, img, path)
	return path
}
