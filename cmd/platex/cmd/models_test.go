package cmd

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/models"
	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubInspect(t *testing.T) {
	t.Helper()
	old := inspectModel
	inspectModel = func(path string) (*onnx.ModelInfo, error) {
		if filepath.Base(path) == models.PlateFields {
			return nil, errors.New("failed to read model info: broken graph")
		}
		return &onnx.ModelInfo{
			Path:    path,
			Inputs:  []onnx.IOInfo{{Name: "images", Dimensions: []int64{1, 3, 640, 640}, DataType: "float32"}},
			Outputs: []onnx.IOInfo{{Name: "dets", Dimensions: []int64{1, -1, 5}, DataType: "float32"}},
		}, nil
	}
	t.Cleanup(func() { inspectModel = old })
}

func TestModelsCommand_Text(t *testing.T) {
	stubInspect(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, models.PlateLocalizer, []byte("onnx"))
	testutil.WriteFile(t, dir, models.PlateFields, []byte("onnx"))

	out, _, err := runCLI(t, "--models-dir", dir, "models", "--inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Models directory: "+dir)
	assert.Regexp(t, `plate-localizer\s+localizer.onnx\s+true\s+true`, out)
	assert.Regexp(t, `recognizer\s+recognizer.onnx\s+true\s+false`, out)
	assert.Contains(t, out, "input  images [1 3 640 640] (float32)")
	assert.Contains(t, out, "plate-fields: failed to read model info: broken graph")
}

func TestModelsCommand_JSON(t *testing.T) {
	stubInspect(t)
	dir := t.TempDir()
	testutil.WriteFile(t, dir, models.PlateLocalizer, []byte("onnx"))
	testutil.WriteFile(t, dir, models.PlateFieldLabels, []byte("{}"))

	out, _, err := runCLI(t, "--models-dir", dir, "models", "--inspect", "--format", "json")
	require.NoError(t, err)

	var listing struct {
		ModelsDir string       `json:"models_dir"`
		Models    []modelEntry `json:"models"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	assert.Equal(t, dir, listing.ModelsDir)

	byName := map[string]modelEntry{}
	for _, e := range listing.Models {
		byName[e.Name] = e
	}
	require.NotNil(t, byName["plate-localizer"].Details)
	assert.Equal(t, "dets", byName["plate-localizer"].Details.Outputs[0].Name)
	assert.True(t, byName["plate-field-labels"].Available)
	assert.Nil(t, byName["plate-field-labels"].Details)
	assert.False(t, byName["document-detector"].Available)

	_, _, err = runCLI(t, "models", "--format", "csv")
	require.Error(t, err)
}
