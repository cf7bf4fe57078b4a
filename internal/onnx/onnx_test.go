package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	data := make([]float32, 3*4*5)
	data[2*20+1*5+3] = 7
	tensor, err := NewImageTensor(data, 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	assert.Equal(t, 4, tensor.Height())
	assert.Equal(t, 5, tensor.Width())
	assert.Equal(t, float32(7), tensor.At(2, 1, 3))
	require.NoError(t, tensor.Verify())

	_, err = NewImageTensor(nil, 3, 4, 5)
	require.Error(t, err)
	_, err = NewImageTensor(make([]float32, 10), 3, 4, 5)
	require.Error(t, err)
}

func TestTensorVerify(t *testing.T) {
	tests := []struct {
		name    string
		tensor  Tensor
		wantErr bool
	}{
		{"valid", Tensor{Data: make([]float32, 6), Shape: []int64{1, 1, 2, 3}}, false},
		{"wrong rank", Tensor{Data: make([]float32, 6), Shape: []int64{2, 3}}, true},
		{"zero dimension", Tensor{Data: nil, Shape: []int64{1, 0, 2, 3}}, true},
		{"length mismatch", Tensor{Data: make([]float32, 5), Shape: []int64{1, 1, 2, 3}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tensor.Verify()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGPUConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultGPUConfig().Validate())
	assert.NoError(t, GPUConfig{UseGPU: true, ArenaExtendStrategy: "kSameAsRequested"}.Validate())
	assert.Error(t, GPUConfig{UseGPU: true, DeviceID: -1}.Validate())
	assert.Error(t, GPUConfig{UseGPU: true, ArenaExtendStrategy: "bogus"}.Validate())
}

func TestLibraryName(t *testing.T) {
	name, err := libraryName("linux")
	require.NoError(t, err)
	assert.Equal(t, libLinux, name)
	name, err = libraryName("darwin")
	require.NoError(t, err)
	assert.Equal(t, libDarwin, name)
	_, err = libraryName("plan9")
	assert.Error(t, err)
}

func TestLibraryPath_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("x"), 0o600))

	t.Setenv(EnvLibraryPath, lib)
	got, err := LibraryPath(false)
	require.NoError(t, err)
	assert.Equal(t, lib, got)

	t.Setenv(EnvLibraryPath, filepath.Join(dir, "missing.so"))
	_, err = LibraryPath(false)
	assert.Error(t, err)
}

func TestNewSession_MissingModel(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	require.Error(t, err)
	_, err = NewSession(SessionConfig{ModelPath: filepath.Join(t.TempDir(), "nope.onnx")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestInspect_MissingModel(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "absent.onnx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}
