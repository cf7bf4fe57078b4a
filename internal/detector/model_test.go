package detector

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	dets := onnx.Output{
		Shape: []int64{1, 2, 5},
		Float: []float32{10, 20, 30, 40, 0.9, 1, 2, 3, 4, 0.5},
	}
	lbls := onnx.Output{Shape: []int64{1, 2}, Int: []int64{3, 1}}

	out, err := Decode(dets, &lbls)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 10, out[0].Box.MinX, 1e-9)
	assert.InDelta(t, 40, out[0].Box.MaxY, 1e-9)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-6)
	assert.Equal(t, 3, out[0].ClassID)
	assert.Equal(t, 1, out[1].ClassID)

	single, err := Decode(dets, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, single[1].ClassID)

	floatLabels := onnx.Output{Shape: []int64{1, 2}, Float: []float32{2, 0}}
	out, err = Decode(dets, &floatLabels)
	require.NoError(t, err)
	assert.Equal(t, 2, out[0].ClassID)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(onnx.Output{Shape: []int64{2, 5}, Float: make([]float32, 10)}, nil)
	require.Error(t, err)

	_, err = Decode(onnx.Output{Shape: []int64{1, 2, 5}, Float: make([]float32, 9)}, nil)
	require.Error(t, err)

	_, err = Decode(onnx.Output{Shape: []int64{1, 1, 5}, Int: make([]int64, 5)}, nil)
	require.Error(t, err)

	lbls := onnx.Output{Shape: []int64{1, 3}, Int: []int64{0, 0, 0}}
	_, err = Decode(onnx.Output{Shape: []int64{1, 1, 5}, Float: make([]float32, 5)}, &lbls)
	require.Error(t, err)
}

func TestDecode_Empty(t *testing.T) {
	out, err := Decode(onnx.Output{Shape: []int64{1, 0, 5}, Float: []float32{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPickOutputs(t *testing.T) {
	d, l := pickOutputs([]string{"labels", "dets"})
	assert.Equal(t, "dets", d)
	assert.Equal(t, "labels", l)

	d, l = pickOutputs([]string{"out0", "out1"})
	assert.Equal(t, "out0", d)
	assert.Equal(t, "out1", l)

	d, l = pickOutputs([]string{"boxes"})
	assert.Equal(t, "boxes", d)
	assert.Empty(t, l)
}

func TestStaticModel(t *testing.T) {
	m := StaticModel{Detections: []RawDetection{raw(0, 0, 1, 1, 0.5, 0)}}
	out, err := m.Detect(onnx.Tensor{})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = StaticModel{Err: errors.New("boom")}.Detect(onnx.Tensor{})
	assert.Error(t, err)
}

func TestNewONNXModel_MissingFile(t *testing.T) {
	_, err := NewONNXModel(Config{ModelPath: filepath.Join(t.TempDir(), "localizer.onnx")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}
