package recognizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner returns fixed logits and records the input shape.
type fakeRunner struct {
	out    onnx.Output
	err    error
	shape  []int64
	closed bool
}

func (f *fakeRunner) Run(t onnx.Tensor) (map[string]onnx.Output, error) {
	f.shape = append([]int64(nil), t.Shape...)
	if f.err != nil {
		return nil, f.err
	}
	return map[string]onnx.Output{f.out.Name: f.out}, nil
}

func (f *fakeRunner) Info() map[string]interface{} { return map[string]interface{}{"model_path": "fake"} }

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

// digitLogits builds [1,T,C] probabilities for a 0..9 + "A" dictionary where
// each timestep picks the given class with probability p.
func digitLogits(classes []int, p float32) onnx.Output {
	const c = 12 // blank + 10 digits + "A"
	data := make([]float32, len(classes)*c)
	for t, k := range classes {
		for j := range c {
			data[t*c+j] = (1 - p) / (c - 1)
		}
		data[t*c+k] = p
	}
	return onnx.Output{Name: "softmax", Shape: []int64{1, int64(len(classes)), c}, Float: data}
}

func testCharset() *Charset {
	return NewCharset([]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "A"})
}

func TestCTCEngine_Read(t *testing.T) {
	// "1", "2", blank, "2", "A" -> "122A"
	r := &fakeRunner{out: digitLogits([]int{2, 3, 0, 3, 11}, 0.9)}
	e := newCTCEngine(DefaultConfig(), r, testCharset())

	img := imaging.New(100, 24, color.White)
	tokens, err := e.Read(context.Background(), img, Options{})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "122A", tokens[0].Text)
	assert.InDelta(t, 0.9, tokens[0].Confidence, 1e-6)
	assert.InDelta(t, 100, tokens[0].Box.MaxX, 1e-9)

	assert.Equal(t, int64(48), r.shape[2])
	assert.Zero(t, r.shape[3]%8)
}

func TestCTCEngine_AllowList(t *testing.T) {
	r := &fakeRunner{out: digitLogits([]int{11, 0, 2}, 0.9)}
	e := newCTCEngine(DefaultConfig(), r, testCharset())

	tokens, err := e.Read(context.Background(), imaging.New(40, 20, color.White), Options{AllowList: DigitsAllowList})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "1", tokens[0].Text)
}

func TestCTCEngine_BlankOnly(t *testing.T) {
	r := &fakeRunner{out: digitLogits([]int{0, 0, 0}, 0.95)}
	e := newCTCEngine(DefaultConfig(), r, testCharset())
	tokens, err := e.Read(context.Background(), imaging.New(40, 20, color.White), Options{})
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestCTCEngine_Errors(t *testing.T) {
	e := newCTCEngine(DefaultConfig(), &fakeRunner{err: errors.New("boom")}, testCharset())

	_, err := e.Read(context.Background(), imaging.New(40, 20, color.White), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recognition failed")

	_, err = e.Read(context.Background(), nil, Options{})
	assert.Error(t, err)

	_, err = e.Read(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 5)), Options{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Read(ctx, imaging.New(4, 4, color.White), Options{})
	assert.ErrorIs(t, err, context.Canceled)

	bad := newCTCEngine(DefaultConfig(), &fakeRunner{out: onnx.Output{Name: "x", Shape: []int64{1, 2}, Float: []float32{1, 2}}}, testCharset())
	_, err = bad.Read(context.Background(), imaging.New(4, 4, color.White), Options{})
	assert.Error(t, err)
}

func TestCTCEngine_InfoAndClose(t *testing.T) {
	r := &fakeRunner{}
	e := newCTCEngine(DefaultConfig(), r, testCharset())
	info := e.Info()
	assert.Equal(t, 11, info["dictionary_size"])
	require.NoError(t, e.Close())
	assert.True(t, r.closed)
}

func TestNewCTCEngine_MissingFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DictPath = filepath.Join(t.TempDir(), "dict.txt")
	cfg.ModelPath = filepath.Join(t.TempDir(), "rec.onnx")
	_, err := NewCTCEngine(cfg)
	assert.Error(t, err)

	cfg.ImageHeight = 0
	_, err = NewCTCEngine(cfg)
	assert.Error(t, err)
}

func TestResizeForRecognition(t *testing.T) {
	out := resizeForRecognition(imaging.New(91, 30, color.White), 48, 0, 8)
	assert.Equal(t, 48, out.Bounds().Dy())
	assert.Equal(t, 152, out.Bounds().Dx()) // 145 padded to 152

	out = resizeForRecognition(imaging.New(1000, 10, color.White), 48, 320, 0)
	assert.Equal(t, 320, out.Bounds().Dx())

	out = resizeForRecognition(imaging.New(1, 400, color.White), 48, 0, 0)
	assert.Equal(t, 1, out.Bounds().Dx())
}

func TestToTensorRange(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{R: 255, G: 0, B: 128, A: 255})
	ten, err := toTensor(img)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 1, 2}, ten.Shape)
	assert.InDelta(t, 1.0, ten.At(0, 0, 0), 1e-6)
	assert.InDelta(t, -1.0, ten.At(1, 0, 1), 1e-6)
	assert.InDelta(t, 0.0039, ten.At(2, 0, 0), 1e-3)
}
