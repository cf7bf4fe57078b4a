package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/mempool"
	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/disintegration/imaging"
)

// Config holds configuration for the ONNX CTC engine.
type Config struct {
	ModelPath        string         `mapstructure:"model_path"`
	DictPath         string         `mapstructure:"dict_path"`
	ImageHeight      int            `mapstructure:"image_height"`
	MaxWidth         int            `mapstructure:"max_width"`
	PadWidthMultiple int            `mapstructure:"pad_width_multiple"`
	NumThreads       int            `mapstructure:"num_threads"`
	GPU              onnx.GPUConfig `mapstructure:"-"`
}

// DefaultConfig returns settings for PaddleOCR-style mobile recognition
// models (48 px high input).
func DefaultConfig() Config {
	return Config{
		ImageHeight:      48,
		MaxWidth:         960,
		PadWidthMultiple: 8,
		GPU:              onnx.DefaultGPUConfig(),
	}
}

// Validate checks the engine configuration.
func (c Config) Validate() error {
	if c.ImageHeight <= 0 {
		return fmt.Errorf("image height must be positive, got %d", c.ImageHeight)
	}
	if c.MaxWidth < 0 || c.PadWidthMultiple < 0 {
		return errors.New("max width and pad multiple must not be negative")
	}
	return c.GPU.Validate()
}

// runner is the subset of onnx.Session the engine needs.
type runner interface {
	Run(t onnx.Tensor) (map[string]onnx.Output, error)
	Info() map[string]interface{}
	Close() error
}

// CTCEngine recognizes a single text line per crop with a CTC model.
type CTCEngine struct {
	cfg     Config
	session runner
	charset *Charset
	clean   CleanOptions
}

// NewCTCEngine opens the recognition model and its dictionary.
func NewCTCEngine(cfg Config) (*CTCEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recognizer config: %w", err)
	}
	cs, err := LoadCharset(cfg.DictPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load charset: %w", err)
	}
	sess, err := onnx.NewSession(onnx.SessionConfig{ModelPath: cfg.ModelPath, NumThreads: cfg.NumThreads, GPU: cfg.GPU})
	if err != nil {
		return nil, fmt.Errorf("failed to open recognition model: %w", err)
	}
	slog.Info("Recognizer ready", "model", cfg.ModelPath, "dictionary_size", cs.Size())
	return newCTCEngine(cfg, sess, cs), nil
}

func newCTCEngine(cfg Config, r runner, cs *Charset) *CTCEngine {
	return &CTCEngine{cfg: cfg, session: r, charset: cs, clean: DefaultCleanOptions()}
}

// Read recognizes img as one line. The returned token spans the whole crop;
// an image that decodes to nothing yields no tokens.
func (e *CTCEngine) Read(ctx context.Context, img image.Image, opts Options) ([]Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty crop %dx%d", b.Dx(), b.Dy())
	}

	resized := resizeForRecognition(img, e.cfg.ImageHeight, e.cfg.MaxWidth, e.cfg.PadWidthMultiple)
	t, err := toTensor(resized)
	if err != nil {
		return nil, err
	}
	defer mempool.PutFloat32(t.Data)

	outputs, err := e.session.Run(t)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}
	out, err := firstFloat(outputs)
	if err != nil {
		return nil, err
	}

	classes := e.charset.Size() + 1
	layoutCF := classesFirst(out.Shape, classes)
	numClasses := int(out.Shape[2])
	if layoutCF {
		numClasses = int(out.Shape[1])
	}
	seqs, err := DecodeCTCGreedy(out.Float, out.Shape, 0, layoutCF, e.charset.Mask(opts.AllowList, numClasses))
	if err != nil {
		return nil, fmt.Errorf("failed to decode recognition output: %w", err)
	}

	seq := seqs[0]
	var text []rune
	for _, k := range seq.Collapsed {
		text = append(text, []rune(e.charset.Class(k))...)
	}
	s := FilterAllowed(CleanText(string(text), e.clean), opts.AllowList)
	if s == "" {
		return nil, nil
	}
	return []Token{{
		Box:        geometry.NewBox(0, 0, float64(b.Dx()), float64(b.Dy())),
		Text:       s,
		Confidence: SequenceConfidence(seq.CollapsedProb),
	}}, nil
}

// Info returns model metadata.
func (e *CTCEngine) Info() map[string]interface{} {
	info := e.session.Info()
	info["dictionary_size"] = e.charset.Size()
	info["image_height"] = e.cfg.ImageHeight
	return info
}

// Close releases the model session.
func (e *CTCEngine) Close() error {
	return e.session.Close()
}

func firstFloat(outputs map[string]onnx.Output) (onnx.Output, error) {
	for _, o := range outputs {
		if o.Float != nil && len(o.Shape) >= 3 {
			return o, nil
		}
	}
	return onnx.Output{}, errors.New("recognition model produced no rank-3 float output")
}

// resizeForRecognition scales img to targetHeight keeping the aspect ratio,
// clamps the width to maxWidth and right-pads it with black to a multiple of
// padToMultiple.
func resizeForRecognition(img image.Image, targetHeight, maxWidth, padToMultiple int) *image.NRGBA {
	b := img.Bounds()
	newW := max(int(float64(b.Dx())*float64(targetHeight)/float64(b.Dy())), 1)
	if maxWidth > 0 && newW > maxWidth {
		newW = maxWidth
	}
	resized := imaging.Resize(img, newW, targetHeight, imaging.Lanczos)

	outW := newW
	if padToMultiple > 0 && newW%padToMultiple != 0 {
		outW = newW + padToMultiple - newW%padToMultiple
	}
	if outW == newW {
		return resized
	}
	canvas := imaging.New(outW, targetHeight, color.Black)
	return imaging.Paste(canvas, resized, image.Pt(0, 0))
}

// toTensor converts img to an RGB NCHW tensor scaled to [-1, 1]. The data
// buffer comes from mempool.
func toTensor(img *image.NRGBA) (onnx.Tensor, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			for c := range 3 {
				data[c*plane+y*w+x] = (float32(row[x*4+c])/255 - 0.5) / 0.5
			}
		}
	}
	t, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return onnx.Tensor{}, err
	}
	return t, nil
}
