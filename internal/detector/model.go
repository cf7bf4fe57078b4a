package detector

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/onnx"
)

// Model runs a compiled detector on a prepared tensor.
type Model interface {
	Detect(t onnx.Tensor) ([]RawDetection, error)
}

// Output names of exported detectors.
const (
	OutputDets   = "dets"
	OutputLabels = "labels"
)

// Config configures an ONNX detector.
type Config struct {
	ModelPath  string
	NumThreads int
	GPU        onnx.GPUConfig
}

// ONNXModel is a detector whose graph emits boxes-with-score [1,N,5] and,
// optionally, class ids [1,N].
type ONNXModel struct {
	session *onnx.Session
	dets    string
	labels  string
}

// NewONNXModel opens the model. When the outputs are not named "dets" and
// "labels" the first and second outputs are used instead.
func NewONNXModel(cfg Config) (*ONNXModel, error) {
	s, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:  cfg.ModelPath,
		NumThreads: cfg.NumThreads,
		GPU:        cfg.GPU,
	})
	if err != nil {
		return nil, err
	}

	names := s.OutputNames()
	m := &ONNXModel{session: s}
	m.dets, m.labels = pickOutputs(names)
	if m.dets != OutputDets {
		slog.Warn("Output 'dets' not found, using first output", "model", cfg.ModelPath, "output", m.dets)
	}
	return m, nil
}

func pickOutputs(names []string) (string, string) {
	var dets, lbls string
	for _, n := range names {
		switch n {
		case OutputDets:
			dets = n
		case OutputLabels:
			lbls = n
		}
	}
	if dets == "" && len(names) > 0 {
		dets = names[0]
	}
	if lbls == "" && len(names) > 1 {
		for _, n := range names {
			if n != dets {
				lbls = n
				break
			}
		}
	}
	return dets, lbls
}

// Detect runs inference and decodes the outputs.
func (m *ONNXModel) Detect(t onnx.Tensor) ([]RawDetection, error) {
	outs, err := m.session.Run(t)
	if err != nil {
		return nil, err
	}
	dets, ok := outs[m.dets]
	if !ok {
		return nil, fmt.Errorf("missing output %q", m.dets)
	}
	var lbls *onnx.Output
	if l, ok := outs[m.labels]; ok && m.labels != "" {
		lbls = &l
	}
	return Decode(dets, lbls)
}

// Info describes the loaded model.
func (m *ONNXModel) Info() map[string]interface{} {
	info := m.session.Info()
	info["dets_output"] = m.dets
	info["labels_output"] = m.labels
	return info
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	return m.session.Close()
}

// Decode converts a [1,N,5] box tensor and optional [1,N] class tensor into
// raw detections. Without a label tensor every detection has class 0.
func Decode(dets onnx.Output, lbls *onnx.Output) ([]RawDetection, error) {
	if len(dets.Shape) != 3 || dets.Shape[0] != 1 || dets.Shape[2] != 5 {
		return nil, fmt.Errorf("unexpected dets shape %v, expected [1 N 5]", dets.Shape)
	}
	if dets.Float == nil {
		return nil, errors.New("dets output is not float32")
	}
	n := int(dets.Shape[1])
	if len(dets.Float) != n*5 {
		return nil, fmt.Errorf("dets data length %d != %d", len(dets.Float), n*5)
	}

	var classes []int64
	if lbls != nil {
		classes = lbls.Int
		if classes == nil {
			for _, v := range lbls.Float {
				classes = append(classes, int64(v))
			}
		}
		if len(classes) != n {
			return nil, fmt.Errorf("labels length %d does not match %d detections", len(classes), n)
		}
	}

	out := make([]RawDetection, n)
	for i := range n {
		row := dets.Float[i*5 : i*5+5]
		out[i] = RawDetection{
			Box: geometry.Box{
				MinX: float64(row[0]), MinY: float64(row[1]),
				MaxX: float64(row[2]), MaxY: float64(row[3]),
			},
			Confidence: float64(row[4]),
		}
		if classes != nil {
			out[i].ClassID = int(classes[i])
		}
	}
	return out, nil
}

// StaticModel returns fixed detections. Useful for wiring tests and dry runs.
type StaticModel struct {
	Detections []RawDetection
	Err        error
}

// Detect returns the configured detections.
func (s StaticModel) Detect(onnx.Tensor) ([]RawDetection, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]RawDetection(nil), s.Detections...), nil
}
