package onnx

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/yalue/onnxruntime_go"
)

// IOInfo describes one model input or output.
type IOInfo struct {
	Name       string  `json:"name"`
	Dimensions []int64 `json:"dimensions"`
	DataType   string  `json:"data_type"`
}

// ModelInfo is what a model file declares about itself.
type ModelInfo struct {
	Path     string   `json:"path"`
	Inputs   []IOInfo `json:"inputs"`
	Outputs  []IOInfo `json:"outputs"`
	Producer string   `json:"producer,omitempty"`
	Version  int64    `json:"version,omitempty"`
}

// Inspect reads the inputs, outputs and metadata of the model at path
// without creating a session.
func Inspect(path string) (*ModelInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %s", path)
	}
	if err := Initialize(false); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	info := &ModelInfo{Path: path, Inputs: toIOInfo(inputs), Outputs: toIOInfo(outputs)}

	meta, err := onnxruntime_go.GetModelMetadata(path)
	if err != nil {
		return info, nil
	}
	defer func() {
		if err := meta.Destroy(); err != nil {
			slog.Warn("Failed to destroy model metadata", "error", err)
		}
	}()
	if producer, err := meta.GetProducerName(); err == nil {
		info.Producer = producer
	}
	if v, err := meta.GetVersion(); err == nil {
		info.Version = v
	}
	return info, nil
}

func toIOInfo(in []onnxruntime_go.InputOutputInfo) []IOInfo {
	out := make([]IOInfo, len(in))
	for i, v := range in {
		out[i] = IOInfo{Name: v.Name, Dimensions: []int64(v.Dimensions), DataType: v.DataType.String()}
	}
	return out
}
