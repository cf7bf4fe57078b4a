package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// SessionConfig describes how to open a model.
type SessionConfig struct {
	ModelPath  string
	NumThreads int
	GPU        GPUConfig
}

// Output is a copied model output. Exactly one of Float or Int is set.
type Output struct {
	Name  string
	Shape []int64
	Float []float32
	Int   []int64
}

// Session wraps a dynamic ONNX Runtime session with one image input and any
// number of outputs.
type Session struct {
	cfg     SessionConfig
	session *onnxruntime_go.DynamicAdvancedSession
	input   onnxruntime_go.InputOutputInfo
	outputs []onnxruntime_go.InputOutputInfo
	mu      sync.RWMutex
}

// NewSession opens the model at cfg.ModelPath.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if err := Initialize(cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, errors.New("model declares no outputs")
	}

	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if err := configureGPU(opts, cfg.GPU); err != nil {
		slog.Warn("GPU unavailable, falling back to CPU", "model", cfg.ModelPath, "error", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	sess, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, names, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("Model loaded", "model", cfg.ModelPath, "input", inputs[0].Name, "outputs", names)
	return &Session{cfg: cfg, session: sess, input: inputs[0], outputs: outputs}, nil
}

func configureGPU(opts *onnxruntime_go.SessionOptions, gpu GPUConfig) error {
	if !gpu.UseGPU {
		return nil
	}
	cuda, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("Failed to destroy CUDA provider options", "error", err)
		}
	}()

	settings := map[string]string{"device_id": strconv.Itoa(gpu.DeviceID)}
	if gpu.MemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(gpu.MemLimit, 10)
	}
	if gpu.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = gpu.ArenaExtendStrategy
	}
	if err := cuda.Update(settings); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	return opts.AppendExecutionProviderCUDA(cuda)
}

// Run feeds t to the model and returns all outputs keyed by name.
func (s *Session) Run(t Tensor) (map[string]Output, error) {
	if err := t.Verify(); err != nil {
		return nil, fmt.Errorf("invalid tensor: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(t.Shape...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer destroy(in)

	values := make([]onnxruntime_go.Value, len(s.outputs))
	if err := s.session.Run([]onnxruntime_go.Value{in}, values); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	result := make(map[string]Output, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		out := Output{Name: s.outputs[i].Name, Shape: append([]int64(nil), v.GetShape()...)}
		switch tv := v.(type) {
		case *onnxruntime_go.Tensor[float32]:
			out.Float = append([]float32(nil), tv.GetData()...)
		case *onnxruntime_go.Tensor[int64]:
			out.Int = append([]int64(nil), tv.GetData()...)
		case *onnxruntime_go.Tensor[int32]:
			for _, x := range tv.GetData() {
				out.Int = append(out.Int, int64(x))
			}
		default:
			destroy(v)
			return nil, fmt.Errorf("output %s: unsupported tensor type %T", out.Name, v)
		}
		destroy(v)
		result[out.Name] = out
	}
	return result, nil
}

// InputShape returns the declared input dimensions (-1 for dynamic axes).
func (s *Session) InputShape() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.input.Dimensions...)
}

// OutputNames lists the model outputs in declaration order.
func (s *Session) OutputNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.outputs))
	for i, o := range s.outputs {
		names[i] = o.Name
	}
	return names
}

// Info returns descriptive model metadata.
func (s *Session) Info() map[string]interface{} {
	return map[string]interface{}{
		"model_path":  s.cfg.ModelPath,
		"input_name":  s.input.Name,
		"input_shape": s.InputShape(),
		"outputs":     s.OutputNames(),
		"num_threads": s.cfg.NumThreads,
		"gpu":         s.cfg.GPU.UseGPU,
	}
}

// Close releases the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

func destroy(v onnxruntime_go.Value) {
	if err := v.Destroy(); err != nil {
		slog.Warn("Failed to destroy tensor", "error", err)
	}
}
