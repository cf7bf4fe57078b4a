// Package config loads and validates platex settings and turns them into
// ready pipeline contexts.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/platex/internal/deskew"
	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/letterbox"
	"github.com/MeKo-Tech/platex/internal/models"
	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
)

// OCR engine names.
const (
	EngineONNX   = "onnx"
	EngineRemote = "remote"
)

// DefaultConfig returns a configuration with the reference deployment values.
func DefaultConfig() Config {
	plate := pipeline.DefaultPlateConfig()
	doc := pipeline.DefaultDocumentConfig()
	ctc := recognizer.DefaultConfig()
	dsk := deskew.DefaultConfig()

	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Plate: PlateConfig{
			Enabled: true,
			Localizer: StageConfig{
				Threshold: plate.LocalizerFilter.Threshold,
				Anchor:    string(plate.Localizer.Anchor),
			},
			Fields: StageConfig{
				Threshold: plate.FieldFilter.Threshold,
				Anchor:    string(plate.Fields.Anchor),
				AllowList: plate.FieldFilter.AllowList,
			},
			OCRClasses: plate.OCRClasses,
			OCR:        fromFieldSpec(plate.OCR),
			Deskew:     DeskewConfig{Enabled: dsk.Enabled, AngleThreshold: dsk.AngleThreshold},
		},
		Document: DocumentConfig{
			Enabled: false,
			Detector: StageConfig{
				Threshold: doc.Filter.Threshold,
				Anchor:    string(doc.Detector.Anchor),
			},
			Roles: RolesConfig{
				IDNumber: "id",
				Name:     "name",
				LastName: "lastname",
			},
			OCR: DocumentOCRConfig{
				IDNumber: fromFieldSpec(doc.Fields[labels.RoleIDNumber]),
				Name:     fromFieldSpec(doc.Fields[labels.RoleName]),
				LastName: fromFieldSpec(doc.Fields[labels.RoleLastName]),
			},
		},
		OCR: OCRConfig{
			Engine:           EngineONNX,
			ImageHeight:      ctc.ImageHeight,
			MaxWidth:         ctc.MaxWidth,
			PadWidthMultiple: ctc.PadWidthMultiple,
			TimeoutSec:       10,
			Retries:          2,
			RetryDelayMS:     200,
		},
		Parallel: ParallelConfig{MaxWorkers: pipeline.DefaultMaxWorkers},
		Output: OutputConfig{
			Format:              "text",
			ConfidencePrecision: 2,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Batch: BatchConfig{
			Kind:       string(pipeline.KindPlate),
			Extensions: []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"},
			Progress:   "console",
		},
		GPU: GPUConfig{
			Enabled:     false,
			Device:      0,
			MemoryLimit: "auto",
		},
	}
}

func fromFieldSpec(s pipeline.FieldSpec) FieldOCRConfig {
	return FieldOCRConfig{AllowList: s.AllowList, Margin: s.Margin, Mode: string(s.Mode)}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if !c.Plate.Enabled && !c.Document.Enabled {
		return fmt.Errorf("at least one of plate.enabled and document.enabled must be set")
	}
	stages := map[string]StageConfig{
		"plate.localizer":   c.Plate.Localizer,
		"plate.fields":      c.Plate.Fields,
		"document.detector": c.Document.Detector,
	}
	for name, s := range stages {
		if err := validateStage(s, name); err != nil {
			return err
		}
	}
	if err := validateFieldOCR(c.Plate.OCR, "plate.ocr"); err != nil {
		return err
	}
	if c.Plate.Deskew.AngleThreshold < 0 || c.Plate.Deskew.AngleThreshold > 45 {
		return fmt.Errorf("invalid plate.deskew.angle_threshold: %.2f (must be between 0 and 45)", c.Plate.Deskew.AngleThreshold)
	}
	for name, f := range map[string]FieldOCRConfig{
		"document.ocr.id_number": c.Document.OCR.IDNumber,
		"document.ocr.name":      c.Document.OCR.Name,
		"document.ocr.lastname":  c.Document.OCR.LastName,
	} {
		if err := validateFieldOCR(f, name); err != nil {
			return err
		}
	}
	if c.Document.Enabled {
		if _, err := c.roleMap(); err != nil {
			return fmt.Errorf("invalid document.roles: %w", err)
		}
	}

	switch c.OCR.Engine {
	case EngineONNX:
		if c.OCR.ImageHeight <= 0 {
			return fmt.Errorf("invalid ocr.image_height: %d (must be positive)", c.OCR.ImageHeight)
		}
	case EngineRemote:
		if c.OCR.RemoteURL == "" {
			return fmt.Errorf("ocr.remote_url is required for the remote engine")
		}
	default:
		return fmt.Errorf("invalid ocr engine: %s (must be one of: %s, %s)", c.OCR.Engine, EngineONNX, EngineRemote)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must be positive)", c.Parallel.MaxWorkers)
	}
	if _, err := pipeline.ParseKind(c.Batch.Kind); err != nil {
		return fmt.Errorf("invalid batch kind: %w", err)
	}
	validProgress := []string{"console", "log", "none"}
	if c.Batch.Progress != "" && !contains(validProgress, c.Batch.Progress) {
		return fmt.Errorf("invalid batch progress: %s (must be one of: %s)", c.Batch.Progress, strings.Join(validProgress, ", "))
	}

	if _, err := ParseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

func validateStage(s StageConfig, name string) error {
	if err := validateThreshold(s.Threshold, name+".threshold"); err != nil {
		return err
	}
	if err := validateThreshold(s.NMSThreshold, name+".nms_threshold"); err != nil {
		return err
	}
	switch letterbox.Anchor(s.Anchor) {
	case "", letterbox.AnchorCenter, letterbox.AnchorTopLeft:
	default:
		return fmt.Errorf("invalid %s.anchor: %s (must be one of: %s, %s)", name, s.Anchor, letterbox.AnchorCenter, letterbox.AnchorTopLeft)
	}
	if s.NumThreads < 0 {
		return fmt.Errorf("invalid %s.num_threads: %d (must not be negative)", name, s.NumThreads)
	}
	return nil
}

func validateFieldOCR(f FieldOCRConfig, name string) error {
	if f.Margin < 0 {
		return fmt.Errorf("invalid %s.margin: %d (must not be negative)", name, f.Margin)
	}
	if _, err := recognizer.ParseMode(f.Mode); err != nil {
		return fmt.Errorf("invalid %s.mode: %w", name, err)
	}
	return nil
}

// ToPlateConfig converts the plate section. pre carries the input size and
// statistics of the field model.
func (c *Config) ToPlateConfig(pre labels.Preprocess) pipeline.PlateConfig {
	cfg := pipeline.DefaultPlateConfig()
	cfg.Fields = letterbox.PlateFieldConfig(pre.Height, pre.Width, pre.Mean, pre.Std)

	applyStage(&cfg.Localizer, &cfg.LocalizerFilter, c.Plate.Localizer)
	applyStage(&cfg.Fields, &cfg.FieldFilter, c.Plate.Fields)

	cfg.Deskew.Enabled = c.Plate.Deskew.Enabled
	cfg.Deskew.AngleThreshold = c.Plate.Deskew.AngleThreshold
	if c.Plate.OCRClasses != nil {
		cfg.OCRClasses = c.Plate.OCRClasses
	}
	cfg.OCR = toFieldSpec(c.Plate.OCR)
	cfg.IncompleteIsSuccess = c.Plate.IncompleteIsSuccess
	return cfg
}

// ToDocumentConfig converts the document section.
func (c *Config) ToDocumentConfig() (pipeline.DocumentConfig, error) {
	cfg := pipeline.DefaultDocumentConfig()
	roles, err := c.roleMap()
	if err != nil {
		return cfg, err
	}
	cfg.Roles = roles
	applyStage(&cfg.Detector, &cfg.Filter, c.Document.Detector)
	cfg.Fields = map[labels.Role]pipeline.FieldSpec{
		labels.RoleIDNumber: toFieldSpec(c.Document.OCR.IDNumber),
		labels.RoleName:     toFieldSpec(c.Document.OCR.Name),
		labels.RoleLastName: toFieldSpec(c.Document.OCR.LastName),
	}
	return cfg, nil
}

func (c *Config) roleMap() (labels.RoleMap, error) {
	classes := map[labels.Role]string{}
	if c.Document.Roles.IDNumber != "" {
		classes[labels.RoleIDNumber] = c.Document.Roles.IDNumber
	}
	if c.Document.Roles.Name != "" {
		classes[labels.RoleName] = c.Document.Roles.Name
	}
	if c.Document.Roles.LastName != "" {
		classes[labels.RoleLastName] = c.Document.Roles.LastName
	}
	return labels.NewRoleMap(classes)
}

func applyStage(norm *letterbox.Config, f *detector.Filter, s StageConfig) {
	if s.Anchor != "" {
		norm.Anchor = letterbox.Anchor(s.Anchor)
	}
	f.Threshold = s.Threshold
	f.NMSThreshold = s.NMSThreshold
	if s.AllowList != nil {
		f.AllowList = s.AllowList
	}
}

func toFieldSpec(f FieldOCRConfig) pipeline.FieldSpec {
	mode, err := recognizer.ParseMode(f.Mode)
	if err != nil {
		mode = recognizer.ModeConcatenate
	}
	return pipeline.FieldSpec{AllowList: f.AllowList, Margin: f.Margin, Mode: mode}
}

// ToGPUConfig converts the GPU section for ONNX sessions.
func (c *Config) ToGPUConfig() (onnx.GPUConfig, error) {
	limit, err := ParseMemoryLimit(c.GPU.MemoryLimit)
	if err != nil {
		return onnx.GPUConfig{}, err
	}
	gpu := onnx.DefaultGPUConfig()
	gpu.UseGPU = c.GPU.Enabled
	gpu.DeviceID = c.GPU.Device
	gpu.MemLimit = limit
	return gpu, nil
}

// ToRecognizerConfig converts the OCR section for the ONNX engine.
func (c *Config) ToRecognizerConfig(gpu onnx.GPUConfig) recognizer.Config {
	cfg := recognizer.DefaultConfig()
	cfg.ModelPath = c.OCR.ModelPath
	if cfg.ModelPath == "" {
		cfg.ModelPath = models.GetRecognizerModelPath(c.ModelsDir)
	}
	cfg.DictPath = c.OCR.DictPath
	if cfg.DictPath == "" {
		cfg.DictPath = models.GetRecognizerDictPath(c.ModelsDir)
	}
	cfg.ImageHeight = c.OCR.ImageHeight
	cfg.MaxWidth = c.OCR.MaxWidth
	cfg.PadWidthMultiple = c.OCR.PadWidthMultiple
	cfg.NumThreads = c.OCR.NumThreads
	cfg.GPU = gpu
	return cfg
}

// ToRemoteConfig converts the OCR section for the remote engine.
func (c *Config) ToRemoteConfig() recognizer.RemoteConfig {
	return recognizer.RemoteConfig{
		URL:     c.OCR.RemoteURL,
		Timeout: time.Duration(c.OCR.TimeoutSec) * time.Second,
		Retries: c.OCR.Retries,
		Delay:   time.Duration(c.OCR.RetryDelayMS) * time.Millisecond,
	}
}

// ToPoolConfig converts the parallel section.
func (c *Config) ToPoolConfig() pipeline.PoolConfig {
	return pipeline.PoolConfig{MaxWorkers: c.Parallel.MaxWorkers}
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

var memoryUnits = []struct {
	suffix string
	scale  float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseMemoryLimit parses a GPU memory limit such as "1GB" or "512MB" into
// bytes. Empty and "auto" mean no limit and yield 0.
func ParseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	upper := strings.ToUpper(strings.TrimSpace(limit))
	for _, u := range memoryUnits {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(upper, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.scale), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
