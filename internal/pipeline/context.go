package pipeline

import (
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/MeKo-Tech/platex/internal/assembler"
	"github.com/MeKo-Tech/platex/internal/deskew"
	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/letterbox"
	"github.com/MeKo-Tech/platex/internal/recognizer"
)

// Reference thresholds of the two plate stages and the document detector.
const (
	DefaultLocalizerThreshold = 0.53
	DefaultFieldThreshold     = 0.54
	DefaultDocumentThreshold  = 0.54
	DefaultMaxWorkers         = 10
)

// FieldSpec controls how one field is read.
type FieldSpec struct {
	AllowList string          `mapstructure:"allow_list" json:"allow_list,omitempty"`
	Margin    int             `mapstructure:"margin" json:"margin"`
	Mode      recognizer.Mode `mapstructure:"mode" json:"mode"`
}

// Validate checks the margin and mode.
func (s FieldSpec) Validate() error {
	if s.Margin < 0 {
		return fmt.Errorf("margin must not be negative, got %d", s.Margin)
	}
	_, err := recognizer.ParseMode(string(s.Mode))
	return err
}

// PlateConfig configures the two-stage plate deployment.
type PlateConfig struct {
	Localizer       letterbox.Config
	LocalizerFilter detector.Filter
	Fields          letterbox.Config
	FieldFilter     detector.Filter
	Deskew          deskew.Config
	// OCRClasses lists the field classes that are read; others only take
	// part in the layout sequence.
	OCRClasses          []string
	OCR                 FieldSpec
	IncompleteIsSuccess bool
}

// DefaultPlateConfig returns the reference plate settings.
func DefaultPlateConfig() PlateConfig {
	pre := labels.DefaultPreprocess()
	return PlateConfig{
		Localizer: letterbox.PlateLocalizerConfig(),
		LocalizerFilter: detector.Filter{
			Threshold: DefaultLocalizerThreshold,
			Policy:    detector.PolicyBestSingle,
		},
		Fields: letterbox.PlateFieldConfig(pre.Height, pre.Width, pre.Mean, pre.Std),
		FieldFilter: detector.Filter{
			Threshold: DefaultFieldThreshold,
			Inclusive: true,
			Policy:    detector.PolicyRetainAllValid,
			AllowList: []string{"num", "tun"},
		},
		Deskew:     deskew.DefaultConfig(),
		OCRClasses: []string{"num"},
		OCR:        FieldSpec{AllowList: recognizer.DigitsAllowList, Margin: 2, Mode: recognizer.ModeDigits},
	}
}

// Validate checks the plate configuration.
func (c PlateConfig) Validate() error {
	if err := c.Localizer.Validate(); err != nil {
		return fmt.Errorf("localizer: %w", err)
	}
	if err := c.LocalizerFilter.Validate(); err != nil {
		return fmt.Errorf("localizer filter: %w", err)
	}
	if err := c.Fields.Validate(); err != nil {
		return fmt.Errorf("fields: %w", err)
	}
	if err := c.FieldFilter.Validate(); err != nil {
		return fmt.Errorf("field filter: %w", err)
	}
	if err := c.Deskew.Validate(); err != nil {
		return fmt.Errorf("deskew: %w", err)
	}
	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	return nil
}

// DocumentConfig configures the single-stage identity document deployment.
type DocumentConfig struct {
	Detector letterbox.Config
	Filter   detector.Filter
	Roles    labels.RoleMap
	Fields   map[labels.Role]FieldSpec
}

// DefaultDocumentConfig returns the reference identity card settings.
func DefaultDocumentConfig() DocumentConfig {
	return DocumentConfig{
		Detector: letterbox.DocumentConfig(),
		Filter: detector.Filter{
			Threshold: DefaultDocumentThreshold,
			Inclusive: true,
			Policy:    detector.PolicyRetainAllValid,
		},
		Roles: labels.DefaultRoleMap(),
		Fields: map[labels.Role]FieldSpec{
			labels.RoleIDNumber: {AllowList: recognizer.DigitsAllowList, Margin: 5, Mode: recognizer.ModeConcatenate},
			labels.RoleName:     {Mode: recognizer.ModeConcatenate},
			labels.RoleLastName: {Mode: recognizer.ModeConcatenate},
		},
	}
}

// Validate checks the document configuration.
func (c DocumentConfig) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if len(c.Roles.Classes()) == 0 {
		return errors.New("no field roles configured")
	}
	for role, spec := range c.Fields {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("field %s: %w", role, err)
		}
	}
	return nil
}

type plateStages struct {
	cfg             PlateConfig
	localizer       detector.Model
	localizerLabels labels.ClassLabelMap
	localizerNorm   *letterbox.Normalizer
	fields          detector.Model
	fieldLabels     labels.ClassLabelMap
	fieldNorm       *letterbox.Normalizer
	corrector       *deskew.Corrector
	assembler       *assembler.Assembler
	ocrClasses      map[string]bool
}

type documentStages struct {
	cfg    DocumentConfig
	model  detector.Model
	labels labels.ClassLabelMap
	norm   *letterbox.Normalizer
}

// Context holds everything an extraction needs. It is built once, shared by
// pointer across goroutines and never mutated afterwards.
type Context struct {
	plate   *plateStages
	doc     *documentStages
	ocr     recognizer.Engine
	closers []io.Closer
	info    map[string]interface{}
}

// Builder assembles a Context.
type Builder struct {
	plateCfg        PlateConfig
	docCfg          DocumentConfig
	localizer       detector.Model
	localizerLabels labels.ClassLabelMap
	fields          detector.Model
	fieldLabels     labels.ClassLabelMap
	registry        *assembler.Registry
	docModel        detector.Model
	docLabels       labels.ClassLabelMap
	ocr             recognizer.Engine
	closers         []io.Closer
	info            map[string]interface{}
}

// NewBuilder creates a builder with reference defaults.
func NewBuilder() *Builder {
	return &Builder{
		plateCfg: DefaultPlateConfig(),
		docCfg:   DefaultDocumentConfig(),
		info:     map[string]interface{}{},
	}
}

// WithPlateModels enables the plate deployment.
func (b *Builder) WithPlateModels(localizer detector.Model, localizerLabels labels.ClassLabelMap,
	fields detector.Model, fieldLabels labels.ClassLabelMap,
) *Builder {
	b.localizer, b.localizerLabels = localizer, localizerLabels
	b.fields, b.fieldLabels = fields, fieldLabels
	return b
}

// WithPlateConfig replaces the plate settings.
func (b *Builder) WithPlateConfig(cfg PlateConfig) *Builder {
	b.plateCfg = cfg
	return b
}

// WithRegistry sets the plate layout registry.
func (b *Builder) WithRegistry(r *assembler.Registry) *Builder {
	b.registry = r
	return b
}

// WithDocumentModel enables the document deployment.
func (b *Builder) WithDocumentModel(model detector.Model, lbls labels.ClassLabelMap) *Builder {
	b.docModel, b.docLabels = model, lbls
	return b
}

// WithDocumentConfig replaces the document settings.
func (b *Builder) WithDocumentConfig(cfg DocumentConfig) *Builder {
	b.docCfg = cfg
	return b
}

// WithOCR sets the recognition engine.
func (b *Builder) WithOCR(e recognizer.Engine) *Builder {
	b.ocr = e
	return b
}

// WithCloser hands ownership of c to the Context; it is closed by Close.
func (b *Builder) WithCloser(c io.Closer) *Builder {
	if c != nil {
		b.closers = append(b.closers, c)
	}
	return b
}

// WithInfo attaches descriptive metadata reported by Context.Info.
func (b *Builder) WithInfo(key string, v interface{}) *Builder {
	b.info[key] = v
	return b
}

// Build validates the collected parts and returns an immutable Context.
func (b *Builder) Build() (*Context, error) {
	if b.ocr == nil {
		return nil, fmt.Errorf("%w: no OCR engine", ErrNotConfigured)
	}
	c := &Context{ocr: b.ocr, closers: b.closers, info: maps.Clone(b.info)}

	if b.localizer != nil || b.fields != nil {
		p, err := b.buildPlate()
		if err != nil {
			return nil, err
		}
		c.plate = p
	}
	if b.docModel != nil {
		d, err := b.buildDocument()
		if err != nil {
			return nil, err
		}
		c.doc = d
	}
	if c.plate == nil && c.doc == nil {
		return nil, fmt.Errorf("%w: no detector models", ErrNotConfigured)
	}
	return c, nil
}

func (b *Builder) buildPlate() (*plateStages, error) {
	if b.localizer == nil || b.fields == nil {
		return nil, fmt.Errorf("%w: plate deployment needs both detector models", ErrNotConfigured)
	}
	cfg := b.plateCfg
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plate config: %w", err)
	}
	locNorm, err := letterbox.NewNormalizer(cfg.Localizer)
	if err != nil {
		return nil, err
	}
	fieldNorm, err := letterbox.NewNormalizer(cfg.Fields)
	if err != nil {
		return nil, err
	}
	registry := b.registry
	if registry == nil {
		registry = assembler.DefaultPlateRegistry()
	}
	classes := make(map[string]bool, len(cfg.OCRClasses))
	for _, cl := range cfg.OCRClasses {
		classes[cl] = true
	}
	return &plateStages{
		cfg:             cfg,
		localizer:       b.localizer,
		localizerLabels: b.localizerLabels,
		localizerNorm:   locNorm,
		fields:          b.fields,
		fieldLabels:     b.fieldLabels,
		fieldNorm:       fieldNorm,
		corrector:       deskew.New(cfg.Deskew),
		assembler:       assembler.New(registry, assembler.WithIncompleteAsSuccess(cfg.IncompleteIsSuccess)),
		ocrClasses:      classes,
	}, nil
}

func (b *Builder) buildDocument() (*documentStages, error) {
	cfg := b.docCfg
	if len(cfg.Filter.AllowList) == 0 {
		cfg.Filter.AllowList = cfg.Roles.Classes()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document config: %w", err)
	}
	norm, err := letterbox.NewNormalizer(cfg.Detector)
	if err != nil {
		return nil, err
	}
	cfg.Fields = maps.Clone(cfg.Fields)
	return &documentStages{cfg: cfg, model: b.docModel, labels: b.docLabels, norm: norm}, nil
}

// HasPlate reports whether the plate deployment is available.
func (c *Context) HasPlate() bool { return c.plate != nil }

// HasDocument reports whether the document deployment is available.
func (c *Context) HasDocument() bool { return c.doc != nil }

// Registry returns the plate layout registry, or nil.
func (c *Context) Registry() *assembler.Registry {
	if c.plate == nil {
		return nil
	}
	return c.plate.assembler.Registry()
}

// Info describes the loaded deployments.
func (c *Context) Info() map[string]interface{} {
	info := maps.Clone(c.info)
	if info == nil {
		info = map[string]interface{}{}
	}
	if c.plate != nil {
		patterns := c.plate.assembler.Registry().Patterns()
		names := make([]string, len(patterns))
		for i, p := range patterns {
			names[i] = p.Name
		}
		info["plate"] = map[string]interface{}{
			"localizer_classes":   c.plate.localizerLabels.Names(),
			"field_classes":       c.plate.fieldLabels.Names(),
			"localizer_threshold": c.plate.cfg.LocalizerFilter.Threshold,
			"field_threshold":     c.plate.cfg.FieldFilter.Threshold,
			"patterns":            names,
			"deskew":              c.plate.cfg.Deskew.Enabled,
		}
	}
	if c.doc != nil {
		info["document"] = map[string]interface{}{
			"classes":   c.doc.labels.Names(),
			"threshold": c.doc.cfg.Filter.Threshold,
			"roles":     c.doc.cfg.Roles.Classes(),
		}
	}
	return info
}

// Close releases owned collaborators.
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
