package assembler

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LayoutPattern describes one accepted left-to-right class sequence and how
// its recognized slots are rendered.
type LayoutPattern struct {
	Name     string   `yaml:"name" json:"name"`
	Sequence []string `yaml:"sequence" json:"sequence"`
	// Template renders a complete read. {i} is replaced by the text of slot i.
	Template string `yaml:"template" json:"template"`
	// FailureTemplate renders an incomplete read. Empty slots show as [N/A].
	FailureTemplate string `yaml:"failure_template" json:"failure_template"`
	// FailureReason overrides the generated "OCR failed on ..." reason.
	FailureReason string `yaml:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	// SlotNames names the slots that must hold valid text.
	SlotNames map[int]string `yaml:"slots" json:"slots"`
}

var placeholder = regexp.MustCompile(`\{(\d+)\}`)

// Validate checks that every referenced slot exists in the sequence.
func (p LayoutPattern) Validate() error {
	if len(p.Sequence) == 0 {
		return fmt.Errorf("pattern %q: empty sequence", p.Name)
	}
	if p.Template == "" {
		return fmt.Errorf("pattern %q: empty template", p.Name)
	}
	if len(p.SlotNames) == 0 {
		return fmt.Errorf("pattern %q: no required slots", p.Name)
	}
	for slot := range p.SlotNames {
		if slot < 0 || slot >= len(p.Sequence) {
			return fmt.Errorf("pattern %q: slot %d outside sequence of length %d", p.Name, slot, len(p.Sequence))
		}
	}
	for _, tpl := range []string{p.Template, p.FailureTemplate} {
		for _, m := range placeholder.FindAllStringSubmatch(tpl, -1) {
			i, _ := strconv.Atoi(m[1])
			if _, ok := p.SlotNames[i]; !ok {
				return fmt.Errorf("pattern %q: template references slot %d which is not required", p.Name, i)
			}
		}
	}
	return nil
}

// Matches reports whether seq equals the pattern sequence exactly.
func (p LayoutPattern) Matches(seq []string) bool {
	return slices.Equal(p.Sequence, seq)
}

// Slots returns the required slot indices in ascending order.
func (p LayoutPattern) Slots() []int {
	out := make([]int, 0, len(p.SlotNames))
	for i := range p.SlotNames {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func render(tpl string, text func(int) string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		i, _ := strconv.Atoi(m[1 : len(m)-1])
		return text(i)
	})
}

// Registry is an ordered, read-only set of layout patterns.
type Registry struct {
	patterns []LayoutPattern
}

// NewRegistry validates the patterns and rejects duplicate sequences.
func NewRegistry(patterns ...LayoutPattern) (*Registry, error) {
	seen := make(map[string]string, len(patterns))
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		key := strings.Join(p.Sequence, " ")
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("patterns %q and %q share sequence [%s]", prev, p.Name, key)
		}
		seen[key] = p.Name
	}
	return &Registry{patterns: slices.Clone(patterns)}, nil
}

// Lookup returns the pattern matching seq.
func (r *Registry) Lookup(seq []string) (LayoutPattern, bool) {
	for _, p := range r.patterns {
		if p.Matches(seq) {
			return p, true
		}
	}
	return LayoutPattern{}, false
}

// Patterns returns a copy of the registered patterns.
func (r *Registry) Patterns() []LayoutPattern {
	return slices.Clone(r.patterns)
}

// DefaultPlateRegistry holds the Tunisian registration layouts: the
// "<series> TN <number>" form and the "RS <number>" form, which detectors
// report with the separator on either side.
func DefaultPlateRegistry() *Registry {
	r, err := NewRegistry(
		LayoutPattern{
			Name:            "series-tn-number",
			Sequence:        []string{"num", "tun", "num"},
			Template:        "{0} TN {2}",
			FailureTemplate: "OCR Incomplete: {0} TN {2}",
			SlotNames:       map[int]string{0: "first number", 2: "second number"},
		},
		LayoutPattern{
			Name:            "rs-number-first",
			Sequence:        []string{"num", "tun"},
			Template:        "RS {0}",
			FailureTemplate: "RS OCR Error: {0}",
			FailureReason:   "OCR failed on number part for RS-style plate",
			SlotNames:       map[int]string{0: "number"},
		},
		LayoutPattern{
			Name:            "rs-number-last",
			Sequence:        []string{"tun", "num"},
			Template:        "RS {1}",
			FailureTemplate: "RS OCR Error: {1}",
			FailureReason:   "OCR failed on number part for RS-style plate",
			SlotNames:       map[int]string{1: "number"},
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

type registryFile struct {
	Patterns []LayoutPattern `yaml:"patterns"`
}

// LoadRegistry reads patterns from a YAML file of the form
// "patterns: [{name, sequence, template, failure_template, slots}]".
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read layouts: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse layouts %s: %w", path, err)
	}
	if len(f.Patterns) == 0 {
		return nil, fmt.Errorf("layouts %s defines no patterns", path)
	}
	return NewRegistry(f.Patterns...)
}
