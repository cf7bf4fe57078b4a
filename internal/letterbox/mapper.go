package letterbox

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/platex/internal/geometry"
)

// ErrZeroScale is returned when a scaling context cannot be inverted.
var ErrZeroScale = errors.New("scaling context has non-positive scale")

// Mapper converts boxes between one reference frame and the model canvas it
// was letterboxed onto. Nested crops need one Mapper per level.
type Mapper struct {
	sc ScalingContext
}

// NewMapper returns a Mapper for sc.
func NewMapper(sc ScalingContext) (*Mapper, error) {
	if sc.Scale <= 0 || math.IsNaN(sc.Scale) || math.IsInf(sc.Scale, 0) {
		return nil, ErrZeroScale
	}
	return &Mapper{sc: sc}, nil
}

// Context returns the scaling context behind the mapper.
func (m *Mapper) Context() ScalingContext { return m.sc }

// ToReferenceSpace removes padding, undoes the scale, truncates to whole
// pixels and clamps into the reference frame.
func (m *Mapper) ToReferenceSpace(b geometry.Box) geometry.Box {
	left, top := float64(m.sc.PadLeft), float64(m.sc.PadTop)
	out := geometry.Box{
		MinX: (b.MinX - left) / m.sc.Scale,
		MinY: (b.MinY - top) / m.sc.Scale,
		MaxX: (b.MaxX - left) / m.sc.Scale,
		MaxY: (b.MaxY - top) / m.sc.Scale,
	}
	return out.Truncate().Clamp(float64(m.sc.OrigWidth), float64(m.sc.OrigHeight))
}

// ToModelSpace applies the scale and padding to a reference-space box.
func (m *Mapper) ToModelSpace(b geometry.Box) geometry.Box {
	left, top := float64(m.sc.PadLeft), float64(m.sc.PadTop)
	return geometry.Box{
		MinX: b.MinX*m.sc.Scale + left,
		MinY: b.MinY*m.sc.Scale + top,
		MaxX: b.MaxX*m.sc.Scale + left,
		MaxY: b.MaxY*m.sc.Scale + top,
	}
}
