// Package cube builds large 4-dimensional FITS image cubes out of
// core: the full file footprint is reserved up front via sparse
// allocation, independently produced 2D planes are written at computed
// offsets with bounded memory, and the header is synthesized once the
// first real plane's metadata is known.
package cube

import "fmt"

// ElementType identifies the pixel element encoding. The values are
// the FITS BITPIX codes; the data region is always big-endian.
type ElementType int

const (
	Uint8   ElementType = 8
	Int16   ElementType = 16
	Int32   ElementType = 32
	Int64   ElementType = 64
	Float32 ElementType = -32
	Float64 ElementType = -64
)

// Size returns the element size in bytes, or 0 for an unknown code.
func (e ElementType) Size() int {
	switch e {
	case Uint8, Int16, Int32, Int64, Float32, Float64:
		if e < 0 {
			return int(-e) / 8
		}
		return int(e) / 8
	}
	return 0
}

// Bitpix returns the FITS BITPIX code for the element type.
func (e ElementType) Bitpix() int {
	return int(e)
}

func (e ElementType) String() string {
	switch e {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("ElementType(%d)", int(e))
}

// AxisSpec describes one cube axis. Unit is opaque metadata carried
// into the final header, never interpreted.
type AxisSpec struct {
	Name   string
	Extent int
	Unit   string
}

// CubeShape fixes the four axis extents and the element encoding.
// X and Y are the inner spatial axes shared by every plane; Freq and
// Pol are the outer axes enumerating planes. A shape is immutable once
// a layout has been computed from it.
type CubeShape struct {
	X       AxisSpec // NAXIS1, fastest
	Y       AxisSpec // NAXIS2
	Freq    AxisSpec // NAXIS3
	Pol     AxisSpec // NAXIS4, slowest
	Element ElementType
}

// Validate checks all extents and the element encoding.
func (s CubeShape) Validate() error {
	for _, axis := range []AxisSpec{s.X, s.Y, s.Freq, s.Pol} {
		if axis.Extent < 1 {
			return &ShapeError{Reason: fmt.Sprintf("axis %q has non-positive extent %d", axis.Name, axis.Extent)}
		}
	}
	if s.Element.Size() == 0 {
		return &ShapeError{Reason: fmt.Sprintf("unrecognized element encoding %d", int(s.Element))}
	}
	return nil
}

// PlaneCount returns the total number of planes in the cube.
func (s CubeShape) PlaneCount() int {
	return s.Pol.Extent * s.Freq.Extent
}
