package cube

import (
	"github.com/lh-astro/fitscube/pkg/fits"
)

// DefaultHeaderBlocks is the header reservation used when the caller
// does not choose one: 4 blocks hold 144 cards, comfortably above a
// typical radio image header with full WCS.
const DefaultHeaderBlocks = 4

// PlaneCoordinate addresses one plane by its outer axis indices.
// Pol is the slow axis (NAXIS4), Chan the fast one (NAXIS3).
type PlaneCoordinate struct {
	Pol  int
	Chan int
}

// Layout is the derived byte layout of a cube file. It is computed
// once from a validated shape and never changes; the allocator and
// every plane writer agree on offsets through it without any shared
// mutable state.
type Layout struct {
	Shape            CubeShape
	HeaderBlockCount int
	DataBlockCount   int
	PlaneByteSize    int64
	DataRegionStart  int64
	FileTotalSize    int64
}

// ComputeLayout derives the layout for a shape. headerBlocks is the
// fixed header region reservation in FITS blocks; zero or negative
// selects DefaultHeaderBlocks. The computation is pure: the same
// inputs always produce the same layout.
func ComputeLayout(shape CubeShape, headerBlocks int) (Layout, error) {
	if err := shape.Validate(); err != nil {
		return Layout{}, err
	}
	if headerBlocks <= 0 {
		headerBlocks = DefaultHeaderBlocks
	}

	planeBytes := int64(shape.X.Extent) * int64(shape.Y.Extent) * int64(shape.Element.Size())
	dataBytes := int64(shape.PlaneCount()) * planeBytes
	dataBlocks := int((dataBytes + fits.BlockSize - 1) / fits.BlockSize)

	layout := Layout{
		Shape:            shape,
		HeaderBlockCount: headerBlocks,
		DataBlockCount:   dataBlocks,
		PlaneByteSize:    planeBytes,
		DataRegionStart:  int64(headerBlocks) * fits.BlockSize,
	}
	layout.FileTotalSize = layout.DataRegionStart + int64(dataBlocks)*fits.BlockSize
	return layout, nil
}

// PlaneOffset returns the absolute byte offset of a plane. The mapping
// is bijective over the outer extents, so distinct coordinates always
// target disjoint byte ranges.
func (l Layout) PlaneOffset(c PlaneCoordinate) (int64, error) {
	if c.Pol < 0 || c.Pol >= l.Shape.Pol.Extent || c.Chan < 0 || c.Chan >= l.Shape.Freq.Extent {
		return 0, &CoordinateError{Coord: c, PolExtent: l.Shape.Pol.Extent, FreqExtent: l.Shape.Freq.Extent}
	}
	return l.DataRegionStart + l.PlaneByteSize*int64(l.PlaneOrdinal(c)), nil
}

// PlaneOrdinal returns the row-major ordinal of a coordinate within
// the outer axes. Used for tracking completed planes.
func (l Layout) PlaneOrdinal(c PlaneCoordinate) int {
	return c.Pol*l.Shape.Freq.Extent + c.Chan
}
