package cube

import (
	"fmt"
	"io"
)

// DefaultChunkSize is the transfer buffer size for plane writes. Peak
// memory per writer is one chunk, independent of plane size.
const DefaultChunkSize = 4 << 20

// PlaneSource supplies one plane's pixel payload: a declared shape and
// element encoding, and a byte stream of exactly Dims()x*Dims()y
// elements in big-endian order.
type PlaneSource interface {
	// Dims returns the declared inner-axis extents of the plane.
	Dims() (nx, ny int)
	// Element returns the declared element encoding.
	Element() ElementType
	// Open returns a fresh reader over the payload bytes.
	Open() (io.Reader, error)
}

// WritePlane validates the source against the cube's inner axes and
// streams its payload to the plane's computed offset via positioned
// writes. Either the full plane lands at the correct offset or an
// error is returned; no retry is attempted here.
func WritePlane(w io.WriterAt, layout Layout, coord PlaneCoordinate, src PlaneSource, chunkSize int) error {
	nx, ny := src.Dims()
	if nx != layout.Shape.X.Extent || ny != layout.Shape.Y.Extent || src.Element() != layout.Shape.Element {
		return &PlaneShapeError{
			Coord:    coord,
			GotX:     nx,
			GotY:     ny,
			WantX:    layout.Shape.X.Extent,
			WantY:    layout.Shape.Y.Extent,
			GotElem:  src.Element(),
			WantElem: layout.Shape.Element,
		}
	}

	offset, err := layout.PlaneOffset(coord)
	if err != nil {
		return err
	}

	r, err := src.Open()
	if err != nil {
		return fmt.Errorf("failed to open plane source: %w", err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)

	var written int64
	for written < layout.PlaneByteSize {
		want := int64(len(buf))
		if written+want > layout.PlaneByteSize {
			want = layout.PlaneByteSize - written
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			return fmt.Errorf("short plane payload at byte %d of %d: %w", written+int64(n), layout.PlaneByteSize, err)
		}
		if _, err := w.WriteAt(buf[:n], offset+written); err != nil {
			return fmt.Errorf("failed to write plane at offset %d: %w", offset+written, err)
		}
		written += int64(n)
	}
	return nil
}
