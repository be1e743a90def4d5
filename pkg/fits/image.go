package fits

import (
	"fmt"
	"io"
	"os"
)

// Image is a read-only view of a single-HDU FITS image file: its
// parsed header and a window over the raw, big-endian pixel payload.
// It is the source-plane collaborator of the cube builder; the builder
// itself only ever sees the declared shape and a byte stream.
type Image struct {
	file       *os.File
	header     *Header
	bitpix     int
	axes       []int64
	dataOffset int64
}

// OpenImage opens path and parses its primary header.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	header, dataOffset, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	im := &Image{
		file:       f,
		header:     header,
		dataOffset: dataOffset,
	}
	if err := im.parseGeometry(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return im, nil
}

func (im *Image) parseGeometry() error {
	bitpix, ok := im.header.Int("BITPIX")
	if !ok {
		return fmt.Errorf("missing BITPIX card")
	}
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
	default:
		return fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	im.bitpix = int(bitpix)

	naxis, ok := im.header.Int("NAXIS")
	if !ok {
		return fmt.Errorf("missing NAXIS card")
	}
	if naxis < 1 || naxis > 99 {
		return fmt.Errorf("invalid NAXIS %d", naxis)
	}

	im.axes = make([]int64, naxis)
	for i := int64(1); i <= naxis; i++ {
		extent, ok := im.header.Int(fmt.Sprintf("NAXIS%d", i))
		if !ok {
			return fmt.Errorf("missing NAXIS%d card", i)
		}
		if extent < 1 {
			return fmt.Errorf("invalid NAXIS%d = %d", i, extent)
		}
		im.axes[i-1] = extent
	}
	return nil
}

// Close releases the underlying file.
func (im *Image) Close() error {
	return im.file.Close()
}

// Header returns the parsed primary header.
func (im *Image) Header() *Header {
	return im.header
}

// Bitpix returns the image's BITPIX code.
func (im *Image) Bitpix() int {
	return im.bitpix
}

// ElementSize returns the size of one pixel element in bytes.
func (im *Image) ElementSize() int {
	if im.bitpix < 0 {
		return -im.bitpix / 8
	}
	return im.bitpix / 8
}

// PlaneDims returns the two non-degenerate axis extents. Radio images
// are commonly written as 4D with degenerate frequency and Stokes axes
// of extent 1; those are squeezed away here.
func (im *Image) PlaneDims() (nx, ny int, err error) {
	var dims []int64
	for _, extent := range im.axes {
		if extent > 1 {
			dims = append(dims, extent)
		}
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("expected a 2D image after squeezing, got %d non-degenerate axes of %v", len(dims), im.axes)
	}
	return int(dims[0]), int(dims[1]), nil
}

// DataSize returns the exact payload size in bytes, excluding the
// trailing block padding.
func (im *Image) DataSize() int64 {
	size := int64(im.ElementSize())
	for _, extent := range im.axes {
		size *= extent
	}
	return size
}

// DataReader returns a reader over exactly the pixel payload.
func (im *Image) DataReader() *io.SectionReader {
	return io.NewSectionReader(im.file, im.dataOffset, im.DataSize())
}

// WriteImage writes a single-HDU FITS file: the header, the raw
// big-endian payload, and zero padding up to the next block boundary.
// The header must already carry consistent BITPIX/NAXISn cards.
func WriteImage(path string, h *Header, payload []byte) error {
	buf, err := h.Encode(0)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	if rem := len(payload) % BlockSize; rem != 0 {
		if _, err := f.Write(make([]byte, BlockSize-rem)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	return f.Sync()
}
