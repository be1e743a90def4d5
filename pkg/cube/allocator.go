package cube

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/lh-astro/fitscube/pkg/fits"
)

// zeroFillChunk is the buffer size used by the explicit zero-fill
// reservation strategy.
const zeroFillChunk = 4 << 20

// AllocatorOption configures Allocate.
type AllocatorOption func(*allocatorConfig)

type allocatorConfig struct {
	overwrite bool
	zeroFill  bool
}

// WithOverwrite allows Allocate to replace an existing file.
func WithOverwrite(overwrite bool) AllocatorOption {
	return func(c *allocatorConfig) {
		c.overwrite = overwrite
	}
}

// WithZeroFill forces the explicit zero-fill reservation strategy.
// Reservation is then O(file size) instead of O(1), but unwritten
// plane regions are guaranteed to read back as zero bytes instead of
// relying on sparse-file semantics of the filesystem.
func WithZeroFill(zeroFill bool) AllocatorOption {
	return func(c *allocatorConfig) {
		c.zeroFill = zeroFill
	}
}

// Allocate creates the cube file and reserves its full footprint:
// a placeholder header covering the reserved header region, then the
// data region extended sparsely (one byte written at the last offset)
// so that reservation cost is independent of cube size and RAM. The
// returned handle is open for random-access writes.
//
// Returns ErrAlreadyExists if the file exists and overwrite is off,
// and InsufficientDiskSpaceError if the filesystem rejects the
// reservation outright.
func Allocate(path string, layout Layout, options ...AllocatorOption) (*os.File, error) {
	var cfg allocatorConfig
	for _, option := range options {
		option(&cfg)
	}

	flags := os.O_RDWR | os.O_CREATE | os.O_EXCL
	if cfg.overwrite {
		flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create cube file: %w", err)
	}

	header, err := placeholderHeader(layout).Encode(layout.HeaderBlockCount)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode placeholder header: %w", err)
	}
	if _, err := f.WriteAt(header, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write placeholder header: %w", err)
	}

	if err := reserve(f, layout, cfg.zeroFill); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// placeholderHeader builds the minimal structural header written at
// allocation time. It pins the cube geometry; everything else is
// filled in by Finalize once the reference plane has been seen.
func placeholderHeader(layout Layout) *fits.Header {
	shape := layout.Shape
	h := fits.NewHeader()
	h.Append(fits.Card{Keyword: "SIMPLE", Value: true, Comment: "conforms to FITS standard"})
	h.Append(fits.Card{Keyword: "BITPIX", Value: shape.Element.Bitpix(), Comment: "array data type"})
	h.Append(fits.Card{Keyword: "NAXIS", Value: 4, Comment: "number of array dimensions"})
	h.Append(fits.Card{Keyword: "NAXIS1", Value: shape.X.Extent})
	h.Append(fits.Card{Keyword: "NAXIS2", Value: shape.Y.Extent})
	h.Append(fits.Card{Keyword: "NAXIS3", Value: shape.Freq.Extent})
	h.Append(fits.Card{Keyword: "NAXIS4", Value: shape.Pol.Extent})
	return h
}

// reserve extends the file to its full size. The sparse strategy seeks
// to the last byte and writes a single zero; filesystems with sparse
// support allocate no real blocks for the hole. If the filesystem
// refuses the sparse extension for any reason other than lack of
// space, reserve degrades to the explicit zero-fill strategy.
func reserve(f *os.File, layout Layout, zeroFill bool) error {
	if zeroFill {
		return reserveZeroFill(f, layout)
	}
	if _, err := f.WriteAt([]byte{0}, layout.FileTotalSize-1); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return &InsufficientDiskSpaceError{Size: layout.FileTotalSize, Err: err}
		}
		return reserveZeroFill(f, layout)
	}
	return nil
}

// reserveZeroFill writes real zero bytes over the whole data region in
// bounded chunks.
func reserveZeroFill(f *os.File, layout Layout) error {
	chunk := make([]byte, zeroFillChunk)
	for off := layout.DataRegionStart; off < layout.FileTotalSize; {
		n := int64(len(chunk))
		if off+n > layout.FileTotalSize {
			n = layout.FileTotalSize - off
		}
		if _, err := f.WriteAt(chunk[:n], off); err != nil {
			if errors.Is(err, syscall.ENOSPC) {
				return &InsufficientDiskSpaceError{Size: layout.FileTotalSize, Err: err}
			}
			return fmt.Errorf("failed to zero-fill at offset %d: %w", off, err)
		}
		off += n
	}
	return nil
}
