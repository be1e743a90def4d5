package cube

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/lh-astro/fitscube/pkg/fits"
)

// ImageSource adapts a source FITS image to a PlaneSource.
type ImageSource struct {
	im *fits.Image
	nx int
	ny int
}

// NewImageSource wraps an opened image. Degenerate axes are squeezed;
// the image must be 2D after squeezing.
func NewImageSource(im *fits.Image) (*ImageSource, error) {
	nx, ny, err := im.PlaneDims()
	if err != nil {
		return nil, err
	}
	return &ImageSource{im: im, nx: nx, ny: ny}, nil
}

func (s *ImageSource) Dims() (int, int) {
	return s.nx, s.ny
}

func (s *ImageSource) Element() ElementType {
	return ElementType(s.im.Bitpix())
}

func (s *ImageSource) Open() (io.Reader, error) {
	return s.im.DataReader(), nil
}

// BytesSource serves a plane from an in-memory payload. Used in tests
// and for small synthetic planes.
type BytesSource struct {
	NX, NY int
	Elem   ElementType
	Data   []byte
}

func (s *BytesSource) Dims() (int, int) {
	return s.NX, s.NY
}

func (s *BytesSource) Element() ElementType {
	return s.Elem
}

func (s *BytesSource) Open() (io.Reader, error) {
	return &bytesReader{data: s.Data}, nil
}

type bytesReader struct {
	data []byte
	off  int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

// NaNSource produces a plane filled with NaN values without ever
// materializing it: the reader repeats the element's big-endian NaN
// pattern. Used to blot out channels flagged by noise screening.
type NaNSource struct {
	NX, NY int
	Elem   ElementType
}

func (s *NaNSource) Dims() (int, int) {
	return s.NX, s.NY
}

func (s *NaNSource) Element() ElementType {
	return s.Elem
}

func (s *NaNSource) Open() (io.Reader, error) {
	var pattern []byte
	switch s.Elem {
	case Float32:
		pattern = make([]byte, 4)
		binary.BigEndian.PutUint32(pattern, math.Float32bits(float32(math.NaN())))
	case Float64:
		pattern = make([]byte, 8)
		binary.BigEndian.PutUint64(pattern, math.Float64bits(math.NaN()))
	default:
		return nil, fmt.Errorf("NaN fill requires a floating-point element type, got %s", s.Elem)
	}
	total := int64(s.NX) * int64(s.NY) * int64(s.Elem.Size())
	return &patternReader{pattern: pattern, remaining: total}, nil
}

type patternReader struct {
	pattern   []byte
	remaining int64
	phase     int
}

func (r *patternReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	for i := range p {
		p[i] = r.pattern[r.phase]
		r.phase = (r.phase + 1) % len(r.pattern)
	}
	r.remaining -= int64(len(p))
	return len(p), nil
}
