package cube

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
)

// madToStd converts a median absolute deviation into a standard
// deviation estimate for Gaussian noise.
const madToStd = 1.4826

// rmsFloor is the lower sanity bound on a noise estimate in Jy/beam.
// Estimates below it indicate a degenerate plane and flag the channel
// just like estimates above the threshold do.
const rmsFloor = 1e-6

// Median returns the median of samples, ignoring NaNs. Returns NaN for
// an empty or all-NaN input. The input slice is not modified.
func Median(samples []float64) float64 {
	finite := make([]float64, 0, len(samples))
	for _, v := range samples {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	mid := len(finite) / 2
	if len(finite)%2 == 1 {
		return finite[mid]
	}
	return (finite[mid-1] + finite[mid]) / 2
}

// MAD returns the median absolute deviation of samples.
func MAD(samples []float64) float64 {
	med := Median(samples)
	deviations := make([]float64, len(samples))
	for i, v := range samples {
		deviations[i] = math.Abs(v - med)
	}
	return Median(deviations)
}

// StdViaMAD estimates the standard deviation of samples from their
// median absolute deviation. Robust against the bright sources that
// dominate a plain RMS on real radio images.
func StdViaMAD(samples []float64) float64 {
	return madToStd * MAD(samples)
}

// decodeFloats decodes a big-endian floating-point payload. Noise
// screening only applies to floating-point cubes.
func decodeFloats(payload []byte, elem ElementType) ([]float64, error) {
	size := elem.Size()
	switch elem {
	case Float32:
		out := make([]float64, len(payload)/size)
		for i := range out {
			bits := binary.BigEndian.Uint32(payload[i*size:])
			out[i] = float64(math.Float32frombits(bits))
		}
		return out, nil
	case Float64:
		out := make([]float64, len(payload)/size)
		for i := range out {
			bits := binary.BigEndian.Uint64(payload[i*size:])
			out[i] = math.Float64frombits(bits)
		}
		return out, nil
	}
	return nil, fmt.Errorf("noise screening requires a floating-point element type, got %s", elem)
}

// PlaneNoise reads a source plane fully and estimates its noise level.
// Planes are assumed to fit in memory individually; it is only the
// assembled cube that does not.
func PlaneNoise(src PlaneSource) (float64, error) {
	nx, ny := src.Dims()
	size := int64(nx) * int64(ny) * int64(src.Element().Size())

	r, err := src.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open plane source: %w", err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, fmt.Errorf("failed to read plane payload: %w", err)
	}
	samples, err := decodeFloats(payload, src.Element())
	if err != nil {
		return 0, err
	}
	return StdViaMAD(samples), nil
}

// ChannelNoise records the per-channel noise estimates gathered during
// a build. Values are in Jy/beam; NaN marks an estimate that was never
// computed (for example when the channel's plane failed to read).
type ChannelNoise struct {
	Channel int
	RMSI    float64
	RMSV    float64
	Flagged bool
}

// exceedsThreshold reports whether a noise estimate flags its channel:
// above the configured threshold, or implausibly low.
func exceedsThreshold(std, threshold float64) bool {
	return std > threshold || std < rmsFloor
}

// WriteNoiseTable writes per-channel Stokes I and V noise estimates as
// a tab-separated table, in microjansky per beam.
func WriteNoiseTable(path string, rows []ChannelNoise) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create statistics file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{"RMS Stokes I [uJy/beam]", "RMS Stokes V [uJy/beam]"}); err != nil {
		return fmt.Errorf("failed to write statistics header: %w", err)
	}
	for _, row := range rows {
		record := []string{formatMicroJy(row.RMSI), formatMicroJy(row.RMSV)}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write statistics row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush statistics file: %w", err)
	}
	return nil
}

func formatMicroJy(jy float64) string {
	if math.IsNaN(jy) {
		return "nan"
	}
	return strconv.FormatFloat(jy*1e6, 'f', 4, 64)
}
