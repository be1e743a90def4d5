// Command genimages writes per-channel test images (Gaussian noise
// only) in the layout the cube builder consumes: one file per channel
// and polarization, each a 2D float32 image with degenerate frequency
// and Stokes axes and a plausible WCS header.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/lh-astro/fitscube/pkg/fits"
)

func main() {
	dir := flag.String("dir", "images", "Output directory")
	object := flag.String("object", "testfield", "Object name used in file names and headers")
	channels := flag.Int("channels", 8, "Number of frequency channels")
	size := flag.Int("size", 128, "Image width and height in pixels")
	sigma := flag.Float64("sigma", 10e-6, "Noise standard deviation in Jy/beam")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	for chanIdx := 0; chanIdx < *channels; chanIdx++ {
		for _, pol := range []string{"I", "Q", "U", "V"} {
			path := filepath.Join(*dir, fmt.Sprintf("%s.chan%04d.%s.im-image.fits", *object, chanIdx, pol))
			if err := writeNoiseImage(path, *object, pol, chanIdx, *size, *sigma, rng); err != nil {
				fmt.Printf("Error writing %s: %v\n", path, err)
				os.Exit(1)
			}
		}
	}
	fmt.Printf("Wrote %d images to %s\n", *channels*4, *dir)
}

func writeNoiseImage(path, object, pol string, chanIdx, size int, sigma float64, rng *rand.Rand) error {
	h := fits.NewHeader()
	h.Append(fits.Card{Keyword: "SIMPLE", Value: true, Comment: "conforms to FITS standard"})
	h.Append(fits.Card{Keyword: "BITPIX", Value: -32, Comment: "array data type"})
	h.Append(fits.Card{Keyword: "NAXIS", Value: 4, Comment: "number of array dimensions"})
	h.Append(fits.Card{Keyword: "NAXIS1", Value: size})
	h.Append(fits.Card{Keyword: "NAXIS2", Value: size})
	h.Append(fits.Card{Keyword: "NAXIS3", Value: 1})
	h.Append(fits.Card{Keyword: "NAXIS4", Value: 1})
	h.Append(fits.Card{Keyword: "OBJECT", Value: object})
	h.Append(fits.Card{Keyword: "BUNIT", Value: "Jy/beam"})
	h.Append(fits.Card{Keyword: "CTYPE1", Value: "RA---SIN"})
	h.Append(fits.Card{Keyword: "CRVAL1", Value: 150.0, Comment: "deg"})
	h.Append(fits.Card{Keyword: "CRPIX1", Value: float64(size)/2 + 1})
	h.Append(fits.Card{Keyword: "CDELT1", Value: -2.777777777778e-4})
	h.Append(fits.Card{Keyword: "CTYPE2", Value: "DEC--SIN"})
	h.Append(fits.Card{Keyword: "CRVAL2", Value: 2.0, Comment: "deg"})
	h.Append(fits.Card{Keyword: "CRPIX2", Value: float64(size)/2 + 1})
	h.Append(fits.Card{Keyword: "CDELT2", Value: 2.777777777778e-4})
	h.Append(fits.Card{Keyword: "CTYPE3", Value: "FREQ"})
	h.Append(fits.Card{Keyword: "CRVAL3", Value: 1.4e9 + float64(chanIdx)*1e6, Comment: "Hz"})
	h.Append(fits.Card{Keyword: "CRPIX3", Value: 1.0})
	h.Append(fits.Card{Keyword: "CDELT3", Value: 1.0e6})
	h.Append(fits.Card{Keyword: "CTYPE4", Value: "STOKES"})
	h.Append(fits.Card{Keyword: "CRVAL4", Value: stokesCode(pol)})
	h.Append(fits.Card{Keyword: "CRPIX4", Value: 1.0})
	h.Append(fits.Card{Keyword: "CDELT4", Value: 1.0})

	payload := make([]byte, size*size*4)
	for i := 0; i < size*size; i++ {
		sample := float32(rng.NormFloat64() * sigma)
		binary.BigEndian.PutUint32(payload[i*4:], math.Float32bits(sample))
	}
	return fits.WriteImage(path, h, payload)
}

func stokesCode(pol string) float64 {
	switch pol {
	case "I":
		return 1
	case "Q":
		return 2
	case "U":
		return 3
	case "V":
		return 4
	}
	return 0
}
