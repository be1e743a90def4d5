package cube

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lh-astro/fitscube/pkg/fits"
)

// referenceHeader mimics a per-channel radio image header: 2D spatial
// WCS plus degenerate frequency and Stokes axes.
func referenceHeader() *fits.Header {
	h := fits.NewHeader()
	h.Append(fits.Card{Keyword: "SIMPLE", Value: true})
	h.Append(fits.Card{Keyword: "BITPIX", Value: -32})
	h.Append(fits.Card{Keyword: "NAXIS", Value: 4})
	h.Append(fits.Card{Keyword: "NAXIS1", Value: 8})
	h.Append(fits.Card{Keyword: "NAXIS2", Value: 8})
	h.Append(fits.Card{Keyword: "NAXIS3", Value: 1})
	h.Append(fits.Card{Keyword: "NAXIS4", Value: 1})
	h.Append(fits.Card{Keyword: "OBJECT", Value: "refsource"})
	h.Append(fits.Card{Keyword: "BUNIT", Value: "Jy/beam"})
	h.Append(fits.Card{Keyword: "CTYPE1", Value: "RA---SIN"})
	h.Append(fits.Card{Keyword: "CRVAL1", Value: 150.0})
	h.Append(fits.Card{Keyword: "CTYPE2", Value: "DEC--SIN"})
	h.Append(fits.Card{Keyword: "CRVAL2", Value: 2.0})
	h.Append(fits.Card{Keyword: "CTYPE3", Value: "FREQ"})
	h.Append(fits.Card{Keyword: "CRVAL3", Value: 1.4e9})
	h.Append(fits.Card{Keyword: "CTYPE4", Value: "STOKES"})
	h.Append(fits.Card{Keyword: "CRVAL4", Value: 1.0})
	return h
}

func TestHarvestReferenceDropsStructural(t *testing.T) {
	meta := HarvestReference(referenceHeader())

	for _, c := range meta.Cards() {
		assert.False(t, isStructuralKeyword(c.Keyword), "structural card %s must not be harvested", c.Keyword)
	}

	keywords := make(map[string]bool)
	for _, c := range meta.Cards() {
		keywords[c.Keyword] = true
	}
	for _, want := range []string{"OBJECT", "BUNIT", "CTYPE1", "CRVAL1", "CTYPE2", "CTYPE3", "CRVAL3", "CTYPE4"} {
		assert.True(t, keywords[want], "expected harvested card %s", want)
	}
}

func TestHarvestReferenceRemapsOuterAxes(t *testing.T) {
	// A source that numbers its degenerate axes the other way round:
	// Stokes on axis 3, frequency on axis 4 (the CASA convention).
	h := fits.NewHeader()
	h.Append(fits.Card{Keyword: "CTYPE1", Value: "RA---SIN"})
	h.Append(fits.Card{Keyword: "CTYPE2", Value: "DEC--SIN"})
	h.Append(fits.Card{Keyword: "CTYPE3", Value: "STOKES"})
	h.Append(fits.Card{Keyword: "CRVAL3", Value: 4.0})
	h.Append(fits.Card{Keyword: "CTYPE4", Value: "FREQ"})
	h.Append(fits.Card{Keyword: "CRVAL4", Value: 1.4e9})

	meta := HarvestReference(h)
	byKeyword := make(map[string]fits.Card)
	for _, c := range meta.Cards() {
		byKeyword[c.Keyword] = c
	}

	assert.Equal(t, "FREQ", byKeyword["CTYPE3"].Value, "frequency cards move to cube axis 3")
	assert.Equal(t, 1.4e9, byKeyword["CRVAL3"].Value)
	assert.Equal(t, "STOKES", byKeyword["CTYPE4"].Value, "Stokes cards move to cube axis 4")
	assert.Equal(t, 4.0, byKeyword["CRVAL4"].Value)
}

func TestSynthesizeHeaderGeometryWins(t *testing.T) {
	layout, err := ComputeLayout(smallShape(), 0)
	require.NoError(t, err)

	meta := HarvestReference(referenceHeader())
	h := SynthesizeHeader(layout, HeaderConfig{Object: "mosaic"}, &meta)

	// Geometry comes from the cube, not the reference image.
	for keyword, want := range map[string]int64{
		"NAXIS1": 8, "NAXIS2": 8, "NAXIS3": 3, "NAXIS4": 2,
	} {
		got, ok := h.Int(keyword)
		require.True(t, ok, keyword)
		assert.Equal(t, want, got, keyword)
	}

	object, ok := h.Get("OBJECT")
	require.True(t, ok)
	assert.Equal(t, "mosaic", object.Value, "configured object overrides the reference")

	crval1, ok := h.Get("CRVAL1")
	require.True(t, ok)
	assert.Equal(t, 150.0, crval1.Value, "spatial WCS is copied verbatim")
}

func TestSynthesizeHeaderDefaultsOuterLabels(t *testing.T) {
	layout, err := ComputeLayout(smallShape(), 0)
	require.NoError(t, err)

	h := SynthesizeHeader(layout, HeaderConfig{}, nil)
	ctype3, ok := h.Get("CTYPE3")
	require.True(t, ok)
	assert.Equal(t, "FREQ", ctype3.Value)
	ctype4, ok := h.Get("CTYPE4")
	require.True(t, ok)
	assert.Equal(t, "STOKES", ctype4.Value)
}

func TestFinalizeLeavesDataRegionUntouched(t *testing.T) {
	f, layout, path := allocTestCube(t)

	// Populate a couple of planes first.
	for _, coord := range []PlaneCoordinate{{Pol: 0, Chan: 0}, {Pol: 1, Chan: 2}} {
		payload := planePayload(layout, byte(coord.Pol*10+coord.Chan))
		require.NoError(t, WritePlane(f, layout, coord, planeSource(layout, payload), 0))
	}

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	meta := HarvestReference(referenceHeader())
	require.NoError(t, Finalize(f, layout, HeaderConfig{Object: "mosaic"}, &meta))

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, len(before), len(after), "finalize must not change the file size")
	assert.Equal(t, before[layout.DataRegionStart:], after[layout.DataRegionStart:],
		"data region must be bit-identical across finalize")
	assert.NotEqual(t, before[:layout.DataRegionStart], after[:layout.DataRegionStart],
		"header region must have been rewritten")

	// The final header decodes and carries the merged metadata.
	h, err := fits.Decode(after[:layout.DataRegionStart])
	require.NoError(t, err)
	_, ok := h.Get("CRVAL1")
	assert.True(t, ok)
}

func TestFinalizeHeaderOverflowIsFatal(t *testing.T) {
	tempDir := t.TempDir()

	layout, err := ComputeLayout(smallShape(), 1)
	require.NoError(t, err)

	f, err := Allocate(tempDir+"/cube.fits", layout)
	require.NoError(t, err)
	defer f.Close()

	before, err := os.ReadFile(tempDir + "/cube.fits")
	require.NoError(t, err)

	// More reference cards than a single header block can hold.
	big := fits.NewHeader()
	for i := 0; i < 40; i++ {
		big.Append(fits.Card{Keyword: fmt.Sprintf("HIST%d", i), Value: i})
	}
	meta := HarvestReference(big)

	err = Finalize(f, layout, HeaderConfig{}, &meta)
	var overflow *fits.HeaderOverflowError
	require.ErrorAs(t, err, &overflow)

	after, err := os.ReadFile(tempDir + "/cube.fits")
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed finalize must leave the file untouched")
}
