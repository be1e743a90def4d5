package cube

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lh-astro/fitscube/pkg/fits"
)

// wcsPrefixes are the per-axis WCS card families subject to axis
// renumbering when reference metadata is harvested.
var wcsPrefixes = []string{"CTYPE", "CRVAL", "CRPIX", "CDELT", "CUNIT", "CROTA"}

// structural keywords are owned by the cube geometry and never copied
// from a source image.
func isStructuralKeyword(keyword string) bool {
	switch keyword {
	case "SIMPLE", "BITPIX", "NAXIS", "EXTEND", "END":
		return true
	}
	if strings.HasPrefix(keyword, "NAXIS") {
		if _, err := strconv.Atoi(keyword[len("NAXIS"):]); err == nil {
			return true
		}
	}
	return false
}

// ReferenceMetadata is the coordinate-system description harvested
// from the designated reference plane. It is produced exactly once per
// build and consumed exactly once by Finalize.
type ReferenceMetadata struct {
	cards []fits.Card
}

// Cards returns the harvested cards, already remapped to cube axis
// numbering.
func (m *ReferenceMetadata) Cards() []fits.Card {
	out := make([]fits.Card, len(m.cards))
	copy(out, m.cards)
	return out
}

// HarvestReference extracts the cards of a source image header that
// belong in the cube header. Structural cards are dropped. WCS cards
// for the two spatial axes keep their indices; WCS cards that the
// source carries on degenerate frequency or Stokes axes are remapped
// to the cube's axis 3 (FREQ) and axis 4 (STOKES) respectively, since
// source images may number those axes differently.
func HarvestReference(h *fits.Header) ReferenceMetadata {
	freqAxis, stokesAxis := findOuterAxes(h)

	var meta ReferenceMetadata
	for _, c := range h.Cards() {
		if isStructuralKeyword(c.Keyword) {
			continue
		}
		if prefix, axis, ok := splitWCSKeyword(c.Keyword); ok {
			switch axis {
			case 1, 2:
				// Inner spatial axes carry over verbatim.
			case freqAxis:
				c.Keyword = fmt.Sprintf("%s3", prefix)
			case stokesAxis:
				c.Keyword = fmt.Sprintf("%s4", prefix)
			default:
				continue
			}
		}
		meta.cards = append(meta.cards, c)
	}
	return meta
}

// findOuterAxes locates the source axis indices carrying frequency and
// Stokes coordinates, if any.
func findOuterAxes(h *fits.Header) (freqAxis, stokesAxis int) {
	freqAxis, stokesAxis = -1, -1
	for _, c := range h.Cards() {
		prefix, axis, ok := splitWCSKeyword(c.Keyword)
		if !ok || prefix != "CTYPE" {
			continue
		}
		name, _ := c.Value.(string)
		switch {
		case strings.HasPrefix(name, "FREQ"):
			freqAxis = axis
		case strings.HasPrefix(name, "STOKES"):
			stokesAxis = axis
		}
	}
	return freqAxis, stokesAxis
}

// splitWCSKeyword splits e.g. "CRVAL3" into ("CRVAL", 3, true).
func splitWCSKeyword(keyword string) (string, int, bool) {
	for _, prefix := range wcsPrefixes {
		if strings.HasPrefix(keyword, prefix) && len(keyword) > len(prefix) {
			axis, err := strconv.Atoi(keyword[len(prefix):])
			if err == nil && axis >= 1 {
				return prefix, axis, true
			}
		}
	}
	return "", 0, false
}

// HeaderConfig carries the caller-supplied naming for the final
// header, on top of geometry and reference metadata.
type HeaderConfig struct {
	Object string      // OBJECT card; empty leaves the reference value
	Extra  []fits.Card // appended last, e.g. HISTORY entries
}

// SynthesizeHeader merges cube geometry, reference metadata, and
// configuration into the final ordered card set. Geometry always wins:
// SIMPLE/BITPIX/NAXISn reflect the cube, never the source image.
func SynthesizeHeader(layout Layout, cfg HeaderConfig, ref *ReferenceMetadata) *fits.Header {
	h := placeholderHeader(layout)

	if ref != nil {
		for _, c := range ref.cards {
			h.Set(c.Keyword, c.Value, c.Comment)
		}
	}

	// Outer axis labels are pinned even when the reference had none.
	if _, ok := h.Get("CTYPE3"); !ok {
		h.Set("CTYPE3", "FREQ", "")
	}
	if _, ok := h.Get("CTYPE4"); !ok {
		h.Set("CTYPE4", "STOKES", "")
	}

	if cfg.Object != "" {
		h.Set("OBJECT", cfg.Object, "")
	}
	for _, c := range cfg.Extra {
		h.Set(c.Keyword, c.Value, c.Comment)
	}
	return h
}

// Finalize synthesizes the final header and rewrites exactly the
// reserved header region, bytes [0, HeaderBlockCount*BlockSize). The
// data region is never touched. A header that no longer fits the
// region reserved at allocation time fails with HeaderOverflowError;
// that is fatal to the build, since the region cannot grow without
// moving every plane already written.
func Finalize(w io.WriterAt, layout Layout, cfg HeaderConfig, ref *ReferenceMetadata) error {
	h := SynthesizeHeader(layout, cfg, ref)
	buf, err := h.Encode(layout.HeaderBlockCount)
	if err != nil {
		return fmt.Errorf("failed to encode final header: %w", err)
	}
	if _, err := w.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("failed to rewrite header region: %w", err)
	}
	return nil
}
