package fits

import (
	"fmt"
	"io"
	"strings"
)

// HeaderOverflowError is returned when a header needs more blocks than
// the caller reserved. The header region of a cube file is fixed at
// allocation time and can never grow, because growing it would shift
// every plane offset already written.
type HeaderOverflowError struct {
	Cards    int // number of cards including END
	Capacity int // card slots available in the reserved blocks
}

func (e *HeaderOverflowError) Error() string {
	return fmt.Sprintf("header of %d cards exceeds reserved capacity of %d cards", e.Cards, e.Capacity)
}

// MalformedHeaderError is returned when decoding a header that is not
// block-aligned or has no END card.
type MalformedHeaderError struct {
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return "malformed header: " + e.Reason
}

// Header is an ordered set of cards. The END card is implicit: it is
// appended at encode time and stripped at decode time.
type Header struct {
	cards []Card
}

// NewHeader creates an empty header.
func NewHeader() *Header {
	return &Header{}
}

// Append adds a card to the end of the header.
func (h *Header) Append(c Card) {
	h.cards = append(h.cards, c)
}

// Set replaces the value and comment of an existing card, or appends a
// new card if the keyword is not present. Commentary keywords are
// always appended since they may repeat.
func (h *Header) Set(keyword string, value interface{}, comment string) {
	keyword = strings.ToUpper(keyword)
	if keyword != "COMMENT" && keyword != "HISTORY" && keyword != "" {
		for i := range h.cards {
			if h.cards[i].Keyword == keyword {
				h.cards[i].Value = value
				if comment != "" {
					h.cards[i].Comment = comment
				}
				return
			}
		}
	}
	h.cards = append(h.cards, Card{Keyword: keyword, Value: value, Comment: comment})
}

// Get returns the first card with the given keyword.
func (h *Header) Get(keyword string) (Card, bool) {
	keyword = strings.ToUpper(keyword)
	for _, c := range h.cards {
		if c.Keyword == keyword {
			return c, true
		}
	}
	return Card{}, false
}

// Int returns an integer-valued card, converting from int if needed.
func (h *Header) Int(keyword string) (int64, bool) {
	c, ok := h.Get(keyword)
	if !ok {
		return 0, false
	}
	switch v := c.Value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Cards returns a copy of the header's cards.
func (h *Header) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// Len returns the number of cards, excluding the implicit END card.
func (h *Header) Len() int {
	return len(h.cards)
}

// Encode renders the header into whole blocks. When maxBlocks is
// positive the output is exactly maxBlocks*BlockSize bytes: blank
// cards are inserted before the END card so that END lands in the last
// reserved block and the data region starts right after it. When
// maxBlocks is zero or negative the header is padded to the next block
// boundary only.
//
// Returns a HeaderOverflowError if the cards plus END do not fit in
// maxBlocks blocks.
func (h *Header) Encode(maxBlocks int) ([]byte, error) {
	needed := len(h.cards) + 1 // +1 for END
	blocks := (needed + CardsPerBlock - 1) / CardsPerBlock
	if maxBlocks > 0 {
		if blocks > maxBlocks {
			return nil, &HeaderOverflowError{Cards: needed, Capacity: maxBlocks * CardsPerBlock}
		}
		blocks = maxBlocks
	}

	buf := make([]byte, blocks*BlockSize)
	for i := range buf {
		buf[i] = ' '
	}

	for i, c := range h.cards {
		enc, err := c.encode()
		if err != nil {
			return nil, err
		}
		copy(buf[i*CardSize:], enc)
	}

	// END is the last card of the reserved region; the blank cards in
	// between reserve header space without moving the data region.
	copy(buf[len(buf)-CardSize:], EndKeyword)
	return buf, nil
}

// Decode parses a block-aligned header buffer. Blank padding cards are
// skipped; decoding stops at the END card. A missing END card or a
// buffer that is not a whole number of blocks is a MalformedHeaderError.
func Decode(buf []byte) (*Header, error) {
	if len(buf) == 0 || len(buf)%BlockSize != 0 {
		return nil, &MalformedHeaderError{Reason: fmt.Sprintf("length %d is not a multiple of %d", len(buf), BlockSize)}
	}

	h := NewHeader()
	for off := 0; off < len(buf); off += CardSize {
		raw := buf[off : off+CardSize]
		keyword := strings.TrimRight(string(raw[:maxKeywordLen]), " ")
		if keyword == EndKeyword {
			return h, nil
		}
		card, err := parseCard(raw)
		if err != nil {
			return nil, &MalformedHeaderError{Reason: err.Error()}
		}
		if card.IsBlank() {
			continue
		}
		h.Append(card)
	}
	return nil, &MalformedHeaderError{Reason: "no END card found"}
}

// ReadHeader reads whole blocks from r until a block containing an END
// card is seen, then decodes the accumulated buffer. It returns the
// header and the number of bytes consumed.
func ReadHeader(r io.Reader) (*Header, int64, error) {
	var buf []byte
	block := make([]byte, BlockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, 0, &MalformedHeaderError{Reason: "no END card found"}
			}
			return nil, 0, fmt.Errorf("failed to read header block: %w", err)
		}
		buf = append(buf, block...)
		if blockHasEnd(block) {
			break
		}
	}
	h, err := Decode(buf)
	if err != nil {
		return nil, 0, err
	}
	return h, int64(len(buf)), nil
}

func blockHasEnd(block []byte) bool {
	for off := 0; off < len(block); off += CardSize {
		keyword := strings.TrimRight(string(block[off:off+maxKeywordLen]), " ")
		if keyword == EndKeyword {
			return true
		}
	}
	return false
}
