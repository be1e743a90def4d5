// Package fits implements the subset of the FITS file format needed to
// build image cubes: fixed-size header cards packed into 2880-byte
// blocks, and a minimal reader for single-image source files.
package fits

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// BlockSize is the FITS block size. Both the header region and the
	// data region are padded to a multiple of this size.
	BlockSize = 2880

	// CardSize is the fixed size of a single header card.
	CardSize = 80

	// CardsPerBlock is the number of cards in one header block.
	CardsPerBlock = BlockSize / CardSize

	// maxKeywordLen is the keyword field width.
	maxKeywordLen = 8

	// valueFieldEnd is the column (1-based) where fixed-format values
	// are right-justified.
	valueFieldEnd = 30
)

// EndKeyword terminates a header. Everything after the END card in its
// block is blank padding.
const EndKeyword = "END"

// Card is a single keyword/value/comment header record.
//
// Value holds one of: nil (commentary card such as COMMENT or HISTORY,
// or a blank card), bool, int, int64, float64, or string. Any other
// type fails at encode time.
type Card struct {
	Keyword string
	Value   interface{}
	Comment string
}

// IsBlank reports whether the card is entirely empty (a padding card).
func (c Card) IsBlank() bool {
	return c.Keyword == "" && c.Value == nil && c.Comment == ""
}

// encode renders the card into exactly CardSize bytes.
func (c Card) encode() ([]byte, error) {
	keyword := strings.ToUpper(c.Keyword)
	if len(keyword) > maxKeywordLen {
		return nil, fmt.Errorf("keyword %q exceeds %d characters", c.Keyword, maxKeywordLen)
	}

	buf := make([]byte, CardSize)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, keyword)

	if c.Value == nil {
		// Commentary card: text occupies columns 9-80.
		copy(buf[8:], c.Comment)
		return buf, nil
	}

	value, err := formatValue(c.Value)
	if err != nil {
		return nil, fmt.Errorf("card %s: %w", keyword, err)
	}

	rest := "= " + value
	if c.Comment != "" {
		rest += " / " + c.Comment
	}
	if len(rest) > CardSize-maxKeywordLen {
		rest = rest[:CardSize-maxKeywordLen]
	}
	copy(buf[8:], rest)
	return buf, nil
}

// formatValue renders a card value in FITS fixed format: logicals and
// numbers right-justified to column 30, strings quoted and
// left-justified starting at column 11.
func formatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return fmt.Sprintf("%20s", "T"), nil
		}
		return fmt.Sprintf("%20s", "F"), nil
	case int:
		return fmt.Sprintf("%20d", val), nil
	case int64:
		return fmt.Sprintf("%20d", val), nil
	case float64:
		s := strconv.FormatFloat(val, 'E', -1, 64)
		return fmt.Sprintf("%20s", s), nil
	case string:
		escaped := strings.ReplaceAll(val, "'", "''")
		// FITS strings are padded to at least 8 characters inside the quotes.
		if len(escaped) < 8 {
			escaped += strings.Repeat(" ", 8-len(escaped))
		}
		return "'" + escaped + "'", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// parseCard decodes exactly CardSize bytes into a Card.
func parseCard(buf []byte) (Card, error) {
	if len(buf) != CardSize {
		return Card{}, fmt.Errorf("card must be %d bytes, got %d", CardSize, len(buf))
	}

	keyword := strings.TrimRight(string(buf[:maxKeywordLen]), " ")

	// Value indicator "= " in columns 9-10 marks a value card.
	if len(buf) >= 10 && buf[8] == '=' && buf[9] == ' ' {
		value, comment, err := parseValue(string(buf[10:]))
		if err != nil {
			return Card{}, fmt.Errorf("card %s: %w", keyword, err)
		}
		return Card{Keyword: keyword, Value: value, Comment: comment}, nil
	}

	// Commentary or blank card.
	text := strings.TrimRight(string(buf[8:]), " ")
	return Card{Keyword: keyword, Comment: text}, nil
}

// parseValue splits the value field and the optional "/ comment" tail.
func parseValue(field string) (interface{}, string, error) {
	trimmed := strings.TrimLeft(field, " ")

	// Quoted string: scan for the closing quote, honoring doubled quotes.
	if strings.HasPrefix(trimmed, "'") {
		var sb strings.Builder
		i := 1
		closed := false
		for i < len(trimmed) {
			if trimmed[i] == '\'' {
				if i+1 < len(trimmed) && trimmed[i+1] == '\'' {
					sb.WriteByte('\'')
					i += 2
					continue
				}
				closed = true
				i++
				break
			}
			sb.WriteByte(trimmed[i])
			i++
		}
		if !closed {
			return nil, "", fmt.Errorf("unterminated string value")
		}
		comment := parseComment(trimmed[i:])
		return strings.TrimRight(sb.String(), " "), comment, nil
	}

	// Unquoted value runs until the comment separator.
	valuePart := trimmed
	comment := ""
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		valuePart = trimmed[:idx]
		comment = strings.TrimSpace(trimmed[idx+1:])
	}
	token := strings.TrimSpace(valuePart)

	switch token {
	case "":
		return nil, comment, nil
	case "T":
		return true, comment, nil
	case "F":
		return false, comment, nil
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i, comment, nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f, comment, nil
	}
	return nil, "", fmt.Errorf("unparseable value %q", token)
}

func parseComment(tail string) string {
	tail = strings.TrimLeft(tail, " ")
	if strings.HasPrefix(tail, "/") {
		return strings.TrimSpace(tail[1:])
	}
	return ""
}
