package gcode

import (
	"errors"
	"strings"
	"unicode"
)

// Normalize returns the transmit form of a line of G-code: comments removed,
// whitespace removed, upper-cased. The line terminator is not included.
//
// Both comment styles are stripped: `( ... )` up to the first closing
// parenthesis, and `;` up to the end of the line. An unclosed `(` is kept.
func Normalize(line string) string {
	var sb strings.Builder
	sb.Grow(len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ';':
			return strings.ToUpper(sb.String())
		case c == '(':
			if end := strings.IndexByte(line[i:], ')'); end >= 0 {
				i += end
				continue
			}
			sb.WriteByte(c)
		case c < unicode.MaxASCII && unicode.IsSpace(rune(c)):
		default:
			sb.WriteByte(c)
		}
	}
	return strings.ToUpper(sb.String())
}

// ParseBlock splits a normalized line into words.
//
// System commands (lines starting with `$`) carry no words and return an
// empty block.
func ParseBlock(s string) (Block, error) {
	if s == "" || s[0] == '$' {
		return nil, nil
	}

	var b Block
	for i := 0; i < len(s); {
		if s[i] < 'A' || s[i] > 'Z' {
			return nil, errors.New("invalid or unhandled line: " + s)
		}
		j := i + 1
		for j < len(s) && isNumberByte(s[j]) {
			j++
		}
		w, err := ParseWord(s[i:j])
		if err != nil {
			return nil, err
		}
		b = append(b, w)
		i = j
	}

	return b, nil
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

// ModalWords returns the tracked modal words set by a line of G-code.
func ModalWords(line string) (Block, error) {
	b, err := ParseBlock(Normalize(line))
	if err != nil {
		return nil, err
	}
	var res Block
	for _, w := range b {
		if w.ModalGroup().Tracked() {
			res = append(res, w)
		}
	}
	return res, nil
}

// ParseModeReport parses the space separated body of a `[GC:...]` report,
// e.g. `G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0`.
func ParseModeReport(body string) (Block, error) {
	fields := strings.Fields(body)
	b := make(Block, 0, len(fields))
	for _, f := range fields {
		w, err := ParseWord(strings.ToUpper(f))
		if err != nil {
			return nil, err
		}
		b = append(b, w)
	}
	return b, nil
}
