package gcode

import (
	"errors"
	"strconv"
	"strings"
)

// Word is a single letter/value pair, e.g. `G90` or `X1.5`.
type Word struct {
	W   byte
	Arg float64
}

// ParseWord parses a single normalized word such as `G38.2`.
func ParseWord(s string) (Word, error) {
	if len(s) < 2 || s[0] < 'A' || s[0] > 'Z' {
		return Word{}, errors.New("invalid word: " + s)
	}
	arg, err := strconv.ParseFloat(s[1:], 64)
	if err != nil {
		return Word{}, errors.New("invalid word: " + s)
	}
	return Word{W: s[0], Arg: arg}, nil
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	return strings.TrimRight(s, ".")
}

func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 3)
}
