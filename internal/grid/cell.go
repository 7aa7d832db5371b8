package grid

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "null"
	}
}

// Cell is a single grid value: null, text or a number. The zero value is Null.
type Cell struct {
	kind Kind
	text string
	num  float64
}

// Null returns the missing-value cell.
func Null() Cell { return Cell{} }

// Text returns a text cell holding s verbatim.
func Text(s string) Cell { return Cell{kind: KindText, text: s} }

// Number returns a numeric cell. NaN collapses to Null so a grid never holds
// a "number" that is not one.
func Number(f float64) Cell {
	if math.IsNaN(f) {
		return Null()
	}
	return Cell{kind: KindNumber, num: f}
}

// Kind reports which variant c holds.
func (c Cell) Kind() Kind { return c.kind }

// IsNull reports whether c is the missing value.
func (c Cell) IsNull() bool { return c.kind == KindNull }

// Str returns the text payload and true for text cells.
func (c Cell) Str() (string, bool) {
	if c.kind != KindText {
		return "", false
	}
	return c.text, true
}

// Float returns the numeric payload and true for number cells.
func (c Cell) Float() (float64, bool) {
	if c.kind != KindNumber {
		return 0, false
	}
	return c.num, true
}

// String renders the cell for serialization. Null renders as "".
func (c Cell) String() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindNumber:
		return FormatNumber(c.num)
	default:
		return ""
	}
}

// Coerce converts c to a float64. Numbers pass through, text is parsed after
// trimming surrounding space, and everything else (including unparsable text)
// yields NaN. Only decimal spellings parse; hex literals such as "0x1p-2" are
// not numbers. It never fails.
func (c Cell) Coerce() float64 {
	switch c.kind {
	case KindNumber:
		return c.num
	case KindText:
		s := strings.TrimSpace(c.text)
		if isHex(s) {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Equal reports whether two cells hold the same variant and payload.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindText:
		return c.text == o.text
	case KindNumber:
		return c.num == o.num
	default:
		return true
	}
}

// FormatNumber renders f with the shortest representation that round-trips.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
