package core

// convert.go turns raw spreadsheet cells into typed values.
//
// Cells come from hand-edited files exported by LibreOffice or Excel, so the
// parsers accept:
//   - decimal comma ("12,50") as well as decimal point
//   - currency symbols and space thousands separators ("1 234,50 €")
//   - Excel formula prefixes (="value")

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a plain decimal after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Unwraps Excel text formulas (="...")
// - Removes a bare = in front of a number (=123)
// - Removes one pair of matching surrounding quotes
//
// Any other quote or leading = is data and is kept.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if len(s) >= 3 && strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		return strings.TrimSpace(s[2 : len(s)-1])
	}
	if rest, ok := strings.CutPrefix(s, "="); ok {
		if _, numeric := ParseDecimal(rest); numeric {
			return strings.TrimSpace(rest)
		}
		return s
	}

	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// ParseDecimal parses a monetary or percentage cell.
// Returns false for empty or malformed input.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, false
	}

	s = strings.ReplaceAll(s, "\u20ac", "") // Euro
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, "\u00a0", "") // NBSP
	s = strings.ReplaceAll(s, "\u202f", "") // narrow NBSP
	s = strings.ReplaceAll(s, " ", "")

	// When both separators appear the last one is the decimal mark.
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, false
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseQuantity parses a stock quantity cell. Absent, non-numeric and
// negative values all read as 0. Fractional values are truncated.
func ParseQuantity(s string) int {
	s = CleanCell(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	d, ok := ParseDecimal(s)
	if !ok || d.IsNegative() {
		return 0
	}
	return int(d.IntPart())
}
