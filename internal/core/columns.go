package core

// columns.go turns raw file text into a Layout: separator, normalized
// headers, stock-column bindings and the data rows with their physical line
// numbers. Every file-level problem is reported here, before any row runs.

import (
	"encoding/csv"
	"sort"
	"strings"
)

// StockMode says where a row's quantity comes from.
type StockMode string

const (
	// StockPerLocation reads one stock_<location> column per location. A
	// plain stock column, when present, is a cross-check total.
	StockPerLocation StockMode = "per-location"

	// StockLegacy reads the plain stock column as the only quantity.
	StockLegacy StockMode = "legacy"
)

const (
	stockPrefix       = "stock_"
	globalStockHeader = "stock"
)

const (
	stockAlertHeader = "stock_alert"
	stockNameHeader  = "stock_name"
	serialHeader     = "serial_number"
)

// isReservedStockHeader reports whether h starts with the stock prefix but
// is a plain field. stock_name is one only in serial files, where it names
// the location per row.
func isReservedStockHeader(h string, serial bool) bool {
	return h == stockAlertHeader || (serial && h == stockNameHeader)
}

// HeaderIndex maps normalized header names to column positions.
type HeaderIndex map[string]int

// StockColumn binds one file column to a known location.
type StockColumn struct {
	Index    int
	Header   string
	Location StockLocation
}

// DataRow is one non-comment, non-blank line after the header.
type DataRow struct {
	Line  int // 1-based physical line in the file
	Cells []string
}

// Layout is the resolved shape of an import file.
type Layout struct {
	Separator      rune
	Headers        []string
	Index          HeaderIndex
	StockColumns   []StockColumn
	HasGlobalStock bool
	StockMode      StockMode
	Rows           []DataRow
}

// Has reports whether the file carries the named (normalized) column.
func (l *Layout) Has(name string) bool {
	_, ok := l.Index[name]
	return ok
}

// Cell returns the cleaned value of the named column in row, or "" when
// the column is absent or the row is short.
func (l *Layout) Cell(row DataRow, name string) string {
	pos, ok := l.Index[name]
	if !ok || pos >= len(row.Cells) {
		return ""
	}
	return CleanCell(row.Cells[pos])
}

// Require returns a StructuralError naming every missing column.
func (l *Layout) Require(columns []string) error {
	var missing []string
	for _, c := range columns {
		if !l.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &StructuralError{
		Kind:    KindMissingColumn,
		Message: "Colonnes obligatoires manquantes : " + strings.Join(missing, ", "),
	}
}

// NormalizeHeader canonicalizes a header name: non-breaking spaces become
// spaces, whitespace runs collapse to one space, and the result is trimmed
// and lowercased. It is applied to file headers and to generated
// stock_<location> names alike.
func NormalizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// StockHeader returns the column name bound to a location.
func StockHeader(locationName string) string {
	return NormalizeHeader(stockPrefix + NormalizeHeader(locationName))
}

// InferSeparator picks ';' only when it is strictly more frequent than ','
// in the header line.
func InferSeparator(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	return ','
}

// ResolveColumns parses text against the known stock locations.
// It fails with a *StructuralError when the file is empty, the header is
// not a valid CSV record, there are no data rows, or a stock_ column
// matches no location.
func ResolveColumns(text string, stocks []StockLocation) (*Layout, error) {
	type line struct {
		num  int
		text string
	}

	var lines []line
	for i, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSuffix(raw, "\r")
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line{num: i + 1, text: raw})
	}

	if len(lines) == 0 {
		return nil, &StructuralError{Kind: KindEmptyFile, Message: "Le fichier est vide"}
	}

	sep := InferSeparator(lines[0].text)
	rawHeaders, err := parseRecord(lines[0].text, sep, false)
	if err != nil {
		return nil, &StructuralError{
			Kind:    KindInvalidCSV,
			Message: "En-tête illisible : vérifiez les guillemets de la première ligne",
		}
	}

	layout := &Layout{
		Separator: sep,
		Headers:   make([]string, len(rawHeaders)),
		Index:     make(HeaderIndex, len(rawHeaders)),
	}
	for i, h := range rawHeaders {
		name := NormalizeHeader(CleanCell(h))
		layout.Headers[i] = name
		if _, dup := layout.Index[name]; !dup && name != "" {
			layout.Index[name] = i
		}
	}

	if err := layout.bindStockColumns(stocks, layout.Has(serialHeader)); err != nil {
		return nil, err
	}

	for _, l := range lines[1:] {
		layout.Rows = append(layout.Rows, DataRow{Line: l.num, Cells: splitRecord(l.text, sep)})
	}
	if len(layout.Rows) == 0 {
		return nil, &StructuralError{
			Kind:    KindNoDataRows,
			Message: "Le fichier ne contient aucune ligne de données",
		}
	}

	return layout, nil
}

func (l *Layout) bindStockColumns(stocks []StockLocation, serial bool) error {
	byHeader := make(map[string]StockLocation, len(stocks))
	for _, s := range stocks {
		byHeader[StockHeader(s.Name)] = s
	}

	var unknown []string
	for i, h := range l.Headers {
		switch {
		case h == globalStockHeader:
			l.HasGlobalStock = true
		case isReservedStockHeader(h, serial):
		case strings.HasPrefix(h, stockPrefix):
			loc, ok := byHeader[h]
			if !ok {
				unknown = append(unknown, h)
				continue
			}
			l.StockColumns = append(l.StockColumns, StockColumn{Index: i, Header: h, Location: loc})
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return newUnknownStockColumnsError(unknown, stocks)
	}

	l.StockMode = StockLegacy
	if len(l.StockColumns) > 0 {
		l.StockMode = StockPerLocation
	}
	return nil
}

// parseRecord parses one physical line as a CSV record. Quoted fields may
// contain the separator but not line breaks. With lazy set, stray quotes
// are kept as data instead of failing.
func parseRecord(line string, sep rune, lazy bool) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = sep
	r.LazyQuotes = lazy
	r.FieldsPerRecord = -1
	return r.Read()
}

// splitRecord parses a data line, falling back to a plain split.
func splitRecord(line string, sep rune) []string {
	record, err := parseRecord(line, sep, true)
	if err != nil {
		return strings.Split(line, string(sep))
	}
	return record
}
