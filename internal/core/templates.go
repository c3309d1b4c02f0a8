package core

// templates.go generates ready-to-fill import files. Templates are advisory
// output: the trailing comment section is ignored when the file comes back.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	templateSheet   = "Import"
	referencesSheet = "Références"
)

// templateColumns returns the header for a mode. Product templates get one
// stock_<location> column per known location.
func templateColumns(def ModeDefinition, stocks []StockLocation) []string {
	cols := append([]string(nil), def.Info.Columns...)
	if def.Info.Key == ModeProduct {
		for _, s := range stocks {
			cols = append(cols, StockHeader(s.Name))
		}
	}
	return cols
}

// GenerateTemplate returns a CSV template for mode: header, illustrative
// rows, and a trailing comment section listing valid stock names (and known
// suppliers for serial imports).
func GenerateTemplate(mode ImportMode, stocks []StockLocation, suppliers []string) (string, error) {
	def, ok := Get(mode)
	if !ok {
		return "", fmt.Errorf("unknown import mode: %s", mode)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(templateColumns(def, stocks)); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(def.ExampleRows(stocks, suppliers)); err != nil {
		return "", fmt.Errorf("write examples: %w", err)
	}

	buf.WriteString("#\n# Stocks valides :\n")
	for _, s := range stocks {
		fmt.Fprintf(&buf, "#   %s\n", s.Name)
	}
	if mode == ModeSerial {
		buf.WriteString("# Fournisseurs connus :\n")
		for _, name := range suppliers {
			fmt.Fprintf(&buf, "#   %s\n", name)
		}
	}

	return buf.String(), nil
}

// GenerateTemplateXLSX renders the same template as an Excel workbook, with
// the reference lists on a second sheet.
func GenerateTemplateXLSX(mode ImportMode, stocks []StockLocation, suppliers []string) ([]byte, error) {
	def, ok := Get(mode)
	if !ok {
		return nil, fmt.Errorf("unknown import mode: %s", mode)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	rows := append([][]string{templateColumns(def, stocks)}, def.ExampleRows(stocks, suppliers)...)
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStr(templateSheet, cell, value); err != nil {
				return nil, fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	if _, err := f.NewSheet(referencesSheet); err != nil {
		return nil, fmt.Errorf("create references sheet: %w", err)
	}
	refs := map[int][]string{1: {"Stocks valides"}}
	for _, s := range stocks {
		refs[1] = append(refs[1], s.Name)
	}
	if mode == ModeSerial {
		refs[2] = append([]string{"Fournisseurs connus"}, suppliers...)
	}
	for col, values := range refs {
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(col, i+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStr(referencesSheet, cell, v); err != nil {
				return nil, fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func productExamples(stocks []StockLocation, _ []string) [][]string {
	perLocation := func(first int) (string, []string) {
		cells := make([]string, len(stocks))
		total := 0
		for i := range stocks {
			q := 0
			if i == 0 {
				q = first
			}
			cells[i] = strconv.Itoa(q)
			total += q
		}
		return strconv.Itoa(total), cells
	}

	total1, stock1 := perLocation(5)
	total2, stock2 := perLocation(2)
	if len(stocks) == 0 {
		total1, total2 = "5", "2"
	}

	return [][]string{
		append([]string{
			"Coque silicone iPhone 15", "COQ-IP15-NOIR", "4.20", "19.90", "12.50",
			"45", "A-12", "3760000000017", total1, "2", "Coque souple noire",
			"7.5", "15.2", "1.1", "ACCESSOIRE", "APPLE", "IPHONE 15", "normal", "", "",
		}, stock1...),
		append([]string{
			"iPhone 13 reconditionné", "IP13-128-BLEU", "310", "", "",
			"174", "B-03", "3760000000024", total2, "1", "Grade A, batterie neuve",
			"7.2", "14.7", "0.8", "SMARTPHONE", "APPLE", "IPHONE 13", "margin", "35", "20",
		}, stock2...),
	}
}

func serialExamples(stocks []StockLocation, suppliers []string) [][]string {
	stock := "Boutique"
	if len(stocks) > 0 {
		stock = stocks[0].Name
	}
	supplier := "Fournisseur"
	if len(suppliers) > 0 {
		supplier = suppliers[0]
	}
	return [][]string{
		{"IP13-128-BLEU", "356789101112131", "310", "449", "399", "290", "margin", stock, supplier, "89", "oui", ""},
		{"IP13-128-BLEU", "356789101112149", "320", "", "", "300", "margin", stock, supplier, "100", "non", "rayure légère"},
	}
}
