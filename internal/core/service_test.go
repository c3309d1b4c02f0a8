package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/store/memory"
)

// =============================================================================
// Fixtures
// =============================================================================

var productCols = []string{
	"name", "sku", "purchase_price_with_fees", "retail_price", "pro_price",
	"weight_grams", "location", "ean", "stock", "description", "width_cm",
	"height_cm", "depth_cm", "category_type", "category_brand", "category_model",
	"vat_type", "margin_percent", "pro_margin_percent", "stock_boutique", "stock_réserve",
}

var productDefaults = map[string]string{
	"name":                     "Coque",
	"purchase_price_with_fees": "100",
	"retail_price":             "150",
	"weight_grams":             "50",
	"location":                 "A1",
	"ean":                      "3700000000001",
	"description":              "Coque noire",
	"width_cm":                 "7",
	"height_cm":                "15",
	"depth_cm":                 "1",
	"category_type":            "accessoire",
	"category_brand":           "apple",
	"category_model":           "iphone 15",
	"vat_type":                 "normal",
	"pro_margin_percent":       "30",
}

// productFile renders rows over productCols; unset cells take defaults.
func productFile(sep string, rows ...map[string]string) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(productCols, sep) + "\n")
	for _, row := range rows {
		cells := make([]string, len(productCols))
		for i, col := range productCols {
			v, ok := row[col]
			if !ok {
				v = productDefaults[col]
			}
			cells[i] = v
		}
		b.WriteString(strings.Join(cells, sep) + "\n")
	}
	return []byte(b.String())
}

const serialHeader = "sku_parent,serial_number,purchase_price_with_fees,retail_price,pro_price," +
	"raw_purchase_price,vat_type,stock_name,supplier,battery_percentage,warranty_sticker,product_note"

type fixture struct {
	store    *memory.Store
	svc      *core.Service
	boutique core.StockLocation
	reserve  core.StockLocation
}

func newFixture(t *testing.T, opts core.Options) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store:    store,
		boutique: store.AddStock("Boutique"),
		reserve:  store.AddStock("Réserve"),
	}
	f.svc = core.NewService(store, opts)
	return f
}

func (f *fixture) run(t *testing.T, data []byte, parentSKU string) *core.ImportResult {
	t.Helper()
	result, err := f.svc.Run(context.Background(), core.ImportRequest{
		FileName:  "import.csv",
		Data:      data,
		ParentSKU: parentSKU,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, got.Equal(decimal.RequireFromString(want)), "%s = %s, want %s", field, got, want)
}

// =============================================================================
// Product imports
// =============================================================================

func TestRun_ProductImportWithSemicolons(t *testing.T) {
	f := newFixture(t, core.Options{})

	result := f.run(t, productFile(";", map[string]string{
		"sku":            "coq-1",
		"stock_boutique": "3",
		"stock_réserve":  "2",
	}), "")

	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, core.ModeProduct, result.Mode)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)

	p, ok := f.store.Product("COQ-1")
	require.True(t, ok)
	assertDecimal(t, "150", p.RetailPrice, "RetailPrice")
	assertDecimal(t, "50.00", p.MarginPercent, "MarginPercent")
	assertDecimal(t, "130", p.ProPrice, "ProPrice")
	assertDecimal(t, "30", p.ProMarginPercent, "ProMarginPercent")
	assert.Equal(t, 5, p.Stock)
	assert.False(t, p.IsParent)
	assert.Nil(t, p.ParentID)

	allocs := f.store.Allocations()
	require.Len(t, allocs, 2)
	assert.Equal(t, f.boutique.ID, allocs[0].StockID)
	assert.Equal(t, 3, allocs[0].Quantity)
	assert.Equal(t, f.reserve.ID, allocs[1].StockID)
	assert.Equal(t, 2, allocs[1].Quantity)

	cats := f.store.Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, core.Category{ID: p.CategoryID, Type: "ACCESSOIRE", Brand: "APPLE", Model: "IPHONE 15"}, cats[0])
}

func TestRun_MarginRegime(t *testing.T) {
	f := newFixture(t, core.Options{})

	result := f.run(t, productFile(",", map[string]string{
		"sku":                      "IP13",
		"purchase_price_with_fees": "900",
		"retail_price":             "1150",
		"vat_type":                 "margin",
		"stock":                    "1",
	}), "")
	require.Equal(t, core.StatusSuccess, result.Status, result.Errors)

	p, _ := f.store.Product("IP13")
	assertDecimal(t, "23.15", p.MarginPercent, "MarginPercent")
	assert.Equal(t, core.VatMargin, p.VatType)
}

func TestRun_StockMismatchSkipsRowAndContinues(t *testing.T) {
	f := newFixture(t, core.Options{})

	result := f.run(t, productFile(",",
		map[string]string{"sku": "OK-1", "stock": "10", "stock_boutique": "5", "stock_réserve": "5"},
		map[string]string{"sku": "KO-1", "stock": "11", "stock_boutique": "5", "stock_réserve": "5"},
		map[string]string{"sku": "OK-2", "stock_boutique": "1"},
	), "")

	assert.Equal(t, core.StatusError, result.Status)
	assert.Equal(t, 3, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Line)
	assert.Equal(t,
		"Ligne 3 (SKU KO-1) : stock global (11) différent de la somme des stocks par emplacement (10) pour le SKU KO-1",
		result.Errors[0].Message)

	_, ok := f.store.Product("KO-1")
	assert.False(t, ok, "mismatched row must not be persisted")

	p, ok := f.store.Product("OK-1")
	require.True(t, ok)
	assert.Equal(t, 10, p.Stock)
	_, ok = f.store.Product("OK-2")
	assert.True(t, ok)
}

func TestRun_ReimportAddsStockAndKeepsEAN(t *testing.T) {
	f := newFixture(t, core.Options{})

	first := f.run(t, productFile(",", map[string]string{"sku": "C1", "stock_boutique": "4"}), "")
	require.Equal(t, core.StatusSuccess, first.Status)

	second := f.run(t, productFile(",", map[string]string{
		"sku":            "c1",
		"ean":            "",
		"retail_price":   "",
		"margin_percent": "60",
		"stock_boutique": "6",
	}), "")
	require.Equal(t, core.StatusSuccess, second.Status, second.Errors)

	p, _ := f.store.Product("C1")
	assert.Equal(t, 10, p.Stock)
	assert.Equal(t, "3700000000001", p.EAN)
	assertDecimal(t, "160", p.RetailPrice, "RetailPrice")
	assertDecimal(t, "60", p.MarginPercent, "MarginPercent")
	assert.Len(t, f.store.Products(), 1)

	allocs := f.store.Allocations()
	require.Len(t, allocs, 1, "one allocation per product and location")
	assert.Equal(t, f.boutique.ID, allocs[0].StockID)
	assert.Equal(t, 10, allocs[0].Quantity)
}

func TestRun_NewProductRequiresEAN(t *testing.T) {
	f := newFixture(t, core.Options{})

	result := f.run(t, productFile(",", map[string]string{"sku": "NOEAN", "ean": ""}), "")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Ligne 2 (SKU NOEAN) : champ obligatoire manquant « ean »", result.Errors[0].Message)
	assert.Empty(t, f.store.Categories(), "no category is created for a rejected row")
}

func TestRun_RowErrors(t *testing.T) {
	tests := []struct {
		name     string
		row      map[string]string
		contains string
	}{
		{
			name:     "missing name",
			row:      map[string]string{"sku": "X", "name": ""},
			contains: "champ obligatoire manquant « name »",
		},
		{
			name:     "price and margin",
			row:      map[string]string{"sku": "X", "margin_percent": "20"},
			contains: "renseignez soit le prix, soit la marge",
		},
		{
			name:     "neither price nor margin",
			row:      map[string]string{"sku": "X", "pro_margin_percent": ""},
			contains: "un prix ou une marge est obligatoire",
		},
		{
			name:     "bad vat type",
			row:      map[string]string{"sku": "X", "vat_type": "reduced"},
			contains: "vat_type",
		},
		{
			name:     "zero purchase price with a sale price",
			row:      map[string]string{"sku": "X", "purchase_price_with_fees": "0"},
			contains: "le prix d'achat doit être supérieur à 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.Options{})
			result := f.run(t, productFile(",", tt.row), "")

			assert.Equal(t, core.StatusError, result.Status)
			assert.Equal(t, 1, result.Processed)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0].Message, "Ligne 2 (SKU X) : ")
			assert.Contains(t, result.Errors[0].Message, tt.contains)
			assert.Empty(t, f.store.Products())
		})
	}
}

func TestRun_PanicBecomesRowError(t *testing.T) {
	f := newFixture(t, core.Options{})
	f.store.BeforeUpsert = func(p core.Product) error {
		if p.SKU == "BOOM" {
			panic("nil map write")
		}
		return nil
	}

	result := f.run(t, productFile(",",
		map[string]string{"sku": "boom", "stock": "1"},
		map[string]string{"sku": "after", "stock": "1"},
	), "")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Ligne 2 (SKU BOOM) : erreur inattendue", result.Errors[0].Message)
	assert.Equal(t, 2, result.Processed)
	_, ok := f.store.Product("AFTER")
	assert.True(t, ok)
}

func TestRun_PersistenceErrorUsesCatalogue(t *testing.T) {
	f := newFixture(t, core.Options{})
	f.store.BeforeUpsert = func(core.Product) error {
		return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}

	result := f.run(t, productFile(",", map[string]string{"sku": "C1"}), "")

	require.Len(t, result.Errors, 1)
	msg := result.Errors[0].Message
	assert.Contains(t, msg, "échec d'enregistrement du produit")
	assert.Contains(t, msg, "DB003")
	assert.NotContains(t, msg, "127.0.0.1")
}

func TestRun_ErrorPreviewShowsFirstThree(t *testing.T) {
	f := newFixture(t, core.Options{})

	var rows []map[string]string
	for i := 0; i < 5; i++ {
		rows = append(rows, map[string]string{"sku": fmt.Sprintf("BAD-%d", i), "name": ""})
	}
	result := f.run(t, productFile(",", rows...), "")

	assert.Len(t, result.Errors, 5)
	preview := result.ErrorPreview()
	require.Len(t, preview, core.DisplayedErrorLimit)
	assert.Equal(t, 2, preview[0].Line)
	assert.Equal(t, 4, preview[2].Line)
}

func TestRun_LegacyStockColumn(t *testing.T) {
	store := memory.New()
	svc := core.NewService(store, core.Options{})

	data := "name,sku,purchase_price_with_fees,retail_price,pro_price,weight_grams,location,ean,stock," +
		"description,width_cm,height_cm,depth_cm,category_type,category_brand,category_model\n" +
		"Câble,CAB-1,2,5,4,20,B2,3700000000002,7,USB-C,1,1,1,cable,generic,usb-c\n"

	result, err := svc.Run(context.Background(), core.ImportRequest{FileName: "legacy.csv", Data: []byte(data)})
	require.NoError(t, err)
	require.Equal(t, core.StatusSuccess, result.Status, result.Errors)

	p, _ := store.Product("CAB-1")
	assert.Equal(t, 7, p.Stock)
	assert.Empty(t, store.Allocations())
}

func TestRun_SkipsCommentsAndBOM(t *testing.T) {
	f := newFixture(t, core.Options{})

	data := append([]byte{0xEF, 0xBB, 0xBF}, productFile(",", map[string]string{"sku": "C1"})...)
	data = append(data, []byte("#\n# Stocks valides :\n#   Boutique\n")...)

	result := f.run(t, data, "")
	assert.Equal(t, core.StatusSuccess, result.Status, result.Errors)
	assert.Equal(t, 1, result.Total)
}

// =============================================================================
// Structural errors
// =============================================================================

func TestRun_StructuralErrors(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		parentSKU string
		contains  string
	}{
		{
			name:     "empty file",
			data:     "\n\n",
			contains: "Le fichier est vide",
		},
		{
			name:     "header only",
			data:     strings.Join(productCols, ",") + "\n",
			contains: "aucune ligne de données",
		},
		{
			name:     "unknown stock column",
			data:     strings.Join(productCols, ",") + ",stock_foo\n" + strings.Repeat(",", len(productCols)) + "\n",
			contains: "stock_foo",
		},
		{
			name:     "missing required column",
			data:     "name,sku\nCoque,C1\n",
			contains: "purchase_price_with_fees",
		},
		{
			name:     "serial file without parent",
			data:     serialHeader + "\nP,SN1,300,400,,,normal,Boutique,Acme,,,\n",
			contains: "Aucun produit parent",
		},
		{
			name:      "serial file with unknown parent",
			data:      serialHeader + "\nP,SN1,300,400,,,normal,Boutique,Acme,,,\n",
			parentSKU: "ghost",
			contains:  "GHOST introuvable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.Options{})
			result := f.run(t, []byte(tt.data), tt.parentSKU)

			assert.Equal(t, core.StatusError, result.Status)
			assert.Equal(t, 0, result.Processed)
			assert.Empty(t, result.Errors)
			assert.Contains(t, result.StructuralError, tt.contains)
			assert.Empty(t, f.store.Products())
		})
	}
}

// =============================================================================
// Serial imports
// =============================================================================

func (f *fixture) addSerialParent(t *testing.T, withVariant bool) core.Product {
	t.Helper()
	parent := f.store.PutProduct(core.Product{
		SKU:         "PARENT",
		Name:        "iPhone 13",
		RetailPrice: decimal.RequireFromString("450"),
		ProPrice:    decimal.RequireFromString("350"),
		VatType:     core.VatNormal,
		EAN:         "3700000000009",
		Description: "Reconditionné",
		CategoryID:  uuid.New(),
		IsParent:    true,
		Images:      []string{"front.jpg"},
		Attributes:  map[string]string{"color": "bleu"},
	})
	if withVariant {
		f.store.AddVariant(parent.ID)
	}
	return parent
}

func TestRun_SerialImport(t *testing.T) {
	f := newFixture(t, core.Options{})
	parent := f.addSerialParent(t, true)
	f.store.PutProduct(core.Product{SKU: "PARENT-SN1", ParentID: &parent.ID})

	data := serialHeader + "\n" +
		"PARENT,SN1,300,400,,280,normal,Boutique,Acme,90,oui,\n" +
		"parent,sn2,300,400,,280,normal,boutique,Acme,88,non,rayure\n"

	result := f.run(t, []byte(data), "parent")

	assert.Equal(t, core.ModeSerial, result.Mode)
	assert.Equal(t, core.StatusError, result.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Processed, "serial progress counts created children only")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Ligne 2 (SKU PARENT-SN1) : SKU enfant déjà existant", result.Errors[0].Message)

	child, ok := f.store.Product("PARENT-SN2")
	require.True(t, ok)
	assert.Equal(t, "iPhone 13 - sn2", child.Name)
	assert.Equal(t, 1, child.Stock)
	assert.False(t, child.IsParent)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, parent.CategoryID, child.CategoryID)
	assert.Equal(t, parent.EAN, child.EAN)
	assert.Equal(t, []string{"front.jpg"}, child.Images)
	assert.Equal(t, "bleu", child.Attributes["color"])
	assert.Equal(t, "Acme", child.Supplier)
	assert.Equal(t, "rayure", child.Note)

	assertDecimal(t, "480", child.RetailPrice, "RetailPrice")
	assertDecimal(t, "33.33", child.MarginPercent, "MarginPercent")
	assertDecimal(t, "420", child.ProPrice, "ProPrice")
	assertDecimal(t, "16.67", child.ProMarginPercent, "ProMarginPercent")
	assertDecimal(t, "280", child.RawPurchasePrice, "RawPurchasePrice")

	allocs := f.store.Allocations()
	require.Len(t, allocs, 1)
	assert.Equal(t, child.ID, allocs[0].ProductID)
	assert.Equal(t, f.boutique.ID, allocs[0].StockID)
	assert.Equal(t, 1, allocs[0].Quantity)
}

func TestRun_SerialMarginRegimeStoresPricesAsGiven(t *testing.T) {
	f := newFixture(t, core.Options{})
	f.addSerialParent(t, true)

	result := f.run(t, []byte(serialHeader+"\nPARENT,SN9,900,1150,1000,,margin,Réserve,Acme,,,\n"), "PARENT")
	require.Equal(t, core.StatusSuccess, result.Status, result.Errors)

	child, _ := f.store.Product("PARENT-SN9")
	assertDecimal(t, "1150", child.RetailPrice, "RetailPrice")
	assertDecimal(t, "23.15", child.MarginPercent, "MarginPercent")
	assert.Equal(t, f.reserve.ID, f.store.Allocations()[0].StockID)
}

func TestRun_SerialRowErrors(t *testing.T) {
	f := newFixture(t, core.Options{})
	f.addSerialParent(t, true)

	data := serialHeader + "\n" +
		"OTHER,SN1,300,400,,,normal,Boutique,Acme,,,\n" +
		"PARENT,SN2,300,400,,,normal,Grenier,Acme,,,\n" +
		"PARENT,SN3,300,400,,,normal,Boutique,,,,\n"

	result := f.run(t, []byte(data), "PARENT")

	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0].Message, "ne correspond pas")
	assert.Contains(t, result.Errors[1].Message, "stock inconnu « Grenier »")
	assert.Equal(t, "Ligne 4 (SKU PARENT-SN3) : champ obligatoire manquant « supplier »", result.Errors[2].Message)
	assert.Equal(t, 0, result.Processed)
	assert.Len(t, f.store.Products(), 1)
}

func TestRun_SerialNeedsSerialHostingParent(t *testing.T) {
	f := newFixture(t, core.Options{})
	f.addSerialParent(t, false)

	result := f.run(t, []byte(serialHeader+"\nPARENT,SN1,300,400,,,normal,Boutique,Acme,,,\n"), "PARENT")

	assert.Equal(t, core.StatusError, result.Status)
	assert.Contains(t, result.StructuralError, "n'accepte pas de numéros de série")
	assert.Len(t, f.store.Products(), 1)
}

// withColumn appends one column to every line of a rendered file.
func withColumn(data []byte, header, value string) []byte {
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	lines[0] += "," + header
	for i := 1; i < len(lines); i++ {
		lines[i] += "," + value
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestRun_SerialNumberColumnWithoutSerialParentImportsProducts(t *testing.T) {
	tests := []struct {
		name      string
		parentSKU string
	}{
		{name: "no parent"},
		{name: "unknown parent", parentSKU: "ghost"},
		{name: "parent without variants", parentSKU: "PARENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, core.Options{})
			f.addSerialParent(t, false)
			data := withColumn(productFile(",", map[string]string{"sku": "C1", "stock_boutique": "2"}), "serial_number", "")

			result := f.run(t, data, tt.parentSKU)

			assert.Equal(t, core.ModeProduct, result.Mode)
			require.Equal(t, core.StatusSuccess, result.Status, result.StructuralError, result.Errors)
			assert.Equal(t, 1, result.Processed)
			p, ok := f.store.Product("C1")
			require.True(t, ok)
			assert.Equal(t, 2, p.Stock)
		})
	}
}

// =============================================================================
// Asynchronous runs
// =============================================================================

func TestStartImport_ProgressAndResult(t *testing.T) {
	f := newFixture(t, core.Options{})

	var rows []map[string]string
	for i := 0; i < 20; i++ {
		rows = append(rows, map[string]string{"sku": fmt.Sprintf("S-%02d", i), "stock_boutique": "1"})
	}

	id, err := f.svc.StartImport(context.Background(), core.ImportRequest{FileName: "bulk.csv", Data: productFile(",", rows...)})
	require.NoError(t, err)

	ch, err := f.svc.SubscribeProgress(id)
	require.NoError(t, err)

	var last core.ImportProgress
	for p := range ch {
		assert.LessOrEqual(t, last.Processed, p.Processed, "progress never goes backwards")
		last = p
	}
	assert.True(t, last.Done)
	assert.Equal(t, core.StatusSuccess, last.Status)
	assert.Equal(t, 20, last.Processed)
	assert.Equal(t, 100, last.Percent())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := f.svc.WaitResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, result.ImportID)
	assert.Len(t, f.store.Products(), 20)

	_, err = f.svc.GetProgress("missing")
	assert.ErrorIs(t, err, core.ErrImportNotFound)
}

func TestStartImport_OneAtATime(t *testing.T) {
	f := newFixture(t, core.Options{MaxWait: 50 * time.Millisecond})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.store.BeforeUpsert = func(core.Product) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	id, err := f.svc.StartImport(context.Background(), core.ImportRequest{
		FileName: "slow.csv",
		Data:     productFile(",", map[string]string{"sku": "SLOW"}),
	})
	require.NoError(t, err)
	<-entered

	_, err = f.svc.GetResult(context.Background(), id)
	assert.ErrorIs(t, err, core.ErrImportRunning)
	assert.Equal(t, 1, f.svc.LimiterStatus().Active)

	_, err = f.svc.StartImport(context.Background(), core.ImportRequest{
		FileName: "second.csv",
		Data:     productFile(",", map[string]string{"sku": "SECOND"}),
	})
	assert.ErrorIs(t, err, core.ErrTooManyImports)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.WaitForImports(ctx))

	result, err := f.svc.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
}

func TestRun_OnProgressCallback(t *testing.T) {
	f := newFixture(t, core.Options{})

	var snaps []core.ImportProgress
	_, err := f.svc.Run(context.Background(), core.ImportRequest{
		FileName:   "cb.csv",
		Data:       productFile(",", map[string]string{"sku": "A"}, map[string]string{"sku": "B"}),
		OnProgress: func(p core.ImportProgress) { snaps = append(snaps, p) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, snaps)
	assert.Equal(t, 2, snaps[0].Total)
	assert.True(t, snaps[len(snaps)-1].Done)
	assert.Equal(t, 2, snaps[len(snaps)-1].Processed)
}

func TestRun_OnProgressCallbackCanQueryService(t *testing.T) {
	f := newFixture(t, core.Options{})

	var seen []core.ImportProgress
	finished := make(chan *core.ImportResult, 1)
	go func() {
		result, _ := f.svc.Run(context.Background(), core.ImportRequest{
			FileName: "cb.csv",
			Data:     productFile(",", map[string]string{"sku": "A"}),
			OnProgress: func(p core.ImportProgress) {
				got, err := f.svc.GetProgress(p.ImportID)
				if err == nil {
					seen = append(seen, got)
				}
			},
		})
		finished <- result
	}()

	select {
	case result := <-finished:
		require.NotNil(t, result)
		assert.Equal(t, core.StatusSuccess, result.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("progress callback blocked the import")
	}

	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1].Done)
}

// =============================================================================
// Archive
// =============================================================================

type fakeArchive struct {
	mu      sync.Mutex
	results map[string]*core.ImportResult
}

func (a *fakeArchive) Save(_ context.Context, r *core.ImportResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[r.ImportID] = r
	return nil
}

func (a *fakeArchive) Load(_ context.Context, id string) (*core.ImportResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[id]
	if !ok {
		return nil, core.ErrImportNotFound
	}
	return r, nil
}

func TestService_ArchivesFinishedResults(t *testing.T) {
	archive := &fakeArchive{results: make(map[string]*core.ImportResult)}
	f := newFixture(t, core.Options{Archive: archive})

	result := f.run(t, productFile(",", map[string]string{"sku": "C1"}), "")
	require.Contains(t, archive.results, result.ImportID)

	// A fresh service (e.g. after restart) still finds the result.
	restarted := core.NewService(f.store, core.Options{Archive: archive})
	got, err := restarted.GetResult(context.Background(), result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, result.Status, got.Status)

	_, err = core.NewService(f.store, core.Options{}).GetResult(context.Background(), result.ImportID)
	assert.ErrorIs(t, err, core.ErrImportNotFound)
}

// =============================================================================
// Templates
// =============================================================================

func TestService_Template(t *testing.T) {
	f := newFixture(t, core.Options{})
	f.store.AddSupplier("Acme")

	product, err := f.svc.Template(context.Background(), core.ModeProduct)
	require.NoError(t, err)
	header := strings.SplitN(product, "\n", 2)[0]
	assert.True(t, strings.HasSuffix(header, ",stock_boutique,stock_réserve"), header)
	assert.Contains(t, product, "# Stocks valides :\n#   Boutique\n#   Réserve\n")
	assert.NotContains(t, product, "Fournisseurs")

	serial, err := f.svc.Template(context.Background(), core.ModeSerial)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(serial, serialHeader+"\n"))
	assert.Contains(t, serial, "# Fournisseurs connus :\n#   Acme\n")

	_, err = f.svc.Template(context.Background(), core.ImportMode("bogus"))
	assert.Error(t, err)
}

func TestService_ProductTemplateImportsCleanly(t *testing.T) {
	f := newFixture(t, core.Options{})

	tmpl, err := f.svc.Template(context.Background(), core.ModeProduct)
	require.NoError(t, err)

	result := f.run(t, []byte(tmpl), "")
	assert.Equal(t, core.StatusSuccess, result.Status, result.Errors)
	assert.Equal(t, 2, result.Processed)
}
