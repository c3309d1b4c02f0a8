package core

import (
	"fmt"
	"sort"
	"sync"
)

// ModeInfo describes an import file format.
type ModeInfo struct {
	Key         ImportMode `json:"key"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Columns     []string   `json:"columns"`  // Template column order
	Required    []string   `json:"required"` // Header must contain these
}

// ModeDefinition is a registered import mode.
type ModeDefinition struct {
	Info ModeInfo

	// ExampleRows returns illustrative template rows, aligned with Columns
	// (stock columns appended by the template generator).
	ExampleRows func(stocks []StockLocation, suppliers []string) [][]string
}

var (
	registry   = make(map[ImportMode]ModeDefinition)
	registryMu sync.RWMutex
)

// Register adds a mode definition to the registry.
// Panics if a mode with the same key is already registered.
func Register(def ModeDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("import mode already registered: %s", def.Info.Key))
	}
	registry[def.Info.Key] = def
}

// Get returns a mode definition by key.
func Get(key ImportMode) (ModeDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered modes sorted by key.
func All() []ModeDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ModeDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}

func init() {
	Register(ModeDefinition{
		Info: ModeInfo{
			Key:         ModeProduct,
			Label:       "Produits",
			Description: "Création ou mise à jour de produits, avec stock par emplacement",
			Columns: []string{
				"name", "sku", "purchase_price_with_fees", "retail_price", "pro_price",
				"weight_grams", "location", "ean", "stock", "stock_alert", "description",
				"width_cm", "height_cm", "depth_cm", "category_type", "category_brand",
				"category_model", "vat_type", "margin_percent", "pro_margin_percent",
			},
			Required: ProductColumns,
		},
		ExampleRows: productExamples,
	})

	Register(ModeDefinition{
		Info: ModeInfo{
			Key:         ModeSerial,
			Label:       "Numéros de série",
			Description: "Une unité enfant par numéro de série, sous un produit parent avec variantes",
			Columns: []string{
				"sku_parent", "serial_number", "purchase_price_with_fees", "retail_price",
				"pro_price", "raw_purchase_price", "vat_type", "stock_name", "supplier",
				"battery_percentage", "warranty_sticker", "product_note",
			},
			Required: SerialColumns,
		},
		ExampleRows: serialExamples,
	})
}
