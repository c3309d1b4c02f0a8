// Package core provides the business logic for bulk product imports.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound is returned by Store.FindProductBySKU when no product
// carries the requested SKU.
var ErrProductNotFound = errors.New("product not found")

// Store is the persistence collaborator consumed by the import engine.
// Every method may block on an external service; they are the only
// suspension points of an import run.
type Store interface {
	FindProductBySKU(ctx context.Context, sku string) (*Product, error)
	UpsertProduct(ctx context.Context, p Product) (Product, error)
	GetOrCreateCategory(ctx context.Context, typ, brand, model string) (Category, error)
	ListStocks(ctx context.Context) ([]StockLocation, error)

	// InsertStockAllocation adds quantity to the product's single allocation
	// at stockID, creating it on first use.
	InsertStockAllocation(ctx context.Context, productID, stockID uuid.UUID, quantity int) error

	// CountVariants returns how many variant/serial records are linked to
	// a parent product. A parent with at least one is serial-hosting.
	CountVariants(ctx context.Context, parentID uuid.UUID) (int, error)

	// ListSuppliers is advisory (template generation only).
	ListSuppliers(ctx context.Context) ([]string, error)
}

// VatType selects the VAT regime used to relate purchase price, sale price
// and margin.
type VatType string

const (
	VatNormal VatType = "normal"
	VatMargin VatType = "margin"
)

// Valid reports whether v is a known regime.
func (v VatType) Valid() bool {
	return v == VatNormal || v == VatMargin
}

// Dimensions are stored in centimetres.
type Dimensions struct {
	Width  decimal.Decimal `json:"width_cm"`
	Height decimal.Decimal `json:"height_cm"`
	Depth  decimal.Decimal `json:"depth_cm"`
}

// Product is a catalogue entry identified by its uppercase SKU.
type Product struct {
	ID               uuid.UUID         `json:"id"`
	SKU              string            `json:"sku"`
	Name             string            `json:"name"`
	PurchasePrice    decimal.Decimal   `json:"purchase_price"`
	RetailPrice      decimal.Decimal   `json:"retail_price"`
	ProPrice         decimal.Decimal   `json:"pro_price"`
	MarginPercent    decimal.Decimal   `json:"margin_percent"`
	ProMarginPercent decimal.Decimal   `json:"pro_margin_percent"`
	VatType          VatType           `json:"vat_type"`
	WeightGrams      decimal.Decimal   `json:"weight_grams"`
	Dimensions       Dimensions        `json:"dimensions"`
	EAN              string            `json:"ean"`
	Location         string            `json:"location"`
	Description      string            `json:"description"`
	CategoryID       uuid.UUID         `json:"category_id"`
	Stock            int               `json:"stock"`
	StockAlert       int               `json:"stock_alert"`
	IsParent         bool              `json:"is_parent"`
	ParentID         *uuid.UUID        `json:"parent_id,omitempty"`
	SerialNumber     string            `json:"serial_number,omitempty"`
	Images           []string          `json:"images,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`

	// Serialized children only.
	Supplier          string          `json:"supplier,omitempty"`
	RawPurchasePrice  decimal.Decimal `json:"raw_purchase_price"`
	BatteryPercentage string          `json:"battery_percentage,omitempty"`
	WarrantySticker   string          `json:"warranty_sticker,omitempty"`
	Note              string          `json:"note,omitempty"`
}

// Category is unique on its uppercase (Type, Brand, Model) triple.
type Category struct {
	ID    uuid.UUID `json:"id"`
	Type  string    `json:"type"`
	Brand string    `json:"brand"`
	Model string    `json:"model"`
}

// StockLocation is a named storage place.
type StockLocation struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// StockAllocation is a quantity of one product held at one location.
type StockAllocation struct {
	ProductID uuid.UUID `json:"product_id"`
	StockID   uuid.UUID `json:"stock_id"`
	Quantity  int       `json:"quantity"`
}

// ImportError is a row-level failure kept for the end-of-run report.
type ImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportMode distinguishes the two file formats.
type ImportMode string

const (
	ModeProduct ImportMode = "product"
	ModeSerial  ImportMode = "serial"
)

// ImportStatus is the terminal (or current) state of an import session.
type ImportStatus string

const (
	StatusRunning ImportStatus = "running"
	StatusSuccess ImportStatus = "success"
	StatusError   ImportStatus = "error"
)

// ImportRequest describes one file to import.
// ParentSKU selects the product page the import was launched from; it is
// only relevant for serialized children.
type ImportRequest struct {
	FileName  string
	Data      []byte
	ParentSKU string

	// OnProgress, when set, receives every progress snapshot synchronously.
	OnProgress ProgressCallback
}

// ImportProgress is a point-in-time snapshot of a session.
type ImportProgress struct {
	ImportID   string       `json:"import_id"`
	Mode       ImportMode   `json:"mode,omitempty"`
	FileName   string       `json:"file_name"`
	Status     ImportStatus `json:"status"`
	Total      int          `json:"total"`
	Processed  int          `json:"processed"`
	ErrorCount int          `json:"error_count"`
	LastError  string       `json:"last_error,omitempty"`
	Done       bool         `json:"done"`
}

// Percent returns the progress as a percentage (0-100).
func (p ImportProgress) Percent() int {
	if p.Total <= 0 {
		if p.Done {
			return 100
		}
		return 0
	}
	return (p.Processed * 100) / p.Total
}

// ImportResult is the final outcome of an import session. Errors holds the
// complete list; use ErrorPreview for what an end user should see.
type ImportResult struct {
	ImportID        string        `json:"import_id"`
	Mode            ImportMode    `json:"mode,omitempty"`
	FileName        string        `json:"file_name"`
	Status          ImportStatus  `json:"status"`
	Total           int           `json:"total"`
	Processed       int           `json:"processed"`
	Errors          []ImportError `json:"errors"`
	StructuralError string        `json:"structural_error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}

// DisplayedErrorLimit is how many row errors a UI shows after an import.
const DisplayedErrorLimit = 3

// ErrorPreview returns the first DisplayedErrorLimit errors.
func (r *ImportResult) ErrorPreview() []ImportError {
	if len(r.Errors) <= DisplayedErrorLimit {
		return r.Errors
	}
	return r.Errors[:DisplayedErrorLimit]
}

// Progress rebuilds the final progress snapshot of a finished import.
func (r *ImportResult) Progress() ImportProgress {
	p := ImportProgress{
		ImportID:   r.ImportID,
		Mode:       r.Mode,
		FileName:   r.FileName,
		Status:     r.Status,
		Total:      r.Total,
		Processed:  r.Processed,
		ErrorCount: len(r.Errors),
		Done:       true,
	}
	switch {
	case r.StructuralError != "":
		p.LastError = r.StructuralError
	case len(r.Errors) > 0:
		p.LastError = r.Errors[len(r.Errors)-1].Message
	}
	return p
}

// ProgressCallback is called on every session change.
type ProgressCallback func(ImportProgress)
