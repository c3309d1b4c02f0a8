package core

// rows.go is the typed decode step: raw cells are bound to a struct through
// `col` tags, validated with go-playground/validator, and converted into the
// inputs the importers work with. Business logic never sees raw cells.

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ProductColumns are required in a product import header.
var ProductColumns = []string{
	"name", "sku", "purchase_price_with_fees", "weight_grams", "location", "ean",
	"width_cm", "height_cm", "depth_cm", "description",
	"category_type", "category_brand", "category_model",
}

// SerialColumns are required in a serial import header.
var SerialColumns = []string{"serial_number", "purchase_price_with_fees", "supplier", "stock_name"}

// productRow mirrors a product import line.
type productRow struct {
	Name             string `col:"name" validate:"required"`
	SKU              string `col:"sku" validate:"required"`
	PurchasePrice    string `col:"purchase_price_with_fees" validate:"required,amount"`
	RetailPrice      string `col:"retail_price" validate:"omitempty,amount"`
	ProPrice         string `col:"pro_price" validate:"omitempty,amount"`
	MarginPercent    string `col:"margin_percent" validate:"omitempty,amount"`
	ProMarginPercent string `col:"pro_margin_percent" validate:"omitempty,amount"`
	WeightGrams      string `col:"weight_grams" validate:"required,amount"`
	Location         string `col:"location" validate:"required"`
	EAN              string `col:"ean"`
	StockAlert       string `col:"stock_alert"`
	Description      string `col:"description" validate:"required"`
	Width            string `col:"width_cm" validate:"required,amount"`
	Height           string `col:"height_cm" validate:"required,amount"`
	Depth            string `col:"depth_cm" validate:"required,amount"`
	CategoryType     string `col:"category_type" validate:"required"`
	CategoryBrand    string `col:"category_brand" validate:"required"`
	CategoryModel    string `col:"category_model" validate:"required"`
	VatType          string `col:"vat_type" validate:"omitempty,vat"`
}

// serialRow mirrors a serial import line.
type serialRow struct {
	ParentSKU         string `col:"sku_parent"`
	SerialNumber      string `col:"serial_number" validate:"required"`
	PurchasePrice     string `col:"purchase_price_with_fees" validate:"required,amount"`
	RetailPrice       string `col:"retail_price" validate:"omitempty,amount"`
	ProPrice          string `col:"pro_price" validate:"omitempty,amount"`
	RawPurchasePrice  string `col:"raw_purchase_price" validate:"omitempty,amount"`
	VatType           string `col:"vat_type" validate:"omitempty,vat"`
	StockName         string `col:"stock_name" validate:"required"`
	Supplier          string `col:"supplier" validate:"required"`
	BatteryPercentage string `col:"battery_percentage"`
	WarrantySticker   string `col:"warranty_sticker"`
	Note              string `col:"product_note"`
}

// ProductInput is a decoded product line.
type ProductInput struct {
	Line          int
	SKU           string // Uppercase
	Name          string
	PurchasePrice decimal.Decimal
	Retail        TierInput
	Pro           TierInput
	VatType       VatType
	WeightGrams   decimal.Decimal
	Dimensions    Dimensions
	Location      string
	EAN           string
	Description   string
	StockAlert    int
	CategoryType  string // Uppercase
	CategoryBrand string // Uppercase
	CategoryModel string // Uppercase
}

// SerialInput is a decoded serial line.
type SerialInput struct {
	Line              int
	ParentSKU         string // Uppercase, empty when the file has none
	SerialNumber      string
	PurchasePrice     decimal.Decimal
	RetailPrice       decimal.NullDecimal
	ProPrice          decimal.NullDecimal
	RawPurchasePrice  decimal.Decimal
	VatType           VatType
	StockName         string
	Supplier          string
	BatteryPercentage string
	WarrantySticker   string
	Note              string
}

var (
	validateOnce sync.Once
	rowValidator *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("col")
		})
		_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			_, ok := ParseDecimal(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("vat", func(fl validator.FieldLevel) bool {
			return VatType(fl.Field().String()).Valid()
		})
		rowValidator = v
	})
	return rowValidator
}

// bindRow fills the string fields of dst (a struct pointer) from the cells
// named by their col tags.
func bindRow(layout *Layout, row DataRow, dst any) {
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		col := t.Field(i).Tag.Get("col")
		if col == "" {
			continue
		}
		v.Field(i).SetString(layout.Cell(row, col))
	}
}

// validateRow runs the struct validator and returns the first failure as a
// *ValidationError.
func validateRow(dst any) error {
	err := getValidator().Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), msgMissingField, fe.Field())
	case "amount":
		return invalid(fe.Field(), msgInvalidNumber, fe.Field(), fe.Value())
	case "vat":
		return invalid(fe.Field(), msgInvalidChoice, fe.Field(), fe.Value(),
			strings.Join([]string{string(VatNormal), string(VatMargin)}, ", "))
	default:
		return invalid(fe.Field(), "valeur invalide pour « %s »", fe.Field())
	}
}

// PeekSKU returns the uppercase SKU of a product line, for error messages
// raised before the line is decoded.
func PeekSKU(layout *Layout, row DataRow) string {
	return strings.ToUpper(layout.Cell(row, "sku"))
}

// DecodeProductRow decodes and validates one product line. EAN is left
// unchecked: it is only required for products that do not exist yet.
func DecodeProductRow(layout *Layout, row DataRow) (ProductInput, error) {
	var r productRow
	bindRow(layout, row, &r)
	r.VatType = strings.ToLower(r.VatType)

	if err := validateRow(&r); err != nil {
		return ProductInput{}, err
	}

	in := ProductInput{
		Line:          row.Line,
		SKU:           strings.ToUpper(r.SKU),
		Name:          r.Name,
		PurchasePrice: mustDecimal(r.PurchasePrice),
		Retail:        TierInput{Price: optDecimal(r.RetailPrice), Margin: optDecimal(r.MarginPercent)},
		Pro:           TierInput{Price: optDecimal(r.ProPrice), Margin: optDecimal(r.ProMarginPercent)},
		VatType:       vatOrDefault(r.VatType),
		WeightGrams:   mustDecimal(r.WeightGrams),
		Dimensions: Dimensions{
			Width:  mustDecimal(r.Width),
			Height: mustDecimal(r.Height),
			Depth:  mustDecimal(r.Depth),
		},
		Location:      r.Location,
		EAN:           r.EAN,
		Description:   r.Description,
		StockAlert:    ParseQuantity(r.StockAlert),
		CategoryType:  strings.ToUpper(r.CategoryType),
		CategoryBrand: strings.ToUpper(r.CategoryBrand),
		CategoryModel: strings.ToUpper(r.CategoryModel),
	}
	return in, nil
}

// DecodeSerialRow decodes and validates one serial line.
func DecodeSerialRow(layout *Layout, row DataRow) (SerialInput, error) {
	var r serialRow
	bindRow(layout, row, &r)
	r.VatType = strings.ToLower(r.VatType)

	if err := validateRow(&r); err != nil {
		return SerialInput{}, err
	}

	return SerialInput{
		Line:              row.Line,
		ParentSKU:         strings.ToUpper(r.ParentSKU),
		SerialNumber:      r.SerialNumber,
		PurchasePrice:     mustDecimal(r.PurchasePrice),
		RetailPrice:       optDecimal(r.RetailPrice),
		ProPrice:          optDecimal(r.ProPrice),
		RawPurchasePrice:  optDecimal(r.RawPurchasePrice).Decimal,
		VatType:           vatOrDefault(r.VatType),
		StockName:         r.StockName,
		Supplier:          r.Supplier,
		BatteryPercentage: r.BatteryPercentage,
		WarrantySticker:   r.WarrantySticker,
		Note:              r.Note,
	}, nil
}

func vatOrDefault(s string) VatType {
	if s == "" {
		return VatNormal
	}
	return VatType(s)
}

// mustDecimal parses a cell the validator already accepted.
func mustDecimal(s string) decimal.Decimal {
	d, ok := ParseDecimal(s)
	if !ok {
		panic(fmt.Sprintf("unvalidated amount %q", s))
	}
	return d
}

func optDecimal(s string) decimal.NullDecimal {
	d, ok := ParseDecimal(s)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
