package core

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// plannedProduct is a decoded product line with its prices and stock
// already computed. Everything in it is pure; nothing has been written.
type plannedProduct struct {
	input  ProductInput
	retail TierQuote
	pro    TierQuote
	stock  StockPlan
}

// rowImporter creates or updates one product per data row.
type rowImporter struct {
	store  Store
	layout *Layout
	log    *slog.Logger
}

// plan is the decode stage of a product import.
func (ri *rowImporter) plan(row DataRow) (plannedProduct, error) {
	in, err := DecodeProductRow(ri.layout, row)
	if err != nil {
		return plannedProduct{}, err
	}

	retail, err := ResolveTier(TierRetail, in.VatType, in.PurchasePrice, in.Retail)
	if err != nil {
		return plannedProduct{}, err
	}
	pro, err := ResolveTier(TierPro, in.VatType, in.PurchasePrice, in.Pro)
	if err != nil {
		return plannedProduct{}, err
	}

	stock, err := planStock(ri.layout, row, in.SKU)
	if err != nil {
		return plannedProduct{}, err
	}

	return plannedProduct{input: in, retail: retail, pro: pro, stock: stock}, nil
}

// apply is the persistence stage of a product import. A product saved
// before an allocation fails stays saved.
func (ri *rowImporter) apply(ctx context.Context, p plannedProduct) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	in := p.input

	existing, err := ri.store.FindProductBySKU(ctx, in.SKU)
	switch {
	case errors.Is(err, ErrProductNotFound):
		existing = nil
	case err != nil:
		return persistErr(opFindProduct, err)
	}

	if existing == nil && in.EAN == "" {
		return invalid("ean", msgMissingField, "ean")
	}

	category, err := ri.store.GetOrCreateCategory(ctx, in.CategoryType, in.CategoryBrand, in.CategoryModel)
	if err != nil {
		return persistErr(opCategory, err)
	}

	product := buildProduct(p, category.ID)
	if existing != nil {
		product = mergeProduct(*existing, product)
	}

	saved, err := ri.store.UpsertProduct(ctx, product)
	if err != nil {
		return persistErr(opUpsertProduct, err)
	}

	for _, a := range p.stock.Allocations {
		if err := ri.store.InsertStockAllocation(ctx, saved.ID, a.Location.ID, a.Quantity); err != nil {
			return persistErr(opAllocation, err)
		}
	}

	ri.log.Debug("row imported",
		"line", in.Line,
		"sku", saved.SKU,
		"created", existing == nil,
		"stock_added", p.stock.Total,
	)
	return nil
}

// buildProduct returns a new standalone product for a planned row.
func buildProduct(p plannedProduct, categoryID uuid.UUID) Product {
	in := p.input
	return Product{
		SKU:              in.SKU,
		Name:             in.Name,
		PurchasePrice:    in.PurchasePrice.Round(2),
		RetailPrice:      p.retail.Price,
		ProPrice:         p.pro.Price,
		MarginPercent:    p.retail.Margin,
		ProMarginPercent: p.pro.Margin,
		VatType:          in.VatType,
		WeightGrams:      in.WeightGrams,
		Dimensions:       in.Dimensions,
		EAN:              in.EAN,
		Location:         in.Location,
		Description:      in.Description,
		CategoryID:       categoryID,
		Stock:            p.stock.Total,
		StockAlert:       in.StockAlert,
	}
}

// mergeProduct applies a re-imported row to an existing product: stock is
// added, computed fields are overwritten, an empty EAN keeps the stored one,
// and identity (ID, parent links, serial, images, attributes) is kept.
func mergeProduct(existing, incoming Product) Product {
	merged := incoming
	merged.ID = existing.ID
	merged.Stock = existing.Stock + incoming.Stock
	merged.IsParent = existing.IsParent
	merged.ParentID = existing.ParentID
	merged.SerialNumber = existing.SerialNumber
	merged.Images = existing.Images
	merged.Attributes = existing.Attributes
	merged.Supplier = existing.Supplier
	merged.RawPurchasePrice = existing.RawPurchasePrice
	merged.BatteryPercentage = existing.BatteryPercentage
	merged.WarrantySticker = existing.WarrantySticker
	merged.Note = existing.Note
	if merged.EAN == "" {
		merged.EAN = existing.EAN
	}
	return merged
}
