package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// serialImporter creates one child product per serial number under a
// serial-hosting parent.
type serialImporter struct {
	store  Store
	parent Product
	stocks []StockLocation
	log    *slog.Logger
}

// checkSerialParent reports whether parent may receive serialized children:
// it must be a parent product that already has variants.
func checkSerialParent(ctx context.Context, store Store, parent *Product) error {
	if parent == nil || !parent.IsParent {
		return notSerialParent(parent)
	}
	n, err := store.CountVariants(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("count variants: %w", err)
	}
	if n == 0 {
		return notSerialParent(parent)
	}
	return nil
}

func notSerialParent(parent *Product) *StructuralError {
	msg := "Aucun produit parent : l'import de numéros de série doit être lancé depuis un produit parent avec variantes"
	if parent != nil {
		msg = fmt.Sprintf("Le produit %s n'accepte pas de numéros de série (produit parent avec variantes requis)", parent.SKU)
	}
	return &StructuralError{Kind: KindNotSerialParent, Message: msg}
}

// ChildSKU is the SKU given to the unit with serial under parentSKU.
func ChildSKU(parentSKU, serial string) string {
	return strings.ToUpper(parentSKU + "-" + serial)
}

func (si *serialImporter) stockByName(name string) (StockLocation, bool) {
	for _, s := range si.stocks {
		if strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			return s, true
		}
	}
	return StockLocation{}, false
}

// apply validates and persists one serial line. Returns the child SKU for
// error reporting even on failure.
func (si *serialImporter) apply(ctx context.Context, in SerialInput) (sku string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	parent := si.parent
	sku = ChildSKU(parent.SKU, in.SerialNumber)

	if in.ParentSKU != "" && in.ParentSKU != strings.ToUpper(parent.SKU) {
		return sku, invalid("sku_parent", msgParentMismatch, in.ParentSKU, parent.SKU)
	}

	stock, ok := si.stockByName(in.StockName)
	if !ok {
		return sku, invalid("stock_name", msgUnknownStockName, in.StockName)
	}

	_, err = si.store.FindProductBySKU(ctx, sku)
	switch {
	case err == nil:
		return sku, invalid("serial_number", msgChildExists)
	case !errors.Is(err, ErrProductNotFound):
		return sku, persistErr(opFindProduct, err)
	}

	retail, err := childTier(TierRetail, in, parent.RetailPrice)
	if err != nil {
		return sku, err
	}
	pro, err := childTier(TierPro, in, parent.ProPrice)
	if err != nil {
		return sku, err
	}

	parentID := parent.ID
	child := Product{
		SKU:               sku,
		Name:              parent.Name + " - " + in.SerialNumber,
		PurchasePrice:     in.PurchasePrice.Round(2),
		RetailPrice:       retail.Price,
		ProPrice:          pro.Price,
		MarginPercent:     retail.Margin,
		ProMarginPercent:  pro.Margin,
		VatType:           in.VatType,
		WeightGrams:       parent.WeightGrams,
		Dimensions:        parent.Dimensions,
		EAN:               parent.EAN,
		Location:          parent.Location,
		Description:       parent.Description,
		CategoryID:        parent.CategoryID,
		Stock:             1,
		IsParent:          false,
		ParentID:          &parentID,
		SerialNumber:      in.SerialNumber,
		Images:            slices.Clone(parent.Images),
		Attributes:        maps.Clone(parent.Attributes),
		Supplier:          in.Supplier,
		RawPurchasePrice:  in.RawPurchasePrice.Round(2),
		BatteryPercentage: in.BatteryPercentage,
		WarrantySticker:   in.WarrantySticker,
		Note:              in.Note,
	}

	saved, err := si.store.UpsertProduct(ctx, child)
	if err != nil {
		return sku, persistErr(opUpsertProduct, err)
	}
	if err := si.store.InsertStockAllocation(ctx, saved.ID, stock.ID, 1); err != nil {
		return sku, persistErr(opAllocation, err)
	}

	si.log.Debug("serial imported", "line", in.Line, "sku", sku, "stock", stock.Name)
	return sku, nil
}

// childTier prices one tier of a serialized child. The file only carries
// money: an empty cell falls back to the parent's price. Under the normal
// regime the value is HT and is stored TTC; under the margin regime it is
// stored as given.
func childTier(tier Tier, in SerialInput, fallback decimal.Decimal) (TierQuote, error) {
	price := fallback
	if p := tierPrice(tier, in); p.Valid {
		price = p.Decimal
	}

	q, err := ResolveTier(tier, in.VatType, in.PurchasePrice, TierInput{Price: decimal.NewNullDecimal(price)})
	if err != nil {
		return TierQuote{}, err
	}
	if in.VatType == VatNormal {
		q.Price = ToTTC(price).Round(2)
	}
	return q, nil
}

func tierPrice(tier Tier, in SerialInput) decimal.NullDecimal {
	if tier == TierPro {
		return in.ProPrice
	}
	return in.RetailPrice
}
