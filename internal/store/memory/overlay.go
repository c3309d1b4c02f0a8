package memory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JonMunkholm/inventory/internal/core"
)

// Overlay reads through to a base store and keeps every write in memory.
// Dry runs use it to import against real data without changing it.
type Overlay struct {
	*Store
	base core.Store
}

var _ core.Store = (*Overlay)(nil)

// NewOverlay wraps base. Stock locations and suppliers always come from base.
func NewOverlay(base core.Store) *Overlay {
	return &Overlay{Store: New(), base: base}
}

// FindProductBySKU prefers products written during this run.
func (o *Overlay) FindProductBySKU(ctx context.Context, sku string) (*core.Product, error) {
	p, err := o.Store.FindProductBySKU(ctx, sku)
	if !errors.Is(err, core.ErrProductNotFound) {
		return p, err
	}
	return o.base.FindProductBySKU(ctx, sku)
}

func (o *Overlay) ListStocks(ctx context.Context) ([]core.StockLocation, error) {
	return o.base.ListStocks(ctx)
}

// CountVariants adds children created during this run to the base count.
func (o *Overlay) CountVariants(ctx context.Context, parentID uuid.UUID) (int, error) {
	n, err := o.base.CountVariants(ctx, parentID)
	if err != nil {
		return 0, err
	}
	local, _ := o.Store.CountVariants(ctx, parentID)
	return n + local, nil
}

func (o *Overlay) ListSuppliers(ctx context.Context) ([]string, error) {
	return o.base.ListSuppliers(ctx)
}
