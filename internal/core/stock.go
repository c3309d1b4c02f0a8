package core

// LocationQuantity is a parsed per-location stock cell.
type LocationQuantity struct {
	Location StockLocation
	Quantity int
}

// StockPlan is what a row adds to a product's stock.
type StockPlan struct {
	Total       int
	Allocations []LocationQuantity // Only non-zero quantities
}

// Reconcile sums per-location quantities and checks them against the
// declared global quantity, if any. Zero quantities produce no allocation.
func Reconcile(sku string, quantities []LocationQuantity, global *int) (StockPlan, error) {
	var plan StockPlan
	for _, q := range quantities {
		if q.Quantity <= 0 {
			continue
		}
		plan.Total += q.Quantity
		plan.Allocations = append(plan.Allocations, q)
	}

	if global != nil && *global != plan.Total {
		return StockPlan{}, invalid(globalStockHeader, msgStockMismatch, *global, plan.Total, sku)
	}
	return plan, nil
}

// planStock builds a row's stock plan from the layout's stock mode.
func planStock(layout *Layout, row DataRow, sku string) (StockPlan, error) {
	if layout.StockMode != StockPerLocation {
		return StockPlan{Total: ParseQuantity(layout.Cell(row, globalStockHeader))}, nil
	}

	quantities := make([]LocationQuantity, 0, len(layout.StockColumns))
	for _, sc := range layout.StockColumns {
		var raw string
		if sc.Index < len(row.Cells) {
			raw = row.Cells[sc.Index]
		}
		quantities = append(quantities, LocationQuantity{Location: sc.Location, Quantity: ParseQuantity(raw)})
	}

	// A blank stock cell declares no total for this row, so only the
	// location cells count. An explicit 0 is still cross-checked.
	var global *int
	if layout.HasGlobalStock {
		if cell := layout.Cell(row, globalStockHeader); cell != "" {
			g := ParseQuantity(cell)
			global = &g
		}
	}

	return Reconcile(sku, quantities, global)
}
