// Package memory is an in-process core.Store used for dry runs and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/inventory/internal/core"
)

// Store keeps products, categories, stock locations and allocations in
// maps. All methods are safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	products    map[string]core.Product // by SKU
	categories  map[string]core.Category
	stocks      []core.StockLocation
	allocations []core.StockAllocation
	variants    map[uuid.UUID]int
	suppliers   []string

	// BeforeUpsert, when set, runs before every UpsertProduct. A non-nil
	// error is returned as the store error.
	BeforeUpsert func(p core.Product) error
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		products:   make(map[string]core.Product),
		categories: make(map[string]core.Category),
		variants:   make(map[uuid.UUID]int),
	}
}

// AddStock registers a stock location.
func (s *Store) AddStock(name string) core.StockLocation {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := core.StockLocation{ID: uuid.New(), Name: name}
	s.stocks = append(s.stocks, loc)
	return loc
}

// AddStockLocation registers an existing location, keeping its ID.
func (s *Store) AddStockLocation(loc core.StockLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks = append(s.stocks, loc)
}

// AddSupplier registers a supplier name for templates.
func (s *Store) AddSupplier(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers = append(s.suppliers, name)
}

// PutProduct stores p as is, assigning an ID when missing.
func (s *Store) PutProduct(p core.Product) core.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.SKU = strings.ToUpper(p.SKU)
	s.products[p.SKU] = cloneProduct(p)
	return p
}

// AddVariant links one variant record to parentID.
func (s *Store) AddVariant(parentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[parentID]++
}

// Product returns a copy of the product with sku.
func (s *Store) Product(sku string) (core.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[strings.ToUpper(sku)]
	return cloneProduct(p), ok
}

// Products returns every product sorted by SKU.
func (s *Store) Products() []core.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Categories returns every category.
func (s *Store) Categories() []core.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.categories))
}

// Allocations returns the allocation log in insertion order.
func (s *Store) Allocations() []core.StockAllocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.allocations)
}

func (s *Store) FindProductBySKU(_ context.Context, sku string) (*core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[strings.ToUpper(sku)]
	if !ok {
		return nil, core.ErrProductNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (s *Store) UpsertProduct(_ context.Context, p core.Product) (core.Product, error) {
	if s.BeforeUpsert != nil {
		if err := s.BeforeUpsert(p); err != nil {
			return core.Product{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.SKU = strings.ToUpper(p.SKU)
	if existing, ok := s.products[p.SKU]; ok {
		p.ID = existing.ID
	} else if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.products[p.SKU] = cloneProduct(p)
	return p, nil
}

func (s *Store) GetOrCreateCategory(_ context.Context, typ, brand, model string) (core.Category, error) {
	c := core.Category{
		Type:  strings.ToUpper(typ),
		Brand: strings.ToUpper(brand),
		Model: strings.ToUpper(model),
	}
	key := c.Type + "\x00" + c.Brand + "\x00" + c.Model

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.categories[key]; ok {
		return existing, nil
	}
	c.ID = uuid.New()
	s.categories[key] = c
	return c, nil
}

func (s *Store) ListStocks(_ context.Context) ([]core.StockLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.stocks), nil
}

// InsertStockAllocation adds quantity to the product's allocation at
// stockID, creating it on first use.
func (s *Store) InsertStockAllocation(_ context.Context, productID, stockID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.allocations {
		if a.ProductID == productID && a.StockID == stockID {
			s.allocations[i].Quantity += quantity
			return nil
		}
	}
	s.allocations = append(s.allocations, core.StockAllocation{
		ProductID: productID,
		StockID:   stockID,
		Quantity:  quantity,
	})
	return nil
}

// CountVariants counts registered variants plus stored children.
func (s *Store) CountVariants(_ context.Context, parentID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.variants[parentID]
	for _, p := range s.products {
		if p.ParentID != nil && *p.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.suppliers), nil
}

func cloneProduct(p core.Product) core.Product {
	p.Images = slices.Clone(p.Images)
	p.Attributes = maps.Clone(p.Attributes)
	if p.ParentID != nil {
		id := *p.ParentID
		p.ParentID = &id
	}
	return p
}
