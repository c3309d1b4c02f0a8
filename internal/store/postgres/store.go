// Package postgres implements core.Store on PostgreSQL with pgx.
//
// Each method runs as its own statement on the pool (autocommit): a row
// whose product was saved keeps it even if a later allocation fails.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
)

//go:embed schema.sql
var schema string

// Open parses cfg, connects the pool and pings the database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// DatabaseName extracts the database name from a connection URL for logs.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Store is a core.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the schema if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const productColumns = `id, sku, name,
	purchase_price::text, retail_price::text, pro_price::text,
	margin_percent::text, pro_margin_percent::text, vat_type,
	weight_grams::text, width_cm::text, height_cm::text, depth_cm::text,
	ean, location, description, category_id, stock, stock_alert,
	is_parent, parent_id, serial_number, images, attributes,
	supplier, raw_purchase_price::text, battery_percentage, warranty_sticker, note`

func (s *Store) FindProductBySKU(ctx context.Context, sku string) (*core.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`,
		strings.ToUpper(sku))

	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %s: %w", sku, err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (*core.Product, error) {
	var (
		p                     core.Product
		id, catID, parentID   pgtype.UUID
		vat                   string
		purchase, retail, pro string
		margin, proMargin     string
		weight, w, h, d       string
		rawPurchase           string
		attrs                 map[string]string
	)

	err := row.Scan(
		&id, &p.SKU, &p.Name,
		&purchase, &retail, &pro,
		&margin, &proMargin, &vat,
		&weight, &w, &h, &d,
		&p.EAN, &p.Location, &p.Description, &catID, &p.Stock, &p.StockAlert,
		&p.IsParent, &parentID, &p.SerialNumber, &p.Images, &attrs,
		&p.Supplier, &rawPurchase, &p.BatteryPercentage, &p.WarrantySticker, &p.Note,
	)
	if err != nil {
		return nil, err
	}

	p.ID = fromPgUUID(id)
	p.CategoryID = fromPgUUID(catID)
	if parentID.Valid {
		pid := fromPgUUID(parentID)
		p.ParentID = &pid
	}
	p.VatType = core.VatType(vat)
	p.Attributes = attrs

	for _, n := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.PurchasePrice, purchase},
		{&p.RetailPrice, retail},
		{&p.ProPrice, pro},
		{&p.MarginPercent, margin},
		{&p.ProMarginPercent, proMargin},
		{&p.WeightGrams, weight},
		{&p.Dimensions.Width, w},
		{&p.Dimensions.Height, h},
		{&p.Dimensions.Depth, d},
		{&p.RawPurchasePrice, rawPurchase},
	} {
		v, err := decimal.NewFromString(n.src)
		if err != nil {
			return nil, fmt.Errorf("parse numeric %q: %w", n.src, err)
		}
		*n.dst = v
	}

	return &p, nil
}

const upsertProduct = `
INSERT INTO products (
	id, sku, name, purchase_price, retail_price, pro_price,
	margin_percent, pro_margin_percent, vat_type,
	weight_grams, width_cm, height_cm, depth_cm,
	ean, location, description, category_id, stock, stock_alert,
	is_parent, parent_id, serial_number, images, attributes,
	supplier, raw_purchase_price, battery_percentage, warranty_sticker, note
) VALUES (
	COALESCE($1, gen_random_uuid()), $2, $3, $4::numeric, $5::numeric, $6::numeric,
	$7::numeric, $8::numeric, $9,
	$10::numeric, $11::numeric, $12::numeric, $13::numeric,
	$14, $15, $16, $17, $18, $19,
	$20, $21, $22, $23, $24,
	$25, $26::numeric, $27, $28, $29
)
ON CONFLICT (sku) DO UPDATE SET
	name               = EXCLUDED.name,
	purchase_price     = EXCLUDED.purchase_price,
	retail_price       = EXCLUDED.retail_price,
	pro_price          = EXCLUDED.pro_price,
	margin_percent     = EXCLUDED.margin_percent,
	pro_margin_percent = EXCLUDED.pro_margin_percent,
	vat_type           = EXCLUDED.vat_type,
	weight_grams       = EXCLUDED.weight_grams,
	width_cm           = EXCLUDED.width_cm,
	height_cm          = EXCLUDED.height_cm,
	depth_cm           = EXCLUDED.depth_cm,
	ean                = EXCLUDED.ean,
	location           = EXCLUDED.location,
	description        = EXCLUDED.description,
	category_id        = EXCLUDED.category_id,
	stock              = EXCLUDED.stock,
	stock_alert        = EXCLUDED.stock_alert,
	is_parent          = EXCLUDED.is_parent,
	parent_id          = EXCLUDED.parent_id,
	serial_number      = EXCLUDED.serial_number,
	images             = EXCLUDED.images,
	attributes         = EXCLUDED.attributes,
	supplier           = EXCLUDED.supplier,
	raw_purchase_price = EXCLUDED.raw_purchase_price,
	battery_percentage = EXCLUDED.battery_percentage,
	warranty_sticker   = EXCLUDED.warranty_sticker,
	note               = EXCLUDED.note,
	updated_at         = now()
RETURNING id`

// UpsertProduct inserts p or updates the product with the same SKU. The
// stored ID is returned on p.
func (s *Store) UpsertProduct(ctx context.Context, p core.Product) (core.Product, error) {
	p.SKU = strings.ToUpper(p.SKU)

	images := p.Images
	if images == nil {
		images = []string{}
	}
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	var parentID pgtype.UUID
	if p.ParentID != nil {
		parentID = toPgUUID(*p.ParentID)
	}

	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, upsertProduct,
		toPgUUID(p.ID), p.SKU, p.Name,
		p.PurchasePrice.String(), p.RetailPrice.String(), p.ProPrice.String(),
		p.MarginPercent.String(), p.ProMarginPercent.String(), string(p.VatType),
		p.WeightGrams.String(), p.Dimensions.Width.String(), p.Dimensions.Height.String(), p.Dimensions.Depth.String(),
		p.EAN, p.Location, p.Description, toPgUUID(p.CategoryID), p.Stock, p.StockAlert,
		p.IsParent, parentID, p.SerialNumber, images, attrs,
		p.Supplier, p.RawPurchasePrice.String(), p.BatteryPercentage, p.WarrantySticker, p.Note,
	).Scan(&id)
	if err != nil {
		return core.Product{}, fmt.Errorf("upsert product %s: %w", p.SKU, err)
	}

	p.ID = fromPgUUID(id)
	return p, nil
}

// GetOrCreateCategory relies on the (type, brand, model) unique constraint:
// a concurrent insert of the same triple loses the race and reads the
// winner's row.
func (s *Store) GetOrCreateCategory(ctx context.Context, typ, brand, model string) (core.Category, error) {
	c := core.Category{
		Type:  strings.ToUpper(typ),
		Brand: strings.ToUpper(brand),
		Model: strings.ToUpper(model),
	}

	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO categories (type, brand, model) VALUES ($1, $2, $3)
		ON CONFLICT (type, brand, model) DO NOTHING
		RETURNING id`,
		c.Type, c.Brand, c.Model,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx,
			`SELECT id FROM categories WHERE type = $1 AND brand = $2 AND model = $3`,
			c.Type, c.Brand, c.Model,
		).Scan(&id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("category %s/%s/%s: %w", c.Type, c.Brand, c.Model, err)
	}

	c.ID = fromPgUUID(id)
	return c, nil
}

func (s *Store) ListStocks(ctx context.Context) ([]core.StockLocation, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM stock_locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}

	stocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.StockLocation, error) {
		var (
			id   pgtype.UUID
			name string
		)
		if err := row.Scan(&id, &name); err != nil {
			return core.StockLocation{}, err
		}
		return core.StockLocation{ID: fromPgUUID(id), Name: name}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan stocks: %w", err)
	}
	return stocks, nil
}

// CreateStock returns the location named name, creating it if needed.
func (s *Store) CreateStock(ctx context.Context, name string) (core.StockLocation, error) {
	var id pgtype.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO stock_locations (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return core.StockLocation{}, fmt.Errorf("create stock %s: %w", name, err)
	}
	return core.StockLocation{ID: fromPgUUID(id), Name: name}, nil
}

// InsertStockAllocation adds quantity to the product's allocation at
// stockID, creating it on first use.
func (s *Store) InsertStockAllocation(ctx context.Context, productID, stockID uuid.UUID, quantity int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stock_allocations (product_id, stock_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, stock_id)
		DO UPDATE SET quantity = stock_allocations.quantity + EXCLUDED.quantity, updated_at = now()`,
		toPgUUID(productID), toPgUUID(stockID), quantity)
	if err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// CountVariants counts variant records and existing children of parentID.
func (s *Store) CountVariants(ctx context.Context, parentID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM product_variants WHERE parent_id = $1)
		     + (SELECT count(*) FROM products WHERE parent_id = $1)`,
		toPgUUID(parentID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count variants: %w", err)
	}
	return n, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan suppliers: %w", err)
	}
	return names, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPgUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}
