package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Finder is the lookup the order flow depends on.
type Finder interface {
	FindActiveProduct(ctx context.Context, sku string) (*Product, error)
}

type Repository interface {
	Finder
	GetByID(ctx context.Context, id int64) (*Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, description, price, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	if err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description,
		&p.Price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindActiveProduct(ctx context.Context, sku string) (*Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1 AND is_active = TRUE
	`, sku)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %q: %w", sku, err)
	}
	return p, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Product, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	return products, rows.Err()
}

// UpdatePrice changes the catalog price. Existing order lines keep the
// price they captured.
func (r *repository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	if price.IsNegative() {
		return ErrInvalidPrice
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET price = $1, updated_at = NOW() WHERE id = $2
	`, price, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}
