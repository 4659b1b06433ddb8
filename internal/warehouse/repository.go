package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Warehouse, error)
	FindActive(ctx context.Context) (*Warehouse, error)
	GetOrCreateDefault(ctx context.Context) (*Warehouse, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const warehouseColumns = `id, name, code, address, capacity, is_active, created_at`

func scanWarehouse(row *sql.Row) (*Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.Name, &w.Code, &w.Address, &w.Capacity, &w.IsActive, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWarehouseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Warehouse, error) {
	return scanWarehouse(r.db.QueryRowContext(ctx, `
		SELECT `+warehouseColumns+` FROM warehouses WHERE id = $1
	`, id))
}

// FindActive returns the oldest active warehouse.
func (r *repository) FindActive(ctx context.Context) (*Warehouse, error) {
	return scanWarehouse(r.db.QueryRowContext(ctx, `
		SELECT `+warehouseColumns+`
		FROM warehouses
		WHERE is_active = TRUE
		ORDER BY id
		LIMIT 1
	`))
}

// GetOrCreateDefault returns an active warehouse, upserting MAIN when none
// exists. An inactive MAIN is reactivated, never duplicated.
func (r *repository) GetOrCreateDefault(ctx context.Context) (*Warehouse, error) {
	w, err := r.FindActive(ctx)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrWarehouseNotFound) {
		return nil, fmt.Errorf("find active warehouse: %w", err)
	}

	w, err = scanWarehouse(r.db.QueryRowContext(ctx, `
		INSERT INTO warehouses (name, code, address, capacity, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (code) DO UPDATE SET is_active = TRUE
		RETURNING `+warehouseColumns,
		Default.Name, Default.Code, Default.Address, Default.Capacity,
	))
	if err != nil {
		return nil, fmt.Errorf("create default warehouse: %w", err)
	}
	return w, nil
}
