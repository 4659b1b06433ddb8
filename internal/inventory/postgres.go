package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"fulfillment-be/internal/db"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostgresLedger struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewPostgresLedger(conn *sql.DB, ttl time.Duration) *PostgresLedger {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &PostgresLedger{db: conn, ttl: ttl, now: time.Now}
}

func (l *PostgresLedger) Reserve(ctx context.Context, productID, warehouseID int64, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "ledger"),
		zap.String("method", "Reserve"),
		zap.Int64("product_id", productID),
		zap.Int64("warehouse_id", warehouseID),
		zap.Int("quantity", qty),
	)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The row lock taken by this UPDATE serializes concurrent reservations;
	// the guard is re-evaluated against the committed row after the wait.
	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET reserved = reserved + $1, updated_at = NOW()
		WHERE product_id = $2 AND warehouse_id = $3
		  AND quantity - reserved >= $1
	`, qty, productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		metrics.ReservationsRejected.Inc()
		log.Info("reservation rejected")
		return nil, ErrInsufficientStock
	}

	res := &Reservation{
		ID:          uuid.New(),
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty,
		Status:      ReservationActive,
		ExpiresAt:   l.now().Add(l.ttl),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_reservations (
			id, product_id, warehouse_id, quantity, status, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`, res.ID, res.ProductID, res.WarehouseID, res.Quantity, res.Status, res.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.ReservationsReserved.Inc()
	log.Debug("stock reserved", zap.String("reservation_id", res.ID.String()))
	return res, nil
}

func (l *PostgresLedger) Commit(ctx context.Context, res *Reservation) error {
	return db.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		return l.CommitTx(ctx, tx, res)
	})
}

func (l *PostgresLedger) CommitTx(ctx context.Context, tx db.DBTX, res *Reservation) error {
	claimed, err := settle(ctx, tx, res.ID, ReservationCommitted)
	if err != nil {
		return err
	}
	if claimed == nil {
		status, err := currentStatus(ctx, tx, res.ID)
		if err != nil {
			return err
		}
		switch status {
		case ReservationCommitted:
			res.Status = ReservationCommitted
			return nil
		default:
			return ErrReservationReleased
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - $1, reserved = reserved - $1, updated_at = NOW()
		WHERE product_id = $2 AND warehouse_id = $3 AND reserved >= $1
	`, claimed.Quantity, claimed.ProductID, claimed.WarehouseID)
	if err := requireOneRow(result, err); err != nil {
		return fmt.Errorf("commit reservation %s: %w", res.ID, err)
	}

	res.Status = ReservationCommitted
	metrics.ReservationsCommitted.Inc()
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, res *Reservation) error {
	final := ReservationReleased
	err := db.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		claimed, err := settle(ctx, tx, res.ID, ReservationReleased)
		if err != nil {
			return err
		}
		if claimed == nil {
			status, err := currentStatus(ctx, tx, res.ID)
			if err != nil {
				return err
			}
			if status == ReservationCommitted {
				return ErrReservationCommitted
			}
			final = status
			return nil
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET reserved = reserved - $1, updated_at = NOW()
			WHERE product_id = $2 AND warehouse_id = $3 AND reserved >= $1
		`, claimed.Quantity, claimed.ProductID, claimed.WarehouseID)
		if err := requireOneRow(result, err); err != nil {
			return fmt.Errorf("release reservation %s: %w", res.ID, err)
		}
		metrics.ReservationsReleased.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	res.Status = final
	return nil
}

func (l *PostgresLedger) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	var expired []Reservation
	err := db.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE inventory_reservations
			SET status = 'expired', updated_at = NOW()
			WHERE id IN (
				SELECT id FROM inventory_reservations
				WHERE status = 'active' AND expires_at <= $1
				ORDER BY expires_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, product_id, warehouse_id, quantity
		`, now, limit)
		if err != nil {
			return fmt.Errorf("expire reservations: %w", err)
		}

		for rows.Next() {
			var r Reservation
			if err := rows.Scan(&r.ID, &r.ProductID, &r.WarehouseID, &r.Quantity); err != nil {
				rows.Close()
				return err
			}
			r.Status = ReservationExpired
			expired = append(expired, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		// Stable lock order against concurrent reservers.
		sort.Slice(expired, func(i, j int) bool {
			if expired[i].ProductID != expired[j].ProductID {
				return expired[i].ProductID < expired[j].ProductID
			}
			return expired[i].WarehouseID < expired[j].WarehouseID
		})

		for _, r := range expired {
			result, err := tx.ExecContext(ctx, `
				UPDATE inventory
				SET reserved = reserved - $1, updated_at = NOW()
				WHERE product_id = $2 AND warehouse_id = $3 AND reserved >= $1
			`, r.Quantity, r.ProductID, r.WarehouseID)
			if err := requireOneRow(result, err); err != nil {
				return fmt.Errorf("expire reservation %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.ReservationsExpired.Add(uint64(len(expired)))
	return len(expired), nil
}

func (l *PostgresLedger) Restock(ctx context.Context, productID, warehouseID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, warehouse_id, quantity, reserved)
		VALUES ($1,$2,$3,0)
		ON CONFLICT (product_id, warehouse_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = NOW()
	`, productID, warehouseID, qty)
	if err != nil {
		return fmt.Errorf("restock: %w", err)
	}
	return nil
}

// Record returns a zero record when the pair has never been stocked.
func (l *PostgresLedger) Record(ctx context.Context, productID, warehouseID int64) (Record, error) {
	rec := Record{ProductID: productID, WarehouseID: warehouseID}
	err := l.db.QueryRowContext(ctx, `
		SELECT quantity, reserved, updated_at
		FROM inventory
		WHERE product_id = $1 AND warehouse_id = $2
	`, productID, warehouseID).Scan(&rec.Quantity, &rec.Reserved, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (l *PostgresLedger) Available(ctx context.Context, productID, warehouseID int64) (int, error) {
	rec, err := l.Record(ctx, productID, warehouseID)
	if err != nil {
		return 0, err
	}
	return rec.Available(), nil
}

func (l *PostgresLedger) PickWarehouse(ctx context.Context, productID int64, qty int) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	var warehouseID int64
	err := l.db.QueryRowContext(ctx, `
		SELECT i.warehouse_id
		FROM inventory i
		JOIN warehouses w ON w.id = i.warehouse_id
		WHERE i.product_id = $1
		  AND w.is_active = TRUE
		  AND i.quantity - i.reserved >= $2
		ORDER BY i.quantity - i.reserved DESC, i.warehouse_id
		LIMIT 1
	`, productID, qty).Scan(&warehouseID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}
	return warehouseID, nil
}

// settle moves an active reservation to the given status. It returns nil
// without error when the reservation is no longer active.
func settle(ctx context.Context, tx db.DBTX, id uuid.UUID, to ReservationStatus) (*Reservation, error) {
	r := Reservation{ID: id, Status: to}
	err := tx.QueryRowContext(ctx, `
		UPDATE inventory_reservations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING product_id, warehouse_id, quantity
	`, id, to).Scan(&r.ProductID, &r.WarehouseID, &r.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settle reservation %s: %w", id, err)
	}
	return &r, nil
}

func currentStatus(ctx context.Context, tx db.DBTX, id uuid.UUID) (ReservationStatus, error) {
	var status ReservationStatus
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM inventory_reservations WHERE id = $1
	`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrReservationNotFound
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

func requireOneRow(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrLedgerInconsistent
	}
	return nil
}
