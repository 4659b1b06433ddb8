package shipping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fulfillment-be/internal/db"

	"github.com/lib/pq"
)

const (
	uniqueViolation          = "23505"
	trackingNumberConstraint = "shippings_tracking_number_key"
	orderIDConstraint        = "shippings_order_id_key"
)

type Repository interface {
	// Create inserts the shipment with its first event and runs hook in the
	// same transaction.
	Create(ctx context.Context, s *Shipping, first *Event, hook db.TxFunc) error
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipping, error)
	GetByOrderID(ctx context.Context, orderID int64) (*Shipping, error)
	// Events returns the audit trail in creation order.
	Events(ctx context.Context, shippingID int64) ([]Event, error)
	// ApplyTransition moves s from its current status to ev.Status and
	// appends ev. It fails with errStaleStatus when s.Status is outdated.
	ApplyTransition(ctx context.Context, s *Shipping, ev *Event, deliveredAt *time.Time, hook db.TxFunc) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const shippingColumns = `id, order_id, warehouse_id, tracking_number, carrier, status,
	shipping_address, estimated_delivery, actual_delivery, weight, dimensions,
	shipping_cost, created_at, updated_at`

func scanShipping(row interface{ Scan(...any) error }) (*Shipping, error) {
	var (
		s         Shipping
		estimated sql.NullTime
		actual    sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.OrderID, &s.WarehouseID, &s.TrackingNumber, &s.Carrier, &s.Status,
		&s.ShippingAddress, &estimated, &actual, &s.Weight, &s.Dimensions,
		&s.Cost, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if estimated.Valid {
		s.EstimatedDelivery = &estimated.Time
	}
	if actual.Valid {
		s.ActualDelivery = &actual.Time
	}
	return &s, nil
}

// appendEventSQL stamps each event strictly after the previous one for the
// same shipment, even when the wall clock stalls or steps back.
const appendEventSQL = `
	INSERT INTO shipping_events (shipping_id, status, location, description, event_time)
	SELECT $1, $2, $3, $4,
		GREATEST(clock_timestamp(), COALESCE(MAX(event_time), '-infinity'::timestamptz) + INTERVAL '1 microsecond')
	FROM shipping_events
	WHERE shipping_id = $1
	RETURNING id, event_time
`

func appendEvent(ctx context.Context, tx db.DBTX, ev *Event) error {
	err := tx.QueryRowContext(ctx, appendEventSQL,
		ev.ShippingID, ev.Status, ev.Location, ev.Description,
	).Scan(&ev.ID, &ev.EventTime)
	if err != nil {
		return fmt.Errorf("append shipping event: %w", err)
	}
	return nil
}

func (r *repository) Create(ctx context.Context, s *Shipping, first *Event, hook db.TxFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO shippings (
			order_id, warehouse_id, tracking_number, carrier, status,
			shipping_address, estimated_delivery, weight, dimensions, shipping_cost
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at, updated_at
	`,
		s.OrderID, s.WarehouseID, s.TrackingNumber, s.Carrier, s.Status,
		s.ShippingAddress, s.EstimatedDelivery, s.Weight, s.Dimensions, s.Cost,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return classifyInsertError(err)
	}

	first.ShippingID = s.ID
	if err := appendEvent(ctx, tx, first); err != nil {
		return err
	}

	if hook != nil {
		if err := hook(ctx, tx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func classifyInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case trackingNumberConstraint:
			return errTrackingTaken
		case orderIDConstraint:
			return ErrShipmentAlreadyExists
		}
	}
	return fmt.Errorf("insert shipping: %w", err)
}

func (r *repository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipping, error) {
	s, err := scanShipping(r.db.QueryRowContext(ctx, `
		SELECT `+shippingColumns+` FROM shippings WHERE tracking_number = $1
	`, trackingNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShipmentNotFound
	}
	return s, err
}

func (r *repository) GetByOrderID(ctx context.Context, orderID int64) (*Shipping, error) {
	s, err := scanShipping(r.db.QueryRowContext(ctx, `
		SELECT `+shippingColumns+` FROM shippings WHERE order_id = $1
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShipmentNotFound
	}
	return s, err
}

func (r *repository) Events(ctx context.Context, shippingID int64) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shipping_id, status, location, description, event_time
		FROM shipping_events
		WHERE shipping_id = $1
		ORDER BY id
	`, shippingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ShippingID, &ev.Status, &ev.Location, &ev.Description, &ev.EventTime); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *repository) ApplyTransition(ctx context.Context, s *Shipping, ev *Event, deliveredAt *time.Time, hook db.TxFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var actual sql.NullTime
	var updatedAt time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE shippings
		SET status = $1,
			actual_delivery = COALESCE($2, actual_delivery),
			updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING actual_delivery, updated_at
	`, ev.Status, deliveredAt, s.ID, s.Status).Scan(&actual, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return errStaleStatus
	}
	if err != nil {
		return fmt.Errorf("update shipping status: %w", err)
	}

	ev.ShippingID = s.ID
	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}

	if hook != nil {
		if err := hook(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.Status = ev.Status
	s.UpdatedAt = updatedAt
	if actual.Valid {
		s.ActualDelivery = &actual.Time
	}
	return nil
}
