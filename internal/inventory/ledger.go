package inventory

import (
	"context"
	"time"

	"fulfillment-be/internal/db"
)

// Ledger is the only writer of inventory quantity and reserved counts.
//
// Reserve is linearizable per (product, warehouse): concurrent callers can
// never jointly reserve more than the available stock. Commit is idempotent.
// Release of an already released or expired handle is a no-op.
type Ledger interface {
	Reserve(ctx context.Context, productID, warehouseID int64, qty int) (*Reservation, error)
	Commit(ctx context.Context, res *Reservation) error
	// CommitTx commits inside a transaction owned by the caller.
	CommitTx(ctx context.Context, tx db.DBTX, res *Reservation) error
	Release(ctx context.Context, res *Reservation) error
	// ReleaseExpired releases at most limit active reservations whose
	// deadline is at or before now and reports how many it released.
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error)

	Restock(ctx context.Context, productID, warehouseID int64, qty int) error
	Record(ctx context.Context, productID, warehouseID int64) (Record, error)
	Available(ctx context.Context, productID, warehouseID int64) (int, error)
	// PickWarehouse suggests the active warehouse with the most available
	// stock that can cover qty. The answer is advisory; only Reserve decides.
	PickWarehouse(ctx context.Context, productID int64, qty int) (int64, error)
}

const DefaultReservationTTL = 15 * time.Minute

var (
	_ Ledger = (*PostgresLedger)(nil)
	_ Ledger = (*MemoryLedger)(nil)
)
