package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fulfillment-be/internal/db"
	"fulfillment-be/internal/metrics"

	"github.com/google/uuid"
)

type stockKey struct {
	productID   int64
	warehouseID int64
}

// MemoryLedger serializes every operation behind one mutex. It backs tests
// and single-process tooling. CommitTx ignores the transaction argument.
type MemoryLedger struct {
	mu           sync.Mutex
	ttl          time.Duration
	now          func() time.Time
	records      map[stockKey]*Record
	reservations map[uuid.UUID]*Reservation
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &MemoryLedger{
		ttl:          ttl,
		now:          time.Now,
		records:      make(map[stockKey]*Record),
		reservations: make(map[uuid.UUID]*Reservation),
	}
}

func (l *MemoryLedger) Reserve(ctx context.Context, productID, warehouseID int64, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[stockKey{productID, warehouseID}]
	if !ok || rec.Available() < qty {
		metrics.ReservationsRejected.Inc()
		return nil, ErrInsufficientStock
	}
	rec.Reserved += qty
	rec.UpdatedAt = l.now()

	res := &Reservation{
		ID:          uuid.New(),
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty,
		Status:      ReservationActive,
		ExpiresAt:   l.now().Add(l.ttl),
	}
	stored := *res
	l.reservations[res.ID] = &stored

	metrics.ReservationsReserved.Inc()
	return res, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, res *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.reservations[res.ID]
	if !ok {
		return ErrReservationNotFound
	}
	switch stored.Status {
	case ReservationCommitted:
		res.Status = ReservationCommitted
		return nil
	case ReservationReleased, ReservationExpired:
		return ErrReservationReleased
	}

	rec := l.records[stockKey{stored.ProductID, stored.WarehouseID}]
	if rec == nil || rec.Reserved < stored.Quantity {
		return ErrLedgerInconsistent
	}
	rec.Quantity -= stored.Quantity
	rec.Reserved -= stored.Quantity
	rec.UpdatedAt = l.now()

	stored.Status = ReservationCommitted
	res.Status = ReservationCommitted
	metrics.ReservationsCommitted.Inc()
	return nil
}

func (l *MemoryLedger) CommitTx(ctx context.Context, _ db.DBTX, res *Reservation) error {
	return l.Commit(ctx, res)
}

func (l *MemoryLedger) Release(ctx context.Context, res *Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored, ok := l.reservations[res.ID]
	if !ok {
		return ErrReservationNotFound
	}
	switch stored.Status {
	case ReservationCommitted:
		return ErrReservationCommitted
	case ReservationReleased, ReservationExpired:
		res.Status = stored.Status
		return nil
	}

	l.unreserve(stored)
	stored.Status = ReservationReleased
	res.Status = ReservationReleased
	metrics.ReservationsReleased.Inc()
	return nil
}

func (l *MemoryLedger) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var due []*Reservation
	for _, r := range l.reservations {
		if r.Status == ReservationActive && !r.ExpiresAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	for _, r := range due {
		l.unreserve(r)
		r.Status = ReservationExpired
	}
	metrics.ReservationsExpired.Add(uint64(len(due)))
	return len(due), nil
}

func (l *MemoryLedger) Restock(ctx context.Context, productID, warehouseID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := stockKey{productID, warehouseID}
	rec, ok := l.records[key]
	if !ok {
		rec = &Record{ProductID: productID, WarehouseID: warehouseID}
		l.records[key] = rec
	}
	rec.Quantity += qty
	rec.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) Record(ctx context.Context, productID, warehouseID int64) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[stockKey{productID, warehouseID}]; ok {
		return *rec, nil
	}
	return Record{ProductID: productID, WarehouseID: warehouseID}, nil
}

func (l *MemoryLedger) Available(ctx context.Context, productID, warehouseID int64) (int, error) {
	rec, err := l.Record(ctx, productID, warehouseID)
	return rec.Available(), err
}

func (l *MemoryLedger) PickWarehouse(ctx context.Context, productID int64, qty int) (int64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var best *Record
	for key, rec := range l.records {
		if key.productID != productID || rec.Available() < qty {
			continue
		}
		if best == nil || rec.Available() > best.Available() ||
			(rec.Available() == best.Available() && rec.WarehouseID < best.WarehouseID) {
			best = rec
		}
	}
	if best == nil {
		return 0, ErrInsufficientStock
	}
	return best.WarehouseID, nil
}

// unreserve must be called with mu held.
func (l *MemoryLedger) unreserve(r *Reservation) {
	if rec := l.records[stockKey{r.ProductID, r.WarehouseID}]; rec != nil {
		rec.Reserved -= r.Quantity
		rec.UpdatedAt = l.now()
	}
}
