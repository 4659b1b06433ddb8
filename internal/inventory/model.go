package inventory

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

// Record is the stock held for one product in one warehouse.
// 0 <= Reserved <= Quantity always holds.
type Record struct {
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Quantity    int       `json:"quantity"`
	Reserved    int       `json:"reserved"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r Record) Available() int {
	return r.Quantity - r.Reserved
}

// Reservation is the handle returned by Reserve. It is later committed,
// released, or expired by the reaper.
type Reservation struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   int64             `json:"product_id"`
	WarehouseID int64             `json:"warehouse_id"`
	Quantity    int               `json:"quantity"`
	Status      ReservationStatus `json:"status"`
	ExpiresAt   time.Time         `json:"expires_at"`
}
