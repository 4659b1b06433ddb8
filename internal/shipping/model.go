package shipping

import (
	"time"

	"fulfillment-be/internal/tracking"

	"github.com/shopspring/decimal"
)

type Shipping struct {
	ID                int64            `json:"id"`
	OrderID           int64            `json:"order_id"`
	WarehouseID       int64            `json:"warehouse_id"`
	TrackingNumber    string           `json:"tracking_number"`
	Carrier           tracking.Carrier `json:"carrier"`
	Status            Status           `json:"status"`
	ShippingAddress   string           `json:"shipping_address"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time       `json:"actual_delivery,omitempty"`
	Weight            decimal.Decimal  `json:"weight"`
	Dimensions        string           `json:"dimensions"`
	Cost              decimal.Decimal  `json:"shipping_cost"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Event is an append-only audit entry. EventTime is strictly increasing
// per shipment.
type Event struct {
	ID          int64     `json:"id"`
	ShippingID  int64     `json:"shipping_id"`
	Status      Status    `json:"status"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	EventTime   time.Time `json:"event_time"`
}

const (
	defaultDimensions   = "20 x 15 x 10 cm"
	defaultDeliveryDays = 3
	firstEventNote      = "Order received at warehouse"
)

var defaultWeight = decimal.RequireFromString("0.50")
