package events

import (
	"context"
	"strconv"
	"time"

	"fulfillment-be/internal/db"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderCreated          = "order.created"
	TypeShipmentCreated       = "shipment.created"
	TypeShipmentStatusChanged = "shipment.status_changed"
	TypeShipmentDelivered     = "shipment.delivered"
)

// Event is a domain fact recorded in the outbox and published to the broker.
type Event interface {
	EventType() string
	AggregateType() string
	AggregateID() string
}

type OrderCreated struct {
	OrderID     int64           `json:"order_id"`
	UserID      uint            `json:"user_id"`
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (OrderCreated) EventType() string     { return TypeOrderCreated }
func (OrderCreated) AggregateType() string { return "order" }
func (e OrderCreated) AggregateID() string { return strconv.FormatInt(e.OrderID, 10) }

type ShipmentCreated struct {
	ShippingID     int64     `json:"shipping_id"`
	OrderID        int64     `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (ShipmentCreated) EventType() string     { return TypeShipmentCreated }
func (ShipmentCreated) AggregateType() string { return "shipment" }
func (e ShipmentCreated) AggregateID() string { return e.TrackingNumber }

type ShipmentStatusChanged struct {
	ShippingID     int64     `json:"shipping_id"`
	OrderID        int64     `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Location       string    `json:"location,omitempty"`
	Description    string    `json:"description"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (ShipmentStatusChanged) EventType() string     { return TypeShipmentStatusChanged }
func (ShipmentStatusChanged) AggregateType() string { return "shipment" }
func (e ShipmentStatusChanged) AggregateID() string { return e.TrackingNumber }

type ShipmentDelivered struct {
	ShippingID     int64     `json:"shipping_id"`
	OrderID        int64     `json:"order_id"`
	TrackingNumber string    `json:"tracking_number"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

func (ShipmentDelivered) EventType() string     { return TypeShipmentDelivered }
func (ShipmentDelivered) AggregateType() string { return "shipment" }
func (e ShipmentDelivered) AggregateID() string { return e.TrackingNumber }

// DeliveredHandler reacts to a delivery inside the transaction that
// records it. Returning an error aborts the transition.
type DeliveredHandler interface {
	HandleShipmentDelivered(ctx context.Context, tx db.DBTX, evt ShipmentDelivered) error
}

type DeliveredHandlerFunc func(ctx context.Context, tx db.DBTX, evt ShipmentDelivered) error

func (f DeliveredHandlerFunc) HandleShipmentDelivered(ctx context.Context, tx db.DBTX, evt ShipmentDelivered) error {
	return f(ctx, tx, evt)
}
