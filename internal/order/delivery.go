package order

import (
	"context"

	"fulfillment-be/internal/db"
	"fulfillment-be/internal/events"
)

// DeliveryHandler marks the owning order delivered when its shipment is.
type DeliveryHandler struct {
	repo Repository
}

func NewDeliveryHandler(repo Repository) *DeliveryHandler {
	return &DeliveryHandler{repo: repo}
}

func (h *DeliveryHandler) HandleShipmentDelivered(ctx context.Context, tx db.DBTX, evt events.ShipmentDelivered) error {
	return h.repo.UpdateStatusTx(ctx, tx, evt.OrderID,
		[]OrderStatus{StatusPaid, StatusShipped}, StatusDelivered)
}
