// Package fulfillment composes order creation and shipment creation into a
// single purchase. The two are separate atomicity boundaries: a committed
// order survives a failed shipment, which can be retried on its own.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/shipping"
	"fulfillment-be/internal/tracking"

	"go.uber.org/zap"
)

var ErrShipmentDeferred = errors.New("order placed, shipment deferred")

type PurchaseRequest struct {
	UserID   uint
	SKU      string
	Quantity int
	Address  string
	Carrier  tracking.Carrier
}

type Result struct {
	Order    *order.Order       `json:"order"`
	Shipping *shipping.Shipping `json:"shipping,omitempty"`
}

type Orchestrator struct {
	orders    order.Service
	shipments shipping.Service
}

func NewOrchestrator(orders order.Service, shipments shipping.Service) *Orchestrator {
	return &Orchestrator{orders: orders, shipments: shipments}
}

// Purchase creates the order and then its shipment. When only the shipment
// fails, the result still carries the order and the error wraps
// ErrShipmentDeferred together with the cause.
func (o *Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) (*Result, error) {
	ord, err := o.orders.CreateOrder(ctx, req.UserID, req.SKU, req.Quantity)
	if err != nil {
		return nil, err
	}

	sh, err := o.shipments.CreateShipment(ctx, ord, req.Address, req.Carrier)
	if err != nil {
		logger.FromCtx(ctx).Warn("shipment deferred",
			zap.String("layer", "fulfillment"),
			zap.Int64("order_id", ord.ID),
			zap.Error(err),
		)
		return &Result{Order: ord}, fmt.Errorf("%w: %w", ErrShipmentDeferred, err)
	}

	return &Result{Order: ord, Shipping: sh}, nil
}

// RetryShipment ships an order whose earlier attempt was deferred.
func (o *Orchestrator) RetryShipment(ctx context.Context, userID uint, orderID int64, address string, carrier tracking.Carrier) (*shipping.Shipping, error) {
	ord, err := o.orders.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return o.shipments.CreateShipment(ctx, ord, address, carrier)
}
