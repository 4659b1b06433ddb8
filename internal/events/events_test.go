package events

import (
	"context"
	"testing"

	"fulfillment-be/internal/db"

	"github.com/stretchr/testify/assert"
)

func TestEventIdentity(t *testing.T) {
	cases := []struct {
		evt           Event
		wantType      string
		wantAggregate string
		wantID        string
	}{
		{OrderCreated{OrderID: 42}, TypeOrderCreated, "order", "42"},
		{ShipmentCreated{TrackingNumber: "DHL12345678"}, TypeShipmentCreated, "shipment", "DHL12345678"},
		{ShipmentStatusChanged{TrackingNumber: "1ZABC"}, TypeShipmentStatusChanged, "shipment", "1ZABC"},
		{ShipmentDelivered{TrackingNumber: "H123"}, TypeShipmentDelivered, "shipment", "H123"},
	}

	for _, tc := range cases {
		t.Run(tc.wantType, func(t *testing.T) {
			assert.Equal(t, tc.wantType, tc.evt.EventType())
			assert.Equal(t, tc.wantAggregate, tc.evt.AggregateType())
			assert.Equal(t, tc.wantID, tc.evt.AggregateID())
		})
	}
}

func TestDeliveredHandlerFunc(t *testing.T) {
	var got ShipmentDelivered
	var h DeliveredHandler = DeliveredHandlerFunc(func(ctx context.Context, tx db.DBTX, evt ShipmentDelivered) error {
		got = evt
		return nil
	})

	err := h.HandleShipmentDelivered(context.Background(), nil, ShipmentDelivered{OrderID: 7})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), got.OrderID)
}
