package shipping

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"fulfillment-be/internal/db"
	"fulfillment-be/internal/events"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/outbox"
	"fulfillment-be/internal/tracking"
	"fulfillment-be/internal/warehouse"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxTrackingAttempts = 5
	maxAdvanceAttempts  = 3
)

// progressNotes are the canned descriptions used by SimulateProgress.
var progressNotes = map[Status]string{
	StatusPicked:    "Package picked from shelf",
	StatusPacked:    "Package packed and ready for shipment",
	StatusShipped:   "Package shipped from warehouse",
	StatusInTransit: "Package in transit to destination",
	StatusDelivered: "Package delivered successfully",
}

type TrackingGenerator interface {
	Generate(c tracking.Carrier) string
}

type Service interface {
	CreateShipment(ctx context.Context, o *order.Order, address string, carrier tracking.Carrier) (*Shipping, error)
	Advance(ctx context.Context, trackingNumber string, to Status, location, description string) (*Shipping, error)
	SimulateProgress(ctx context.Context, trackingNumber string) (*Shipping, error)
	History(ctx context.Context, trackingNumber string) ([]Event, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipping, error)
	GetByOrderID(ctx context.Context, orderID int64) (*Shipping, error)
}

type service struct {
	repo       Repository
	warehouses warehouse.Repository
	gen        TrackingGenerator
	delivered  []events.DeliveredHandler
	enqueue    func(ctx context.Context, tx db.DBTX, evt events.Event) error
	now        func() time.Time
}

// NewService wires the state machine. Delivered handlers run inside the
// transaction that records the delivery.
func NewService(repo Repository, warehouses warehouse.Repository, gen TrackingGenerator, delivered ...events.DeliveredHandler) Service {
	if gen == nil {
		gen = tracking.NewGenerator(nil)
	}
	return &service{
		repo:       repo,
		warehouses: warehouses,
		gen:        gen,
		delivered:  delivered,
		enqueue:    outbox.Enqueue,
		now:        time.Now,
	}
}

func (s *service) CreateShipment(ctx context.Context, o *order.Order, address string, carrier tracking.Carrier) (*Shipping, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateShipment"),
		zap.Int64("order_id", o.ID),
		zap.String("carrier", string(carrier)),
	)

	if o.Status != order.StatusPaid {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderNotShippable, o.ID, o.Status)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	if carrier == "" {
		carrier = tracking.CarrierDHL
	}

	if _, err := s.repo.GetByOrderID(ctx, o.ID); err == nil {
		return nil, ErrShipmentAlreadyExists
	} else if !errors.Is(err, ErrShipmentNotFound) {
		return nil, err
	}

	wh, err := s.pickWarehouse(ctx, o)
	if err != nil {
		return nil, err
	}

	estimated := s.now().AddDate(0, 0, defaultDeliveryDays)
	for attempt := 1; attempt <= maxTrackingAttempts; attempt++ {
		sh := &Shipping{
			OrderID:           o.ID,
			WarehouseID:       wh.ID,
			TrackingNumber:    s.gen.Generate(carrier),
			Carrier:           carrier,
			Status:            StatusPending,
			ShippingAddress:   address,
			EstimatedDelivery: &estimated,
			Weight:            defaultWeight,
			Dimensions:        defaultDimensions,
			Cost:              decimal.Zero,
		}
		first := &Event{
			Status:      StatusPending,
			Location:    wh.Address,
			Description: firstEventNote,
		}
		hook := func(ctx context.Context, tx db.DBTX) error {
			return s.enqueue(ctx, tx, events.ShipmentCreated{
				ShippingID:     sh.ID,
				OrderID:        sh.OrderID,
				TrackingNumber: sh.TrackingNumber,
				Carrier:        string(sh.Carrier),
				OccurredAt:     s.now().UTC(),
			})
		}

		err := s.repo.Create(ctx, sh, first, hook)
		switch {
		case err == nil:
			metrics.ShipmentsCreated.Inc()
			log.Info("shipment created",
				zap.String("tracking_number", sh.TrackingNumber),
				zap.Int64("warehouse_id", wh.ID),
			)
			return sh, nil
		case errors.Is(err, errTrackingTaken):
			metrics.TrackingCollisions.Inc()
			log.Warn("tracking number collision", zap.Int("attempt", attempt))
			continue
		case errors.Is(err, ErrShipmentAlreadyExists):
			return nil, err
		default:
			log.Error("create shipment failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
		}
	}
	return nil, ErrTrackingExhausted
}

// pickWarehouse prefers the warehouse that holds the order's stock and
// falls back to the default one.
func (s *service) pickWarehouse(ctx context.Context, o *order.Order) (*warehouse.Warehouse, error) {
	if o.WarehouseID != 0 {
		wh, err := s.warehouses.GetByID(ctx, o.WarehouseID)
		if err == nil && wh.IsActive {
			return wh, nil
		}
		if err != nil && !errors.Is(err, warehouse.ErrWarehouseNotFound) {
			return nil, err
		}
	}
	return s.warehouses.GetOrCreateDefault(ctx)
}

func (s *service) Advance(ctx context.Context, trackingNumber string, to Status, location, description string) (*Shipping, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Advance"),
		zap.String("tracking_number", trackingNumber),
		zap.String("to", string(to)),
	)

	if strings.TrimSpace(description) == "" {
		description = "Status updated to " + to.Display()
	}

	for attempt := 0; attempt < maxAdvanceAttempts; attempt++ {
		sh, err := s.repo.GetByTrackingNumber(ctx, trackingNumber)
		if err != nil {
			return nil, err
		}

		noop, err := CheckTransition(sh.Status, to)
		if err != nil {
			log.Info("transition rejected", zap.String("from", string(sh.Status)), zap.Error(err))
			return nil, err
		}
		if noop {
			return sh, nil
		}

		from := sh.Status
		now := s.now()
		ev := &Event{Status: to, Location: location, Description: description}

		var deliveredAt *time.Time
		hooks := []db.TxFunc{func(ctx context.Context, tx db.DBTX) error {
			return s.enqueue(ctx, tx, events.ShipmentStatusChanged{
				ShippingID:     sh.ID,
				OrderID:        sh.OrderID,
				TrackingNumber: sh.TrackingNumber,
				From:           string(from),
				To:             string(to),
				Location:       location,
				Description:    description,
				OccurredAt:     now.UTC(),
			})
		}}
		if to == StatusDelivered {
			deliveredAt = &now
			hooks = append(hooks, s.deliveredHooks(events.ShipmentDelivered{
				ShippingID:     sh.ID,
				OrderID:        sh.OrderID,
				TrackingNumber: sh.TrackingNumber,
				DeliveredAt:    now.UTC(),
			})...)
		}

		err = s.repo.ApplyTransition(ctx, sh, ev, deliveredAt, db.Chain(hooks...))
		if errors.Is(err, errStaleStatus) {
			log.Info("lost transition race, reloading", zap.Int("attempt", attempt+1))
			continue
		}
		var he *handlerError
		if errors.As(err, &he) {
			log.Warn("delivered handler rejected transition", zap.Error(he.err))
			return nil, he.err
		}
		if err != nil {
			log.Error("apply transition failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
		}

		metrics.ShipmentsAdvanced.Inc()
		log.Info("shipment advanced", zap.String("from", string(from)))
		return sh, nil
	}
	return nil, ErrConcurrentUpdate
}

func (s *service) deliveredHooks(evt events.ShipmentDelivered) []db.TxFunc {
	hooks := make([]db.TxFunc, 0, len(s.delivered)+1)
	for _, h := range s.delivered {
		h := h
		hooks = append(hooks, func(ctx context.Context, tx db.DBTX) error {
			if err := h.HandleShipmentDelivered(ctx, tx, evt); err != nil {
				return &handlerError{err: err}
			}
			return nil
		})
	}
	hooks = append(hooks, func(ctx context.Context, tx db.DBTX) error {
		return s.enqueue(ctx, tx, evt)
	})
	return hooks
}

// handlerError carries a delivered handler's own error out of the
// transaction so it is reported as is, not as a storage failure.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }

func (e *handlerError) Unwrap() error { return e.err }

// SimulateProgress moves the shipment one step along the forward path
// using the canned carrier descriptions.
func (s *service) SimulateProgress(ctx context.Context, trackingNumber string) (*Shipping, error) {
	sh, err := s.repo.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if sh.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is final", ErrTerminalState, sh.Status)
	}
	next, _ := sh.Status.Next()
	location := fmt.Sprintf("Transit Hub %d", 1+rand.IntN(5))
	return s.Advance(ctx, trackingNumber, next, location, progressNotes[next])
}

func (s *service) History(ctx context.Context, trackingNumber string) ([]Event, error) {
	sh, err := s.repo.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, sh.ID)
}

func (s *service) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipping, error) {
	return s.repo.GetByTrackingNumber(ctx, trackingNumber)
}

func (s *service) GetByOrderID(ctx context.Context, orderID int64) (*Shipping, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}
