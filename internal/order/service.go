package order

import (
	"context"
	"fmt"
	"time"

	"fulfillment-be/internal/cache"
	"fulfillment-be/internal/catalog"
	"fulfillment-be/internal/db"
	"fulfillment-be/internal/events"
	"fulfillment-be/internal/inventory"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/metrics"
	"fulfillment-be/internal/outbox"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultMaxQuantity = 1000
	DefaultTotalTTL    = time.Hour

	defaultPageSize = 20
	maxPageSize     = 100
)

type Service interface {
	CreateOrder(ctx context.Context, userID uint, sku string, qty int) (*Order, error)
	GetOrder(ctx context.Context, userID uint, orderID int64) (*Order, error)
	GetOrderTotal(ctx context.Context, orderID int64) (string, error)
	ListOrders(ctx context.Context, userID uint, limit, page int) ([]*Order, error)
}

type Options struct {
	MaxQuantity int
	TotalTTL    time.Duration
}

type service struct {
	repo     Repository
	products catalog.Finder
	ledger   inventory.Ledger
	cache    cache.Cache
	maxQty   int
	totalTTL time.Duration
}

func NewService(repo Repository, products catalog.Finder, ledger inventory.Ledger, c cache.Cache, opts Options) Service {
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = DefaultMaxQuantity
	}
	if opts.TotalTTL <= 0 {
		opts.TotalTTL = DefaultTotalTTL
	}
	return &service{
		repo:     repo,
		products: products,
		ledger:   ledger,
		cache:    c,
		maxQty:   opts.MaxQuantity,
		totalTTL: opts.TotalTTL,
	}
}

func (s *service) CreateOrder(ctx context.Context, userID uint, sku string, qty int) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Uint("user_id", userID),
		zap.String("sku", sku),
		zap.Int("quantity", qty),
	)

	if userID == 0 {
		return nil, ErrUnauthorized
	}

	product, err := s.products.FindActiveProduct(ctx, sku)
	if err != nil {
		log.Info("product lookup failed", zap.Error(err))
		return nil, err
	}

	if qty <= 0 || qty > s.maxQty {
		return nil, fmt.Errorf("%w: got %d, limit %d", inventory.ErrInvalidQuantity, qty, s.maxQty)
	}

	warehouseID, err := s.ledger.PickWarehouse(ctx, product.ID, qty)
	if err != nil {
		log.Info("no warehouse can cover order", zap.Error(err))
		return nil, err
	}

	res, err := s.ledger.Reserve(ctx, product.ID, warehouseID, qty)
	if err != nil {
		log.Info("reservation failed", zap.Int64("warehouse_id", warehouseID), zap.Error(err))
		return nil, err
	}

	total := product.Price.Mul(decimal.NewFromInt(int64(qty)))
	o := &Order{
		UserID:      userID,
		WarehouseID: warehouseID,
		Status:      StatusPaid,
		Total:       total,
		Items: []OrderItem{{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			Quantity:  qty,
			Price:     product.Price,
		}},
	}

	hook := db.Chain(
		func(ctx context.Context, tx db.DBTX) error {
			return s.ledger.CommitTx(ctx, tx, res)
		},
		func(ctx context.Context, tx db.DBTX) error {
			return outbox.Enqueue(ctx, tx, events.OrderCreated{
				OrderID:     o.ID,
				UserID:      o.UserID,
				ProductID:   product.ID,
				WarehouseID: warehouseID,
				Quantity:    qty,
				Total:       o.Total,
				OccurredAt:  time.Now().UTC(),
			})
		},
	)

	if err := s.repo.CreateOrder(ctx, o, hook); err != nil {
		log.Error("persist order failed, releasing reservation",
			zap.String("reservation_id", res.ID.String()),
			zap.Error(err),
		)
		if relErr := s.ledger.Release(ctx, res); relErr != nil {
			log.Error("release after failed order", zap.Error(relErr))
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	metrics.OrdersCreated.Inc()
	s.publishTotal(ctx, o)

	log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("warehouse_id", warehouseID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return o, nil
}

// publishTotal is best effort: the order row stays authoritative.
func (s *service) publishTotal(ctx context.Context, o *Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.OrderTotalKey(o.ID), o.Total.StringFixed(2), s.totalTTL); err != nil {
		logger.FromCtx(ctx).Warn("cache order total failed",
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func (s *service) GetOrder(ctx context.Context, userID uint, orderID int64) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *service) GetOrderTotal(ctx context.Context, orderID int64) (string, error) {
	if s.cache != nil {
		v, ok, err := s.cache.Get(ctx, cache.OrderTotalKey(orderID))
		if err != nil {
			logger.FromCtx(ctx).Warn("cache read failed", zap.Int64("order_id", orderID), zap.Error(err))
		} else if ok {
			return v, nil
		}
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	s.publishTotal(ctx, o)
	return o.Total.StringFixed(2), nil
}

func (s *service) ListOrders(ctx context.Context, userID uint, limit, page int) ([]*Order, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
}
