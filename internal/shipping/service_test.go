package shipping

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"fulfillment-be/internal/db"
	"fulfillment-be/internal/events"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/tracking"
	"fulfillment-be/internal/warehouse"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

// fakeRepo mirrors the transactional behavior of the SQL repository: hooks
// run before anything becomes visible and a hook error leaves no trace.
type fakeRepo struct {
	mu          sync.Mutex
	tx          db.DBTX
	nextID      int64
	shipments   map[string]Shipping
	events      map[int64][]Event
	taken       map[string]bool
	clock       time.Time
	beforeApply func(r *fakeRepo)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		shipments: make(map[string]Shipping),
		events:    make(map[int64][]Event),
		taken:     make(map[string]bool),
		clock:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepo) stamp(ev *Event) {
	r.clock = r.clock.Add(time.Second)
	ev.ID = int64(len(r.events[ev.ShippingID]) + 1)
	ev.EventTime = r.clock
}

func (r *fakeRepo) Create(ctx context.Context, s *Shipping, first *Event, hook db.TxFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken[s.TrackingNumber] {
		return errTrackingTaken
	}
	for _, existing := range r.shipments {
		if existing.OrderID == s.OrderID {
			return ErrShipmentAlreadyExists
		}
	}

	r.nextID++
	s.ID = r.nextID
	first.ShippingID = s.ID
	if hook != nil {
		if err := hook(ctx, r.tx); err != nil {
			r.nextID--
			return err
		}
	}
	r.stamp(first)
	r.shipments[s.TrackingNumber] = *s
	r.events[s.ID] = append(r.events[s.ID], *first)
	r.taken[s.TrackingNumber] = true
	return nil
}

func (r *fakeRepo) GetByTrackingNumber(ctx context.Context, tn string) (*Shipping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shipments[tn]
	if !ok {
		return nil, ErrShipmentNotFound
	}
	return &s, nil
}

func (r *fakeRepo) GetByOrderID(ctx context.Context, orderID int64) (*Shipping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shipments {
		if s.OrderID == orderID {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrShipmentNotFound
}

func (r *fakeRepo) Events(ctx context.Context, shippingID int64) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[shippingID]...), nil
}

func (r *fakeRepo) ApplyTransition(ctx context.Context, s *Shipping, ev *Event, deliveredAt *time.Time, hook db.TxFunc) error {
	if r.beforeApply != nil {
		f := r.beforeApply
		r.beforeApply = nil
		f(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.shipments[s.TrackingNumber]
	if stored.Status != s.Status {
		return errStaleStatus
	}
	if hook != nil {
		if err := hook(ctx, r.tx); err != nil {
			return err
		}
	}

	ev.ShippingID = s.ID
	r.stamp(ev)
	stored.Status = ev.Status
	if deliveredAt != nil {
		stored.ActualDelivery = deliveredAt
	}
	r.shipments[s.TrackingNumber] = stored
	r.events[s.ID] = append(r.events[s.ID], *ev)
	*s = stored
	return nil
}

// forceStatus simulates a concurrent writer.
func (r *fakeRepo) forceStatus(tn string, st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.shipments[tn]
	s.Status = st
	r.shipments[tn] = s
	r.stamp(&Event{ShippingID: s.ID})
	r.events[s.ID] = append(r.events[s.ID], Event{ShippingID: s.ID, Status: st, EventTime: r.clock})
}

type MockWarehouses struct {
	mock.Mock
}

func (m *MockWarehouses) GetByID(ctx context.Context, id int64) (*warehouse.Warehouse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*warehouse.Warehouse), args.Error(1)
}

func (m *MockWarehouses) FindActive(ctx context.Context) (*warehouse.Warehouse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*warehouse.Warehouse), args.Error(1)
}

func (m *MockWarehouses) GetOrCreateDefault(ctx context.Context) (*warehouse.Warehouse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*warehouse.Warehouse), args.Error(1)
}

type seqGenerator struct {
	numbers []string
	calls   int
}

func (g *seqGenerator) Generate(c tracking.Carrier) string {
	n := g.numbers[g.calls%len(g.numbers)]
	g.calls++
	return n
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) enqueue(ctx context.Context, tx db.DBTX, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

// --- Fixture ---

var stuttgart = &warehouse.Warehouse{ID: 1, Name: "Main Warehouse", Code: "MAIN", Address: "Hauptlager Str. 1, 70173 Stuttgart", IsActive: true}

type fixture struct {
	repo *fakeRepo
	wh   *MockWarehouses
	gen  *seqGenerator
	rec  *recorder
	svc  *service
}

func newFixture(t *testing.T, handlers ...events.DeliveredHandler) *fixture {
	t.Helper()
	f := &fixture{
		repo: newFakeRepo(),
		wh:   new(MockWarehouses),
		gen:  &seqGenerator{numbers: []string{"DHL10000001", "DHL10000002", "DHL10000003"}},
		rec:  &recorder{},
	}
	f.wh.On("GetByID", mock.Anything, int64(1)).Return(stuttgart, nil).Maybe()
	f.svc = NewService(f.repo, f.wh, f.gen, handlers...).(*service)
	f.svc.enqueue = f.rec.enqueue
	f.svc.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	return f
}

func paidOrder(id int64) *order.Order {
	return &order.Order{ID: id, UserID: 9, WarehouseID: 1, Status: order.StatusPaid}
}

func (f *fixture) ship(t *testing.T, orderID int64) *Shipping {
	t.Helper()
	sh, err := f.svc.CreateShipment(context.Background(), paidOrder(orderID), "Königstr. 5, Stuttgart", tracking.CarrierDHL)
	require.NoError(t, err)
	return sh
}

// --- CreateShipment ---

func TestCreateShipment_Defaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sh := f.ship(t, 10)

	assert.Equal(t, "DHL10000001", sh.TrackingNumber)
	assert.Equal(t, StatusPending, sh.Status)
	assert.Equal(t, int64(1), sh.WarehouseID)
	assert.Equal(t, "0.50", sh.Weight.StringFixed(2))
	assert.Equal(t, "20 x 15 x 10 cm", sh.Dimensions)
	assert.True(t, sh.Cost.IsZero())
	require.NotNil(t, sh.EstimatedDelivery)
	assert.Equal(t, time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC), *sh.EstimatedDelivery)
	assert.Nil(t, sh.ActualDelivery)

	history, err := f.svc.History(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusPending, history[0].Status)
	assert.Equal(t, "Order received at warehouse", history[0].Description)
	assert.Equal(t, stuttgart.Address, history[0].Location)

	assert.Equal(t, []string{events.TypeShipmentCreated}, f.rec.types())
}

func TestCreateShipment_DefaultWarehouseFallback(t *testing.T) {
	f := newFixture(t)
	f.wh.On("GetOrCreateDefault", mock.Anything).Return(stuttgart, nil).Once()

	o := paidOrder(11)
	o.WarehouseID = 0
	sh, err := f.svc.CreateShipment(context.Background(), o, "Somewhere 1", "")
	require.NoError(t, err)
	assert.Equal(t, tracking.CarrierDHL, sh.Carrier)
	f.wh.AssertExpectations(t)
}

func TestCreateShipment_InactiveWarehouseFallsBack(t *testing.T) {
	f := newFixture(t)
	f.wh.ExpectedCalls = nil
	f.wh.On("GetByID", mock.Anything, int64(4)).
		Return(&warehouse.Warehouse{ID: 4, IsActive: false}, nil).Once()
	f.wh.On("GetOrCreateDefault", mock.Anything).Return(stuttgart, nil).Once()

	o := paidOrder(12)
	o.WarehouseID = 4
	sh, err := f.svc.CreateShipment(context.Background(), o, "Somewhere 1", tracking.CarrierUPS)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sh.WarehouseID)
	f.wh.AssertExpectations(t)
}

func TestCreateShipment_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("NotPaid", func(t *testing.T) {
		f := newFixture(t)
		o := paidOrder(1)
		o.Status = order.StatusDelivered
		_, err := f.svc.CreateShipment(ctx, o, "addr", tracking.CarrierDHL)
		assert.ErrorIs(t, err, ErrOrderNotShippable)
	})

	t.Run("BlankAddress", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateShipment(ctx, paidOrder(1), "   ", tracking.CarrierDHL)
		assert.ErrorIs(t, err, ErrAddressRequired)
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		f := newFixture(t)
		f.ship(t, 1)
		_, err := f.svc.CreateShipment(ctx, paidOrder(1), "addr", tracking.CarrierDHL)
		assert.ErrorIs(t, err, ErrShipmentAlreadyExists)
	})
}

func TestCreateShipment_TrackingCollision(t *testing.T) {
	t.Run("RetriesWithFreshNumber", func(t *testing.T) {
		f := newFixture(t)
		f.repo.taken["DHL10000001"] = true
		f.repo.taken["DHL10000002"] = true

		sh := f.ship(t, 20)
		assert.Equal(t, "DHL10000003", sh.TrackingNumber)
		assert.Equal(t, 3, f.gen.calls)
	})

	t.Run("GivesUpAfterFiveAttempts", func(t *testing.T) {
		f := newFixture(t)
		f.gen.numbers = []string{"DHL99999999"}
		f.repo.taken["DHL99999999"] = true

		_, err := f.svc.CreateShipment(context.Background(), paidOrder(21), "addr", tracking.CarrierDHL)
		assert.ErrorIs(t, err, ErrTrackingExhausted)
		assert.Equal(t, 5, f.gen.calls)
	})
}

// --- Advance ---

func TestAdvance_DeliveredUpdatesOrder(t *testing.T) {
	conn, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	orders := order.NewRepository(conn)
	f := newFixture(t, order.NewDeliveryHandler(orders))
	f.repo.tx = conn
	ctx := context.Background()

	sh := f.ship(t, 30)
	for _, st := range []Status{StatusPicked, StatusPacked, StatusShipped, StatusInTransit} {
		_, err := f.svc.Advance(ctx, sh.TrackingNumber, st, "Hub", "")
		require.NoError(t, err)
	}
	before, _ := f.svc.History(ctx, sh.TrackingNumber)

	sqlMock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`)).
		WithArgs(order.StatusDelivered, int64(30), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusDelivered, "Königstr. 5", "")
	require.NoError(t, err)
	assert.NoError(t, sqlMock.ExpectationsWereMet(), "order marked delivered in the same transaction")

	assert.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.ActualDelivery)

	after, _ := f.svc.History(ctx, sh.TrackingNumber)
	require.Len(t, after, len(before)+1, "exactly one event appended")
	last := after[len(after)-1]
	assert.Equal(t, StatusDelivered, last.Status)
	assert.Equal(t, "Status updated to Delivered", last.Description)

	assert.Contains(t, f.rec.types(), events.TypeShipmentDelivered)
}

func TestAdvance_HistoryIsValidPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sh := f.ship(t, 31)

	for _, st := range []Status{StatusPicked, StatusPacked, StatusReturned} {
		_, err := f.svc.Advance(ctx, sh.TrackingNumber, st, "", "")
		require.NoError(t, err)
	}

	history, err := f.svc.History(ctx, sh.TrackingNumber)
	require.NoError(t, err)

	for i := 1; i < len(history); i++ {
		noop, err := CheckTransition(history[i-1].Status, history[i].Status)
		assert.NoError(t, err)
		assert.False(t, noop)
		assert.True(t, history[i].EventTime.After(history[i-1].EventTime))
	}

	current, err := f.svc.GetByTrackingNumber(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, history[len(history)-1].Status, current.Status)
}

func TestAdvance_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("SkipToDelivered", func(t *testing.T) {
		f := newFixture(t)
		sh := f.ship(t, 40)

		_, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusDelivered, "", "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.ErrorIs(t, err, ErrSkippedStep)

		history, _ := f.svc.History(ctx, sh.TrackingNumber)
		assert.Len(t, history, 1)
	})

	t.Run("AfterTerminal", func(t *testing.T) {
		f := newFixture(t)
		sh := f.ship(t, 41)
		_, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusReturned, "", "")
		require.NoError(t, err)

		_, err = f.svc.Advance(ctx, sh.TrackingNumber, StatusPicked, "", "")
		assert.ErrorIs(t, err, ErrTerminalState)
	})

	t.Run("UnknownShipment", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Advance(ctx, "NOPE", StatusPicked, "", "")
		assert.ErrorIs(t, err, ErrShipmentNotFound)
	})
}

func TestAdvance_ReentryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sh := f.ship(t, 50)

	_, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusPicked, "", "")
	require.NoError(t, err)
	got, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusPicked, "", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPicked, got.Status)

	history, _ := f.svc.History(ctx, sh.TrackingNumber)
	assert.Len(t, history, 2)
}

func TestAdvance_LostRaceReloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sh := f.ship(t, 60)

	f.repo.beforeApply = func(r *fakeRepo) { r.forceStatus(sh.TrackingNumber, StatusPicked) }

	got, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusPicked, "", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPicked, got.Status)

	history, _ := f.svc.History(ctx, sh.TrackingNumber)
	assert.Len(t, history, 2, "the winner's event only")
}

func TestAdvance_HandlerFailureAborts(t *testing.T) {
	boom := errors.New("order cancelled")
	f := newFixture(t, events.DeliveredHandlerFunc(func(ctx context.Context, tx db.DBTX, evt events.ShipmentDelivered) error {
		return boom
	}))
	ctx := context.Background()
	sh := f.ship(t, 70)
	for _, st := range []Status{StatusPicked, StatusPacked, StatusShipped, StatusInTransit} {
		_, err := f.svc.Advance(ctx, sh.TrackingNumber, st, "", "")
		require.NoError(t, err)
	}

	_, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusDelivered, "", "")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrPersistenceFailure)
	assert.Equal(t, "order cancelled", err.Error())

	current, _ := f.svc.GetByTrackingNumber(ctx, sh.TrackingNumber)
	assert.Equal(t, StatusInTransit, current.Status)
	assert.Nil(t, current.ActualDelivery)
}

func TestAdvance_HandlerConflictKeepsDomainError(t *testing.T) {
	f := newFixture(t, events.DeliveredHandlerFunc(func(ctx context.Context, tx db.DBTX, evt events.ShipmentDelivered) error {
		return fmt.Errorf("%w: order %d is cancelled", order.ErrStatusConflict, evt.OrderID)
	}))
	ctx := context.Background()
	sh := f.ship(t, 75)
	for _, st := range []Status{StatusPicked, StatusPacked, StatusShipped, StatusInTransit} {
		_, err := f.svc.Advance(ctx, sh.TrackingNumber, st, "", "")
		require.NoError(t, err)
	}

	_, err := f.svc.Advance(ctx, sh.TrackingNumber, StatusDelivered, "", "")
	require.ErrorIs(t, err, order.ErrStatusConflict)
	assert.NotContains(t, err.Error(), ErrPersistenceFailure.Error())
}

func TestSimulateProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sh := f.ship(t, 80)

	got, err := f.svc.SimulateProgress(ctx, sh.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, StatusPicked, got.Status)

	history, _ := f.svc.History(ctx, sh.TrackingNumber)
	last := history[len(history)-1]
	assert.Equal(t, "Package picked from shelf", last.Description)
	assert.Regexp(t, `^Transit Hub [1-5]$`, last.Location)

	for i := 0; i < 4; i++ {
		_, err = f.svc.SimulateProgress(ctx, sh.TrackingNumber)
		require.NoError(t, err)
	}
	_, err = f.svc.SimulateProgress(ctx, sh.TrackingNumber)
	assert.ErrorIs(t, err, ErrTerminalState)
}
