package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

var (
	ReservationsReserved  = &Counter{}
	ReservationsRejected  = &Counter{}
	ReservationsCommitted = &Counter{}
	ReservationsReleased  = &Counter{}
	ReservationsExpired   = &Counter{}

	OrdersCreated      = &Counter{}
	ShipmentsCreated   = &Counter{}
	ShipmentsAdvanced  = &Counter{}
	TrackingCollisions = &Counter{}

	OutboxPublished = &Counter{}
	OutboxFailed    = &Counter{}
)

func Snapshot() map[string]uint64 {
	return map[string]uint64{
		"reservations_reserved":  ReservationsReserved.Load(),
		"reservations_rejected":  ReservationsRejected.Load(),
		"reservations_committed": ReservationsCommitted.Load(),
		"reservations_released":  ReservationsReleased.Load(),
		"reservations_expired":   ReservationsExpired.Load(),
		"orders_created":         OrdersCreated.Load(),
		"shipments_created":      ShipmentsCreated.Load(),
		"shipments_advanced":     ShipmentsAdvanced.Load(),
		"tracking_collisions":    TrackingCollisions.Load(),
		"outbox_published":       OutboxPublished.Load(),
		"outbox_failed":          OutboxFailed.Load(),
	}
}

// Handler serves the current counter values as a flat JSON object.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Snapshot())
	})
}
