// Package api is the HTTP veneer over the fulfillment services.
package api

import (
	"encoding/json"
	"net/http"

	"fulfillment-be/internal/catalog"
	"fulfillment-be/internal/fulfillment"
	"fulfillment-be/internal/metrics"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/shipping"
	"fulfillment-be/internal/utils"
)

const (
	defaultPageSize = 20
	maxBodyBytes    = 1 << 20
)

type Handler struct {
	Orders    order.Service
	Shipments shipping.Service
	Purchases *fulfillment.Orchestrator
	Products  catalog.Repository
}

func NewHandler(orders order.Service, shipments shipping.Service, purchases *fulfillment.Orchestrator, products catalog.Repository) *Handler {
	return &Handler{
		Orders:    orders,
		Shipments: shipments,
		Purchases: purchases,
		Products:  products,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /products", h.ListProducts)

	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /orders/{id}/shipping", h.GetOrderShipping)
	mux.HandleFunc("POST /orders/{id}/shipment", h.CreateShipment)
	mux.HandleFunc("POST /purchase", h.Purchase)

	mux.HandleFunc("GET /shipments/{tracking}", h.TrackShipment)
	mux.HandleFunc("GET /shipments/{tracking}/events", h.ShipmentEvents)
	mux.HandleFunc("POST /shipments/{tracking}/advance", h.AdvanceShipment)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	utils.WriteJSON(w, http.StatusOK, products)
}

// currentUser fails the request with 401 when no caller is authenticated.
func currentUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, order.ErrUnauthorized)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, errBadRequest)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := utils.ToInt64(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, r, order.ErrOrderNotFound)
		return 0, false
	}
	return id, true
}
