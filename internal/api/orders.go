package api

import (
	"errors"
	"net/http"

	"fulfillment-be/internal/fulfillment"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/tracking"
	"fulfillment-be/internal/utils"
)

const defaultQty = 1

// orderLine accepts "qty" with "quantity" as an alias. A body with neither
// orders one unit; an explicit zero is passed on and rejected.
type orderLine struct {
	SKU      string `json:"sku"`
	Qty      *int   `json:"qty"`
	Quantity *int   `json:"quantity"`
}

func (l orderLine) quantity() int {
	switch {
	case l.Qty != nil:
		return *l.Qty
	case l.Quantity != nil:
		return *l.Quantity
	default:
		return defaultQty
	}
}

type shipmentRequest struct {
	Address string `json:"address"`
	Carrier string `json:"carrier"`
}

type purchaseRequest struct {
	orderLine
	Address string `json:"address"`
	Carrier string `json:"carrier"`
}

type deferredResponse struct {
	Order *order.Order `json:"order"`
	Error string       `json:"error"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req orderLine
	if !decode(w, r, &req) {
		return
	}

	o, err := h.Orders.CreateOrder(r.Context(), userID, req.SKU, req.quantity())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.Orders.ListOrders(r.Context(), userID,
		utils.QueryInt(r, "limit", defaultPageSize),
		utils.QueryInt(r, "page", 1),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.Orders.GetOrder(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) GetOrderShipping(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.Orders.GetOrder(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	sh, err := h.Shipments.GetByOrderID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sh)
}

// CreateShipment ships an existing order, typically one whose purchase was deferred.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req shipmentRequest
	if !decode(w, r, &req) {
		return
	}

	sh, err := h.Purchases.RetryShipment(r.Context(), userID, id, req.Address, tracking.ParseCarrier(req.Carrier))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, sh)
}

// Purchase answers 202 with the order when only the shipment step failed.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Purchases.Purchase(r.Context(), fulfillment.PurchaseRequest{
		UserID:   userID,
		SKU:      req.SKU,
		Quantity: req.quantity(),
		Address:  req.Address,
		Carrier:  tracking.ParseCarrier(req.Carrier),
	})
	switch {
	case errors.Is(err, fulfillment.ErrShipmentDeferred):
		utils.WriteJSON(w, http.StatusAccepted, deferredResponse{Order: res.Order, Error: err.Error()})
	case err != nil:
		writeError(w, r, err)
	default:
		utils.WriteJSON(w, http.StatusCreated, res)
	}
}
