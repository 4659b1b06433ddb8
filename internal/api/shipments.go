package api

import (
	"net/http"
	"slices"

	"fulfillment-be/internal/shipping"
	"fulfillment-be/internal/utils"
)

type advanceRequest struct {
	Status      string `json:"status"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type eventView struct {
	shipping.Event
	StatusDisplay string `json:"status_display"`
}

type trackingView struct {
	*shipping.Shipping
	StatusDisplay  string      `json:"status_display"`
	CarrierDisplay string      `json:"carrier_display"`
	Events         []eventView `json:"events"`
}

func newestFirst(events []shipping.Event) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{Event: e, StatusDisplay: e.Status.Display()})
	}
	slices.Reverse(out)
	return out
}

// TrackShipment is the public tracking page: anyone holding the number may read it.
func (h *Handler) TrackShipment(w http.ResponseWriter, r *http.Request) {
	tn := r.PathValue("tracking")

	sh, err := h.Shipments.GetByTrackingNumber(r.Context(), tn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.Shipments.History(r.Context(), tn)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, trackingView{
		Shipping:       sh,
		StatusDisplay:  sh.Status.Display(),
		CarrierDisplay: sh.Carrier.Display(),
		Events:         newestFirst(events),
	})
}

func (h *Handler) ShipmentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Shipments.History(r.Context(), r.PathValue("tracking"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, newestFirst(events))
}

// AdvanceShipment is for carriers and operators. An empty status moves the
// shipment one step with a simulated location.
func (h *Handler) AdvanceShipment(w http.ResponseWriter, r *http.Request) {
	if !utils.IsInternalRequest(r.Context()) {
		utils.WriteJSONError(w, "internal service credentials required", http.StatusForbidden)
		return
	}

	var req advanceRequest
	if !decode(w, r, &req) {
		return
	}

	tn := r.PathValue("tracking")
	var (
		sh  *shipping.Shipping
		err error
	)
	if req.Status == "" {
		sh, err = h.Shipments.SimulateProgress(r.Context(), tn)
	} else {
		var to shipping.Status
		to, err = shipping.ParseStatus(req.Status)
		if err == nil {
			sh, err = h.Shipments.Advance(r.Context(), tn, to, req.Location, req.Description)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sh)
}
