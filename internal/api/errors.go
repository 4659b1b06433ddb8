package api

import (
	"errors"
	"net/http"

	"fulfillment-be/internal/catalog"
	"fulfillment-be/internal/inventory"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/order"
	"fulfillment-be/internal/shipping"
	"fulfillment-be/internal/utils"

	"go.uber.org/zap"
)

var errBadRequest = errors.New("invalid request body")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, shipping.ErrShipmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, shipping.ErrAddressRequired),
		errors.Is(err, shipping.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, shipping.ErrInvalidTransition),
		errors.Is(err, shipping.ErrShipmentAlreadyExists),
		errors.Is(err, shipping.ErrOrderNotShippable),
		errors.Is(err, shipping.ErrConcurrentUpdate),
		errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("layer", "api"),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(code)
	}
	utils.WriteJSONError(w, msg, code)
}
