package inventory

import "errors"

var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationReleased  = errors.New("reservation already released")
	ErrReservationCommitted = errors.New("reservation already committed")
	ErrLedgerInconsistent   = errors.New("inventory record does not cover reservation")
)
