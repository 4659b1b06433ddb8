package shipping

import (
	"errors"
	"fmt"
)

var (
	ErrShipmentNotFound      = errors.New("shipment not found")
	ErrShipmentAlreadyExists = errors.New("shipment already exists for order")
	ErrOrderNotShippable     = errors.New("order is not ready for shipment")
	ErrAddressRequired       = errors.New("shipping address is required")
	ErrPersistenceFailure    = errors.New("shipment persistence failed")
	ErrTrackingExhausted     = errors.New("could not allocate a unique tracking number")
	ErrConcurrentUpdate      = errors.New("shipment changed concurrently, retry")

	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTerminalState      = fmt.Errorf("%w: shipment already in a terminal state", ErrInvalidTransition)
	ErrSkippedStep        = fmt.Errorf("%w: skipped a required step", ErrInvalidTransition)
	ErrBackwardTransition = fmt.Errorf("%w: status cannot move backwards", ErrInvalidTransition)
	ErrUnknownStatus      = fmt.Errorf("%w: unknown status", ErrInvalidTransition)

	// Repository signals, translated by the service.
	errTrackingTaken = errors.New("tracking number taken")
	errStaleStatus   = errors.New("shipment status changed since read")
)
