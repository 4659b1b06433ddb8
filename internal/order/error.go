package order

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPersistenceFailure = errors.New("order persistence failed")
	ErrStatusConflict     = errors.New("order status does not allow this change")
)
