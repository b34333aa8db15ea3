package service

import "errors"

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrTotalsMismatch = errors.New("order totals do not match current pricing")
	ErrForbidden      = errors.New("not allowed to access this order")
)
