package ledger

import "errors"

// Precondition failures. None of them mutate the ledger.
var (
	ErrNoActiveCustomer  = errors.New("no active customer selected")
	ErrNoActiveOrder     = errors.New("no active order for the selected customer")
	ErrIndexOutOfRange   = errors.New("item index out of range")
	ErrOrderTypeMismatch = errors.New("order already holds items of a different type")
	ErrOrderCompleted    = errors.New("order is completed and cannot be modified")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidMode       = errors.New("invalid ledger mode")
)
