package catalog

import "errors"

// Engine error taxonomy. All four are terminal for the operation that
// raised them; the engine never retries internally.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
