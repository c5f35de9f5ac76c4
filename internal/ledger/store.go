package ledger

import (
	"context"
	"fmt"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
)

// Store is the single authority over product stock. ApplyDelta is the only
// operation that mutates a stock level; everything else routes through it.
type Store interface {
	// ApplyDelta adds a signed delta to a product's stock and records the
	// movement. Returns the new stock level. A delta that would take stock
	// negative fails with an *InsufficientStockError and changes nothing.
	ApplyDelta(ctx context.Context, productID int64, delta int, reason catalog.Reason, orderID *int64) (int, error)

	// RestoreOrder credits back the quantities of every item of the order,
	// atomically. Idempotent: if restore events for the order already
	// exist, it returns restored=false and touches nothing.
	RestoreOrder(ctx context.Context, orderID int64) (items []catalog.ItemQty, restored bool, err error)

	// CheckAvailability reports whether currentStock >= quantity. Pure
	// read, same consistency as ApplyDelta's read.
	CheckAvailability(ctx context.Context, productID int64, quantity int) (bool, error)

	// StockEvents lists a product's most recent movements, newest first.
	StockEvents(ctx context.Context, productID int64, limit int) ([]catalog.StockEvent, error)
}

// InsufficientStockError carries the numbers a rejection event needs.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, available %d: %v",
		e.ProductID, e.Requested, e.Available, catalog.ErrInsufficientStock)
}

func (e *InsufficientStockError) Unwrap() error { return catalog.ErrInsufficientStock }
